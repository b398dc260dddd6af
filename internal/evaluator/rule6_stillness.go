package evaluator

import "wisefido-pose/internal/models"

// StillnessTriggerSeconds 规则6 的固定阈值（秒）
const StillnessTriggerSeconds = 1.0

// Rule6Stillness 规则6：跌倒后静止
type Rule6Stillness struct{}

// NewRule6Stillness 创建规则6
func NewRule6Stillness() *Rule6Stillness {
	return &Rule6Stillness{}
}

// ID 规则编号
func (r *Rule6Stillness) ID() models.RuleID {
	return models.RuleStillness
}

// Evaluate 连续静止超过 1 秒时触发
func (r *Rule6Stillness) Evaluate(in Input) models.RuleOutcome {
	seconds := in.StillDuration.Seconds()
	return models.RuleOutcome{
		Rule:      r.ID(),
		Triggered: seconds > StillnessTriggerSeconds,
		Value:     seconds,
		Threshold: StillnessTriggerSeconds,
	}
}
