package evaluator

import "wisefido-pose/internal/models"

// Rule3FloorProximity 规则3：头部接近地面（y 越大越靠近画面底部）
type Rule3FloorProximity struct{}

// NewRule3FloorProximity 创建规则3
func NewRule3FloorProximity() *Rule3FloorProximity {
	return &Rule3FloorProximity{}
}

// ID 规则编号
func (r *Rule3FloorProximity) ID() models.RuleID {
	return models.RuleFloorProximity
}

// Evaluate headHeight > th.Floor 时触发
func (r *Rule3FloorProximity) Evaluate(in Input) models.RuleOutcome {
	return models.RuleOutcome{
		Rule:      r.ID(),
		Triggered: in.Current.HeadHeight > in.Thresholds.Floor,
		Value:     in.Current.HeadHeight,
		Threshold: in.Thresholds.Floor,
	}
}
