package evaluator

import "wisefido-pose/internal/models"

// Rule1AxisHorizontal 规则1：体轴水平化
type Rule1AxisHorizontal struct{}

// NewRule1AxisHorizontal 创建规则1
func NewRule1AxisHorizontal() *Rule1AxisHorizontal {
	return &Rule1AxisHorizontal{}
}

// ID 规则编号
func (r *Rule1AxisHorizontal) ID() models.RuleID {
	return models.RuleAxisHorizontal
}

// Evaluate bodyAngle > th.Angle 时触发，不需要回看
func (r *Rule1AxisHorizontal) Evaluate(in Input) models.RuleOutcome {
	return models.RuleOutcome{
		Rule:      r.ID(),
		Triggered: in.Current.BodyAngle > in.Thresholds.Angle,
		Value:     in.Current.BodyAngle,
		Threshold: in.Thresholds.Angle,
	}
}
