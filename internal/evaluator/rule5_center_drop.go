package evaluator

import "wisefido-pose/internal/models"

// Rule5CenterDrop 规则5：重心急落
type Rule5CenterDrop struct{}

// NewRule5CenterDrop 创建规则5
func NewRule5CenterDrop() *Rule5CenterDrop {
	return &Rule5CenterDrop{}
}

// ID 规则编号
func (r *Rule5CenterDrop) ID() models.RuleID {
	return models.RuleCenterDrop
}

// Evaluate centerY_now - centerY_then > th.CenterDrop 时触发
func (r *Rule5CenterDrop) Evaluate(in Input) models.RuleOutcome {
	out := models.RuleOutcome{
		Rule:      r.ID(),
		Threshold: in.Thresholds.CenterDrop,
	}

	then, ok := in.lookback()
	if !ok {
		return out
	}

	out.Value = in.Current.CenterY - then.Features.CenterY
	out.Triggered = out.Value > in.Thresholds.CenterDrop
	return out
}
