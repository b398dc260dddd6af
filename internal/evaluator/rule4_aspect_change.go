package evaluator

import "wisefido-pose/internal/models"

// Rule4AspectChange 规则4：外接框从瘦高变为矮宽
type Rule4AspectChange struct{}

// NewRule4AspectChange 创建规则4
func NewRule4AspectChange() *Rule4AspectChange {
	return &Rule4AspectChange{}
}

// ID 规则编号
func (r *Rule4AspectChange) ID() models.RuleID {
	return models.RuleAspectChange
}

// Evaluate aspectRatio_then - aspectRatio_now > th.Ratio 时触发
func (r *Rule4AspectChange) Evaluate(in Input) models.RuleOutcome {
	out := models.RuleOutcome{
		Rule:      r.ID(),
		Threshold: in.Thresholds.Ratio,
	}

	then, ok := in.lookback()
	if !ok {
		return out
	}

	out.Value = then.Features.AspectRatio - in.Current.AspectRatio
	out.Triggered = out.Value > in.Thresholds.Ratio
	return out
}
