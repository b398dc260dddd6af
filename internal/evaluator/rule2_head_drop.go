package evaluator

import "wisefido-pose/internal/models"

// Rule2HeadDrop 规则2：头部急落
type Rule2HeadDrop struct{}

// NewRule2HeadDrop 创建规则2
func NewRule2HeadDrop() *Rule2HeadDrop {
	return &Rule2HeadDrop{}
}

// ID 规则编号
func (r *Rule2HeadDrop) ID() models.RuleID {
	return models.RuleHeadDrop
}

// Evaluate headHeight_now - headHeight_then > th.HeadDrop 时触发
// 历史不足时数值为 0，且不触发
func (r *Rule2HeadDrop) Evaluate(in Input) models.RuleOutcome {
	out := models.RuleOutcome{
		Rule:      r.ID(),
		Threshold: in.Thresholds.HeadDrop,
	}

	then, ok := in.lookback()
	if !ok {
		return out
	}

	out.Value = in.Current.HeadHeight - then.Features.HeadHeight
	out.Triggered = out.Value > in.Thresholds.HeadDrop
	return out
}
