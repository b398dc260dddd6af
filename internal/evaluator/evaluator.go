package evaluator

import (
	"time"

	"wisefido-pose/internal/history"
	"wisefido-pose/internal/models"

	"go.uber.org/zap"
)

// Lookback 固定帧差回看（history.Buffer 实现）
type Lookback interface {
	Lookback(n int) (history.Entry, bool)
}

// Input 单次评估的输入快照（当前特征 + 历史 + 阈值 + 静止时长）
type Input struct {
	Current       models.FeatureVector
	History       Lookback
	Thresholds    models.ThresholdSet
	StillDuration time.Duration
}

// lookback 回看 LookbackLag 帧；历史不足时 ok 为 false
func (in Input) lookback() (history.Entry, bool) {
	if in.History == nil {
		return history.Entry{}, false
	}
	return in.History.Lookback(history.LookbackLag)
}

// Rule 单条规则；规则之间互不依赖，只共享输入
type Rule interface {
	ID() models.RuleID
	Evaluate(in Input) models.RuleOutcome
}

// Evaluator 规则评估器（六条规则，顺序固定）
type Evaluator struct {
	rules  [models.RuleCount]Rule
	logger *zap.Logger
}

// NewEvaluator 创建评估器
func NewEvaluator(logger *zap.Logger) *Evaluator {
	e := &Evaluator{
		logger: logger,
	}

	// 初始化规则（下标与 RuleID.Index() 一致）
	e.rules = [models.RuleCount]Rule{
		NewRule1AxisHorizontal(), // 体轴水平化
		NewRule2HeadDrop(),       // 头部急落
		NewRule3FloorProximity(), // 接近地面
		NewRule4AspectChange(),   // 宽高比变化
		NewRule5CenterDrop(),     // 重心急落
		NewRule6Stillness(),      // 跌倒后静止
	}

	return e
}

// Evaluate 评估六条规则；纯函数，不修改任何输入
func (e *Evaluator) Evaluate(in Input) models.RuleOutcomes {
	var out models.RuleOutcomes
	for i, rule := range e.rules {
		out[i] = rule.Evaluate(in)
	}

	if e.logger.Core().Enabled(zap.DebugLevel) {
		var fired []string
		for _, o := range out {
			if o.Triggered {
				fired = append(fired, o.Rule.Key()+" "+o.Describe())
			}
		}
		if len(fired) > 0 {
			e.logger.Debug("Rules triggered",
				zap.Strings("rules", fired),
			)
		}
	}

	return out
}
