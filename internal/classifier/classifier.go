// Package classifier 将规则结果、静止计时和特征合成为粗粒度行为状态。
//
// Classify 是纯函数：输入一个不可变快照，返回新的会话状态和副作用列表，
// 不读取全局时钟，也不做任何 I/O。
package classifier

import (
	"fmt"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/stillness"
)

const (
	// CountPolicyMinimum count 策略所需的最少触发规则数
	CountPolicyMinimum = 2
	// LyingStillSeconds 卧床计时开始前所需的连续静止秒数
	LyingStillSeconds = 2.0
	// RecoverySeconds 跌倒后允许判定恢复的最短秒数
	RecoverySeconds = 3.0
	// RecoveryAngle 恢复判定的体轴角度上限
	RecoveryAngle = 40.0
	// SittingAngle 坐姿判定的体轴角度上限
	SittingAngle = 45.0
	// SittingHeadHeight 坐姿判定的头部 y 下限
	SittingHeadHeight = 0.35
	// BannerDuration 跌倒横幅显示时长
	BannerDuration = 2 * time.Second
)

// Branch 本帧命中的判定分支
type Branch string

const (
	BranchFallEntry   Branch = "fall_entry"
	BranchLyingEntry  Branch = "lying_entry"
	BranchLyingHold   Branch = "lying_hold"
	BranchRecovered   Branch = "recovered"
	BranchFallHold    Branch = "fall_hold"
	BranchSteadyState Branch = "steady_state"
)

// Input 单帧判定输入快照
type Input struct {
	State         models.SessionState
	Features      models.FeatureVector
	Outcomes      models.RuleOutcomes
	Enabled       models.RuleToggles
	Policy        models.CombinePolicy
	Thresholds    models.ThresholdSet
	StillDuration time.Duration
	Now           time.Time
}

// Decision 判定结果
type Decision struct {
	State     models.SessionState // 新的会话状态
	Status    models.Status       // 对外展示的状态
	Text      string              // 状态文字
	Branch    Branch
	Triggered []models.RuleID // 启用且触发的规则
	Effects   []models.AlertEffect
}

// Combine 按组合策略判断是否构成跌倒条件
// 返回是否跌倒以及启用且触发的规则列表（按编号升序）
func Combine(policy models.CombinePolicy, enabled models.RuleToggles, outcomes models.RuleOutcomes) (bool, []models.RuleID) {
	var triggered []models.RuleID
	for _, id := range models.AllRules {
		if enabled.Enabled(id) && outcomes.Get(id).Triggered {
			triggered = append(triggered, id)
		}
	}
	enabledCount := enabled.Count()

	switch policy {
	case models.PolicyOr:
		return len(triggered) >= 1, triggered
	case models.PolicyAnd:
		return enabledCount > 0 && len(triggered) == enabledCount, triggered
	default:
		return len(triggered) >= CountPolicyMinimum, triggered
	}
}

// Classify 按优先级依次判定（命中第一个分支后即返回）：
// 1. 跌倒进入  2. 长时间卧床  3. 跌倒恢复  4. 常规状态
func Classify(in Input) Decision {
	st := in.State
	now := in.Now
	fv := in.Features

	falling, triggered := Combine(in.Policy, in.Enabled, in.Outcomes)
	d := Decision{Triggered: triggered}

	// 1. 跌倒检测：只在进入 fall 的边沿产生报警
	if falling && st.CurrentStatus != models.StatusFall {
		t := now
		st.FallDetectedTime = &t
		st.CurrentStatus = models.StatusFall

		d.State = st
		d.Status = models.StatusFall
		d.Text = "Fall detected!"
		d.Branch = BranchFallEntry
		d.Effects = []models.AlertEffect{{
			Kind:           models.AlertFall,
			Rules:          triggered,
			Tone:           true,
			Vibrate:        true,
			Banner:         models.RuleNames(triggered),
			BannerDuration: BannerDuration,
		}}
		return d
	}

	// 2. 长时间卧床
	horizontal := fv.BodyAngle > in.Thresholds.Angle
	if horizontal && in.StillDuration.Seconds() > LyingStillSeconds {
		if st.LyingStartTime == nil {
			t := now
			st.LyingStartTime = &t
		}
		lying := now.Sub(*st.LyingStartTime).Seconds()

		// 常规分类也会把水平姿态记为 lying，进入边沿以 LyingAlertTime 为准
		if lying >= in.Thresholds.LyingSeconds && st.LyingAlertTime == nil {
			t := now
			st.LyingAlertTime = &t
			st.CurrentStatus = models.StatusLying
			d.State = st
			d.Status = models.StatusLying
			d.Text = lyingText(lying)
			d.Branch = BranchLyingEntry
			d.Effects = []models.AlertEffect{{
				Kind:        models.AlertLying,
				Tone:        true,
				DurationSec: int(lying),
			}}
			return d
		}

		if st.CurrentStatus == models.StatusLying && st.LyingAlertTime != nil {
			d.State = st
			d.Status = models.StatusLying
			d.Text = lyingText(lying)
			d.Branch = BranchLyingHold
			return d
		}
	} else if !horizontal {
		st.ClearLying()
	}

	// 3. 跌倒后恢复
	if st.FallDetectedTime != nil {
		sinceFall := now.Sub(*st.FallDetectedTime).Seconds()

		if sinceFall > RecoverySeconds && !horizontal && fv.BodyAngle < RecoveryAngle {
			st.FallDetectedTime = nil
			st.CurrentStatus = models.StatusStanding
			d.State = st
			d.Status = models.StatusStanding
			d.Text = "Standing (recovered)"
			d.Branch = BranchRecovered
			return d
		}

		if st.CurrentStatus == models.StatusFall {
			d.State = st
			d.Status = models.StatusFall
			d.Text = fmt.Sprintf("Fall detected! (%ds elapsed)", int(sinceFall))
			d.Branch = BranchFallHold
			return d
		}
	}

	// 4. 常规状态
	d.Branch = BranchSteadyState
	d.Status, d.Text = steadyState(fv, horizontal)
	st.CurrentStatus = d.Status
	d.State = st
	return d
}

func steadyState(fv models.FeatureVector, horizontal bool) (models.Status, string) {
	moving := stillness.IsMoving(fv.Movement)

	switch {
	case !horizontal && fv.BodyAngle < SittingAngle && fv.HeadHeight > SittingHeadHeight && !moving:
		return models.StatusSitting, "Sitting"
	case moving:
		return models.StatusMoving, "Moving"
	case !horizontal && fv.BodyAngle < RecoveryAngle:
		return models.StatusStanding, "Standing"
	case horizontal:
		return models.StatusLying, "Lying"
	default:
		return models.StatusUnknown, "Evaluating..."
	}
}

func lyingText(seconds float64) string {
	return fmt.Sprintf("Prolonged lying (%ds)", int(seconds))
}
