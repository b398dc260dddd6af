// Package stillness 跟踪受试者持续静止的时长。
package stillness

import "time"

// Threshold 静止判定阈值（每帧肩部中点归一化位移），不对外开放配置
const Threshold = 0.008

// Tracker 两状态机：moving / still
type Tracker struct {
	still bool
	start time.Time
}

// Update 根据本帧位移更新状态
// 位移 < Threshold 立即进入 still 并记录起点；否则立即回到 moving 并清除起点
func (t *Tracker) Update(movement float64, now time.Time) {
	if movement < Threshold {
		if !t.still {
			t.still = true
			t.start = now
		}
		return
	}
	t.still = false
	t.start = time.Time{}
}

// StartTime 静止起点；moving 时为 nil
func (t *Tracker) StartTime() *time.Time {
	if !t.still {
		return nil
	}
	start := t.start
	return &start
}

// Duration 连续静止时长；moving 时为 0
func (t *Tracker) Duration(now time.Time) time.Duration {
	if !t.still {
		return 0
	}
	if d := now.Sub(t.start); d > 0 {
		return d
	}
	return 0
}

// Reset 回到 moving 且清除起点
func (t *Tracker) Reset() {
	t.still = false
	t.start = time.Time{}
}

// IsMoving 位移是否超过静止阈值
// 恰好等于阈值时既不算静止也不算移动
func IsMoving(movement float64) bool {
	return movement > Threshold
}
