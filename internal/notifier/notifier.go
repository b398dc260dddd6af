// Package notifier 把状态进入边沿产生的报警副作用（提示音、振动、横幅）投递到外部。
package notifier

import (
	"context"
	"errors"

	"wisefido-pose/internal/models"
)

// Notifier 报警副作用投递接口
type Notifier interface {
	Notify(ctx context.Context, result models.FrameResult, effect models.AlertEffect) error
}

// Multi 依次投递到多个 Notifier，单个失败不影响其他
type Multi []Notifier

// Notify 投递到全部 Notifier，返回合并后的错误
func (m Multi) Notify(ctx context.Context, result models.FrameResult, effect models.AlertEffect) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, result, effect); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// 提示音参数（880Hz 方波，0.3 秒，初始增益 0.3）
const (
	ToneFrequencyHz = 880
	ToneWaveform    = "square"
	ToneDurationMs  = 300
	ToneGain        = 0.3
)

// VibrationPattern 振动模式（毫秒：振动/暂停交替）
var VibrationPattern = []int{200, 100, 200, 100, 200}
