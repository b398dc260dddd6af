package notifier

import (
	"context"
	"errors"
	"fmt"

	"wisefido-pose/internal/models"

	"go.uber.org/zap"
)

// ErrQueueFull 异步投递队列已满，报警被丢弃
var ErrQueueFull = errors.New("notify queue full")

type asyncJob struct {
	result models.FrameResult
	effect models.AlertEffect
}

// AsyncNotifier 在后台协程中投递报警，Notify 只入队不阻塞帧处理
type AsyncNotifier struct {
	name   string
	inner  Notifier
	jobs   chan asyncJob
	logger *zap.Logger
}

// NewAsyncNotifier 创建异步投递器；需要调用 Run 启动投递协程
func NewAsyncNotifier(name string, inner Notifier, queueSize int, logger *zap.Logger) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &AsyncNotifier{
		name:   name,
		inner:  inner,
		jobs:   make(chan asyncJob, queueSize),
		logger: logger.With(zap.String("notifier", name)),
	}
}

// Notify 入队；队列满时立即返回 ErrQueueFull
func (a *AsyncNotifier) Notify(_ context.Context, result models.FrameResult, effect models.AlertEffect) error {
	select {
	case a.jobs <- asyncJob{result: result, effect: effect}:
		return nil
	default:
		a.logger.Warn("Notify queue full, dropping alert",
			zap.String("camera_id", result.CameraID),
			zap.String("kind", string(effect.Kind)),
		)
		return fmt.Errorf("%w: %s", ErrQueueFull, a.name)
	}
}

// Run 逐个投递直到 ctx 取消；取消时仍在队列中的报警被丢弃
func (a *AsyncNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if pending := len(a.jobs); pending > 0 {
				a.logger.Warn("Notifier stopped with pending alerts", zap.Int("pending", pending))
			}
			return
		case job := <-a.jobs:
			if err := a.inner.Notify(ctx, job.result, job.effect); err != nil {
				a.logger.Error("Async alert delivery failed",
					zap.String("camera_id", job.result.CameraID),
					zap.String("kind", string(job.effect.Kind)),
					zap.Error(err),
				)
			}
		}
	}
}
