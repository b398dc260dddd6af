package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-pose/internal/evaluator"
	"wisefido-pose/internal/models"
	"wisefido-pose/internal/notifier"
	"wisefido-pose/internal/session"
	"wisefido-pose/internal/source"

	"go.uber.org/zap"
)

// StatusCache 最新状态缓存
type StatusCache interface {
	UpdateStatus(ctx context.Context, result models.FrameResult) error
}

// StateStore 会话状态快照存储
type StateStore interface {
	SetState(ctx context.Context, cameraID string, state models.SessionState, ttl time.Duration) error
}

// AlarmEventStore 报警事件持久化
type AlarmEventStore interface {
	CreateAlarmEvent(ctx context.Context, event *models.AlarmEvent) error
}

// Metrics 监控指标
type Metrics struct {
	mu sync.RWMutex

	// 帧处理统计
	FramesProcessed int64 // 处理的帧总数
	FramesSucceeded int64 // 成功处理的帧数
	FramesFailed    int64 // 处理失败的帧数
	FramesSkipped   int64 // 跳过的帧数（无人、可见度不足、会话已停止）
	AlertsRaised    int64 // 产生的报警副作用数

	// 错误分类统计
	ErrorsSource int64 // 数据来源读取错误
	ErrorsCache  int64 // 缓存更新失败
	ErrorsNotify int64 // 报警投递失败
	ErrorsStore  int64 // 报警事件落库失败

	// 性能指标
	TotalProcessingTime time.Duration // 总处理时间
	LastProcessTime     time.Time     // 最后处理时间

	// 启动时间
	StartTime time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		FramesProcessed:     m.FramesProcessed,
		FramesSucceeded:     m.FramesSucceeded,
		FramesFailed:        m.FramesFailed,
		FramesSkipped:       m.FramesSkipped,
		AlertsRaised:        m.AlertsRaised,
		ErrorsSource:        m.ErrorsSource,
		ErrorsCache:         m.ErrorsCache,
		ErrorsNotify:        m.ErrorsNotify,
		ErrorsStore:         m.ErrorsStore,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

// IncrementProcessed 增加处理计数
func (m *Metrics) IncrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FramesProcessed++
}

// IncrementSucceeded 增加成功计数
func (m *Metrics) IncrementSucceeded(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FramesSucceeded++
	m.TotalProcessingTime += duration
	m.LastProcessTime = time.Now()
}

// IncrementFailed 增加失败计数
func (m *Metrics) IncrementFailed(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch errorType {
	case "source":
		m.ErrorsSource++
		return
	case "cache":
		m.ErrorsCache++
	case "notify":
		m.ErrorsNotify++
	case "store":
		m.ErrorsStore++
	}
	m.FramesFailed++
}

// IncrementSkipped 增加跳过计数
func (m *Metrics) IncrementSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FramesSkipped++
}

// IncrementAlerts 增加报警计数
func (m *Metrics) IncrementAlerts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AlertsRaised += int64(n)
}

// FrameConsumer 从姿态数据来源拉取帧，驱动会话并分发结果
type FrameConsumer struct {
	manager  *session.Manager
	cache    StatusCache
	states   StateStore
	notifier notifier.Notifier
	store    AlarmEventStore
	stateTTL time.Duration
	logger   *zap.Logger
	metrics  *Metrics

	metricsInterval time.Duration
}

// NewFrameConsumer 创建帧消费者；cache / states / notifier / store 均可为 nil
func NewFrameConsumer(
	manager *session.Manager,
	cache StatusCache,
	states StateStore,
	n notifier.Notifier,
	store AlarmEventStore,
	stateTTL time.Duration,
	logger *zap.Logger,
) *FrameConsumer {
	return &FrameConsumer{
		manager:  manager,
		cache:    cache,
		states:   states,
		notifier: n,
		store:    store,
		stateTTL: stateTTL,
		logger:   logger,
		metrics: &Metrics{
			StartTime: time.Now(),
		},
		metricsInterval: 60 * time.Second,
	}
}

// Metrics 返回指标
func (c *FrameConsumer) Metrics() *Metrics {
	return c.metrics
}

// Run 消费数据来源直到 ctx 取消或来源关闭
func (c *FrameConsumer) Run(ctx context.Context, src source.PoseSource) error {
	c.logger.Info("Frame consumer started")

	// 启动指标报告协程
	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	go c.reportMetrics(metricsCtx, src)

	backoffDuration := time.Second // 初始退避时间
	maxBackoff := 30 * time.Second // 最大退避时间

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, source.ErrSourceClosed) {
				c.logger.Info("Pose source closed, frame consumer exiting")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}

			c.metrics.IncrementFailed("source")
			c.logger.Error("Failed to read pose frame",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			// 指数退避：等待后重试
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}

		// 成功时重置退避时间
		backoffDuration = time.Second

		c.metrics.IncrementProcessed()
		if err := c.ProcessFrame(ctx, frame); err != nil {
			c.logger.Error("Failed to process frame",
				zap.String("camera_id", frame.CameraID),
				zap.Uint64("seq", frame.Seq),
				zap.Error(err),
			)
			// 继续处理下一帧，不中断
		}
	}
}

// ProcessFrame 处理单帧
//
// 处理流程：
// 1. 按 camera_id 获取会话并运行检测流水线
// 2. 更新 Redis 最新状态与会话快照
// 3. 投递报警副作用并落库报警事件
func (c *FrameConsumer) ProcessFrame(ctx context.Context, frame models.Frame) error {
	startTime := time.Now()

	sess := c.manager.GetOrCreate(frame.CameraID)
	result, err := sess.ProcessFrame(frame)
	if err != nil {
		if errors.Is(err, session.ErrSessionStopped) {
			c.metrics.IncrementSkipped()
			return nil
		}
		c.metrics.IncrementFailed("session")
		return fmt.Errorf("failed to process frame: %w", err)
	}
	if result.Skipped {
		c.metrics.IncrementSkipped()
	}

	var errs []error

	if c.cache != nil {
		if err := c.cache.UpdateStatus(ctx, result); err != nil {
			c.metrics.IncrementFailed("cache")
			errs = append(errs, fmt.Errorf("failed to update status cache: %w", err))
		}
	}
	if c.states != nil {
		if err := c.states.SetState(ctx, frame.CameraID, sess.State(), c.stateTTL); err != nil {
			c.metrics.IncrementFailed("cache")
			errs = append(errs, fmt.Errorf("failed to save session state: %w", err))
		}
	}

	if len(result.Effects) > 0 {
		c.metrics.IncrementAlerts(len(result.Effects))
		errs = append(errs, c.dispatchEffects(ctx, result)...)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	processingDuration := time.Since(startTime)
	c.metrics.IncrementSucceeded(processingDuration)
	c.logger.Debug("Processed pose frame",
		zap.String("camera_id", result.CameraID),
		zap.Uint64("seq", result.Seq),
		zap.String("status", string(result.Status)),
		zap.Duration("processing_time", processingDuration),
	)
	return nil
}

// dispatchEffects 投递报警副作用并落库
func (c *FrameConsumer) dispatchEffects(ctx context.Context, result models.FrameResult) []error {
	var errs []error
	builder := evaluator.NewAlarmEventBuilder(result.CameraID)

	for _, effect := range result.Effects {
		c.logger.Warn("Alert raised",
			zap.String("camera_id", result.CameraID),
			zap.String("kind", string(effect.Kind)),
			zap.Strings("rules", models.RuleNames(effect.Rules)),
			zap.Int("duration_sec", effect.DurationSec),
		)

		if c.notifier != nil {
			if err := c.notifier.Notify(ctx, result, effect); err != nil {
				c.metrics.IncrementFailed("notify")
				errs = append(errs, fmt.Errorf("failed to notify %s alert: %w", effect.Kind, err))
			}
		}

		if c.store != nil {
			event, err := builder.BuildFromEffect(result, effect)
			if err != nil {
				c.metrics.IncrementFailed("store")
				errs = append(errs, err)
				continue
			}
			if err := c.store.CreateAlarmEvent(ctx, event); err != nil {
				c.metrics.IncrementFailed("store")
				errs = append(errs, fmt.Errorf("failed to store alarm event: %w", err))
			}
		}
	}
	return errs
}

// reportMetrics 定期报告指标
func (c *FrameConsumer) reportMetrics(ctx context.Context, src source.PoseSource) {
	ticker := time.NewTicker(c.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := c.metrics.GetSnapshot()
			uptime := time.Since(snapshot.StartTime)

			var avgProcessingTime time.Duration
			if snapshot.FramesSucceeded > 0 {
				avgProcessingTime = snapshot.TotalProcessingTime / time.Duration(snapshot.FramesSucceeded)
			}

			successRate := float64(0)
			if snapshot.FramesProcessed > 0 {
				successRate = float64(snapshot.FramesSucceeded) / float64(snapshot.FramesProcessed) * 100
			}

			fields := []zap.Field{
				zap.Int64("frames_processed", snapshot.FramesProcessed),
				zap.Int64("frames_succeeded", snapshot.FramesSucceeded),
				zap.Int64("frames_failed", snapshot.FramesFailed),
				zap.Int64("frames_skipped", snapshot.FramesSkipped),
				zap.Int64("alerts_raised", snapshot.AlertsRaised),
				zap.Float64("success_rate", successRate),
				zap.Int64("errors_source", snapshot.ErrorsSource),
				zap.Int64("errors_cache", snapshot.ErrorsCache),
				zap.Int64("errors_notify", snapshot.ErrorsNotify),
				zap.Int64("errors_store", snapshot.ErrorsStore),
				zap.Duration("avg_processing_time", avgProcessingTime),
				zap.Duration("uptime", uptime),
			}
			if dc, ok := src.(source.DropCounter); ok {
				fields = append(fields, zap.Uint64("frames_dropped", dc.Dropped()))
			}
			c.logger.Info("Metrics report", fields...)
		}
	}
}
