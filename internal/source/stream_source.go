package source

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"wisefido-pose/internal/models"
	rediscommon "wisefido-pose/internal/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamSource 从 Redis Streams 消费组读取姿态帧
// 消息字段：data = Payload JSON
type StreamSource struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	mirror   bool
	logger   *zap.Logger

	pending []models.Frame
	closed  atomic.Bool
}

// StreamSourceConfig Redis Streams 来源参数
type StreamSourceConfig struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	Mirror   bool
}

// NewStreamSource 创建 Redis Streams 来源（自动创建消费组）
func NewStreamSource(ctx context.Context, client *redis.Client, cfg StreamSourceConfig, logger *zap.Logger) (*StreamSource, error) {
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	if err := rediscommon.CreateConsumerGroup(ctx, client, cfg.Stream, cfg.Group); err != nil {
		return nil, err
	}
	return &StreamSource{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: cfg.Consumer,
		block:    cfg.Block,
		mirror:   cfg.Mirror,
		logger:   logger,
	}, nil
}

// Next 返回下一帧；无法解析的消息记录日志后确认并跳过
func (s *StreamSource) Next(ctx context.Context) (models.Frame, error) {
	for {
		if s.closed.Load() {
			return models.Frame{}, ErrSourceClosed
		}
		if len(s.pending) > 0 {
			frame := s.pending[0]
			s.pending = s.pending[1:]
			return frame, nil
		}
		if err := ctx.Err(); err != nil {
			return models.Frame{}, err
		}

		messages, err := rediscommon.ReadFromStream(ctx, s.client, s.stream, s.group, s.consumer, 10, s.block)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return models.Frame{}, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.Frame{}, ctxErr
			}
			return models.Frame{}, fmt.Errorf("failed to read pose stream: %w", err)
		}

		ids := make([]string, 0, len(messages))
		for _, msg := range messages {
			ids = append(ids, msg.ID)
			frame, err := s.decode(msg)
			if err != nil {
				s.logger.Warn("Skipping malformed pose message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				continue
			}
			s.pending = append(s.pending, frame)
		}

		// 帧只处理一次，读取后立即确认
		if err := rediscommon.Ack(ctx, s.client, s.stream, s.group, ids...); err != nil {
			s.logger.Error("Failed to ack pose messages", zap.Error(err))
		}
	}
}

func (s *StreamSource) decode(msg rediscommon.StreamMessage) (models.Frame, error) {
	data, ok := msg.StringField("data")
	if !ok {
		return models.Frame{}, errors.New("missing data field")
	}
	camera, _ := msg.StringField("camera_id")
	return DecodeFrame([]byte(data), camera, s.mirror)
}

// Close 关闭来源
func (s *StreamSource) Close() error {
	s.closed.Store(true)
	return nil
}
