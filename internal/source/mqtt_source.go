package source

import (
	"context"
	"fmt"
	"sync"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/mqtt"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅接口（*mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTSource 订阅 pose/<camera>/landmarks 的姿态来源
// 队列满时丢弃新帧（姿态是实时数据，积压无意义）
type MQTTSource struct {
	sub    Subscriber
	topic  string
	mirror bool
	logger *zap.Logger

	frames    chan models.Frame
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	dropped uint64
}

// NewMQTTSource 创建 MQTT 来源并订阅主题
func NewMQTTSource(sub Subscriber, topic string, qos byte, buffer int, mirror bool, logger *zap.Logger) (*MQTTSource, error) {
	if buffer <= 0 {
		buffer = 64
	}
	s := &MQTTSource{
		sub:    sub,
		topic:  topic,
		mirror: mirror,
		logger: logger,
		frames: make(chan models.Frame, buffer),
		done:   make(chan struct{}),
	}

	if err := sub.Subscribe(topic, qos, s.handleMessage); err != nil {
		return nil, fmt.Errorf("failed to subscribe pose topic: %w", err)
	}
	logger.Info("Subscribed to pose topic", zap.String("topic", topic))
	return s, nil
}

func (s *MQTTSource) handleMessage(topic string, payload []byte) error {
	cameraID, err := mqtt.CameraIDFromTopic(topic)
	if err != nil {
		return err
	}
	frame, err := DecodeFrame(payload, cameraID, s.mirror)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	default:
	}

	select {
	case s.frames <- frame:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		s.logger.Warn("Pose frame queue full, dropping frame",
			zap.String("camera_id", frame.CameraID),
			zap.Uint64("seq", frame.Seq),
			zap.Uint64("dropped_total", dropped),
		)
	}
	return nil
}

// Next 返回下一帧
func (s *MQTTSource) Next(ctx context.Context) (models.Frame, error) {
	select {
	case <-ctx.Done():
		return models.Frame{}, ctx.Err()
	case <-s.done:
		return models.Frame{}, ErrSourceClosed
	case frame := <-s.frames:
		return frame, nil
	}
}

// Dropped 因队列满丢弃的帧数
func (s *MQTTSource) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close 取消订阅并关闭来源
func (s *MQTTSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.sub.Unsubscribe(s.topic)
	})
	return err
}
