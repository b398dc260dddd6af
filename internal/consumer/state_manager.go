package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-pose/internal/config"
	"wisefido-pose/internal/models"
	rediscommon "wisefido-pose/internal/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AlertRecord 写入报警事件流的记录
type AlertRecord struct {
	CameraID    string   `json:"camera_id"`
	Seq         uint64   `json:"seq"`
	Kind        string   `json:"kind"`
	Status      string   `json:"status"`
	Text        string   `json:"text"`
	Rules       []string `json:"rules,omitempty"`
	DurationSec int      `json:"duration_sec,omitempty"`
	TimestampMs int64    `json:"timestamp_ms"`
}

// StateManager 会话状态快照与报警事件流
// 实现 notifier.Notifier，供下游服务（如报警聚合）订阅 pose:alerts:stream
type StateManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *StateManager {
	return &StateManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// GetStateKey 构建会话状态键，如 pose:camera:cam-1:state
func (s *StateManager) GetStateKey(cameraID string) string {
	return fmt.Sprintf("%s%s:state", s.config.Pose.Cache.StatusKeyPrefix, cameraID)
}

// SetState 保存会话状态快照（带 TTL）
func (s *StateManager) SetState(ctx context.Context, cameraID string, state models.SessionState, ttl time.Duration) error {
	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.redisClient.Set(ctx, s.GetStateKey(cameraID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}
	return nil
}

// GetState 读取会话状态快照
func (s *StateManager) GetState(ctx context.Context, cameraID string) (*models.SessionState, error) {
	key := s.GetStateKey(cameraID)
	val, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("state not found: %s", key)
		}
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	var state models.SessionState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// DeleteState 删除会话状态快照（会话重置时调用）
func (s *StateManager) DeleteState(ctx context.Context, cameraID string) error {
	if err := s.redisClient.Del(ctx, s.GetStateKey(cameraID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// BuildAlertRecord 构建报警流记录
func BuildAlertRecord(result models.FrameResult, effect models.AlertEffect) AlertRecord {
	return AlertRecord{
		CameraID:    result.CameraID,
		Seq:         result.Seq,
		Kind:        string(effect.Kind),
		Status:      string(result.Status),
		Text:        result.Text,
		Rules:       models.RuleNames(effect.Rules),
		DurationSec: effect.DurationSec,
		TimestampMs: result.Timestamp.UnixMilli(),
	}
}

// Notify 发布报警到事件流
func (s *StateManager) Notify(ctx context.Context, result models.FrameResult, effect models.AlertEffect) error {
	record := BuildAlertRecord(result, effect)
	id, err := rediscommon.PublishJSONToStream(ctx, s.redisClient,
		s.config.Pose.Cache.AlertStream,
		s.config.Pose.Cache.AlertStreamLen,
		record,
	)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	s.logger.Info("Alert published to stream",
		zap.String("camera_id", record.CameraID),
		zap.String("kind", record.Kind),
		zap.String("stream_id", id),
	)
	return nil
}
