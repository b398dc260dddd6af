package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"wisefido-pose/internal/config"
	"wisefido-pose/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrStatusNotFound 缓存中没有该摄像头的最新状态
var ErrStatusNotFound = errors.New("status not found")

// CacheManager Redis 缓存管理器（每个摄像头的最新帧结果）
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// statusKey 构建缓存键
func (c *CacheManager) statusKey(cameraID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Pose.Cache.StatusKeyPrefix,
		cameraID,
		c.config.Pose.Cache.StatusSuffix,
	)
}

// UpdateStatus 更新最新状态（带 TTL）
func (c *CacheManager) UpdateStatus(ctx context.Context, result models.FrameResult) error {
	key := c.statusKey(result.CameraID)

	jsonData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal frame result: %w", err)
	}

	if err := c.redisClient.Set(ctx, key, jsonData, c.config.Pose.Cache.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to set status cache: %w", err)
	}

	c.logger.Debug("Updated status cache",
		zap.String("camera_id", result.CameraID),
		zap.String("key", key),
		zap.String("status", string(result.Status)),
	)
	return nil
}

// GetStatus 读取最新状态
func (c *CacheManager) GetStatus(ctx context.Context, cameraID string) (*models.FrameResult, error) {
	val, err := c.redisClient.Get(ctx, c.statusKey(cameraID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w for camera: %s", ErrStatusNotFound, cameraID)
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var result models.FrameResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame result: %w", err)
	}
	return &result, nil
}

// ListCameraIDs 获取缓存中所有摄像头 ID（扫描 Redis 键）
func (c *CacheManager) ListCameraIDs(ctx context.Context) ([]string, error) {
	prefix := c.config.Pose.Cache.StatusKeyPrefix
	suffix := c.config.Pose.Cache.StatusSuffix
	pattern := fmt.Sprintf("%s*%s", prefix, suffix)

	var cameraIDs []string
	iter := c.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// 去掉前缀和后缀
		cameraID := strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix)
		if cameraID != "" {
			cameraIDs = append(cameraIDs, cameraID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan status keys: %w", err)
	}

	sort.Strings(cameraIDs)
	return cameraIDs, nil
}
