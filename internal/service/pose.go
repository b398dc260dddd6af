package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wisefido-pose/internal/config"
	"wisefido-pose/internal/consumer"
	"wisefido-pose/internal/httpapi"
	"wisefido-pose/internal/models"
	"wisefido-pose/internal/mqtt"
	"wisefido-pose/internal/notifier"
	rediscommon "wisefido-pose/internal/redis"
	"wisefido-pose/internal/repository"
	"wisefido-pose/internal/session"
	"wisefido-pose/internal/source"
	"wisefido-pose/internal/timeutil"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PoseService 姿态跌倒检测服务
type PoseService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client

	manager  *session.Manager
	consumer *consumer.FrameConsumer
	server   *http.Server
	webhook  *notifier.AsyncNotifier // 未配置 webhook 时为 nil

	done chan struct{}
}

// NewPoseService 创建姿态检测服务
func NewPoseService(cfg *config.Config, logger *zap.Logger) (*PoseService, error) {
	s := &PoseService{
		config: cfg,
		logger: logger,
		done:   make(chan struct{}),
	}

	// 初始化Redis
	s.redisClient = rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), s.redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化数据库（可选）
	var alarmRepo *repository.AlarmEventsRepository
	if cfg.Database.Enabled {
		db, err := repository.NewPostgresDB(&cfg.Database)
		if err != nil {
			s.closeConnections()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		alarmRepo = repository.NewAlarmEventsRepository(db, logger)
	}

	// 初始化MQTT（可选）
	if cfg.MQTT.Enabled {
		client, err := mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			s.closeConnections()
			return nil, fmt.Errorf("failed to connect to mqtt: %w", err)
		}
		s.mqttClient = client
	}

	// 会话管理
	toggles, err := cfg.RuleToggles()
	if err != nil {
		s.closeConnections()
		return nil, err
	}
	policy, err := models.ParseCombinePolicy(cfg.Pose.Detection.Policy)
	if err != nil {
		s.closeConnections()
		return nil, err
	}
	defaults := session.DefaultSettings()
	defaults.Thresholds = cfg.Pose.Detection.Thresholds
	defaults.Enabled = toggles
	defaults.Policy = policy
	defaults.AlertEnabled = cfg.Pose.Detection.AlertEnabled

	opts := session.DefaultOptions()
	opts.MaxFrameGap = cfg.Pose.Detection.MaxFrameGap

	clock := timeutil.RealClock{}
	s.manager = session.NewManager(defaults, opts, clock, logger)

	// 报警输出
	cacheManager := consumer.NewCacheManager(cfg, s.redisClient, logger)
	stateManager := consumer.NewStateManager(cfg, s.redisClient, logger)
	banners := notifier.NewBannerBoard(clock)

	notifiers := notifier.Multi{banners, stateManager}
	if s.mqttClient != nil {
		notifiers = append(notifiers, notifier.NewMQTTNotifier(s.mqttClient, cfg.Pose.Alert.CommandTopicPrefix, cfg.MQTT.QoS, logger))
	}
	if cfg.Pose.Alert.WebhookURL != "" {
		// webhook 带超时和重试，放到后台协程投递
		s.webhook = notifier.NewAsyncNotifier("webhook", notifier.NewWebhookNotifier(
			cfg.Pose.Alert.WebhookURL,
			cfg.Pose.Alert.WebhookTimeout,
			cfg.Pose.Alert.WebhookRetries,
			logger,
		), cfg.Pose.Alert.WebhookQueue, logger)
		notifiers = append(notifiers, s.webhook)
	}

	var store consumer.AlarmEventStore
	if alarmRepo != nil {
		store = alarmRepo
	}
	s.consumer = consumer.NewFrameConsumer(
		s.manager,
		cacheManager,
		stateManager,
		notifiers,
		store,
		cfg.Pose.Cache.StatusTTL,
		logger,
	)

	// HTTP API
	router := httpapi.NewRouter(logger)
	router.RegisterHealthRoutes()
	router.RegisterCameraRoutes(httpapi.NewCameraHandler(s.manager, banners, cacheManager, stateManager, logger))
	if alarmRepo != nil {
		router.RegisterAlarmEventRoutes(httpapi.NewAlarmEventHandler(alarmRepo, time.Local, logger))
	}
	s.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// openSource 按配置创建姿态数据来源
func (s *PoseService) openSource(ctx context.Context) (source.PoseSource, error) {
	src := s.config.Pose.Source
	switch src.Type {
	case config.SourceMQTT:
		if s.mqttClient == nil {
			return nil, errors.New("mqtt source requires an mqtt client")
		}
		return source.NewMQTTSource(s.mqttClient, src.Topic, s.mqttClient.QoS(), src.Buffer, src.Mirror, s.logger)
	case config.SourceStream:
		return source.NewStreamSource(ctx, s.redisClient, source.StreamSourceConfig{
			Stream:   src.Stream,
			Group:    src.Group,
			Consumer: src.Consumer,
			Block:    src.BlockTimeout,
			Mirror:   src.Mirror,
		}, s.logger)
	case config.SourceReplay:
		return source.OpenReplayFile(src.ReplayFile, "", src.Mirror, s.logger)
	default:
		return nil, fmt.Errorf("unknown pose source: %q", src.Type)
	}
}

// Start 启动服务（阻塞直到 ctx 取消或数据来源结束）
func (s *PoseService) Start(ctx context.Context) error {
	defer close(s.done)
	s.logger.Info("Starting pose service components")

	src, err := s.openSource(ctx)
	if err != nil {
		return fmt.Errorf("failed to open pose source: %w", err)
	}
	defer src.Close()

	// 启动HTTP服务
	go func() {
		s.logger.Info("HTTP API listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// 启动 webhook 投递协程
	if s.webhook != nil {
		go s.webhook.Run(ctx)
	}

	s.logger.Info("Pose service started successfully",
		zap.String("source", s.config.Pose.Source.Type),
	)

	// 启动帧消费者
	if err := s.consumer.Run(ctx, src); err != nil {
		return fmt.Errorf("frame consumer stopped: %w", err)
	}
	return nil
}

// Stop 停止服务
func (s *PoseService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping pose service")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down HTTP server", zap.Error(err))
	}

	// 等待帧消费者退出
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for frame consumer")
	}

	s.closeConnections()
	s.logger.Info("Pose service stopped")
	return nil
}

// Manager 会话管理器
func (s *PoseService) Manager() *session.Manager {
	return s.manager
}

func (s *PoseService) closeConnections() {
	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	// 关闭数据库
	if s.db != nil {
		if err := repository.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}
}
