package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-pose/internal/config"
	logpkg "wisefido-pose/internal/logger"
	"wisefido-pose/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-pose")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting wisefido-pose service",
		zap.String("source", cfg.Pose.Source.Type),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("rules", cfg.Pose.Detection.Rules),
		zap.String("policy", cfg.Pose.Detection.Policy),
		zap.Bool("database_enabled", cfg.Database.Enabled),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
	)

	// 创建服务
	poseService, err := service.NewPoseService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create pose service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 在 goroutine 中启动服务；回放结束时也触发退出
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if err := poseService.Start(ctx); err != nil {
			logger.Error("Pose service exited with error", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case <-finished:
		logger.Info("Pose source finished, shutting down")
	}

	// 优雅关闭
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := poseService.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Service stopped")
}
