// Package main runs the background job worker (clip upload to S3, tip voice synthesis).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coachlens/backend/config"
	"github.com/coachlens/backend/internal/sessions"
	"github.com/coachlens/backend/internal/voice"
	"github.com/coachlens/backend/internal/worker"
	"github.com/coachlens/backend/pkg/database"
	"github.com/coachlens/backend/pkg/queue"
	"github.com/coachlens/backend/pkg/redis"
	"github.com/coachlens/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ClipsBucket:          cfg.AWS.ClipsBucket,
		AudioBucket:          cfg.AWS.AudioBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	sessionRepo := sessions.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	voiceClient := voice.NewClient(cfg.Voice.APIKey, cfg.Voice.VoiceID, logger)
	processor := worker.NewProcessor(sessionRepo, s3Client, voiceClient, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
