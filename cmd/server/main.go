// Package main runs the coaching platform HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coachlens/backend/config"
	"github.com/coachlens/backend/internal/analysis"
	"github.com/coachlens/backend/internal/auth"
	"github.com/coachlens/backend/internal/ingest"
	"github.com/coachlens/backend/internal/middleware"
	"github.com/coachlens/backend/internal/playback"
	"github.com/coachlens/backend/internal/realtime"
	"github.com/coachlens/backend/internal/recording"
	"github.com/coachlens/backend/internal/sessions"
	"github.com/coachlens/backend/internal/voice"
	"github.com/coachlens/backend/internal/worker"
	"github.com/coachlens/backend/pkg/database"
	"github.com/coachlens/backend/pkg/queue"
	"github.com/coachlens/backend/pkg/redis"
	"github.com/coachlens/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ClipsBucket:          cfg.AWS.ClipsBucket,
			AudioBucket:          cfg.AWS.AudioBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Sessions and ingest pipeline
	sessionRepo := sessions.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	analysisClient := analysis.NewClient(cfg.Analysis.BaseURL, cfg.Analysis.Timeout, logger)
	pipeline := ingest.NewPipeline(sessionRepo, analysisClient, jobQueue, hub, cfg.Server.MediaDir, logger)
	sessionHandler := sessions.NewHandler(sessionRepo, pipeline, analysisClient, logger)

	// Tip playback (one engine per viewer connection)
	engineRegistry := playback.NewRegistry(cfg.Playback.PollInterval, nil, logger)

	// Server-side capture (kiosk mode); routes mount only when an input is configured
	var recordingHandler *recording.Handler
	if cfg.Recording.Input != "" {
		device := recording.NewFFmpegDevice(cfg.Recording.Input, cfg.Recording.Format, logger)
		controller := recording.NewController(device, cfg.Recording.OutputDir, cfg.Recording.MinDuration, cfg.Recording.MaxDuration, logger)
		recordingHandler = recording.NewHandler(controller, logger)
	}

	// Background worker (clip upload to S3, tip voice synthesis)
	voiceClient := voice.NewClient(cfg.Voice.APIKey, cfg.Voice.VoiceID, logger)
	processor := worker.NewProcessor(sessionRepo, s3Client, voiceClient, jobQueue, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Sessions
		api.POST("/sessions", sessionHandler.Submit)
		api.GET("/sessions", sessionHandler.List)
		api.GET("/sessions/:id", sessionHandler.Get)
		api.GET("/sports", sessionHandler.Sports)
		api.GET("/analysis/report", sessionHandler.DownloadAnalysis)
		api.GET("/analysis/video/:sport", sessionHandler.DownloadAnnotatedVideo)

		// Server-side capture (kiosk deployments)
		if recordingHandler != nil {
			api.POST("/recording/start", middleware.RequireRole("admin", "coach"), recordingHandler.Start)
			api.POST("/recording/stop", middleware.RequireRole("admin", "coach"), recordingHandler.Stop)
			api.GET("/recording/status", recordingHandler.Status)
		}
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, engineRegistry, sessionRepo, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go processor.Run(workerCtx)
		logger.Info("background worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
