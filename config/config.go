package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Analysis  AnalysisConfig
	Recording RecordingConfig
	Playback  PlaybackConfig
	Voice     VoiceConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	MediaDir           string // root for locally persisted session media
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/coachlens?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and S3 bucket names.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ClipsBucket          string
	AudioBucket          string
	PresignExpireMinutes int
}

// AnalysisConfig holds the external video-analysis API settings.
type AnalysisConfig struct {
	BaseURL string
	Timeout time.Duration // deadline for one analysis submission
}

// RecordingConfig holds capture session settings.
type RecordingConfig struct {
	Input       string        // ffmpeg input (e.g. /dev/video0); empty disables server-side capture
	Format      string        // ffmpeg input format (e.g. v4l2); empty lets ffmpeg infer
	OutputDir   string        // directory for captured clip files; empty = os.TempDir()
	MinDuration time.Duration // floor below which stop is deferred
	MaxDuration time.Duration // auto-stop ceiling
}

// PlaybackConfig holds tip playback engine settings.
type PlaybackConfig struct {
	PollInterval time.Duration // position sample period
}

// VoiceConfig holds ElevenLabs text-to-speech settings.
type VoiceConfig struct {
	APIKey  string
	VoiceID string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			MediaDir:           getEnv("MEDIA_DIR", "./data"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/coachlens?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "coachlens"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ClipsBucket:          getEnv("AWS_S3_CLIPS_BUCKET", "coachlens-clips-bucket"),
			AudioBucket:          getEnv("AWS_S3_AUDIO_BUCKET", "coachlens-audio-bucket"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Analysis: AnalysisConfig{
			BaseURL: getEnv("ANALYSIS_BASE_URL", "http://localhost:8000"),
			Timeout: getEnvDuration("ANALYSIS_TIMEOUT", 120*time.Second),
		},
		Recording: RecordingConfig{
			Input:       getEnv("RECORDING_INPUT", ""),
			Format:      getEnv("RECORDING_FORMAT", ""),
			OutputDir:   getEnv("RECORDING_OUTPUT_DIR", ""),
			MinDuration: getEnvDuration("RECORDING_MIN_DURATION", 900*time.Millisecond),
			MaxDuration: getEnvDuration("RECORDING_MAX_DURATION", 12*time.Second),
		},
		Playback: PlaybackConfig{
			PollInterval: getEnvDuration("PLAYBACK_POLL_INTERVAL", 300*time.Millisecond),
		},
		Voice: VoiceConfig{
			APIKey:  getEnv("ELEVENLABS_API_KEY", ""),
			VoiceID: getEnv("ELEVENLABS_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
