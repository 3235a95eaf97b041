package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	// FolderClips is the S3 prefix for captured clip objects.
	FolderClips = "clips"
	// FolderTipAudio is the S3 prefix for synthesized tip voice cues.
	FolderTipAudio = "tips"
)

// Allowed clip MIME types and extensions.
var (
	AllowedClipTypes = map[string]string{
		"video/mp4":       ".mp4",
		"video/quicktime": ".mp4",
		"video/webm":      ".webm",
	}
	AllowedClipExtensions = map[string]string{
		".mp4":  "video/mp4",
		".mov":  "video/quicktime",
		".webm": "video/webm",
	}
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ClipsBucket          string
	AudioBucket          string
	PresignExpireMinutes int
}

// S3 provides S3 operations with validation and pre-signed URLs.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the environment
// (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	} else if logger != nil {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024 // 5MB parts for streaming
	})
	return &S3{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ValidateClipType returns true if the content type and/or extension are allowed for clips.
func ValidateClipType(contentType, filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	if contentType != "" {
		if _, ok := AllowedClipTypes[strings.ToLower(contentType)]; ok {
			return true
		}
	}
	if ext != "" {
		if _, ok := AllowedClipExtensions[ext]; ok {
			return true
		}
	}
	return false
}

// ClipKey returns the S3 object key: clips/{session_id}/{clip_id}.mp4.
func ClipKey(sessionID, clipID string) string {
	return path.Join(FolderClips, sessionID, clipID+".mp4")
}

// TipAudioKey returns the S3 object key: tips/{session_id}/{tip_id}.mp3.
func TipAudioKey(sessionID, tipID string) string {
	return path.Join(FolderTipAudio, sessionID, tipID+".mp3")
}

// GeneratePresignedDownloadURL returns a pre-signed GET URL for playback/download.
func (s *S3) GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// ClipsBucket returns the clips bucket name.
func (s *S3) ClipsBucket() string { return s.cfg.ClipsBucket }

// AudioBucket returns the tip audio bucket name.
func (s *S3) AudioBucket() string { return s.cfg.AudioBucket }

// PublicObjectURL returns the public URL for an object (no signing; use when bucket is public).
func (s *S3) PublicObjectURL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.cfg.Region, key)
}

// Upload streams a reader to S3 and returns the object URL.
func (s *S3) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
	}
	_, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return s.PublicObjectURL(bucket, key), nil
}

// DeleteObject removes an object from S3.
func (s *S3) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// GetObjectStream returns the object body and content type for streaming.
// Caller must close the body.
func (s *S3) GetObjectStream(ctx context.Context, bucket, key string) (body io.ReadCloser, contentType string, err error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", err
	}
	ct := ""
	if out.ContentType != nil {
		ct = *out.ContentType
	}
	return out.Body, ct, nil
}
