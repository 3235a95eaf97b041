package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueJobs is the Redis list key for background jobs (clip uploads, tip voice synthesis).
	QueueJobs = "worker:jobs"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeClipUpload JobType = "clip_upload"
	JobTypeTipVoice   JobType = "tip_voice"
)

// ClipUploadPayload is the payload for clip upload jobs: move the locally
// persisted artifact into S3.
type ClipUploadPayload struct {
	ClipID    uuid.UUID `json:"clip_id"`
	SessionID uuid.UUID `json:"session_id"`
	LocalPath string    `json:"local_path"`
}

// TipVoicePayload is the payload for tip voice synthesis jobs: speak the tip
// text and store the MP3 in S3.
type TipVoicePayload struct {
	TipID     uuid.UUID `json:"tip_id"`
	SessionID uuid.UUID `json:"session_id"`
	Text      string    `json:"text"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueClipUpload enqueues a clip upload job.
func (q *Queue) EnqueueClipUpload(ctx context.Context, payload ClipUploadPayload) error {
	if err := q.enqueue(ctx, JobTypeClipUpload, payload); err != nil {
		return err
	}
	q.logger.Debug("enqueued clip upload job", zap.String("clip_id", payload.ClipID.String()))
	return nil
}

// EnqueueTipVoice enqueues a tip voice synthesis job.
func (q *Queue) EnqueueTipVoice(ctx context.Context, payload TipVoicePayload) error {
	if err := q.enqueue(ctx, JobTypeTipVoice, payload); err != nil {
		return err
	}
	q.logger.Debug("enqueued tip voice job", zap.String("tip_id", payload.TipID.String()))
	return nil
}

func (q *Queue) enqueue(ctx context.Context, jobType JobType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueJobs, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueJobs).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueJobs, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
