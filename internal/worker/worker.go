package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coachlens/backend/internal/models"
	"github.com/coachlens/backend/pkg/queue"
	"github.com/coachlens/backend/pkg/storage"
)

// Store is the persistence surface the processor needs.
type Store interface {
	GetClipByID(ctx context.Context, id uuid.UUID) (*models.Clip, error)
	UpdateClipStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateClipUploaded(ctx context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64) error
	UpdateTipVoiceURL(ctx context.Context, tipID uuid.UUID, voiceURL string) error
}

// Uploader is the object storage surface the processor needs.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
	ClipsBucket() string
	AudioBucket() string
}

// Synthesizer turns tip text into spoken audio.
type Synthesizer interface {
	Enabled() bool
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Processor drains the background queue: clip uploads to S3 and tip voice
// synthesis. Both jobs are enrichment; the session is already usable before
// either runs.
type Processor struct {
	repo   Store
	s3     Uploader
	voice  Synthesizer
	queue  *queue.Queue
	logger *zap.Logger
}

// NewProcessor creates a background job processor.
func NewProcessor(repo Store, s3 Uploader, v Synthesizer, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{repo: repo, s3: s3, voice: v, queue: q, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeClipUpload:
		var payload queue.ClipUploadPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.uploadClip(ctx, payload)
	case queue.JobTypeTipVoice:
		var payload queue.TipVoicePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.synthesizeTip(ctx, payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) uploadClip(ctx context.Context, payload queue.ClipUploadPayload) error {
	clip, err := p.repo.GetClipByID(ctx, payload.ClipID)
	if err != nil {
		return fmt.Errorf("load clip %s: %w", payload.ClipID, err)
	}
	if clip == nil {
		return fmt.Errorf("clip not found: %s", payload.ClipID)
	}
	if clip.Status == models.ClipStatusUploaded {
		p.logger.Info("clip already uploaded", zap.String("clip_id", clip.ID.String()))
		return nil
	}

	if err := p.repo.UpdateClipStatus(ctx, clip.ID, models.ClipStatusUploading); err != nil {
		p.logger.Warn("clip status update failed", zap.Error(err))
	}

	f, err := os.Open(payload.LocalPath)
	if err != nil {
		if markErr := p.repo.UpdateClipStatus(ctx, clip.ID, models.ClipStatusFailed); markErr != nil {
			p.logger.Error("mark clip failed", zap.Error(markErr))
		}
		return fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat clip: %w", err)
	}

	key := storage.ClipKey(payload.SessionID.String(), payload.ClipID.String())
	s3URL, err := p.s3.Upload(ctx, p.s3.ClipsBucket(), key, "video/mp4", f, info.Size())
	if err != nil {
		if markErr := p.repo.UpdateClipStatus(ctx, clip.ID, models.ClipStatusFailed); markErr != nil {
			p.logger.Error("mark clip failed", zap.Error(markErr))
		}
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.repo.UpdateClipUploaded(ctx, clip.ID, s3URL, key, info.Size()); err != nil {
		p.logger.Error("update clip S3 result failed", zap.Error(err), zap.String("clip_id", clip.ID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("clip upload completed", zap.String("clip_id", clip.ID.String()), zap.String("s3_key", key))
	return nil
}

func (p *Processor) synthesizeTip(ctx context.Context, payload queue.TipVoicePayload) error {
	if p.voice == nil || !p.voice.Enabled() {
		p.logger.Debug("voice synthesis disabled, skipping", zap.String("tip_id", payload.TipID.String()))
		return nil
	}

	audio, err := p.voice.Synthesize(ctx, payload.Text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	key := storage.TipAudioKey(payload.SessionID.String(), payload.TipID.String())
	s3URL, err := p.s3.Upload(ctx, p.s3.AudioBucket(), key, "audio/mpeg", bytes.NewReader(audio), int64(len(audio)))
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.repo.UpdateTipVoiceURL(ctx, payload.TipID, s3URL); err != nil {
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("tip voice completed", zap.String("tip_id", payload.TipID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
