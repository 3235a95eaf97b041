package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coachlens/backend/internal/analysis"
	"github.com/coachlens/backend/internal/models"
	"github.com/coachlens/backend/pkg/queue"
)

var (
	// ErrStorage means the captured artifact could not be persisted locally.
	// Fatal to the attempt; retried at the caller's discretion.
	ErrStorage = errors.New("local storage failed")
	// ErrSessionCreation means the session row could not be created.
	ErrSessionCreation = errors.New("session creation failed")
)

// Store is the session persistence surface the pipeline needs.
type Store interface {
	Create(ctx context.Context, userID uuid.UUID, sport, skill string) (*models.Session, error)
	AttachTips(ctx context.Context, sessionID uuid.UUID, tips []models.Tip) ([]models.Tip, error)
	UpdateMediaURL(ctx context.Context, id uuid.UUID, mediaURL string) error
	CreateClip(ctx context.Context, clip *models.Clip) error
}

// Analyzer submits a clip to the external analysis backend.
type Analyzer interface {
	Analyze(ctx context.Context, sport, videoPath string) *analysis.Result
	AnnotatedVideoURL(sport string) string
}

// Jobs enqueues background work (clip upload, tip voice synthesis).
type Jobs interface {
	EnqueueClipUpload(ctx context.Context, payload queue.ClipUploadPayload) error
	EnqueueTipVoice(ctx context.Context, payload queue.TipVoicePayload) error
}

// Notifier fans a session event out to connected viewers on every instance.
// Publish-only so local clients of a self-subscribed instance receive the
// event exactly once, via the subscriber callback.
type Notifier interface {
	PublishToSessionOnly(sessionID uuid.UUID, event string, payload interface{})
}

// Result is the outcome of one submission. Session is always set once
// session creation succeeded, whatever the analysis outcome: the recorded
// artifact and session identity survive analysis failure so the caller can
// show the raw video without AI feedback.
type Result struct {
	Session *models.Session
	Clip    *models.Clip
	Outcome analysis.Outcome
}

// Pipeline turns a captured clip into a session: persist locally, hand the
// remote upload to the background queue, create the session, submit to the
// analysis backend and attach the derived tips.
type Pipeline struct {
	store    Store
	analyzer Analyzer
	jobs     Jobs
	notify   Notifier
	mediaDir string
	logger   *zap.Logger
}

// NewPipeline creates a submission pipeline. An empty mediaDir selects os.TempDir().
// notify may be nil when no realtime hub is present.
func NewPipeline(store Store, analyzer Analyzer, jobs Jobs, notify Notifier, mediaDir string, logger *zap.Logger) *Pipeline {
	if mediaDir == "" {
		mediaDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:    store,
		analyzer: analyzer,
		jobs:     jobs,
		notify:   notify,
		mediaDir: mediaDir,
		logger:   logger,
	}
}

// Submit runs the full pipeline for one captured artifact. Analysis is
// best-effort: any analysis failure still returns the created session with
// empty tips and the local media reference.
func (p *Pipeline) Submit(ctx context.Context, userID uuid.UUID, artifactPath, sport, skill string) (*Result, error) {
	localPath, size, err := p.persist(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	session, err := p.store.Create(ctx, userID, sport, skill)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreation, err)
	}

	clip := &models.Clip{
		SessionID: session.ID,
		LocalPath: localPath,
		FileSize:  size,
		Status:    models.ClipStatusCaptured,
	}
	if err := p.store.CreateClip(ctx, clip); err != nil {
		p.logger.Warn("clip row creation failed", zap.Error(err), zap.String("session_id", session.ID.String()))
	} else if p.jobs != nil {
		// Remote upload is fire-and-forget: enqueue failure degrades silently
		// and never blocks the analysis submission.
		if err := p.jobs.EnqueueClipUpload(ctx, queue.ClipUploadPayload{
			ClipID:    clip.ID,
			SessionID: session.ID,
			LocalPath: localPath,
		}); err != nil {
			p.logger.Warn("clip upload enqueue failed", zap.Error(err), zap.String("clip_id", clip.ID.String()))
		}
	}

	res := p.analyzer.Analyze(ctx, sport, localPath)
	if res.Outcome.Failed() {
		p.logger.Warn("analysis failed, keeping raw session",
			zap.String("session_id", session.ID.String()),
			zap.String("outcome", string(res.Outcome)),
			zap.Error(res.Err))
		session.MediaURL = localPath
		if err := p.store.UpdateMediaURL(ctx, session.ID, localPath); err != nil {
			p.logger.Warn("media url update failed", zap.Error(err))
		}
		return &Result{Session: session, Clip: clip, Outcome: res.Outcome}, nil
	}

	tips := make([]models.Tip, len(res.Events))
	for i, ev := range res.Events {
		tips[i] = models.Tip{OffsetSeconds: ev.OffsetSeconds, Text: ev.Feedback}
	}
	attached, err := p.store.AttachTips(ctx, session.ID, tips)
	if err != nil {
		p.logger.Error("attach tips failed", zap.Error(err), zap.String("session_id", session.ID.String()))
	} else {
		session.Tips = attached
		if p.jobs != nil {
			for _, t := range attached {
				if err := p.jobs.EnqueueTipVoice(ctx, queue.TipVoicePayload{
					TipID:     t.ID,
					SessionID: session.ID,
					Text:      t.Text,
				}); err != nil {
					p.logger.Warn("tip voice enqueue failed", zap.Error(err), zap.String("tip_id", t.ID.String()))
				}
			}
		}
	}

	// A success envelope without an annotated video falls back to the raw
	// recorded artifact.
	mediaURL := localPath
	if res.AnnotatedVideo != "" {
		mediaURL = p.analyzer.AnnotatedVideoURL(sport)
	}
	session.MediaURL = mediaURL
	if err := p.store.UpdateMediaURL(ctx, session.ID, mediaURL); err != nil {
		p.logger.Warn("media url update failed", zap.Error(err))
	}

	if p.notify != nil {
		p.notify.PublishToSessionOnly(session.ID, "analysis_ready", map[string]interface{}{
			"session_id": session.ID.String(),
			"tip_count":  len(session.Tips),
			"media_url":  mediaURL,
		})
	}

	p.logger.Info("submission complete",
		zap.String("session_id", session.ID.String()),
		zap.Int("tips", len(session.Tips)),
		zap.String("outcome", string(res.Outcome)))
	return &Result{Session: session, Clip: clip, Outcome: res.Outcome}, nil
}

// persist copies the artifact into the durable media directory under a
// capture-timestamp name. The source stays in place for the caller to clean up.
func (p *Pipeline) persist(artifactPath string) (string, int64, error) {
	src, err := os.Open(artifactPath)
	if err != nil {
		return "", 0, fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	dir := filepath.Join(p.mediaDir, "media")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", 0, fmt.Errorf("create media dir: %w", err)
	}
	dst := filepath.Join(dir, fmt.Sprintf("%d%s", time.Now().UnixMilli(), filepath.Ext(artifactPath)))

	out, err := os.Create(dst)
	if err != nil {
		return "", 0, fmt.Errorf("create media file: %w", err)
	}
	defer out.Close()

	size, err := io.Copy(out, src)
	if err != nil {
		_ = os.Remove(dst)
		return "", 0, fmt.Errorf("copy artifact: %w", err)
	}
	return dst, size, nil
}
