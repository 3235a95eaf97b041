package sessions

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachlens/backend/internal/models"
)

// Repository handles session, tip and clip persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new session. Tips are attached separately once analysis
// completes; a session with no tips is valid (analysis failed or pending).
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, sport, skill string) (*models.Session, error) {
	const q = `INSERT INTO sessions (id, user_id, sport, skill)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, user_id, sport, skill, media_url, created_at, updated_at`
	var s models.Session
	err := r.pool.QueryRow(ctx, q, userID, sport, skill).
		Scan(&s.ID, &s.UserID, &s.Sport, &s.Skill, &s.MediaURL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID returns a session with its tips ordered by ascending offset, ties
// broken by original list position. Returns nil when not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `SELECT id, user_id, sport, skill, media_url, created_at, updated_at
		FROM sessions WHERE id = $1`
	var s models.Session
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&s.ID, &s.UserID, &s.Sport, &s.Skill, &s.MediaURL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	tips, err := r.listTips(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Tips = tips
	return &s, nil
}

func (r *Repository) listTips(ctx context.Context, sessionID uuid.UUID) ([]models.Tip, error) {
	const q = `SELECT id, session_id, offset_seconds, text, COALESCE(voice_url,''), position, created_at
		FROM tips WHERE session_id = $1 ORDER BY offset_seconds ASC, position ASC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tips []models.Tip
	for rows.Next() {
		var t models.Tip
		if err := rows.Scan(&t.ID, &t.SessionID, &t.OffsetSeconds, &t.Text, &t.VoiceURL, &t.Position, &t.CreatedAt); err != nil {
			return nil, err
		}
		tips = append(tips, t)
	}
	return tips, rows.Err()
}

// ListByUser returns session summaries for a user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error) {
	const q = `SELECT s.id, s.sport, s.skill, s.media_url, s.created_at,
			(SELECT COUNT(*) FROM tips t WHERE t.session_id = s.id) AS tip_count
		FROM sessions s WHERE s.user_id = $1 ORDER BY s.created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.SessionSummary
	for rows.Next() {
		var sum models.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Sport, &sum.Skill, &sum.MediaURL, &sum.CreatedAt, &sum.TipCount); err != nil {
			return nil, err
		}
		list = append(list, sum)
	}
	return list, rows.Err()
}

// AttachTips inserts the session's tips in one transaction, preserving list
// order in the position column. Tips are immutable once attached.
func (r *Repository) AttachTips(ctx context.Context, sessionID uuid.UUID, tips []models.Tip) ([]models.Tip, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO tips (id, session_id, offset_seconds, text, voice_url, position)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at`
	out := make([]models.Tip, len(tips))
	for i, t := range tips {
		t.SessionID = sessionID
		t.Position = i
		if err := tx.QueryRow(ctx, q, sessionID, t.OffsetSeconds, t.Text, t.VoiceURL, i).
			Scan(&t.ID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out[i] = t
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMediaURL sets the session's playable media URL (annotated video when
// analysis produced one, otherwise the raw clip).
func (r *Repository) UpdateMediaURL(ctx context.Context, id uuid.UUID, mediaURL string) error {
	const q = `UPDATE sessions SET media_url = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, mediaURL, id)
	return err
}

// UpdateTipVoiceURL sets a tip's synthesized audio cue URL.
func (r *Repository) UpdateTipVoiceURL(ctx context.Context, tipID uuid.UUID, voiceURL string) error {
	const q = `UPDATE tips SET voice_url = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, voiceURL, tipID)
	return err
}

// CreateClip inserts a captured clip row for a session.
func (r *Repository) CreateClip(ctx context.Context, clip *models.Clip) error {
	const q = `INSERT INTO clips (id, session_id, local_path, file_size, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, clip.SessionID, clip.LocalPath, clip.FileSize, clip.Status).
		Scan(&clip.ID, &clip.CreatedAt, &clip.UpdatedAt)
}

// GetClipByID returns a clip by ID, or nil when not found.
func (r *Repository) GetClipByID(ctx context.Context, id uuid.UUID) (*models.Clip, error) {
	const q = `SELECT id, session_id, COALESCE(local_path,''), COALESCE(s3_url,''), COALESCE(s3_key,''), file_size, status, created_at, updated_at
		FROM clips WHERE id = $1`
	var c models.Clip
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&c.ID, &c.SessionID, &c.LocalPath, &c.S3URL, &c.S3Key, &c.FileSize, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// UpdateClipUploaded marks a clip uploaded with its S3 location.
func (r *Repository) UpdateClipUploaded(ctx context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64) error {
	const q = `UPDATE clips SET s3_url = $1, s3_key = $2, file_size = $3, status = $4, updated_at = NOW() WHERE id = $5`
	_, err := r.pool.Exec(ctx, q, s3URL, s3Key, fileSize, models.ClipStatusUploaded, id)
	return err
}

// UpdateClipStatus sets the clip status.
func (r *Repository) UpdateClipStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE clips SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}
