package models

import (
	"time"

	"github.com/google/uuid"
)

// ClipStatus represents the clip upload lifecycle.
const (
	ClipStatusCaptured  = "captured"
	ClipStatusUploading = "uploading"
	ClipStatusUploaded  = "uploaded"
	ClipStatusFailed    = "failed"
)

// Clip is a captured video artifact awaiting upload/analysis. LocalPath is
// the durable on-disk copy; S3URL is filled by the background upload worker.
type Clip struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	LocalPath string    `json:"local_path,omitempty"`
	S3URL     string    `json:"s3_url,omitempty"`
	S3Key     string    `json:"s3_key,omitempty"`
	FileSize  int64     `json:"file_size"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
