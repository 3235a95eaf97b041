package models

import (
	"time"

	"github.com/google/uuid"
)

// Tip is a timestamped coaching note attached to a session. Ordering within
// a session is by ascending OffsetSeconds; ties keep original list order
// (Position breaks them). Immutable once attached.
type Tip struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	OffsetSeconds float64   `json:"offset_seconds"`
	Text          string    `json:"text"`
	VoiceURL      string    `json:"voice_url,omitempty"`
	Position      int       `json:"position"`
	CreatedAt     time.Time `json:"created_at"`
}
