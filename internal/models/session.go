package models

import (
	"time"

	"github.com/google/uuid"
)

// Supported sports. Used as the fallback set when the analysis backend's
// /sports endpoint is unreachable.
const (
	SportBasketball = "basketball"
	SportSoccer     = "soccer"
	SportTennis     = "tennis"
)

// DefaultSports returns the hardcoded fallback sport list.
func DefaultSports() []string {
	return []string{SportBasketball, SportSoccer, SportTennis}
}

// IsSupportedSport reports whether s is in the default sport set.
func IsSupportedSport(s string) bool {
	switch s {
	case SportBasketball, SportSoccer, SportTennis:
		return true
	}
	return false
}

// Session is one recorded-and-analyzed practice clip plus its derived tips.
// Immutable after construction; replaced wholesale when the user switches sessions.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Sport     string    `json:"sport"`
	Skill     string    `json:"skill"`
	MediaURL  string    `json:"media_url"`
	Tips      []Tip     `json:"tips"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionSummary is the gallery listing shape (no tip payload).
type SessionSummary struct {
	ID        uuid.UUID `json:"id"`
	Sport     string    `json:"sport"`
	Skill     string    `json:"skill"`
	MediaURL  string    `json:"media_url"`
	TipCount  int       `json:"tip_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary returns the gallery view of the session.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:        s.ID,
		Sport:     s.Sport,
		Skill:     s.Skill,
		MediaURL:  s.MediaURL,
		TipCount:  len(s.Tips),
		CreatedAt: s.CreatedAt,
	}
}
