package playback

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coachlens/backend/internal/models"
)

// Registry holds one playback engine per viewer connection (thread-safe).
// A viewer has at most one live binding; attaching a new session through the
// registry swaps it by fully detaching the old engine first.
type Registry struct {
	interval time.Duration
	cues     CuePlayer
	logger   *zap.Logger

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewRegistry creates an engine registry. The interval and cue player are
// shared by all engines it creates.
func NewRegistry(interval time.Duration, cues CuePlayer, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		interval: interval,
		cues:     cues,
		logger:   logger,
		engines:  make(map[string]*Engine),
	}
}

// Attach binds viewerID to the session, creating the viewer's engine on first
// use. The notifier is fixed at engine creation (one per connection).
func (r *Registry) Attach(viewerID string, notifier Notifier, session *models.Session, source PositionSource) *Engine {
	r.mu.Lock()
	eng, ok := r.engines[viewerID]
	if !ok {
		eng = NewEngine(r.interval, notifier, r.cues, r.logger)
		r.engines[viewerID] = eng
	}
	r.mu.Unlock()
	eng.Attach(session, source)
	return eng
}

// Detach stops the viewer's engine and removes it from the registry.
// Safe to call for unknown viewers.
func (r *Registry) Detach(viewerID string) {
	r.mu.Lock()
	eng := r.engines[viewerID]
	delete(r.engines, viewerID)
	r.mu.Unlock()
	if eng != nil {
		eng.Detach()
	}
}

// Get returns the viewer's engine, or nil if none is registered.
func (r *Registry) Get(viewerID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engines[viewerID]
}
