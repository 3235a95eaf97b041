package playback

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coachlens/backend/internal/models"
)

// DefaultPollInterval is the position sample period. Any period at or below
// this keeps tip firing within one sample of the offset crossing.
const DefaultPollInterval = 300 * time.Millisecond

// PositionSource reports the current playback position in seconds.
type PositionSource interface {
	Position() (float64, error)
}

// PositionFunc adapts a function to the PositionSource interface.
type PositionFunc func() (float64, error)

// Position implements PositionSource.
func (f PositionFunc) Position() (float64, error) { return f() }

// Notifier surfaces a fired tip to the viewer (e.g. WebSocket push).
type Notifier interface {
	NotifyTip(session *models.Session, tip models.Tip) error
}

// CuePlayer loads and plays a tip's audio cue. Implementations release the
// underlying audio resource when playback completes.
type CuePlayer interface {
	PlayCue(ctx context.Context, voiceURL string) error
}

// Engine fires each tip of a session at most once, in ascending offset order,
// as the sampled playback position crosses the tip's offset. One binding is
// live at a time: Attach replaces the previous binding only after its sample
// loop has fully stopped, so a stale sample can never fire into a new session.
type Engine struct {
	interval time.Duration
	notifier Notifier
	cues     CuePlayer // optional; nil disables audio cues
	logger   *zap.Logger

	mu      sync.Mutex
	binding *binding
}

// binding is the per-attach playback state: the tip list sorted by offset
// (stable, so equal offsets keep list order) and the fired markers. It is
// discarded wholesale on Detach; fired markers only ever go from false to true.
type binding struct {
	session *models.Session
	source  PositionSource
	tips    []models.Tip
	mu      sync.Mutex // guards fired
	fired   []bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine creates a playback engine. interval <= 0 selects DefaultPollInterval.
func NewEngine(interval time.Duration, notifier Notifier, cues CuePlayer, logger *zap.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		interval: interval,
		notifier: notifier,
		cues:     cues,
		logger:   logger,
	}
}

// Attach binds the engine to a session and position source and starts the
// sample loop. Any previous binding is fully detached first: its loop is
// cancelled and joined before the new one starts, and its fired set discarded.
func (e *Engine) Attach(session *models.Session, source PositionSource) {
	e.Detach()

	tips := make([]models.Tip, len(session.Tips))
	copy(tips, session.Tips)
	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].OffsetSeconds < tips[j].OffsetSeconds
	})

	ctx, cancel := context.WithCancel(context.Background())
	b := &binding{
		session: session,
		source:  source,
		tips:    tips,
		fired:   make([]bool, len(tips)),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	e.binding = b
	e.mu.Unlock()

	go e.run(ctx, b)
	e.logger.Debug("playback engine attached",
		zap.String("session_id", session.ID.String()),
		zap.Int("tips", len(tips)),
		zap.Duration("interval", e.interval))
}

// Detach cancels the sample loop and discards the binding. Safe to call
// multiple times and with no binding active.
func (e *Engine) Detach() {
	e.mu.Lock()
	b := e.binding
	e.binding = nil
	e.mu.Unlock()
	if b == nil {
		return
	}
	b.cancel()
	<-b.done
	e.logger.Debug("playback engine detached", zap.String("session_id", b.session.ID.String()))
}

// Attached reports whether a binding is currently live.
func (e *Engine) Attached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.binding != nil
}

// FiredCount returns how many tips have fired in the current binding.
func (e *Engine) FiredCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.binding == nil {
		return 0
	}
	b := e.binding
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.fired {
		if f {
			n++
		}
	}
	return n
}

func (e *Engine) run(ctx context.Context, b *binding) {
	defer close(b.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pos, err := b.source.Position()
			if err != nil {
				e.logger.Debug("position sample failed", zap.Error(err))
				continue
			}
			e.fireCrossed(ctx, b, pos)
		}
	}
}

// fireCrossed fires every unfired tip whose offset has been reached, in
// ascending offset order within this one sample. A tip is marked fired before
// any side effect runs, so a failure mid-fire cannot cause a re-fire on the
// next sample. Backward seeks are not special-cased: fired tips stay fired.
func (e *Engine) fireCrossed(ctx context.Context, b *binding, pos float64) {
	b.mu.Lock()
	var crossed []models.Tip
	for i := range b.tips {
		if b.fired[i] || pos < b.tips[i].OffsetSeconds {
			continue
		}
		b.fired[i] = true
		crossed = append(crossed, b.tips[i])
	}
	b.mu.Unlock()

	for _, tip := range crossed {
		if err := e.notifier.NotifyTip(b.session, tip); err != nil {
			e.logger.Warn("tip notification failed",
				zap.Error(err),
				zap.String("session_id", b.session.ID.String()),
				zap.Float64("offset", tip.OffsetSeconds))
		}

		if e.cues != nil && tip.VoiceURL != "" {
			go func(url string, offset float64) {
				if err := e.cues.PlayCue(ctx, url); err != nil {
					// Audio cue failure is non-fatal: log only, the poll keeps running.
					e.logger.Warn("tip audio cue failed",
						zap.Error(err),
						zap.String("session_id", b.session.ID.String()),
						zap.Float64("offset", offset))
				}
			}(tip.VoiceURL, tip.OffsetSeconds)
		}
	}
}

// Sample runs one fire pass against the current binding at the given position,
// outside the ticker. Used by transports that receive pushed positions and by
// tests; the fire-once contract is identical to the polled path.
func (e *Engine) Sample(ctx context.Context, pos float64) {
	e.mu.Lock()
	b := e.binding
	e.mu.Unlock()
	if b == nil {
		return
	}
	e.fireCrossed(ctx, b, pos)
}
