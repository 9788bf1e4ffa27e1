package progress

import (
	"context"
	"sync"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
)

// Poller is the pull implementation: it keeps the latest snapshot per
// session for observers that poll on an interval. Archived sessions with no
// run in flight are dropped and served from storage.
type Poller struct {
	mu    sync.Mutex
	guard *guard
}

// NewPoller returns a poller that reads unknown sessions through load. A nil
// load keeps the poller purely in memory.
func NewPoller(load Loader) *Poller {
	return &Poller{guard: newGuard(load)}
}

func (p *Poller) Notify(ctx context.Context, u Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guard.accept(ctx, u)
	return nil
}

// Snapshot returns the latest state held in memory.
func (p *Poller) Snapshot(sessionID uint) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guard.get(sessionID)
}

// Current returns the latest state of a session, loading it when the poller
// has none.
func (p *Poller) Current(ctx context.Context, sessionID uint) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap, ok := p.guard.get(sessionID); ok && snap.SessionStatus != "" {
		return snap, nil
	}
	if p.guard.load == nil {
		return Snapshot{}, apperr.New(apperr.CodeNotFound, "no progress recorded for session")
	}
	snap, err := p.guard.load(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return p.guard.seed(snap), nil
}

// Seed installs a snapshot loaded from storage when the poller has none. It
// returns the snapshot now held.
func (p *Poller) Seed(s Snapshot) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guard.seed(s)
}
