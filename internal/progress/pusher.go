package progress

import (
	"context"
	"sync"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/ws"
)

const MessageTypeProgress = "progress"

type Broadcaster interface {
	Broadcast(sessionID uint, message ws.WSMessage)
}

// Pusher is the push implementation: accepted updates are broadcast to the
// session's websocket subscribers as "progress" messages carrying the merged
// snapshot.
type Pusher struct {
	mu    sync.Mutex
	guard *guard
	out   Broadcaster
}

func NewPusher(out Broadcaster, load Loader) *Pusher {
	return &Pusher{guard: newGuard(load), out: out}
}

func (p *Pusher) Notify(ctx context.Context, u Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, ok := p.guard.accept(ctx, u)
	if !ok {
		return nil
	}
	// Broadcast under the lock so two accepted updates are queued in order.
	p.out.Broadcast(u.SessionID, ws.WSMessage{Type: MessageTypeProgress, Data: snap})
	return nil
}
