// Package scheduler ends voting for sessions whose deadline has passed.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Expirer ends every active session whose voting deadline is at or before now.
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// VotingTimer polls for expired voting windows. Ending voting is idempotent,
// so a tick racing a host's manual end is harmless.
type VotingTimer struct {
	expirer  Expirer
	interval time.Duration
	now      func() time.Time

	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewVotingTimer(expirer Expirer, interval time.Duration) *VotingTimer {
	if interval <= 0 {
		interval = time.Second
	}
	return &VotingTimer{
		expirer:  expirer,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (t *VotingTimer) Start() {
	go t.loop()
	log.Printf("[VotingTimer] started (interval %s)", t.interval)
}

// Stop ends the loop and waits for an in-flight tick to finish.
func (t *VotingTimer) Stop() {
	t.once.Do(func() {
		close(t.stopCh)
		<-t.done
		log.Println("[VotingTimer] stopped")
	})
}

func (t *VotingTimer) loop() {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Tick runs one expiry pass.
func (t *VotingTimer) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ended, err := t.expirer.ExpireDue(ctx, t.now().UTC())
	if err != nil {
		log.Printf("[VotingTimer] expire: %v", err)
	}
	if ended > 0 {
		log.Printf("[VotingTimer] ended voting for %d session(s)", ended)
	}
}
