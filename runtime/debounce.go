package runtime

import (
	"sync"
	"time"
)

// RefreshTrigger coalesces a burst of list-level events into a single
// reload after a quiet period. Every Trigger restarts the timer; only when
// the window elapses without a new event does the reload fire, so N events
// inside one window produce exactly one reload.
type RefreshTrigger struct {
	mu     sync.Mutex
	window time.Duration
	fire   func()
	timer  *time.Timer
	closed bool
}

func NewRefreshTrigger(window time.Duration, fire func()) *RefreshTrigger {
	return &RefreshTrigger{window: window, fire: fire}
}

// Trigger (re)starts the quiet-period timer.
func (t *RefreshTrigger) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.window, func() {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.timer = nil
		t.mu.Unlock()

		t.fire()
	})
}

// Cancel stops any scheduled reload and rejects further triggers.
// Called on teardown so a reload never fires after the owner is gone.
func (t *RefreshTrigger) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
