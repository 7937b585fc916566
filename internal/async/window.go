package async

import (
	"context"
	"sync"
	"time"
)

// Window admits at most limit starts in any trailing interval of length window.
// A zero limit admits everything.
type Window struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	starts []time.Time
	now    func() time.Time
}

func NewWindow(limit int, window time.Duration) *Window {
	return &Window{limit: limit, window: window, now: time.Now}
}

// reserve records a start and returns 0 when one is allowed now; otherwise it records
// nothing and returns how long until the oldest start leaves the window.
func (w *Window) reserve() time.Duration {
	if w == nil || w.limit <= 0 || w.window <= 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.starts) && !w.starts[i].After(cutoff) {
		i++
	}
	w.starts = w.starts[i:]

	if len(w.starts) < w.limit {
		w.starts = append(w.starts, now)
		return 0
	}
	return w.starts[0].Sub(cutoff)
}

// Wait blocks until a start is admitted or ctx is done.
func (w *Window) Wait(ctx context.Context) error {
	for {
		d := w.reserve()
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// InFlight reports how many starts are inside the current window.
func (w *Window) InFlight() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := w.now().Add(-w.window)
	n := 0
	for _, s := range w.starts {
		if s.After(cutoff) {
			n++
		}
	}
	return n
}
