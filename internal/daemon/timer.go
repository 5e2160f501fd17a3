package daemon

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Handle is one scheduled callback. Cancel is exact: it affects only this
// instance, and a cancelled handle never runs its callback even if the
// underlying timer already fired.
type Handle struct {
	timer     *clock.Timer
	cancelled atomic.Bool
}

// schedule runs fn after d on clk unless the returned handle is cancelled first.
func schedule(clk clock.Clock, d time.Duration, fn func(h *Handle)) *Handle {
	h := &Handle{}
	// The timer goroutine may run before h.timer is assigned; fn only needs h.
	h.timer = clk.AfterFunc(d, func() {
		if h.cancelled.Load() {
			return
		}
		fn(h)
	})
	return h
}

// Cancel stops the timer. Safe to call more than once.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	if h.cancelled.CompareAndSwap(false, true) && h.timer != nil {
		h.timer.Stop()
	}
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool {
	return h != nil && h.cancelled.Load()
}
