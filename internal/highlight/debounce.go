package highlight

import (
	"sync"
	"time"
)

// debouncer coalesces rapid calls into a single callback after a quiet
// period, with an adaptive window: when calls arrive faster than the
// current window the window doubles, and when typing slows it decays
// back toward the minimum. The window is always clamped to [min, max].
//
// The callback is never invoked concurrently with itself from the
// debouncer.
type debouncer struct {
	mu       sync.Mutex
	min      time.Duration
	max      time.Duration
	window   time.Duration
	lastCall time.Time
	timer    *time.Timer
	pending  bool
	seq      uint64 // invalidates stale timer callbacks
	callback func()
}

// newDebouncer creates a debouncer with the given window bounds.
func newDebouncer(min, max time.Duration, callback func()) *debouncer {
	if min <= 0 {
		min = 16 * time.Millisecond
	}
	if max < min {
		max = min
	}
	return &debouncer{
		min:      min,
		max:      max,
		window:   min,
		callback: callback,
	}
}

// Call schedules the callback after the current window, adapting the
// window to the observed call rate and resetting any pending timer.
func (d *debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if !d.lastCall.IsZero() {
		since := now.Sub(d.lastCall)
		switch {
		case since < d.window:
			// Sustained fast typing: widen to batch more keystrokes.
			d.window *= 2
			if d.window > d.max {
				d.window = d.max
			}
		case since > 2*d.window:
			// Typing slowed down: tighten back toward the minimum.
			d.window /= 2
			if d.window < d.min {
				d.window = d.min
			}
		}
	}
	d.lastCall = now

	d.pending = true
	d.seq++
	currentSeq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.pending && d.seq == currentSeq && d.callback != nil {
			d.pending = false
			d.mu.Unlock()
			d.callback()
			return
		}
		d.mu.Unlock()
	})
}

// Cancel drops any pending callback.
func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}

// IsPending returns true if a callback is scheduled.
func (d *debouncer) IsPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Window returns the current adaptive window.
func (d *debouncer) Window() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}
