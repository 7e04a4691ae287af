package performance

import (
	"sync"
	"time"
)

type pendingCall struct {
	timer *time.Timer
	fn    func()
}

// Debouncer provides keyed debouncing for edit-driven work (history pushes,
// local saves, post-resize saves)
type Debouncer struct {
	mutex    sync.Mutex
	timers   map[string]*pendingCall
	duration time.Duration
}

// NewDebouncer creates a new debouncer with the specified default duration
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		timers:   make(map[string]*pendingCall),
		duration: duration,
	}
}

// Debounce executes the function after the default duration has passed.
// If called again with the same key before the duration expires, the previous call is cancelled
func (d *Debouncer) Debounce(key string, fn func()) {
	d.DebounceAfter(key, d.duration, fn)
}

// DebounceAfter is Debounce with an explicit delay for this key
func (d *Debouncer) DebounceAfter(key string, delay time.Duration, fn func()) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	// Cancel existing timer if it exists
	if call, exists := d.timers[key]; exists {
		call.timer.Stop()
	}

	call := &pendingCall{fn: fn}
	call.timer = time.AfterFunc(delay, func() {
		d.mutex.Lock()
		// A later schedule or a flush may have replaced this call
		if d.timers[key] != call {
			d.mutex.Unlock()
			return
		}
		delete(d.timers, key)
		d.mutex.Unlock()
		fn()
	})
	d.timers[key] = call
}

// Pending reports whether a call is scheduled for key
func (d *Debouncer) Pending(key string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, exists := d.timers[key]
	return exists
}

// Flush runs a pending call for key immediately, on the caller's goroutine.
// It returns false when nothing was pending.
func (d *Debouncer) Flush(key string) bool {
	d.mutex.Lock()
	call, exists := d.timers[key]
	if exists {
		call.timer.Stop()
		delete(d.timers, key)
	}
	d.mutex.Unlock()

	if !exists {
		return false
	}
	call.fn()
	return true
}

// Cancel cancels a pending debounced function call
func (d *Debouncer) Cancel(key string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if call, exists := d.timers[key]; exists {
		call.timer.Stop()
		delete(d.timers, key)
	}
}

// Clear cancels all pending debounced function calls
func (d *Debouncer) Clear() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for key, call := range d.timers {
		call.timer.Stop()
		delete(d.timers, key)
	}
}

// ThrottledExecutor provides throttling functionality to limit execution frequency.
// When calls arrive faster than minInterval only the latest pending one runs.
type ThrottledExecutor struct {
	mutex       sync.Mutex
	lastExec    time.Time
	minInterval time.Duration
	pending     bool
	pendingFn   func()
	timer       *time.Timer
}

// NewThrottledExecutor creates a new throttled executor
func NewThrottledExecutor(minInterval time.Duration) *ThrottledExecutor {
	return &ThrottledExecutor{
		minInterval: minInterval,
	}
}

// Execute runs the function with throttling
func (te *ThrottledExecutor) Execute(fn func()) {
	te.mutex.Lock()
	defer te.mutex.Unlock()

	now := time.Now()
	timeSinceLastExec := now.Sub(te.lastExec)

	if timeSinceLastExec >= te.minInterval && !te.pending {
		// Can execute immediately
		te.lastExec = now
		go fn()
		return
	}

	// Need to throttle - schedule for later
	te.pendingFn = fn
	if !te.pending {
		te.pending = true
		waitTime := te.minInterval - timeSinceLastExec

		if te.timer != nil {
			te.timer.Stop()
		}

		te.timer = time.AfterFunc(waitTime, func() {
			te.mutex.Lock()
			if te.pending && te.pendingFn != nil {
				te.pending = false
				fn := te.pendingFn
				te.pendingFn = nil
				te.lastExec = time.Now()
				te.mutex.Unlock()
				go fn()
			} else {
				te.mutex.Unlock()
			}
		})
	}
}

// Stop drops any pending throttled call
func (te *ThrottledExecutor) Stop() {
	te.mutex.Lock()
	defer te.mutex.Unlock()
	if te.timer != nil {
		te.timer.Stop()
	}
	te.pending = false
	te.pendingFn = nil
}
