package watch

import (
	"slices"
	"sync"
	"time"
)

// debouncer batches changed paths and never runs two callbacks at once.
// Paths that arrive while a callback is running are held and delivered in
// a single follow-up call.
type debouncer struct {
	duration time.Duration
	callback func(paths []string)

	mu       sync.Mutex
	timer    *time.Timer
	paths    []string
	pending  []string
	stopped  bool
	inFlight bool
	idle     *sync.Cond
}

func newDebouncer(d time.Duration, cb func([]string)) *debouncer {
	db := &debouncer{duration: d, callback: cb}
	db.idle = sync.NewCond(&db.mu)
	return db
}

func (d *debouncer) add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.inFlight {
		d.pending = appendUnique(d.pending, path)
		return
	}

	d.paths = appendUnique(d.paths, path)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	if d.stopped || d.inFlight || len(d.paths) == 0 {
		d.mu.Unlock()
		return
	}
	paths := d.paths
	d.paths = nil
	d.inFlight = true
	d.mu.Unlock()

	d.callback(paths)

	d.mu.Lock()
	d.inFlight = false
	if len(d.pending) > 0 && !d.stopped {
		d.paths = d.pending
		d.pending = nil
		d.timer = time.AfterFunc(d.duration, d.flush)
	}
	d.idle.Broadcast()
	d.mu.Unlock()
}

// stop drops queued paths and waits for a running callback to return.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.paths = nil
	d.pending = nil
	for d.inFlight {
		d.idle.Wait()
	}
}

func appendUnique(paths []string, p string) []string {
	if slices.Contains(paths, p) {
		return paths
	}
	return append(paths, p)
}
