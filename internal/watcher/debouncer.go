package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer holds events until no new event has arrived for the window,
// then emits everything pending as one batch sorted by path. While Output
// is full the batch stays pending and is retried each window.
//
// Events for one path merge by first and latest operation:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE cancels out
//   - MODIFY then DELETE becomes DELETE
//   - DELETE then CREATE becomes MODIFY
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]pendingEvent
	timer   *time.Timer
	stopped bool

	output chan []FileEvent
}

type pendingEvent struct {
	event FileEvent
	first Operation
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration, buffer int) *Debouncer {
	if buffer <= 0 {
		buffer = 1
	}
	return &Debouncer{
		window:  window,
		pending: make(map[string]pendingEvent),
		output:  make(chan []FileEvent, buffer),
	}
}

// Add records an event and restarts the quiet window.
func (d *Debouncer) Add(ev FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[ev.Path]; ok {
		op, keep := mergeOps(prev.first, ev.Operation)
		if !keep {
			delete(d.pending, ev.Path)
		} else {
			ev.Operation = op
			d.pending[ev.Path] = pendingEvent{event: ev, first: prev.first}
		}
	} else {
		d.pending[ev.Path] = pendingEvent{event: ev, first: ev.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// mergeOps returns the operation that represents first followed by next.
// keep is false when the two cancel out.
func mergeOps(first, next Operation) (op Operation, keep bool) {
	switch {
	case first == OpCreate && next == OpModify:
		return OpCreate, true
	case first == OpCreate && next == OpDelete:
		return 0, false
	case first == OpDelete && next == OpCreate:
		return OpModify, true
	default:
		return next, true
	}
}

// Pending returns the number of paths waiting for the window to close.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		batch = append(batch, pe.event)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case d.output <- batch:
		d.pending = make(map[string]pendingEvent)
	default:
		// Consumer is behind: keep the events pending and retry after
		// another window. Later events keep merging into them.
		slog.Debug("debouncer_output_full", slog.Int("batch_size", len(batch)))
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

// Output returns the channel of batches. It is closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes Output. Safe to call twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
