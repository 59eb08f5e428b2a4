package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
	"github.com/magicfolder/magicfolder/internal/watcher"
)

// Processor is the part of Indexer a Queue needs.
type Processor interface {
	Process(ctx context.Context, path string) (*ProcessResult, error)
}

// QueueStats counts queue outcomes since creation.
type QueueStats struct {
	Submitted uint64 `json:"submitted"`
	Processed uint64 `json:"processed"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
	Pending   int    `json:"pending"`
}

// Queue is a bounded path queue drained by a fixed set of workers.
// Each worker processes one path at a time; a failed path is logged and
// the worker moves on.
type Queue struct {
	proc    Processor
	jobs    chan string
	workers int

	mu      sync.Mutex
	closed  bool
	quit    chan struct{}
	sending sync.WaitGroup // Submit calls that passed the closed check

	onFailure func(path string, err error)

	submitted atomic.Uint64
	processed atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

// NewQueue creates a queue holding at most size paths.
func NewQueue(proc Processor, size, workers int) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		proc:    proc,
		jobs:    make(chan string, size),
		workers: workers,
		quit:    make(chan struct{}),
	}
}

// OnFailure registers fn to be called from the worker for every path that
// fails. Set it before Run.
func (q *Queue) OnFailure(fn func(path string, err error)) {
	q.onFailure = fn
}

// HandleEvents submits the paths of created, modified and renamed-in files.
// Deleted files are logged only: the stores are append-only.
func (q *Queue) HandleEvents(ctx context.Context, events []watcher.FileEvent) error {
	for _, ev := range events {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case watcher.OpCreate, watcher.OpModify:
			if err := q.Submit(ctx, ev.Path); err != nil {
				return err
			}
		case watcher.OpDelete, watcher.OpRename:
			slog.Info("file_removed_still_indexed",
				slog.String("path", ev.Path),
				slog.String("operation", ev.Operation.String()))
		}
	}
	return nil
}

// enter registers a sender unless the queue is closed.
func (q *Queue) enter() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.sending.Add(1)
	return true
}

// Submit enqueues path, blocking while the queue is full.
func (q *Queue) Submit(ctx context.Context, path string) error {
	if !q.enter() {
		return queueClosed()
	}
	defer q.sending.Done()

	select {
	case q.jobs <- path:
		q.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return queueClosed()
	}
}

// TrySubmit enqueues path unless the queue is full or closed.
func (q *Queue) TrySubmit(path string) bool {
	if !q.enter() {
		return false
	}
	defer q.sending.Done()

	select {
	case q.jobs <- path:
		q.submitted.Add(1)
		return true
	default:
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled, or until Close
// is called and the queued paths are drained. Every path accepted by
// Submit before Close returns is processed unless ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		worker := i
		g.Go(func() error {
			q.work(gctx, worker)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	// Workers only stop on their own after Close, so no new sender can
	// register. Late sends that raced the workers' drain are picked up here.
	q.sending.Wait()
	for {
		select {
		case path := <-q.jobs:
			q.process(ctx, 0, path)
		default:
			return nil
		}
	}
}

func (q *Queue) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-q.jobs:
			q.process(ctx, worker, path)
		case <-q.quit:
			for {
				select {
				case path := <-q.jobs:
					q.process(ctx, worker, path)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) process(ctx context.Context, worker int, path string) {
	res, err := q.proc.Process(ctx, path)
	if err != nil {
		q.failed.Add(1)
		slog.Warn("queue_process_failed",
			append([]any{slog.Int("worker", worker), slog.String("path", path)}, mferrors.FormatForLog(err)...)...)
		if q.onFailure != nil {
			q.onFailure(path, err)
		}
		return
	}
	if res.Status == StatusSkipped {
		q.skipped.Add(1)
		return
	}
	q.processed.Add(1)
}

// Close stops accepting paths. Running workers finish what is queued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.quit)
	}
}

// Pending returns the number of queued paths.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Capacity returns the queue bound.
func (q *Queue) Capacity() int {
	return cap(q.jobs)
}

// Done is the number of paths that finished, whatever the outcome.
func (s QueueStats) Done() uint64 {
	return s.Processed + s.Skipped + s.Failed
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Submitted: q.submitted.Load(),
		Processed: q.processed.Load(),
		Skipped:   q.skipped.Load(),
		Failed:    q.failed.Load(),
		Pending:   q.Pending(),
	}
}

func queueClosed() error {
	return mferrors.New(mferrors.ErrCodeStoreClosed, "index queue is closed", nil)
}
