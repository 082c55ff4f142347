package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Handler executes one task and returns its result payload.
type Handler interface {
	Handle(ctx context.Context, task Task) ([]byte, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, task Task) ([]byte, error)

func (f HandlerFunc) Handle(ctx context.Context, task Task) ([]byte, error) { return f(ctx, task) }

// ErrShuttingDown is returned by Submit once the runtime has begun shutting
// down; no new task is accepted past that point.
var ErrShuttingDown = fmt.Errorf("engine: runtime is shutting down")

// Handle is the externally-facing submission/inspection surface: workers
// own the scheduler and records map, callers only ever touch it through here.
type Handle struct {
	scheduler *Scheduler

	mu      sync.RWMutex
	records map[uuid.UUID]Record

	notify       chan struct{}
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shuttingDown *atomic.Bool
}

func newHandle() *Handle {
	return &Handle{
		scheduler:    NewScheduler(),
		records:      make(map[uuid.UUID]Record),
		notify:       make(chan struct{}, 1),
		shutdownCh:   make(chan struct{}),
		shuttingDown: &atomic.Bool{},
	}
}

// Submit enqueues task for execution and returns its assigned id, or
// ErrShuttingDown if the runtime is no longer accepting work.
func (h *Handle) Submit(task Task) (uuid.UUID, error) {
	if h.shuttingDown.Load() {
		return uuid.Nil, ErrShuttingDown
	}

	h.mu.Lock()
	h.records[task.ID] = NewRecord(task)
	h.mu.Unlock()

	h.scheduler.Enqueue(task)
	h.wake()
	return task.ID, nil
}

// Get returns the current lifecycle record for taskID.
func (h *Handle) Get(taskID uuid.UUID) (Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	record, ok := h.records[taskID]
	return record, ok
}

// ListForTenant returns every record belonging to tenantID, most recent first.
func (h *Handle) ListForTenant(tenantID string) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Record, 0)
	for _, record := range h.records {
		if record.Task.TenantID == tenantID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Task.CreatedAt.After(out[j].Task.CreatedAt)
	})
	return out
}

// PendingTasks reports the number of tasks still queued (not yet started).
func (h *Handle) PendingTasks() int { return h.scheduler.Pending() }

func (h *Handle) wake() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Handle) setStatus(taskID uuid.UUID, mutate func(*Record)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	record, ok := h.records[taskID]
	if !ok {
		return
	}
	mutate(&record)
	h.records[taskID] = record
}

// Runtime is the worker pool that drains the scheduler and invokes Handler
// for every task, cooperatively, until Shutdown is called and the queue
// drains — it never kills a task mid-flight.
type Runtime struct {
	handle  *Handle
	handler Handler
	workers int
}

// NewRuntime builds a runtime with the given worker concurrency and handler.
func NewRuntime(handler Handler, workers int) *Runtime {
	if workers < 1 {
		workers = 1
	}
	return &Runtime{handle: newHandle(), handler: handler, workers: workers}
}

// Handle returns the submission/inspection surface for this runtime.
func (r *Runtime) Handle() *Handle { return r.handle }

// Start launches the worker pool and blocks until every worker exits, which
// happens only after Shutdown is called and the queue has fully drained, or
// ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		group.Go(func() error {
			r.workerLoop(ctx)
			return nil
		})
	}
	return group.Wait()
}

// Shutdown signals every worker to stop accepting new wakeups once the
// current queue is empty. In-flight tasks are allowed to finish.
func (r *Runtime) Shutdown() {
	r.handle.shuttingDown.Store(true)
	r.handle.shutdownOnce.Do(func() { close(r.handle.shutdownCh) })
}

func (r *Runtime) workerLoop(ctx context.Context) {
	for {
		task, ok := r.handle.scheduler.NextTask()
		if !ok {
			if r.handle.shuttingDown.Load() {
				return
			}
			select {
			case <-r.handle.notify:
			case <-r.handle.shutdownCh:
			case <-ctx.Done():
				return
			}
			continue
		}
		r.runOne(ctx, task)
	}
}

func (r *Runtime) runOne(ctx context.Context, task Task) {
	startedAt := time.Now().UTC()
	r.handle.setStatus(task.ID, func(rec *Record) {
		rec.Status = StatusRunning
		rec.StartedAt = &startedAt
	})

	result, err := r.invokeHandler(ctx, task)
	finishedAt := time.Now().UTC()

	if err != nil {
		msg := fmt.Errorf("engine: task %s: %w", task.ID, err).Error()
		r.handle.setStatus(task.ID, func(rec *Record) {
			rec.Status = StatusFailed
			rec.FinishedAt = &finishedAt
			rec.LastError = &msg
		})
		return
	}

	r.handle.setStatus(task.ID, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.FinishedAt = &finishedAt
		rec.Result = result
	})
}

// invokeHandler calls the task handler, recovering a panic into an error so
// a single misbehaving task surfaces as TaskStatus Failed rather than
// bringing down the worker loop.
func (r *Runtime) invokeHandler(ctx context.Context, task Task) (result []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("engine: task handler panicked: %v", rec)
		}
	}()
	return r.handler.Handle(ctx, task)
}
