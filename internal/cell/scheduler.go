package cell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
)

// ErrOperationPanicked is returned by Quiesce when an operation body panicked.
// The panic value is included in the wrapped message.
var ErrOperationPanicked = errors.New("operation panicked")

// ErrClosed is returned when operations are scheduled after Close.
var ErrClosed = errors.New("scheduler closed")

// slot is the scheduling half of a cell: a FIFO of operations waiting for the
// cell. The head of the queue owns the cell.
type slot struct {
	id    uint64
	mu    sync.Mutex
	queue []*operation
}

type operation struct {
	slots []*slot
	body  func()
	// waiting counts the slots this operation is not yet at the head of, plus
	// one held by the scheduling goroutine until enqueueing finishes.
	waiting atomic.Int64
}

// Stats reports scheduler counters.
type Stats struct {
	Workers   int    `json:"workers"`
	Scheduled uint64 `json:"scheduled"`
	Executed  uint64 `json:"executed"`
	Cells     uint64 `json:"cells"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the number of worker goroutines that execute operation
// bodies. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger used to report failed operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler runs operations scheduled against cells on a bounded pool of
// worker goroutines.
type Scheduler struct {
	workers int
	logger  *slog.Logger
	pool    *ants.Pool

	nextID    atomic.Uint64
	scheduled atomic.Uint64
	executed  atomic.Uint64

	// runq holds operations that own all their cells and wait for a worker.
	runMu  sync.Mutex
	runq   []*operation
	active int

	// pending counts operations scheduled but not yet completed. idle is
	// closed whenever pending is zero.
	idleMu  sync.Mutex
	pending int64
	idle    chan struct{}

	errMu sync.Mutex
	err   error

	closed atomic.Bool
}

// NewScheduler creates a scheduler. The worker count defaults to
// runtime.NumCPU.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
		idle:    make(chan struct{}),
	}
	close(s.idle)

	for _, opt := range opts {
		opt(s)
	}

	pool, err := ants.NewPool(s.workers, ants.WithPanicHandler(func(v any) {
		s.fail(fmt.Errorf("worker: %w: %v", ErrOperationPanicked, v))
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	s.pool = pool

	return s, nil
}

// Workers returns the configured worker count.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Workers:   s.workers,
		Scheduled: s.scheduled.Load(),
		Executed:  s.executed.Load(),
		Cells:     s.nextID.Load(),
	}
}

// Quiesce blocks until no operation is pending or running, then returns the
// first operation failure, if any. It returns the context error if ctx ends
// first.
func (s *Scheduler) Quiesce(ctx context.Context) error {
	s.idleMu.Lock()
	idle := s.idle
	s.idleMu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return fmt.Errorf("wait for quiescence: %w", ctx.Err())
	}
	return s.Err()
}

// Err returns the first fatal failure recorded by the scheduler.
func (s *Scheduler) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close releases the worker pool. Operations still queued are released
// without running their bodies.
func (s *Scheduler) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.pool.Release()
}

func (s *Scheduler) newSlot() *slot {
	return &slot{id: s.nextID.Add(1)}
}

func (s *Scheduler) schedule(slots []*slot, body func()) {
	if s.closed.Load() {
		s.fail(ErrClosed)
		return
	}

	op := &operation{
		slots: orderSlots(slots),
		body:  body,
	}
	op.waiting.Store(int64(len(op.slots)) + 1)

	s.begin()
	s.scheduled.Add(1)

	// Every queue stays locked until the operation sits in all of them, so
	// overlapping operations agree on their relative order.
	for _, sl := range op.slots {
		sl.mu.Lock()
	}
	var owned int64
	for _, sl := range op.slots {
		sl.queue = append(sl.queue, op)
		if len(sl.queue) == 1 {
			owned++
		}
	}
	for i := len(op.slots) - 1; i >= 0; i-- {
		op.slots[i].mu.Unlock()
	}

	if op.waiting.Add(-(owned + 1)) == 0 {
		s.ready(op)
	}
}

// ready hands an operation that owns all of its cells to a worker.
func (s *Scheduler) ready(op *operation) {
	s.runMu.Lock()
	s.runq = append(s.runq, op)
	if s.active >= s.workers {
		s.runMu.Unlock()
		return
	}
	s.active++
	s.runMu.Unlock()

	if err := s.pool.Submit(s.drain); err != nil {
		s.runMu.Lock()
		s.active--
		s.runMu.Unlock()
		s.fail(fmt.Errorf("submit to worker pool: %w", err))
	}
}

// drain runs queued operations until the run queue is empty.
func (s *Scheduler) drain() {
	for {
		s.runMu.Lock()
		if len(s.runq) == 0 {
			s.active--
			s.runMu.Unlock()
			return
		}
		op := s.runq[0]
		s.runq[0] = nil
		s.runq = s.runq[1:]
		s.runMu.Unlock()

		s.execute(op)
	}
}

func (s *Scheduler) execute(op *operation) {
	defer s.release(op)
	if s.closed.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.fail(fmt.Errorf("%w: %v", ErrOperationPanicked, r))
		}
	}()

	op.body()
	s.executed.Add(1)
}

// release pops op from the head of each of its cells and passes ownership to
// the next operation in line.
func (s *Scheduler) release(op *operation) {
	for _, sl := range op.slots {
		sl.mu.Lock()
		sl.queue[0] = nil
		sl.queue = sl.queue[1:]
		var next *operation
		if len(sl.queue) > 0 {
			next = sl.queue[0]
		}
		sl.mu.Unlock()

		if next != nil && next.waiting.Add(-1) == 0 {
			s.ready(next)
		}
	}
	s.end()
}

func (s *Scheduler) begin() {
	s.idleMu.Lock()
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	s.idleMu.Unlock()
}

func (s *Scheduler) end() {
	s.idleMu.Lock()
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
	s.idleMu.Unlock()
}

func (s *Scheduler) fail(err error) {
	s.errMu.Lock()
	first := s.err == nil
	if first {
		s.err = err
	}
	s.errMu.Unlock()

	if first {
		s.logger.Error("scheduler failure", "error", err)
	}
}
