// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"math"
	"runtime"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"go.uber.org/zap"
)

// Category classifies a pending operation for completion statistics.
type Category uint8

const (
	CategoryGeneric Category = iota
	CategoryRead
	CategoryReadHeader
	CategoryWrite

	categoryCount
)

// Categories lists every category in histogram order.
var Categories = [categoryCount]Category{CategoryGeneric, CategoryRead, CategoryReadHeader, CategoryWrite}

func (c Category) String() string {
	switch c {
	case CategoryGeneric:
		return "generic"
	case CategoryRead:
		return "read"
	case CategoryReadHeader:
		return "read_header"
	case CategoryWrite:
		return "write"
	}
	return "unknown"
}

// MaxTrackedAttempts is the number of histogram buckets per category.
// The last bucket counts every completion at or above MaxTrackedAttempts-1.
const MaxTrackedAttempts = 1024

// DefaultPollInterval bounds how long an idle scheduler loop sleeps
// before re-checking its running flag.
const DefaultPollInterval = 10 * time.Millisecond

// PendingOperation is a suspended computation waiting on a non-blocking probe.
//
// Probe is called from scheduler threads until it returns true, then Resume
// runs on the same thread. Drop runs instead of Resume when the scheduler
// discards the operation at shutdown or after Probe panics.
type PendingOperation struct {
	Category Category
	Probe    func() bool
	Resume   func()
	Drop     func()
	Attempts uint16
}

// AttemptStats summarizes failed probes before success.
type AttemptStats struct {
	Min     uint16
	Max     uint16
	Average float64
	Samples uint64
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	threads      int
	pollInterval time.Duration
	logger       *zap.Logger
}

// WithThreads sets the number of scheduler loops started by Start.
func WithThreads(n int) SchedulerOption {
	return func(o *schedulerOptions) { o.threads = n }
}

// WithPollInterval sets the bounded wait of an idle loop.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) { o.pollInterval = d }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) SchedulerOption {
	return func(o *schedulerOptions) { o.logger = l }
}

// Scheduler is a cooperative pool of loops that resume suspended
// computations once their non-blocking probe reports readiness.
//
// Each loop swaps the shared pending list into a local buffer with a single
// lock acquisition, probes every operation, resumes the ready ones and merges
// the rest back. A loop runs while the scheduler is running or any
// [WorkGuard] is outstanding.
type Scheduler struct {
	threads      int
	pollInterval time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	pending []PendingOperation
	closed  bool

	running     atomix.Uint32
	outstanding atomix.Int64
	wake        chan struct{}
	wg          sync.WaitGroup
	stopOnce    sync.Once

	total      atomix.Uint64
	statsMu    sync.Mutex
	perThread  []uint64
	histograms [categoryCount][MaxTrackedAttempts]uint64
	minAttempt uint16
	maxAttempt uint16
	sumAttempt uint64
	samples    uint64
}

// NewScheduler creates a stopped scheduler. Call Start to spawn its loops.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	o := schedulerOptions{threads: 1, pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}
	if o.threads < 1 {
		o.threads = 1
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &Scheduler{
		threads:      o.threads,
		pollInterval: o.pollInterval,
		logger:       o.logger,
		wake:         make(chan struct{}, o.threads),
		perThread:    make([]uint64, o.threads),
	}
}

// Threads returns the number of loops started by Start.
func (s *Scheduler) Threads() int { return s.threads }

// Start spawns one loop per thread, each locked to its own OS thread.
// Calling Start more than once has no effect.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(0, 1) {
		return
	}
	s.logger.Info("scheduler starting", zap.Int("threads", s.threads))
	for i := range s.threads {
		s.wg.Go(func() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			s.Run(i)
		})
	}
}

// Running reports whether Start has been called and Stop has not.
func (s *Scheduler) Running() bool { return s.running.Load() != 0 }

// Stop clears the running flag, wakes every loop and waits for the loops
// started by Start to return. Loops keep draining while work guards are
// outstanding. Operations still pending afterwards are dropped.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(0)
		s.wakeAll()
		s.wg.Wait()

		s.mu.Lock()
		s.closed = true
		dropped := s.pending
		s.pending = nil
		s.mu.Unlock()

		for i := range dropped {
			s.drop(&dropped[i])
		}
		s.logger.Info("scheduler stopped",
			zap.Uint64("operations", s.TotalOperations()),
			zap.Int("dropped", len(dropped)))
	})
}

// Register queues op and wakes one loop. Once Stop has returned, op is
// dropped immediately.
func (s *Scheduler) Register(op PendingOperation) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.drop(&op)
		return
	}
	s.pending = append(s.pending, op)
	s.mu.Unlock()
	s.Wake()
}

// Wake wakes one idle loop.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) wakeAll() {
	for range s.threads {
		s.Wake()
	}
}

// PendingCount returns the number of operations waiting in the shared list.
// Operations a loop is currently probing are not counted.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run executes loop index on the calling goroutine until the scheduler is
// stopped and every work guard has been released. Start calls Run once per
// thread; index selects the per-thread counter.
func (s *Scheduler) Run(index int) {
	var (
		bo      iox.Backoff
		local   []PendingOperation
		requeue []PendingOperation
	)
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for s.running.Load() != 0 || s.outstanding.Load() > 0 {
		s.mu.Lock()
		local, s.pending = s.pending, local[:0]
		s.mu.Unlock()

		progress := false
		for i := range local {
			op := &local[i]
			ready, ok := s.probe(op)
			if !ok {
				continue
			}
			if ready {
				s.record(index, op.Category, op.Attempts)
				s.resume(op)
				progress = true
				continue
			}
			if op.Attempts < math.MaxUint16 {
				op.Attempts++
			}
			requeue = append(requeue, *op)
		}
		clear(local)
		local = local[:0]

		waiting := len(requeue) > 0
		if waiting {
			s.mu.Lock()
			requeue = append(requeue, s.pending...)
			s.pending, requeue = requeue, s.pending[:0]
			s.mu.Unlock()
		}

		switch {
		case progress:
			bo.Reset()
		case waiting:
			bo.Wait()
		default:
			s.wait(timer)
		}
	}
}

// wait blocks until woken or the poll interval elapses, unless work is
// already pending or the loop is about to exit.
func (s *Scheduler) wait(timer *time.Timer) {
	s.mu.Lock()
	idle := len(s.pending) == 0
	s.mu.Unlock()
	if !idle {
		return
	}
	if s.running.Load() == 0 && s.outstanding.Load() <= 0 {
		return
	}
	timer.Reset(s.pollInterval)
	select {
	case <-s.wake:
	case <-timer.C:
	}
}

func (s *Scheduler) probe(op *PendingOperation) (ready, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("probe panicked",
				zap.Stringer("category", op.Category),
				zap.Any("panic", r))
			ready, ok = false, false
			s.drop(op)
		}
	}()
	return op.Probe(), true
}

func (s *Scheduler) resume(op *PendingOperation) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("continuation panicked",
				zap.Stringer("category", op.Category),
				zap.Any("panic", r))
		}
	}()
	op.Resume()
}

func (s *Scheduler) drop(op *PendingOperation) {
	if op.Drop == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("drop hook panicked", zap.Any("panic", r))
		}
	}()
	op.Drop()
}

func (s *Scheduler) record(index int, c Category, attempts uint16) {
	s.total.Add(1)
	bucket := min(int(attempts), MaxTrackedAttempts-1)

	s.statsMu.Lock()
	if index >= 0 && index < len(s.perThread) {
		s.perThread[index]++
	}
	if c < categoryCount {
		s.histograms[c][bucket]++
	}
	if s.samples == 0 || attempts < s.minAttempt {
		s.minAttempt = attempts
	}
	if attempts > s.maxAttempt {
		s.maxAttempt = attempts
	}
	s.sumAttempt += uint64(attempts)
	s.samples++
	s.statsMu.Unlock()
}

// WorkGuard keeps scheduler loops alive while the pending list is empty.
type WorkGuard struct {
	s        *Scheduler
	released atomix.Uint32
}

// NewWorkGuard increments the outstanding work counter.
func (s *Scheduler) NewWorkGuard() *WorkGuard {
	s.outstanding.Add(1)
	s.wakeAll()
	return &WorkGuard{s: s}
}

// Release decrements the outstanding work counter. Only the first call
// has an effect.
func (g *WorkGuard) Release() {
	if !g.released.CompareAndSwap(0, 1) {
		return
	}
	if g.s.outstanding.Add(-1) <= 0 {
		g.s.wakeAll()
	}
}

// Outstanding returns the number of unreleased work guards.
func (s *Scheduler) Outstanding() int64 { return s.outstanding.Load() }
