package ratelimiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned when work is submitted after Shutdown.
var ErrClosed = errors.New("ratelimiter: scheduler closed")

// Job is a single unit of work executed by a scheduler worker.
type Job struct {
	JobID   string
	LeaseID string

	// Key groups jobs into fair round-robin queues, usually the model id.
	Key string

	Execute func(ctx context.Context)
}

// Scheduler runs jobs on a fixed pool of workers. The worker count is a hard
// ceiling on concurrently executing jobs.
type Scheduler struct {
	limiter  Limiter
	workers  int
	observer SchedulerObserver

	submitCh  chan Job
	requeueCh chan requeueRequest
	workCh    chan Job
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	state *schedulerState

	now             func() time.Time
	newLeaseID      func() string
	jitter          func(time.Duration) time.Duration
	errorRetryDelay time.Duration
	idleInterval    time.Duration
}

// NewScheduler starts a pool of workers that admit jobs through limiter. A
// nil limiter admits everything.
func NewScheduler(limiter Limiter, workers int, opts ...SchedulerOption) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if limiter == nil {
		limiter = Unlimited
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		limiter:         limiter,
		workers:         workers,
		submitCh:        make(chan Job, workers*4),
		requeueCh:       make(chan requeueRequest, workers*4),
		workCh:          make(chan Job, workers),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
		state:           newSchedulerState(),
		now:             time.Now,
		newLeaseID:      uuid.NewString,
		jitter:          NewJitter(time.Now().UnixNano()).Jitter,
		errorRetryDelay: defaultErrorRetryDelay,
		idleInterval:    defaultIdleInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Workers reports the concurrency ceiling.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Submit enqueues a job for scheduling.
func (s *Scheduler) Submit(job Job) error {
	select {
	case <-s.doneCh:
		return ErrClosed
	case s.submitCh <- job:
		return nil
	}
}

// Done is closed once the scheduler loop has stopped accepting work.
func (s *Scheduler) Done() <-chan struct{} {
	return s.doneCh
}

// Shutdown stops the scheduler and waits for workers to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cancel()
	})
	wait := make(chan struct{})
	go func() {
		<-s.doneCh
		s.wg.Wait()
		close(wait)
	}()
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
