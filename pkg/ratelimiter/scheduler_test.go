package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"soulbench/internal/testutil"
)

type fakeLimiter struct {
	mu            sync.Mutex
	reserveCalls  []ReserveRequest
	completeCalls []CompleteRequest
	reserveFn     func(ReserveRequest) (ReserveResponse, error)
}

func (f *fakeLimiter) Reserve(_ context.Context, req ReserveRequest) (ReserveResponse, error) {
	f.mu.Lock()
	f.reserveCalls = append(f.reserveCalls, req)
	fn := f.reserveFn
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return ReserveResponse{Allowed: true}, nil
}

func (f *fakeLimiter) Complete(_ context.Context, req CompleteRequest) (CompleteResponse, error) {
	f.mu.Lock()
	f.completeCalls = append(f.completeCalls, req)
	f.mu.Unlock()
	return CompleteResponse{Ok: true}, nil
}

type idSource struct {
	mu   sync.Mutex
	next int
}

func (s *idSource) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("L-%d", s.next)
}

func newTestScheduler(lim Limiter, workers int) *Scheduler {
	ids := &idSource{}
	return NewScheduler(lim, workers,
		withLeaseIDs(ids.Next),
		WithJitter(func(time.Duration) time.Duration { return 0 }),
		withTiming(5*time.Millisecond, time.Millisecond),
	)
}

func TestScheduler_NoHeadOfLineBlocking(t *testing.T) {
	runWithTimeout(t, 2*time.Second, func() {
		lim := &fakeLimiter{}
		lim.reserveFn = func(req ReserveRequest) (ReserveResponse, error) {
			if req.Requirements[0].Key == RequestsKey("slow-model") {
				return ReserveResponse{Allowed: false, RetryAfterMs: 100}, nil
			}
			return ReserveResponse{Allowed: true}, nil
		}
		sched := newTestScheduler(lim, 1)
		defer func() {
			_ = sched.Shutdown(testutil.Context(t, time.Second))
		}()

		done := make(chan struct{}, 2)
		_ = sched.Submit(Job{
			Key: "slow-model",
			Execute: func(context.Context) {
				t.Errorf("denied job should not execute")
			},
		})
		for i := 0; i < 2; i++ {
			_ = sched.Submit(Job{
				Key:     "fast-model",
				Execute: func(context.Context) { done <- struct{}{} },
			})
		}
		waitForCount(t, done, 2, 200*time.Millisecond)
	})
}

func TestScheduler_RetryUsesNewLeaseID(t *testing.T) {
	runWithTimeout(t, 2*time.Second, func() {
		lim := &fakeLimiter{}
		var calls atomic.Int32
		lim.reserveFn = func(req ReserveRequest) (ReserveResponse, error) {
			if calls.Add(1) == 1 {
				return ReserveResponse{Allowed: false, RetryAfterMs: 1}, nil
			}
			return ReserveResponse{Allowed: true}, nil
		}
		sched := newTestScheduler(lim, 1)
		defer func() {
			_ = sched.Shutdown(testutil.Context(t, time.Second))
		}()

		done := make(chan struct{})
		_ = sched.Submit(Job{JobID: "job-1", Key: "m", Execute: func(context.Context) { close(done) }})
		waitFor(t, done, 300*time.Millisecond)

		lim.mu.Lock()
		reserves := append([]ReserveRequest(nil), lim.reserveCalls...)
		lim.mu.Unlock()
		if len(reserves) < 2 {
			t.Fatalf("expected at least 2 reserve calls, got %d", len(reserves))
		}
		if reserves[0].LeaseID == reserves[1].LeaseID {
			t.Fatalf("expected different lease IDs for retry")
		}
	})
}

func TestScheduler_WorkersBoundConcurrency(t *testing.T) {
	runWithTimeout(t, 5*time.Second, func() {
		const workers = 5
		const jobs = 100
		sched := newTestScheduler(Unlimited, workers)
		defer func() {
			_ = sched.Shutdown(testutil.Context(t, time.Second))
		}()

		var inFlight, peak atomic.Int32
		done := make(chan struct{}, jobs)
		for i := 0; i < jobs; i++ {
			err := sched.Submit(Job{
				JobID: fmt.Sprintf("job-%d", i),
				Key:   "m",
				Execute: func(context.Context) {
					current := inFlight.Add(1)
					for {
						seen := peak.Load()
						if current <= seen || peak.CompareAndSwap(seen, current) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					inFlight.Add(-1)
					done <- struct{}{}
				},
			})
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
		}
		waitForCount(t, done, jobs, 4*time.Second)
		if got := peak.Load(); got > workers {
			t.Fatalf("expected at most %d concurrent jobs, saw %d", workers, got)
		}
	})
}

func TestScheduler_SubmitAfterShutdown(t *testing.T) {
	sched := newTestScheduler(Unlimited, 1)
	if err := sched.Shutdown(testutil.Context(t, time.Second)); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := sched.Submit(Job{Key: "m"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	select {
	case <-sched.Done():
	default:
		t.Fatalf("expected Done to be closed")
	}
}

func TestScheduler_CompleteCalledAfterExecute(t *testing.T) {
	runWithTimeout(t, 2*time.Second, func() {
		lim := &fakeLimiter{}
		sched := newTestScheduler(lim, 2)
		done := make(chan struct{}, 2)
		for i := 0; i < 2; i++ {
			_ = sched.Submit(Job{JobID: fmt.Sprintf("job-%d", i), Key: "m", Execute: func(context.Context) { done <- struct{}{} }})
		}
		waitForCount(t, done, 2, time.Second)
		testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
			lim.mu.Lock()
			defer lim.mu.Unlock()
			return len(lim.completeCalls) == 2
		}, "expected complete for every executed job")
		_ = sched.Shutdown(testutil.Context(t, time.Second))
	})
}

type countingObserver struct {
	denied, errored, started atomic.Int32
}

func (o *countingObserver) OnReserveDenied(Job, ReserveResponse) { o.denied.Add(1) }
func (o *countingObserver) OnReserveError(Job, error)            { o.errored.Add(1) }
func (o *countingObserver) OnJobStart(Job)                       { o.started.Add(1) }

func TestScheduler_ObserverSeesDenialsAndErrors(t *testing.T) {
	runWithTimeout(t, 2*time.Second, func() {
		lim := &fakeLimiter{}
		var calls atomic.Int32
		lim.reserveFn = func(ReserveRequest) (ReserveResponse, error) {
			switch calls.Add(1) {
			case 1:
				return ReserveResponse{}, errors.New("limiter unavailable")
			case 2:
				return ReserveResponse{Allowed: false, RetryAfterMs: 1}, nil
			}
			return ReserveResponse{Allowed: true}, nil
		}
		observer := &countingObserver{}
		sched := NewScheduler(lim, 1, WithObserver(observer), withTiming(time.Millisecond, time.Millisecond),
			WithJitter(func(time.Duration) time.Duration { return 0 }))
		defer func() {
			_ = sched.Shutdown(testutil.Context(t, time.Second))
		}()

		done := make(chan struct{})
		_ = sched.Submit(Job{Key: "m", Execute: func(context.Context) { close(done) }})
		waitFor(t, done, time.Second)
		if observer.errored.Load() != 1 || observer.denied.Load() != 1 || observer.started.Load() != 1 {
			t.Fatalf("unexpected observer counts: errored=%d denied=%d started=%d",
				observer.errored.Load(), observer.denied.Load(), observer.started.Load())
		}
	})
}

func TestJitterStaysWithinBase(t *testing.T) {
	j := NewJitter(7)
	for i := 0; i < 200; i++ {
		if got := j.Jitter(3 * time.Millisecond); got < 0 || got > 3*time.Millisecond {
			t.Fatalf("jitter %s outside [0, 3ms]", got)
		}
		if got := j.Jitter(0); got > defaultJitterMax {
			t.Fatalf("jitter %s above cap", got)
		}
	}
}
