package ratelimiter

import (
	"math/rand"
	"sync"
	"time"
)

const (
	defaultErrorRetryDelay = 100 * time.Millisecond
	defaultIdleInterval    = 5 * time.Millisecond
	defaultJitterMax       = 25 * time.Millisecond
)

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithObserver reports reservation outcomes and job starts. A nil observer
// is ignored.
func WithObserver(observer SchedulerObserver) SchedulerOption {
	return func(s *Scheduler) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithJitter replaces the random delay added to denied reservations.
func WithJitter(jitter func(time.Duration) time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if jitter != nil {
			s.jitter = jitter
		}
	}
}

func withLeaseIDs(next func() string) SchedulerOption {
	return func(s *Scheduler) { s.newLeaseID = next }
}

func withTiming(errorRetryDelay, idleInterval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.errorRetryDelay = errorRetryDelay
		s.idleInterval = idleInterval
	}
}

// Jitter is a concurrency-safe source of random retry jitter.
type Jitter struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewJitter(seed int64) *Jitter {
	return &Jitter{r: rand.New(rand.NewSource(seed))}
}

// Jitter returns a random duration in [0, min(base, 25ms)], or in [0, 25ms]
// when base is zero.
func (j *Jitter) Jitter(base time.Duration) time.Duration {
	ceiling := defaultJitterMax
	if base > 0 && base < ceiling {
		ceiling = base
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.r.Int63n(int64(ceiling) + 1))
}
