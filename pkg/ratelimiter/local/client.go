package local

import (
	"context"
	"sync"
	"time"

	"soulbench/pkg/ratelimiter"
)

// Client implements ratelimiter.Limiter with in-memory rolling windows. Keys
// without a configured capacity are unlimited.
type Client struct {
	mu     sync.Mutex
	window time.Duration
	limits map[ratelimiter.LimitKey]*rollingLimit
	now    func() time.Time
}

// NewRequestsPerMinute builds a limiter allowing rpm requests per model in
// any rolling minute.
func NewRequestsPerMinute(rpm uint64, models ...string) *Client {
	capacities := make(map[ratelimiter.LimitKey]uint64, len(models))
	for _, model := range models {
		capacities[ratelimiter.RequestsKey(model)] = rpm
	}
	return New(time.Minute, capacities)
}

// New builds a rolling-window limiter from per-key capacities.
func New(window time.Duration, capacities map[ratelimiter.LimitKey]uint64) *Client {
	limits := make(map[ratelimiter.LimitKey]*rollingLimit, len(capacities))
	for key, capacity := range capacities {
		limits[key] = newRollingLimit(capacity)
	}
	return &Client{window: window, limits: limits, now: time.Now}
}

// Reserve admits the lease when every requirement fits its window.
func (c *Client) Reserve(_ context.Context, req ratelimiter.ReserveRequest) (ratelimiter.ReserveResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var retryAfter time.Duration
	for _, requirement := range req.Requirements {
		limit, ok := c.limits[requirement.Key]
		if !ok {
			continue
		}
		limit.cleanup(now)
		if limit.used+requirement.Amount <= limit.cap {
			continue
		}
		wait := limit.nextExpiry().Sub(now)
		if wait > retryAfter {
			retryAfter = wait
		}
	}
	if retryAfter > 0 {
		return ratelimiter.ReserveResponse{
			Allowed:      false,
			RetryAfterMs: int(retryAfter.Milliseconds()) + 1,
		}, nil
	}
	for _, requirement := range req.Requirements {
		if limit, ok := c.limits[requirement.Key]; ok {
			limit.add(req.LeaseID, requirement.Amount, now.Add(c.window))
		}
	}
	return ratelimiter.ReserveResponse{Allowed: true, ReservedAtUnixMs: now.UnixMilli()}, nil
}

// Complete is a no-op: a request counts against its window until it expires.
func (c *Client) Complete(_ context.Context, _ ratelimiter.CompleteRequest) (ratelimiter.CompleteResponse, error) {
	return ratelimiter.CompleteResponse{Ok: true}, nil
}
