package inference

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"soulbench/pkg/ratelimiter"
)

const (
	DefaultMaxConcurrent = 50
	DefaultTimeout       = 150 * time.Second
	DefaultMaxAttempts   = 3
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultMaxRetryDelay = 30 * time.Second
)

// Settings bounds how a Client talks to its provider.
type Settings struct {
	MaxConcurrent int
	Timeout       time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
	// MaxRetryDelay caps every backoff, including server Retry-After hints.
	MaxRetryDelay time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = DefaultMaxConcurrent
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.RetryDelay <= 0 {
		s.RetryDelay = DefaultRetryDelay
	}
	if s.MaxRetryDelay <= 0 {
		s.MaxRetryDelay = DefaultMaxRetryDelay
	}
	return s
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	limiter  ratelimiter.Limiter
	observer ratelimiter.SchedulerObserver
	jitter   func(time.Duration) time.Duration
	sleep    func(context.Context, time.Duration) error
}

// WithLimiter paces calls through a rate limiter keyed by model.
func WithLimiter(limiter ratelimiter.Limiter) Option {
	return func(opts *clientOptions) {
		opts.limiter = limiter
	}
}

// WithSchedulerObserver reports scheduler reservation events.
func WithSchedulerObserver(observer ratelimiter.SchedulerObserver) Option {
	return func(opts *clientOptions) {
		opts.observer = observer
	}
}

// WithJitter overrides the retry jitter source.
func WithJitter(jitter func(time.Duration) time.Duration) Option {
	return func(opts *clientOptions) {
		opts.jitter = jitter
	}
}

// WithSleep overrides the backoff sleep, mainly for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(opts *clientOptions) {
		opts.sleep = sleep
	}
}

// Client runs provider calls on a fixed worker pool, so no more than
// MaxConcurrent calls are in flight however many goroutines call Complete.
type Client struct {
	provider Provider
	settings Settings
	sched    *ratelimiter.Scheduler
	jitter   func(time.Duration) time.Duration
	sleep    func(context.Context, time.Duration) error
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewClient starts the worker pool. Call Close to release it.
func NewClient(provider Provider, settings Settings, opts ...Option) *Client {
	settings = settings.withDefaults()
	options := clientOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.jitter == nil {
		options.jitter = ratelimiter.NewJitter(time.Now().UnixNano()).Jitter
	}
	if options.sleep == nil {
		options.sleep = sleepContext
	}
	sched := ratelimiter.NewScheduler(options.limiter, settings.MaxConcurrent,
		ratelimiter.WithObserver(options.observer), ratelimiter.WithJitter(options.jitter))
	return &Client{
		provider: provider,
		settings: settings,
		sched:    sched,
		jitter:   options.jitter,
		sleep:    options.sleep,
	}
}

// Ceiling reports the concurrency ceiling.
func (c *Client) Ceiling() int {
	return c.sched.Workers()
}

// PeakInFlight reports the highest number of simultaneous provider calls.
func (c *Client) PeakInFlight() int {
	return int(c.peak.Load())
}

// Close stops the worker pool.
func (c *Client) Close(ctx context.Context) error {
	return c.sched.Shutdown(ctx)
}

type attemptResult struct {
	text string
	err  error
}

// Complete sends req, retrying retryable failures with bounded backoff.
// Cancellation of ctx is returned as the context error, never as a
// CallError.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if err := validateRequest(req); err != nil {
		return Response{}, err
	}
	jobID := uuid.NewString()
	var lastErr *CallError
	for attempt := 1; attempt <= c.settings.MaxAttempts; attempt++ {
		text, err := c.attempt(ctx, jobID, attempt, req)
		if err == nil {
			return Response{Text: text, Model: req.Model, Attempts: attempt}, nil
		}
		var callErr *CallError
		if !errors.As(err, &callErr) {
			return Response{}, err
		}
		callErr.Attempts = attempt
		lastErr = callErr
		if !callErr.Kind.Retryable() || attempt == c.settings.MaxAttempts {
			break
		}
		delay := c.backoff(attempt, callErr)
		if req.OnRetry != nil {
			req.OnRetry(attempt, callErr, delay)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

func (c *Client) attempt(ctx context.Context, jobID string, attempt int, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	results := make(chan attemptResult, 1)
	job := ratelimiter.Job{
		JobID: jobID,
		Key:   req.Model,
		Execute: func(schedCtx context.Context) {
			results <- c.execute(ctx, schedCtx, attempt, req)
		},
	}
	if err := c.sched.Submit(job); err != nil {
		return "", &CallError{Kind: KindTransport, Err: err}
	}
	select {
	case result := <-results:
		return result.text, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.sched.Done():
		select {
		case result := <-results:
			return result.text, result.err
		default:
			return "", &CallError{Kind: KindTransport, Err: ratelimiter.ErrClosed}
		}
	}
}

func (c *Client) execute(ctx, schedCtx context.Context, attempt int, req Request) attemptResult {
	if err := ctx.Err(); err != nil {
		return attemptResult{err: err}
	}
	callCtx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()
	stop := context.AfterFunc(schedCtx, cancel)
	defer stop()

	current := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.peak.Load()
		if current <= peak || c.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	if req.OnStart != nil {
		req.OnStart(attempt)
	}
	text, err := c.provider.Complete(callCtx, req)
	if err == nil {
		return attemptResult{text: text}
	}
	switch {
	case ctx.Err() != nil:
		return attemptResult{err: ctx.Err()}
	case KindOf(err) != "":
		return attemptResult{err: err}
	case schedCtx.Err() != nil:
		return attemptResult{err: &CallError{Kind: KindTransport, Err: ratelimiter.ErrClosed}}
	case errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil:
		return attemptResult{err: &CallError{Kind: KindTimeout, Err: err}}
	default:
		return attemptResult{err: &CallError{Kind: KindTransport, Err: err}}
	}
}

// backoff doubles the base delay per attempt, honors Retry-After and adds
// jitter. The result never exceeds MaxRetryDelay.
func (c *Client) backoff(attempt int, callErr *CallError) time.Duration {
	ceiling := c.settings.MaxRetryDelay
	delay := c.settings.RetryDelay << min(attempt-1, 30)
	if delay > ceiling || delay <= 0 {
		delay = ceiling
	}
	if callErr.RetryAfter > delay {
		delay = callErr.RetryAfter
	}
	if jitter := c.jitter(delay); jitter > 0 {
		delay += jitter
	}
	return min(delay, ceiling)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
