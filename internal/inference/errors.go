package inference

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed inference call.
type ErrorKind string

const (
	KindTransport     ErrorKind = "transport"
	KindRateLimited   ErrorKind = "rate_limited"
	KindUpstream      ErrorKind = "upstream"
	KindTimeout       ErrorKind = "timeout"
	KindEmptyResponse ErrorKind = "empty_response"
	KindBadRequest    ErrorKind = "bad_request"
)

// ErrTransport matches every CallError except bad requests.
var ErrTransport = errors.New("inference transport failure")

// ErrInvalidRequest reports a request that was never sent.
var ErrInvalidRequest = errors.New("invalid inference request")

// Retryable reports whether a call failing with kind may be attempted again.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransport, KindRateLimited, KindUpstream, KindTimeout, KindEmptyResponse:
		return true
	default:
		return false
	}
}

// CallError describes a failed call after all attempts.
type CallError struct {
	Kind       ErrorKind
	StatusCode int
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *CallError) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTransport) match retryable call failures.
func (e *CallError) Is(target error) bool {
	return target == ErrTransport && e.Kind != KindBadRequest
}

// KindOf extracts the call error kind, or "" when err is not a CallError.
func KindOf(err error) ErrorKind {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return ""
}

// IsCanceled reports whether err stems from the caller's context rather
// than from the provider.
func IsCanceled(err error) bool {
	if KindOf(err) != "" {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
