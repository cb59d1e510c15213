// Package testutil holds helpers shared by soulbench tests.
package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout bounds a unit test's context when the caller passes zero.
const DefaultTimeout = 5 * time.Second

// Context returns a context cancelled at test cleanup. The timeout is
// clipped to leave a second before the test binary's own deadline.
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if dt, ok := t.(interface{ Deadline() (time.Time, bool) }); ok {
		if deadline, ok := dt.Deadline(); ok {
			if left := time.Until(deadline) - time.Second; left > 0 && left < timeout {
				timeout = left
			}
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Eventually polls cond every interval and fails the test with msg if it
// is still false after timeout.
func Eventually(t testing.TB, timeout, interval time.Duration, cond func() bool, msg string) {
	t.Helper()
	if msg == "" {
		msg = "condition not met before timeout"
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-timer.C:
			t.Fatal(msg)
		case <-ticker.C:
		}
	}
}
