package ratelimiter

import (
	"testing"
	"time"

	"soulbench/internal/testutil"
)

// runWithTimeout runs fn in a goroutine and fails the test if it hangs.
func runWithTimeout(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		fn()
	}()
	waitFor(t, finished, timeout)
}

func waitFor(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	waitForCount(t, ch, 1, timeout)
}

// waitForCount receives count signals from ch before timeout. A closed
// channel satisfies any count.
func waitForCount(t *testing.T, ch <-chan struct{}, count int, timeout time.Duration) {
	t.Helper()
	ctx := testutil.Context(t, timeout)
	for seen := 0; seen < count; seen++ {
		select {
		case <-ctx.Done():
			t.Fatalf("timed out after %d of %d signals", seen, count)
		case _, ok := <-ch:
			if !ok {
				return
			}
		}
	}
}
