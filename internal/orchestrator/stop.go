package orchestrator

import "sync/atomic"

// Stop is a cooperative stop flag checked between rounds.
type Stop struct {
	requested atomic.Bool
}

// Request asks the run to stop at the next round boundary.
func (s *Stop) Request() {
	if s != nil {
		s.requested.Store(true)
	}
}

// Requested reports whether a stop was requested.
func (s *Stop) Requested() bool {
	return s != nil && s.requested.Load()
}
