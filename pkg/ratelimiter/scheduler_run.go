package ratelimiter

import "time"

type requeueRequest struct {
	job       Job
	notBefore time.Time
}

// run drives the scheduler loop until shutdown. Jobs still queued at shutdown
// are dropped; callers waiting on them observe Done.
func (s *Scheduler) run() {
	timer := time.NewTimer(s.idleInterval)
	defer timer.Stop()

	for {
		s.state.promoteReady(s.now())
		s.dispatchReady()
		resetTimer(timer, s.nextWakeDelay())

		select {
		case <-s.stopCh:
			close(s.workCh)
			close(s.doneCh)
			return
		case job := <-s.submitCh:
			s.state.enqueueReady(job)
		case msg := <-s.requeueCh:
			s.state.enqueueBlocked(msg.job, msg.notBefore)
		case <-timer.C:
		}
	}
}

// dispatchReady hands ready work to idle workers without blocking the loop.
func (s *Scheduler) dispatchReady() {
	for len(s.workCh) < cap(s.workCh) {
		job, ok := s.state.nextReady()
		if !ok {
			return
		}
		s.workCh <- job
	}
}

func (s *Scheduler) requeue(job Job, notBefore time.Time) {
	msg := requeueRequest{job: job, notBefore: notBefore}
	select {
	case <-s.doneCh:
	case s.requeueCh <- msg:
	}
}

func (s *Scheduler) nextWakeDelay() time.Duration {
	next, ok := s.state.nextBlockedTime()
	if !ok {
		return s.idleInterval
	}
	delay := next.Sub(s.now())
	if delay < 0 {
		return 0
	}
	return delay
}

func resetTimer(timer *time.Timer, delay time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(delay)
}
