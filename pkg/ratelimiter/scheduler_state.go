package ratelimiter

import (
	"container/heap"
	"time"
)

// schedulerState owns queue state for the scheduler loop. Only the run
// goroutine touches it.
type schedulerState struct {
	queues  map[string]*workQueue
	order   []string
	rrIndex int
	blocked blockedHeap
}

type workQueue struct {
	ready []Job
}

// blockedItem stores a job that cannot run until notBefore.
type blockedItem struct {
	job       Job
	notBefore time.Time
	seq       uint64
}

// blockedHeap orders blocked jobs by not-before time, then submission order.
type blockedHeap struct {
	items []blockedItem
	seq   uint64
}

func (h *blockedHeap) Len() int { return len(h.items) }

func (h *blockedHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.notBefore.Equal(b.notBefore) {
		return a.seq < b.seq
	}
	return a.notBefore.Before(b.notBefore)
}

func (h *blockedHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *blockedHeap) Push(x any) { h.items = append(h.items, x.(blockedItem)) }

func (h *blockedHeap) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}

func newSchedulerState() *schedulerState {
	return &schedulerState{queues: map[string]*workQueue{}}
}

func (s *schedulerState) enqueueReady(job Job) {
	q := s.queue(queueKey(job))
	q.ready = append(q.ready, job)
}

func (s *schedulerState) enqueueBlocked(job Job, notBefore time.Time) {
	s.blocked.seq++
	heap.Push(&s.blocked, blockedItem{job: job, notBefore: notBefore, seq: s.blocked.seq})
}

// promoteReady moves every blocked job whose time has come to its ready queue.
func (s *schedulerState) promoteReady(now time.Time) {
	for s.blocked.Len() > 0 && !s.blocked.items[0].notBefore.After(now) {
		item := heap.Pop(&s.blocked).(blockedItem)
		s.enqueueReady(item.job)
	}
}

// nextReady returns the next job using round-robin across keys.
func (s *schedulerState) nextReady() (Job, bool) {
	for i := 0; i < len(s.order); i++ {
		idx := (s.rrIndex + i) % len(s.order)
		q := s.queues[s.order[idx]]
		if len(q.ready) == 0 {
			continue
		}
		job := q.ready[0]
		q.ready = q.ready[1:]
		s.rrIndex = (idx + 1) % len(s.order)
		return job, true
	}
	return Job{}, false
}

func (s *schedulerState) nextBlockedTime() (time.Time, bool) {
	if s.blocked.Len() == 0 {
		return time.Time{}, false
	}
	return s.blocked.items[0].notBefore, true
}

func (s *schedulerState) queue(key string) *workQueue {
	if q, ok := s.queues[key]; ok {
		return q
	}
	q := &workQueue{}
	s.queues[key] = q
	s.order = append(s.order, key)
	return q
}

// queueKey groups jobs by their scheduling key.
func queueKey(job Job) string {
	return job.Key
}
