package local

import (
	"container/heap"
	"time"
)

type rollingLimit struct {
	cap  uint64
	used uint64
	heap reservationHeap
}

type reservation struct {
	id        string
	amount    uint64
	expiresAt time.Time
}

type reservationHeap []reservation

func (h reservationHeap) Len() int           { return len(h) }
func (h reservationHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h reservationHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *reservationHeap) Push(x any) { *h = append(*h, x.(reservation)) }

func (h *reservationHeap) Pop() any {
	old := *h
	n := len(old)
	res := old[n-1]
	*h = old[:n-1]
	return res
}

func newRollingLimit(capacity uint64) *rollingLimit {
	return &rollingLimit{cap: capacity}
}

// cleanup releases every reservation that has left the window.
func (l *rollingLimit) cleanup(now time.Time) {
	for l.heap.Len() > 0 && !l.heap[0].expiresAt.After(now) {
		res := heap.Pop(&l.heap).(reservation)
		if l.used >= res.amount {
			l.used -= res.amount
		} else {
			l.used = 0
		}
	}
}

func (l *rollingLimit) add(id string, amount uint64, expiresAt time.Time) {
	l.used += amount
	heap.Push(&l.heap, reservation{id: id, amount: amount, expiresAt: expiresAt})
}

// nextExpiry returns when the oldest reservation leaves the window.
func (l *rollingLimit) nextExpiry() time.Time {
	if l.heap.Len() == 0 {
		return time.Time{}
	}
	return l.heap[0].expiresAt
}
