package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"spoolerd/internal/task"
)

// Set is the fixed-length array of queues owned by the process: one Queue
// per queue-index, built once at startup and shared by handle with every
// Session (and so with every Session's poller). The Set itself has no lock of its own —
// its length never changes after New, so sharing the slice is safe, and
// all mutation happens inside the per-Queue locks.
type Set struct {
	queues []*Queue
}

// NewSet builds a Set with n independently-locked queues.
func NewSet(n int) *Set {
	if n <= 0 {
		n = 1
	}
	s := &Set{queues: make([]*Queue, n)}
	for i := range s.queues {
		s.queues[i] = New()
	}
	return s
}

// Len returns the number of configured queues.
func (s *Set) Len() int { return len(s.queues) }

// Insert places t into the queue selected by t.Queue. It returns an error
// if the queue-index is out of range; callers (the Session admission path)
// are expected to log and drop the line rather than propagate this to the
// client, since the protocol is one-way push.
func (s *Set) Insert(t task.Task) error {
	if t.Queue < 0 || t.Queue >= len(s.queues) {
		return &task.ParseError{
			Reason: task.ReasonBadQueue,
			Err:    fmt.Errorf("queue index %d out of range [0,%d)", t.Queue, len(s.queues)),
		}
	}
	s.queues[t.Queue].Insert(t)
	return nil
}

// Register exposes each queue's current length as a Prometheus gauge,
// labelled by queue index. The gauges read live state via GaugeFunc, so
// there is nothing to update on insert or pop.
func (s *Set) Register(reg prometheus.Registerer) {
	for i := range s.queues {
		i := i
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "spoolerd_queue_len",
			Help:        "Current number of pending tasks in a queue.",
			ConstLabels: prometheus.Labels{"queue": strconv.Itoa(i)},
		}, func() float64 { return float64(s.queues[i].Len()) }))
	}
}

// QueueLen returns the current length of queue i, for metrics.
func (s *Set) QueueLen(i int) int {
	if i < 0 || i >= len(s.queues) {
		return 0
	}
	return s.queues[i].Len()
}

// PeekAndPopDue scans every queue in ascending index order and, for each
// one whose head is due at now, pops it. It uses a single critical section
// per queue (acquire, peek, check due-ness, pop, release): a single lock
// acquisition cannot race with itself, which keeps this simpler to reason
// about than a peek-release-reacquire-pop scheme while still serializing
// with concurrent Insert calls on the same queue.
//
// Across different queues there is no ordering guarantee.
func (s *Set) PeekAndPopDue(now time.Time) []task.Task {
	var due []task.Task
	for _, q := range s.queues {
		if t, ok := q.popIfDue(now); ok {
			due = append(due, t)
		}
	}
	return due
}

// popIfDue pops the head of q iff it is due at now, entirely under one
// lock acquisition.
func (q *Queue) popIfDue(now time.Time) (task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	head, ok := q.peekLocked()
	if !ok || !head.IsDue(now) {
		return task.Task{}, false
	}
	return q.popLocked()
}
