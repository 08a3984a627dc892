// Package registry implements an introspection-only, bounded record of
// recently dispatched tasks. It never influences admission or dispatch —
// the admin API reads it, nothing else does.
package registry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"spoolerd/internal/task"
)

// Outcome describes how a dispatched task's execution concluded.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Record is one observation of a task passing through the Worker Pool.
type Record struct {
	DispatchID string    `json:"dispatch_id"`
	TaskID     string    `json:"task_id"`
	Queue      int       `json:"queue"`
	Kind       string    `json:"kind"`
	ETA        time.Time `json:"eta,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	Error        string    `json:"error,omitempty"`
}

// Registry is a fixed-capacity ring buffer of Records, newest-last
// internally but reported newest-first by Snapshot.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	records  []Record
	byID     map[string]int // dispatch id -> index in records

	subMu sync.Mutex
	subs  map[chan Record]struct{}
}

// New creates a Registry holding at most capacity records. A non-positive
// capacity falls back to 256.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 256
	}
	return &Registry{capacity: capacity, byID: make(map[string]int)}
}

// Subscribe registers a live feed of every Record observed from this point
// on, for the admin API's /ws/dispatch stream. The returned func must be
// called to unregister when the subscriber goes away.
func (r *Registry) Subscribe() (<-chan Record, func()) {
	ch := make(chan Record, 16)
	r.subMu.Lock()
	if r.subs == nil {
		r.subs = make(map[chan Record]struct{})
	}
	r.subs[ch] = struct{}{}
	r.subMu.Unlock()

	unsubscribe := func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// publish fans rec out to every live subscriber. A subscriber whose buffer
// is full is dropped rather than allowed to block the worker pool that
// called Observe.
func (r *Registry) publish(rec Record) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- rec:
		default:
			delete(r.subs, ch)
			close(ch)
		}
	}
}

// Observe records that t has just been picked up by the worker pool for
// execution and returns the dispatch id to later pass to Complete.
func (r *Registry) Observe(t task.Task) string {
	id := uuid.NewString()
	rec := Record{
		DispatchID:   id,
		TaskID:       t.ID,
		Queue:        t.Queue,
		Kind:         t.Kind.String(),
		DispatchedAt: time.Now().UTC(),
		Outcome:      OutcomePending,
	}
	if t.HasETA {
		rec.ETA = t.ETA
	}

	r.mu.Lock()
	r.records = append(r.records, rec)
	r.byID[id] = len(r.records) - 1
	if len(r.records) > r.capacity {
		r.evictOldestLocked()
	}
	r.mu.Unlock()

	r.publish(rec)
	return id
}

// evictOldestLocked drops the single oldest record and fixes up byID. It
// must be called with mu held.
func (r *Registry) evictOldestLocked() {
	r.records = r.records[1:]
	r.byID = make(map[string]int, len(r.records))
	for i, rec := range r.records {
		r.byID[rec.DispatchID] = i
	}
}

// Complete records the outcome of a previously-Observe'd dispatch.
func (r *Registry) Complete(dispatchID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[dispatchID]
	if !ok {
		return
	}
	r.records[idx].FinishedAt = time.Now().UTC()
	if err != nil {
		r.records[idx].Outcome = OutcomeFailure
		r.records[idx].Error = err.Error()
	} else {
		r.records[idx].Outcome = OutcomeSuccess
	}
}

// Snapshot returns up to limit records, newest first. limit <= 0 means
// "all of them".
func (r *Registry) Snapshot(limit int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		out[i] = r.records[len(r.records)-1-i]
	}
	return out
}

// SnapshotJSON renders Snapshot(limit) as a JSON array, for the admin API.
func (r *Registry) SnapshotJSON(limit int) ([]byte, error) {
	return json.Marshal(r.Snapshot(limit))
}
