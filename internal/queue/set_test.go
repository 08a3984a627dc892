package queue

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"spoolerd/internal/task"
)

func TestSetInsertOutOfRange(t *testing.T) {
	s := NewSet(2)
	err := s.Insert(task.Task{Queue: 5, ID: "a"})
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
	var pe *task.ParseError
	if !errors.As(err, &pe) || pe.Reason != task.ReasonBadQueue {
		t.Fatalf("expected a ParseError with ReasonBadQueue, got %v", err)
	}
}

func TestSetRegisterExposesPerQueueLen(t *testing.T) {
	s := NewSet(2)
	reg := prometheus.NewRegistry()
	s.Register(reg)
	_ = s.Insert(task.Task{Queue: 0, ID: "a"})

	expected := `
# HELP spoolerd_queue_len Current number of pending tasks in a queue.
# TYPE spoolerd_queue_len gauge
spoolerd_queue_len{queue="0"} 1
spoolerd_queue_len{queue="1"} 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "spoolerd_queue_len"); err != nil {
		t.Fatal(err)
	}
}

func TestSetIndependentQueues(t *testing.T) {
	// A task blocked behind a future eta in queue 0 must not prevent an
	// immediately-due task in queue 1 from being picked up.
	s := NewSet(2)
	now := time.Now().UTC()

	blocked := task.Task{Queue: 0, ID: "blocked", HasETA: true, ETA: now.Add(time.Hour)}
	ready := task.Task{Queue: 1, ID: "ready"}

	if err := s.Insert(blocked); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ready); err != nil {
		t.Fatal(err)
	}

	due := s.PeekAndPopDue(now)
	if len(due) != 1 || due[0].ID != "ready" {
		t.Fatalf("expected only the ready task due, got %+v", due)
	}
	if s.QueueLen(0) != 1 {
		t.Fatal("blocked queue must still hold its task")
	}
	if s.QueueLen(1) != 0 {
		t.Fatal("ready queue must be empty after pop")
	}
}

func TestSetPeekAndPopDueLeavesNotDueInPlace(t *testing.T) {
	s := NewSet(1)
	now := time.Now().UTC()
	future := task.Task{Queue: 0, ID: "future", HasETA: true, ETA: now.Add(time.Hour)}
	_ = s.Insert(future)

	due := s.PeekAndPopDue(now)
	if len(due) != 0 {
		t.Fatalf("nothing should be due yet, got %+v", due)
	}
	if s.QueueLen(0) != 1 {
		t.Fatal("not-due task must remain queued")
	}
}

func TestSetPeekAndPopDueMultipleDueInOneQueue(t *testing.T) {
	// Only the head of each queue is popped per pass; a second due task
	// behind it waits for the next pass.
	s := NewSet(1)
	now := time.Now().UTC()
	_ = s.Insert(task.Task{Queue: 0, ID: "first", HasETA: true, ETA: now.Add(-time.Second)})
	_ = s.Insert(task.Task{Queue: 0, ID: "second", HasETA: true, ETA: now.Add(-2 * time.Second)})

	due := s.PeekAndPopDue(now)
	if len(due) != 1 || due[0].ID != "second" {
		t.Fatalf("expected earliest due task only, got %+v", due)
	}
	due2 := s.PeekAndPopDue(now)
	if len(due2) != 1 || due2[0].ID != "first" {
		t.Fatalf("expected remaining due task on next pass, got %+v", due2)
	}
}
