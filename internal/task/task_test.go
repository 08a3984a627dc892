package task

import (
	"errors"
	"testing"
	"time"
)

func TestParseRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{"valid minimal", `{"queue":0,"id":"a","task_type":4}`, false},
		{"missing queue", `{"id":"a","task_type":4}`, true},
		{"missing id", `{"queue":0,"task_type":4}`, true},
		{"missing task_type", `{"queue":0,"id":"a"}`, true},
		{"bad json", `{not json`, true},
		{"invalid task_type", `{"queue":0,"id":"a","task_type":99}`, true},
		{"bad eta", `{"queue":0,"id":"a","task_type":4,"eta":"not-a-time"}`, true},
		{"unknown fields ignored", `{"queue":0,"id":"a","task_type":4,"bogus":true}`, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.line))
			if (err != nil) != c.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", c.line, err, c.wantErr)
			}
		})
	}
}

func TestParseETAIsUTC(t *testing.T) {
	tk, err := Parse([]byte(`{"queue":0,"id":"a","task_type":4,"eta":"2030-01-01T00:00:00+02:00"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.ETA.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", tk.ETA.Location())
	}
	if tk.ETA.Hour() != 22 {
		t.Fatalf("expected conversion to UTC, got hour %d", tk.ETA.Hour())
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	noETA := Task{}
	if !noETA.IsDue(now) {
		t.Fatal("task without eta must always be due")
	}

	pastDue := Task{HasETA: true, ETA: now.Add(-time.Hour)}
	if !pastDue.IsDue(now) {
		t.Fatal("past-due task must be due")
	}

	exactlyNow := Task{HasETA: true, ETA: now}
	if !exactlyNow.IsDue(now) {
		t.Fatal("task due exactly now must be due")
	}

	withinTolerance := Task{HasETA: true, ETA: now.Add(2 * time.Second)}
	if !withinTolerance.IsDue(now) {
		t.Fatal("task within the 3s tolerance window must be due")
	}

	outsideTolerance := Task{HasETA: true, ETA: now.Add(4 * time.Second)}
	if outsideTolerance.IsDue(now) {
		t.Fatal("task outside the tolerance window must not be due")
	}

	atToleranceBoundary := Task{HasETA: true, ETA: now.Add(DispatchTolerance)}
	if atToleranceBoundary.IsDue(now) {
		t.Fatal("task exactly at the tolerance boundary must not be due (strict <)")
	}
}

func TestShouldReschedule(t *testing.T) {
	cases := []struct {
		name   string
		policy *Policy
		want   bool
	}{
		{"no policy", nil, false},
		{"zero interval", &Policy{RepeatIntervalSeconds: 0, Retries: 5}, false},
		{"negative interval", &Policy{RepeatIntervalSeconds: -1, Retries: 5}, false},
		{"positive retries", &Policy{RepeatIntervalSeconds: 1, Retries: 2}, true},
		{"zero retries", &Policy{RepeatIntervalSeconds: 1, Retries: 0}, false},
		{"infinite retries", &Policy{RepeatIntervalSeconds: 1, Retries: InfiniteRetries}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tk := Task{Policy: c.policy}
			if got := tk.ShouldReschedule(); got != c.want {
				t.Fatalf("ShouldReschedule() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestNextInstanceFiniteRetries(t *testing.T) {
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := Task{
		Queue: 2, ID: "c", Kind: KindOther, HasETA: true, ETA: base,
		Policy: &Policy{RepeatIntervalSeconds: 1, Retries: 2},
	}

	// Exactly r+1 = 3 dispatches in the chain (invariant 2).
	dispatches := 0
	cur := tk
	for {
		dispatches++
		if !cur.ShouldReschedule() {
			break
		}
		next := cur.NextInstance()
		if next.Queue != cur.Queue || next.ID != cur.ID || next.Kind != cur.Kind {
			t.Fatalf("NextInstance must preserve queue/id/kind")
		}
		wantETA := cur.ETA.Add(time.Second)
		if !next.ETA.Equal(wantETA) {
			t.Fatalf("eta spacing = %v, want %v", next.ETA, wantETA)
		}
		cur = next
	}
	if dispatches != 3 {
		t.Fatalf("expected 3 dispatches for retries=2, got %d", dispatches)
	}
}

func TestNextInstanceInfiniteRetriesSentinelPreserved(t *testing.T) {
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := Task{
		HasETA: true, ETA: base,
		Policy: &Policy{RepeatIntervalSeconds: 1, Retries: InfiniteRetries},
	}
	for i := 0; i < 5; i++ {
		if !tk.ShouldReschedule() {
			t.Fatalf("infinite-retry chain must never stop rescheduling (iteration %d)", i)
		}
		tk = tk.NextInstance()
		if tk.Policy.Retries != InfiniteRetries {
			t.Fatalf("sentinel retries must be preserved, got %d", tk.Policy.Retries)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	original := Task{
		Queue: 1, ID: "xyz", Kind: KindAPI, HasETA: true,
		ETA:     time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC),
		Payload: `{"hello":"world"}`,
		Policy: &Policy{
			RepeatIntervalSeconds: 30,
			Retries:               4,
			URL:                   "https://example.com/webhook",
			Headers:               `{"X-Test":"1"}`,
			Method:                "POST",
		},
	}

	data, err := original.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Queue != original.Queue || got.ID != original.ID || got.Kind != original.Kind {
		t.Fatalf("round-trip mismatch on queue/id/kind: %+v vs %+v", got, original)
	}
	if !got.ETA.Equal(original.ETA) {
		t.Fatalf("round-trip eta mismatch: %v vs %v", got.ETA, original.ETA)
	}
	if got.Payload != original.Payload {
		t.Fatalf("round-trip payload mismatch")
	}
	if got.Policy == nil || *got.Policy != *original.Policy {
		t.Fatalf("round-trip policy mismatch: %+v vs %+v", got.Policy, original.Policy)
	}
}

func TestParseErrorReasons(t *testing.T) {
	cases := []struct {
		name       string
		line       string
		wantReason DropReason
	}{
		{"malformed json", `{not json`, ReasonBadJSON},
		{"missing id", `{"queue":0,"task_type":4}`, ReasonBadJSON},
		{"missing queue", `{"id":"a","task_type":4}`, ReasonBadQueue},
		{"missing task_type", `{"queue":0,"id":"a"}`, ReasonMissingKind},
		{"invalid task_type", `{"queue":0,"id":"a","task_type":99}`, ReasonMissingKind},
		{"bad eta", `{"queue":0,"id":"a","task_type":4,"eta":"not-a-time"}`, ReasonBadETA},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.line))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse(%q) error = %v, want *ParseError", c.line, err)
			}
			if pe.Reason != c.wantReason {
				t.Fatalf("Parse(%q) reason = %q, want %q", c.line, pe.Reason, c.wantReason)
			}
		})
	}
}

func TestLessOrdersByETAThenArrival(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	early := WithSeq(Task{HasETA: true, ETA: now.Add(time.Second)}, 1)
	late := WithSeq(Task{HasETA: true, ETA: now.Add(2 * time.Second)}, 0)
	if !Less(early, late, now) {
		t.Fatal("earlier eta must sort first regardless of sequence")
	}
	if Less(late, early, now) {
		t.Fatal("later eta must not sort before earlier eta")
	}

	tieA := WithSeq(Task{HasETA: true, ETA: now}, 5)
	tieB := WithSeq(Task{HasETA: true, ETA: now}, 6)
	if !Less(tieA, tieB, now) {
		t.Fatal("equal eta must break ties by arrival sequence")
	}

	noETA := Task{}
	if !Less(noETA, Task{HasETA: true, ETA: now.Add(time.Hour)}, now) {
		t.Fatal("a task without eta compares as now, so it sorts before a future task")
	}
}
