// Package task implements the scheduling engine's data model: parsing a
// line-protocol task descriptor, deciding when it is due, and deriving the
// next instance of a recurring task.
package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the executor that will run a task.
type Kind int

const (
	// KindAPI issues an outbound HTTP request.
	KindAPI Kind = 1
	// KindTCP sends an outbound line message. Reserved; no-op until a wire
	// format is chosen.
	KindTCP Kind = 2
	// KindHostCall invokes a named entry point in an embedded host runtime.
	KindHostCall Kind = 3
	// KindOther performs no side effect.
	KindOther Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindAPI:
		return "API"
	case KindTCP:
		return "TCP"
	case KindHostCall:
		return "HOST_CALL"
	case KindOther:
		return "OTHER"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(k))
	}
}

func (k Kind) Valid() bool {
	switch k {
	case KindAPI, KindTCP, KindHostCall, KindOther:
		return true
	default:
		return false
	}
}

// InfiniteRetries is the sentinel retries value meaning "reschedule forever".
const InfiniteRetries = -1

// DispatchTolerance is the window before eta during which a task is
// considered due: the poller may fire up to this long early rather than
// sleep-and-miss the tick that would have caught it exactly on time.
const DispatchTolerance = 3 * time.Second

// DropReason classifies why a line-protocol task was rejected during
// admission, stable enough to use as a metrics label.
type DropReason string

const (
	ReasonBadJSON     DropReason = "bad_json"
	ReasonBadETA      DropReason = "bad_eta"
	ReasonBadQueue    DropReason = "bad_queue"
	ReasonMissingKind DropReason = "missing_kind"
)

// ParseError reports why Parse (or a downstream admission step, such as
// queue-index validation) rejected a task, tagged with a DropReason.
type ParseError struct {
	Reason DropReason
	Err    error
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %v", e.Reason, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Policy is a task's optional repeat/retry descriptor, plus the
// executor-specific settings carried alongside it on the wire.
type Policy struct {
	RepeatIntervalSeconds int64  `json:"repeat_interval,omitempty"`
	Retries               int64  `json:"retries,omitempty"`
	URL                   string `json:"url,omitempty"`
	Headers               string `json:"headers,omitempty"`
	Method                string `json:"method,omitempty"`
	FunctionName          string `json:"function_name,omitempty"`
}

// Task is an immutable record once admitted. Rescheduling never mutates a
// Task in place; it produces a new one via NextInstance.
type Task struct {
	Queue   int
	ID      string
	ETA     time.Time
	HasETA  bool
	Kind    Kind
	Payload string
	Policy  *Policy

	// seq is an internal arrival sequence number used only to break ties
	// between tasks with an identical eta; it never round-trips and never
	// participates in equality.
	seq uint64
}

// wireTask mirrors the line-protocol JSON schema. eta is transmitted as
// an RFC-3339 UTC string, not Go's default time encoding, and
// queue/task_type are required.
type wireTask struct {
	Queue    *int        `json:"queue"`
	ID       *string     `json:"id"`
	ETA      *string     `json:"eta"`
	TaskType *int        `json:"task_type"`
	Payload  string      `json:"payload"`
	Settings *wireSettings `json:"settings"`
}

type wireSettings struct {
	RepeatInterval int64  `json:"repeat_interval"`
	Retries        int64  `json:"retries"`
	URL            string `json:"url"`
	Headers        string `json:"headers"`
	Method         string `json:"method"`
	FunctionName   string `json:"function_name"`
}

// Parse decodes a single line-protocol JSON object into a Task. Unknown
// fields are ignored (encoding/json's default behaviour). A missing
// queue-index or kind is a fatal admission error for this line, as is an
// eta that fails RFC-3339 UTC parsing.
func Parse(line []byte) (Task, error) {
	var w wireTask
	if err := json.Unmarshal(line, &w); err != nil {
		return Task{}, &ParseError{Reason: ReasonBadJSON, Err: fmt.Errorf("malformed json: %w", err)}
	}
	if w.Queue == nil {
		return Task{}, &ParseError{Reason: ReasonBadQueue, Err: fmt.Errorf("missing required field: queue")}
	}
	if w.ID == nil || *w.ID == "" {
		return Task{}, &ParseError{Reason: ReasonBadJSON, Err: fmt.Errorf("missing required field: id")}
	}
	if w.TaskType == nil {
		return Task{}, &ParseError{Reason: ReasonMissingKind, Err: fmt.Errorf("missing required field: task_type")}
	}
	k := Kind(*w.TaskType)
	if !k.Valid() {
		return Task{}, &ParseError{Reason: ReasonMissingKind, Err: fmt.Errorf("invalid task_type: %d", *w.TaskType)}
	}

	t := Task{
		Queue:   *w.Queue,
		ID:      *w.ID,
		Kind:    k,
		Payload: w.Payload,
	}
	if w.ETA != nil && *w.ETA != "" {
		eta, err := time.Parse(time.RFC3339, *w.ETA)
		if err != nil {
			return Task{}, &ParseError{Reason: ReasonBadETA, Err: fmt.Errorf("bad eta format: %w", err)}
		}
		t.ETA = eta.UTC()
		t.HasETA = true
	}
	if w.Settings != nil {
		t.Policy = &Policy{
			RepeatIntervalSeconds: w.Settings.RepeatInterval,
			Retries:               w.Settings.Retries,
			URL:                    w.Settings.URL,
			Headers:                w.Settings.Headers,
			Method:                 w.Settings.Method,
			FunctionName:           w.Settings.FunctionName,
		}
	}
	return t, nil
}

// MarshalJSON renders the Task back into the line-protocol wire shape,
// preserving the invariant that Task -> JSON -> Task round-trips queue,
// id, kind, eta, payload, and policy.
func (t Task) MarshalJSON() ([]byte, error) {
	w := wireTask{
		Queue:    &t.Queue,
		ID:       &t.ID,
		Payload:  t.Payload,
		TaskType: intPtr(int(t.Kind)),
	}
	if t.HasETA {
		s := t.ETA.UTC().Format(time.RFC3339)
		w.ETA = &s
	}
	if t.Policy != nil {
		w.Settings = &wireSettings{
			RepeatInterval: t.Policy.RepeatIntervalSeconds,
			Retries:        t.Policy.Retries,
			URL:            t.Policy.URL,
			Headers:        t.Policy.Headers,
			Method:         t.Policy.Method,
			FunctionName:   t.Policy.FunctionName,
		}
	}
	return json.Marshal(w)
}

func intPtr(i int) *int { return &i }

// IsDue reports whether t is eligible for dispatch at the instant now.
// A task with no eta is always due. A task with an eta is due once now has
// reached it, or once now is within the dispatch tolerance window before
// it; past-due tasks are always due regardless of how far past.
func (t Task) IsDue(now time.Time) bool {
	if !t.HasETA {
		return true
	}
	if !t.ETA.After(now) {
		return true
	}
	return t.ETA.Sub(now) < DispatchTolerance
}

// ShouldReschedule reports whether a new instance of t should be derived
// and reinserted after this instance is dispatched.
func (t Task) ShouldReschedule() bool {
	if t.Policy == nil {
		return false
	}
	if t.Policy.RepeatIntervalSeconds <= 0 {
		return false
	}
	return t.Policy.Retries == InfiniteRetries || t.Policy.Retries > 0
}

// NextInstance derives the next recurring instance of t. The precondition
// is ShouldReschedule(); callers must check it first.
func (t Task) NextInstance() Task {
	next := t
	next.seq = 0
	interval := time.Duration(t.Policy.RepeatIntervalSeconds) * time.Second
	base := t.ETA
	if !t.HasETA {
		base = time.Now().UTC()
	}
	next.ETA = base.Add(interval)
	next.HasETA = true

	p := *t.Policy
	if p.Retries > 0 {
		p.Retries--
	}
	next.Policy = &p
	return next
}

// WithSeq returns a copy of t carrying the given arrival sequence number.
// Only internal/queue calls this, at insertion time, so that tie-breaking
// reflects queue admission order rather than any client-supplied ordering.
func WithSeq(t Task, seq uint64) Task {
	t.seq = seq
	return t
}

// Less defines the total order queues sort by: ascending eta, with an
// absent eta treated as "now" at comparison time, and ties broken by
// arrival sequence (earlier admission sorts first).
func Less(a, b Task, now time.Time) bool {
	ae, be := a.ETA, b.ETA
	if !a.HasETA {
		ae = now
	}
	if !b.HasETA {
		be = now
	}
	if !ae.Equal(be) {
		return ae.Before(be)
	}
	return a.seq < b.seq
}
