package worker

import (
	"context"
	"fmt"

	"spoolerd/internal/task"
)

// Executor performs the side effect associated with one task.Kind. No
// executor ever mutates the task it is given or reports back to the
// admitter — outcomes are logged and recorded in the registry only.
type Executor interface {
	Execute(ctx context.Context, t task.Task) error
}

// tcpExecutor is reserved: TCP is a no-op until a wire format for outbound
// TCP messages is chosen.
type tcpExecutor struct{}

func (tcpExecutor) Execute(context.Context, task.Task) error { return nil }

// otherExecutor performs no side effect and always succeeds.
type otherExecutor struct{}

func (otherExecutor) Execute(context.Context, task.Task) error { return nil }

// disabledHostCallExecutor is installed for KindHostCall when the pool was
// started in generic mode: a HOST_CALL task under a generic worker is a
// configuration mismatch, not a crash.
type disabledHostCallExecutor struct{}

func (disabledHostCallExecutor) Execute(_ context.Context, t task.Task) error {
	return fmt.Errorf("task %s: HOST_CALL requires the worker pool to run with --app=host-call", t.ID)
}

// hostCallExecutor invokes a named entry point in the embedded HostRuntime.
type hostCallExecutor struct {
	rt *HostRuntime
}

func (e *hostCallExecutor) Execute(ctx context.Context, t task.Task) error {
	if t.Policy == nil || t.Policy.FunctionName == "" {
		return fmt.Errorf("task %s: HOST_CALL requires settings.function_name", t.ID)
	}
	return e.rt.Call(ctx, t.Policy.FunctionName, t.Payload)
}
