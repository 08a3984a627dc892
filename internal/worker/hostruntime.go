package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/dop251/goja"
)

// HostRuntime embeds a single goja.Runtime and serializes every call to it
// through an unbuffered request channel drained by one dedicated goroutine:
// goja.Runtime is not safe for concurrent use, so exactly one goroutine is
// ever allowed to touch it.
type HostRuntime struct {
	requests chan hostRequest
	done     chan struct{}
}

type hostRequest struct {
	functionName string
	payload      string
	result       chan error
}

// NewHostRuntime loads scriptPath as the host program and starts the
// runtime's owning goroutine. The script is expected to define top-level
// functions that tasks address by name via settings.function_name.
func NewHostRuntime(scriptPath string) (*HostRuntime, error) {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading host program %s: %w", scriptPath, err)
	}

	rt := goja.New()
	if _, err := rt.RunString(string(src)); err != nil {
		return nil, fmt.Errorf("evaluating host program %s: %w", scriptPath, err)
	}

	hr := &HostRuntime{
		requests: make(chan hostRequest),
		done:     make(chan struct{}),
	}
	go hr.loop(rt)
	return hr, nil
}

func (hr *HostRuntime) loop(rt *goja.Runtime) {
	defer close(hr.done)
	for req := range hr.requests {
		req.result <- invoke(rt, req.functionName, req.payload)
	}
}

func invoke(rt *goja.Runtime, name, payload string) error {
	val := rt.Get(name)
	if val == nil || goja.IsUndefined(val) {
		return fmt.Errorf("host function %q is not defined", name)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return fmt.Errorf("host value %q is not callable", name)
	}
	_, err := fn(goja.Undefined(), rt.ToValue(payload))
	return err
}

// Call dispatches one invocation of functionName to the runtime goroutine
// and blocks until it completes or ctx is done.
func (hr *HostRuntime) Call(ctx context.Context, functionName, payload string) error {
	req := hostRequest{functionName: functionName, payload: payload, result: make(chan error, 1)}
	select {
	case hr.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the runtime's owning goroutine. No further Call may be made
// afterward.
func (hr *HostRuntime) Close() {
	close(hr.requests)
	<-hr.done
}
