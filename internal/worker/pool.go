// Package worker implements the worker pool: the consumer side of the
// dispatch channel, draining it with per-kind executors and recording the
// outcome of each task in the registry.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"spoolerd/internal/dispatch"
	"spoolerd/internal/registry"
	"spoolerd/internal/task"
)

// Mode selects how the pool drains the dispatch channel.
type Mode int

const (
	// ModeGeneric spawns a fresh goroutine per received task; many tasks
	// execute concurrently.
	ModeGeneric Mode = iota
	// ModeHostCall drains the channel on a single goroutine and processes
	// tasks serially, in the order received, even when the task's kind
	// would otherwise permit concurrency — required so that HOST_CALL
	// tasks share one interpreter thread with every other kind.
	ModeHostCall
)

// pollInterval is how often ModeHostCall's loop retries TryReceive after
// finding the channel empty.
const pollInterval = time.Millisecond

// Pool is the Worker Pool: it drains a dispatch.Channel and executes each
// task with the Executor registered for its Kind.
type Pool struct {
	ch   *dispatch.Channel
	reg  *registry.Registry
	log  zerolog.Logger
	mode Mode

	executors map[task.Kind]Executor

	dispatched *prometheus.CounterVec
	errors     *prometheus.CounterVec
}

// NewPool builds a Pool. hostRuntime is used only when mode is
// ModeHostCall; it may be nil otherwise. httpClient defaults to
// http.DefaultClient when nil.
func NewPool(ch *dispatch.Channel, reg *registry.Registry, log zerolog.Logger, mode Mode, hostRuntime *HostRuntime, httpClient *http.Client) *Pool {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	execs := map[task.Kind]Executor{
		task.KindAPI:   &apiExecutor{client: httpClient},
		task.KindTCP:   tcpExecutor{},
		task.KindOther: otherExecutor{},
	}
	if mode == ModeHostCall && hostRuntime != nil {
		execs[task.KindHostCall] = &hostCallExecutor{rt: hostRuntime}
	} else {
		execs[task.KindHostCall] = disabledHostCallExecutor{}
	}

	return &Pool{
		ch:        ch,
		reg:       reg,
		log:       log,
		mode:      mode,
		executors: execs,
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolerd_tasks_dispatched_total",
			Help: "Tasks handed to an executor, by kind.",
		}, []string{"kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spoolerd_executor_errors_total",
			Help: "Executor failures, by kind.",
		}, []string{"kind"}),
	}
}

// Register registers the pool's metrics with reg.
func (p *Pool) Register(reg prometheus.Registerer) {
	reg.MustRegister(p.dispatched, p.errors)
}

// Run drains the dispatch channel until ctx is done. In ModeGeneric it also
// returns when the channel closes; ModeHostCall treats a closed channel
// like an empty one and keeps polling until ctx is done. It blocks;
// callers run it in its own goroutine.
func (p *Pool) Run(ctx context.Context) {
	switch p.mode {
	case ModeHostCall:
		p.runHostCall(ctx)
	default:
		p.runGeneric(ctx)
	}
}

func (p *Pool) runGeneric(ctx context.Context) {
	for {
		t, ok := p.ch.Receive(ctx)
		if !ok {
			return
		}
		go p.executeRecovered(ctx, t)
	}
}

func (p *Pool) runHostCall(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t, ok := p.ch.TryReceive()
		if !ok {
			select {
			case <-time.After(pollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}
		p.executeRecovered(ctx, t)
	}
}

// executeRecovered wraps execute with panic recovery: a single worker
// goroutine crashing must never bring down the pool.
func (p *Pool) executeRecovered(ctx context.Context, t task.Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().
				Interface("panic", r).
				Str("task_id", t.ID).
				Str("kind", t.Kind.String()).
				Msg("worker panic recovered")
		}
	}()
	p.execute(ctx, t)
}

func (p *Pool) execute(ctx context.Context, t task.Task) {
	dispatchID := p.reg.Observe(t)
	p.dispatched.WithLabelValues(t.Kind.String()).Inc()

	exec, ok := p.executors[t.Kind]
	var err error
	if !ok {
		err = fmt.Errorf("task %s: no executor registered for kind %s", t.ID, t.Kind)
	} else {
		err = exec.Execute(ctx, t)
	}

	p.reg.Complete(dispatchID, err)

	ev := p.log.Info()
	if err != nil {
		p.errors.WithLabelValues(t.Kind.String()).Inc()
		ev = p.log.Warn()
	}
	ev.Str("task_id", t.ID).Str("kind", t.Kind.String()).Err(err).Msg("task executed")
}
