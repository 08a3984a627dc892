// Package dispatch implements the bounded FIFO handing due tasks from
// every session's poller to the worker pool. It is deliberately thin: a Go
// channel already gives blocking send/receive semantics, so the value this
// package adds is Prometheus-observable length/capacity.
package dispatch

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"spoolerd/internal/task"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

// Channel is the bounded, shareable handle to the dispatch FIFO. Pollers
// send into it, the worker pool receives from it; both wrap the same
// underlying Go channel.
type Channel struct {
	ch  chan task.Task
	len prometheus.GaugeFunc
	cap prometheus.Gauge
}

// New creates a Channel with the given capacity. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	ch := make(chan task.Task, capacity)
	c := &Channel{ch: ch}
	c.len = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "spoolerd_dispatch_channel_len",
		Help: "Current number of tasks buffered in the dispatch channel.",
	}, func() float64 { return float64(len(ch)) })
	c.cap = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spoolerd_dispatch_channel_cap",
		Help: "Configured capacity of the dispatch channel.",
	})
	c.cap.Set(float64(capacity))
	return c
}

// Register adds the channel's gauges to reg. Safe to call once per Channel.
func (c *Channel) Register(reg prometheus.Registerer) {
	reg.MustRegister(c.len, c.cap)
}

// Send blocks until t is accepted by the channel or the context is
// cancelled. This is a poller's backpressure point when the channel is
// full.
func (c *Channel) Send(ctx context.Context, t task.Task) error {
	select {
	case c.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a task is available or the context is cancelled.
// The pool's generic-mode workers use this form.
func (c *Channel) Receive(ctx context.Context) (task.Task, bool) {
	select {
	case t, ok := <-c.ch:
		return t, ok
	case <-ctx.Done():
		return task.Task{}, false
	}
}

// TryReceive returns immediately, with ok=false if nothing is buffered.
// Host-call mode uses this non-blocking form so the single host goroutine
// never deadlocks waiting on the channel.
func (c *Channel) TryReceive() (task.Task, bool) {
	select {
	case t, ok := <-c.ch:
		return t, ok
	default:
		return task.Task{}, false
	}
}

// Len reports the number of tasks currently buffered.
func (c *Channel) Len() int { return len(c.ch) }

// Cap reports the configured capacity.
func (c *Channel) Cap() int { return cap(c.ch) }

// Close closes the underlying channel. Only Bootstrap, during shutdown,
// should call this.
func (c *Channel) Close() { close(c.ch) }
