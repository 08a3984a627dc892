// Package session implements one goroutine pair per accepted connection:
// an admission loop that parses and enqueues incoming lines, and a poller
// that periodically scans the queues for due tasks and forwards them to
// the dispatch channel.
package session

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"spoolerd/internal/dispatch"
	"spoolerd/internal/queue"
	"spoolerd/internal/task"
	"spoolerd/internal/util"
)

// pollInterval is the Poller's sleep between scan passes: short enough
// that a due task is forwarded promptly, long enough not to spin a core
// per connection.
const pollInterval = 200 * time.Microsecond

// Session owns one accepted connection's admission loop and poller.
type Session struct {
	conn     net.Conn
	queues   *queue.Set
	dispatch *dispatch.Channel
	log      zerolog.Logger
	metrics  *Metrics

	pollInterval time.Duration
}

// New builds a Session over an accepted connection. queues and ch are
// shared handles owned by the caller and outlive any individual Session.
func New(conn net.Conn, queues *queue.Set, ch *dispatch.Channel, log zerolog.Logger, metrics *Metrics) *Session {
	return &Session{
		conn:         conn,
		queues:       queues,
		dispatch:     ch,
		log:          log.With().Str("session_id", util.NewReqID()).Logger(),
		metrics:      metrics,
		pollInterval: pollInterval,
	}
}

// Run drives the Session until the connection is closed, EOF is reached,
// or ctx is cancelled. It always closes the connection before returning.
//
// Admission and polling run as two independently-progressing goroutines
// rather than arms of a single select, so that a poll pass blocked
// forwarding a due task into a full dispatch channel backpressures only
// the poller — admission keeps accepting and enqueueing lines the whole
// time. The two goroutines still share one fate: whichever of EOF or ctx
// cancellation happens first tears down both.
func (s *Session) Run(ctx context.Context) {
	defer s.conn.Close()
	s.log.Info().Str("remote", s.conn.RemoteAddr().String()).Msg("session started")

	s.metrics.active.Inc()
	defer s.metrics.active.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go s.readLines(ctx, lines)

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		s.pollLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("session cancelled")
			<-pollDone
			return
		case line, ok := <-lines:
			if !ok {
				s.log.Info().Msg("session ended: connection closed")
				cancel()
				<-pollDone
				return
			}
			s.admit(line)
		}
	}
}

// pollLoop runs scan passes on a fixed interval until ctx is done.
func (s *Session) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// readLines feeds lines onto the lines channel until EOF, a read error, or
// ctx is done. It closes lines when it returns, signalling end-of-session
// to Run.
func (s *Session) readLines(ctx context.Context, lines chan<- string) {
	defer close(lines)
	r := bufio.NewReaderSize(s.conn, 64*1024)
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// admit parses and enqueues a single admitted line. Parse and range
// failures are logged and the line is dropped: a malformed admission must
// never end the session.
func (s *Session) admit(line string) {
	t, err := task.Parse([]byte(line))
	if err != nil {
		s.metrics.dropped.WithLabelValues(string(dropReason(err))).Inc()
		s.log.Warn().Err(err).Msg("dropping malformed task line")
		return
	}
	if err := s.queues.Insert(t); err != nil {
		s.metrics.dropped.WithLabelValues(string(dropReason(err))).Inc()
		s.log.Warn().Err(err).Str("task_id", t.ID).Msg("dropping task: queue index out of range")
		return
	}
	s.metrics.admitted.WithLabelValues(strconv.Itoa(t.Queue)).Inc()
}

// dropReason extracts the admission drop reason from err, falling back to
// bad_json for anything that isn't a *task.ParseError.
func dropReason(err error) task.DropReason {
	var pe *task.ParseError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return task.ReasonBadJSON
}

// poll runs one scan pass: a single timestamp is read once and used for
// every due-ness check this pass, due tasks are popped across all queues,
// recurring ones are rescheduled before being forwarded, and each popped
// task is then sent to the dispatch channel, blocking if it is full. That
// block only stalls this Session's own polling: admission runs on its own
// goroutine and keeps accepting lines the whole time.
func (s *Session) poll(ctx context.Context) {
	now := time.Now().UTC()
	due := s.queues.PeekAndPopDue(now)
	for _, t := range due {
		if t.ShouldReschedule() {
			next := t.NextInstance()
			if err := s.queues.Insert(next); err != nil {
				s.log.Error().Err(err).Str("task_id", t.ID).Msg("failed to reinsert rescheduled instance")
			} else {
				s.metrics.rescheduled.WithLabelValues(strconv.Itoa(next.Queue)).Inc()
			}
		}
		if err := s.dispatch.Send(ctx, t); err != nil {
			s.log.Warn().Err(err).Str("task_id", t.ID).Msg("dispatch send aborted")
			return
		}
	}
}
