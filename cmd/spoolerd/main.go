// Command spoolerd wires the queue set, dispatch channel, worker pool,
// registry, line-protocol listener, and admin API together and runs them
// until a signal arrives.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"spoolerd/internal/adminapi"
	"spoolerd/internal/config"
	"spoolerd/internal/dispatch"
	"spoolerd/internal/logging"
	"spoolerd/internal/queue"
	"spoolerd/internal/registry"
	"spoolerd/internal/session"
	"spoolerd/internal/worker"
)

func main() {
	app := &cli.App{
		Name:  "spoolerd",
		Usage: "networked task-scheduling service",
		Flags: config.Flags(),
		Action: func(c *cli.Context) error {
			cfg, err := config.FromContext(c)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "spoolerd:", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	log := logging.New(os.Stderr, cfg.LogLevel)

	queues := queue.NewSet(cfg.Queues)
	ch := dispatch.New(cfg.DispatchCapacity)
	reg := registry.New(cfg.RegistrySize)
	metricsReg := prometheus.NewRegistry()
	ch.Register(metricsReg)
	queues.Register(metricsReg)

	sessMetrics := session.NewMetrics()
	sessMetrics.Register(metricsReg)

	var hostRuntime *worker.HostRuntime
	mode := worker.ModeGeneric
	if cfg.App == config.AppHostCall {
		mode = worker.ModeHostCall
		var err error
		hostRuntime, err = worker.NewHostRuntime(cfg.ProjectPath)
		if err != nil {
			return fmt.Errorf("loading host program: %w", err)
		}
		defer hostRuntime.Close()
	}

	pool := worker.NewPool(ch, reg, logging.Component(log, "worker"), mode, hostRuntime, http.DefaultClient)
	pool.Register(metricsReg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer ln.Close()

	admin := adminapi.New(reg, metricsReg, logging.Component(log, "adminapi"))
	adminAddr := net.JoinHostPort(cfg.AdminHost, fmt.Sprintf("%d", cfg.AdminPort))
	adminServer := &http.Server{Addr: adminAddr, Handler: admin}
	go func() {
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin api listener failed")
		}
	}()

	admin.SetReady(true)
	log.Info().Str("line_addr", addr).Str("admin_addr", adminAddr).Str("app_mode", string(cfg.App)).Msg("spoolerd started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go acceptLoop(ctx, ln, queues, ch, logging.Component(log, "session"), sessMetrics)

	<-quit
	log.Info().Msg("shutdown signal received")

	// Stop accepting new connections; in-flight sessions and the worker
	// pool are not force-drained.
	ln.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("admin api shutdown did not complete cleanly")
	}
	cancel()
	return nil
}

// acceptLoop accepts connections until ln is closed or ctx is done,
// spawning one Session per connection, each sharing the same queue set,
// dispatch channel, and session metrics.
func acceptLoop(ctx context.Context, ln net.Listener, queues *queue.Set, ch *dispatch.Channel, log zerolog.Logger, metrics *session.Metrics) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Warn().Err(err).Msg("accept failed")
			return
		}
		sess := session.New(conn, queues, ch, log, metrics)
		go sess.Run(ctx)
	}
}
