// Package config binds the process's CLI flags to a Config struct using
// urfave/cli/v2, with every flag also settable via its matching
// environment variable.
package config

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// AppMode selects how the Worker Pool drains the Dispatch Channel.
type AppMode string

const (
	AppGeneric  AppMode = "generic"
	AppHostCall AppMode = "host-call"
)

// Config is the fully-resolved set of settings Bootstrap wires the engine
// from. Flags are the source of truth; there is no live reload.
type Config struct {
	Host string
	Port int

	Queues int

	App         AppMode
	ProjectPath string

	AdminHost string
	AdminPort int

	DispatchCapacity int
	RegistrySize     int

	LogLevel string
}

// Flags returns the urfave/cli flag set matching this Config, for
// cmd/spoolerd's App.Flags.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Value: "localhost", Usage: "line-protocol listener host", EnvVars: []string{"SPOOLERD_HOST"}},
		&cli.IntFlag{Name: "port", Value: 8080, Usage: "line-protocol listener port", EnvVars: []string{"SPOOLERD_PORT"}},
		&cli.IntFlag{Name: "queues", Value: 1, Usage: "number of independently-locked queues in the Queue Set", EnvVars: []string{"SPOOLERD_QUEUES"}},
		&cli.StringFlag{Name: "app", Value: string(AppGeneric), Usage: "worker pool mode: generic or host-call", EnvVars: []string{"SPOOLERD_APP"}},
		&cli.StringFlag{Name: "project-path", Usage: "path to the host program, required when --app=host-call", EnvVars: []string{"SPOOLERD_PROJECT_PATH"}},
		&cli.StringFlag{Name: "admin-host", Value: "localhost", Usage: "Admin API listener host", EnvVars: []string{"SPOOLERD_ADMIN_HOST"}},
		&cli.IntFlag{Name: "admin-port", Value: 9090, Usage: "Admin API listener port", EnvVars: []string{"SPOOLERD_ADMIN_PORT"}},
		&cli.IntFlag{Name: "dispatch-capacity", Value: 100, Usage: "Dispatch Channel buffer size", EnvVars: []string{"SPOOLERD_DISPATCH_CAPACITY"}},
		&cli.IntFlag{Name: "registry-size", Value: 256, Usage: "max Registry records retained", EnvVars: []string{"SPOOLERD_REGISTRY_SIZE"}},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "zerolog level: debug, info, warn, error", EnvVars: []string{"SPOOLERD_LOG_LEVEL"}},
	}
}

// FromContext builds a Config from a parsed cli.Context and validates the
// app/project-path pairing.
func FromContext(c *cli.Context) (Config, error) {
	cfg := Config{
		Host:             c.String("host"),
		Port:             c.Int("port"),
		Queues:           c.Int("queues"),
		App:              AppMode(c.String("app")),
		ProjectPath:      c.String("project-path"),
		AdminHost:        c.String("admin-host"),
		AdminPort:        c.Int("admin-port"),
		DispatchCapacity: c.Int("dispatch-capacity"),
		RegistrySize:     c.Int("registry-size"),
		LogLevel:         c.String("log-level"),
	}

	if cfg.App != AppGeneric && cfg.App != AppHostCall {
		return Config{}, fmt.Errorf("invalid --app %q: must be %q or %q", cfg.App, AppGeneric, AppHostCall)
	}
	if cfg.App == AppHostCall && cfg.ProjectPath == "" {
		return Config{}, fmt.Errorf("--project-path is required when --app=%s", AppHostCall)
	}
	if cfg.Queues <= 0 {
		return Config{}, fmt.Errorf("invalid --queues %d: must be positive", cfg.Queues)
	}
	return cfg, nil
}
