package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func contextWith(t *testing.T, args map[string]string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	app := &cli.App{Flags: Flags()}
	for _, f := range app.Flags {
		require.NoError(t, f.Apply(set))
	}
	argv := []string{}
	for k, v := range args {
		argv = append(argv, "-"+k, v)
	}
	require.NoError(t, set.Parse(argv))
	return cli.NewContext(app, set, nil)
}

func TestFromContextDefaults(t *testing.T) {
	cfg, err := FromContext(contextWith(t, nil))
	require.NoError(t, err)
	require.Equal(t, "localhost", cfg.Host)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 1, cfg.Queues)
	require.Equal(t, AppGeneric, cfg.App)
	require.Equal(t, 9090, cfg.AdminPort)
	require.Equal(t, 100, cfg.DispatchCapacity)
	require.Equal(t, 256, cfg.RegistrySize)
}

func TestFromContextRejectsInvalidApp(t *testing.T) {
	_, err := FromContext(contextWith(t, map[string]string{"app": "bogus"}))
	require.Error(t, err)
}

func TestFromContextRequiresProjectPathForHostCall(t *testing.T) {
	_, err := FromContext(contextWith(t, map[string]string{"app": "host-call"}))
	require.Error(t, err)

	cfg, err := FromContext(contextWith(t, map[string]string{"app": "host-call", "project-path": "/tmp/host.js"}))
	require.NoError(t, err)
	require.Equal(t, "/tmp/host.js", cfg.ProjectPath)
}

func TestFromContextRejectsNonPositiveQueues(t *testing.T) {
	_, err := FromContext(contextWith(t, map[string]string{"queues": "0"}))
	require.Error(t, err)
}
