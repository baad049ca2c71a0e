// Command toolgate exposes the tool gateway on the command line: list the
// tools a turn would get, run single tool calls, and inspect the notebook.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/toolgate/internal/config"
	. "github.com/roelfdiedericks/toolgate/internal/logging"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

// app is bound into every command's Run method.
type app struct {
	cli *CLI
	ctx context.Context
	in  io.Reader
	out io.Writer
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("toolgate"),
		kong.Description("Authorizes and executes LLM tool calls against the data store."),
		kong.UsageOnError(),
		kongVars(),
	)

	Init(&Config{Level: logLevel(cli.LogLevel, ""), TimeFormat: "15:04:05"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cli: &cli, ctx: ctx, in: os.Stdin, out: os.Stdout}
	if err := kctx.Run(a); err != nil {
		stop()
		L_fatal("toolgate: %v", err)
	}
}

// logLevel picks the flag value, then the configured value, then info.
// TOOLGATE_LOG_LEVEL is already folded into configured by config.Load.
func logLevel(flag, configured string) int {
	switch {
	case flag != "":
		return ParseLevel(flag)
	case configured != "":
		return ParseLevel(configured)
	case os.Getenv(config.EnvLogLevel) != "":
		return ParseLevel(os.Getenv(config.EnvLogLevel))
	}
	return LevelInfo
}

// loadConfig loads and validates the configuration, then re-initialises
// logging from it.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.cli.ConfigPath)
	if err != nil {
		return nil, err
	}
	Init(&Config{
		Level:      logLevel(a.cli.LogLevel, cfg.Logging.Level),
		TimeFormat: "15:04:05",
		ShowCaller: cfg.Logging.ShowCaller,
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openGateway loads the configuration and opens the services.
func (a *app) openGateway() (*gateway, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return openGateway(a.ctx, cfg)
}
