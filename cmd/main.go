package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	shard "github.com/ethereum-optimism/infra/op-shard"
	"github.com/ethereum-optimism/infra/op-shard/exitcodes"
	"github.com/ethereum-optimism/infra/op-shard/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry. Workers pick up the leader's trace from their environment.
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-shard"
	app.Usage = "Sharded Go test runner"
	app.Description = "op-shard spreads the test files of a Go module across parallel worker processes " +
		"coordinated through redis, then reports their results as one run.\n\n" +
		"  op-shard --parallel 4 ./...      run as leader with four workers\n" +
		"  op-shard --id <run-id>            run as a worker of an existing run"
	app.ArgsUsage = "[test files or directories...]"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = exitErrHandler
	return app
}

func exitErrHandler(c *cli.Context, err error) {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		// Use the exit code from the ExitCoder
		cli.HandleExitCoder(exitErr)
	} else if err != nil {
		if shard.IsRuntimeError(err) {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
		} else if shard.IsTestFailureError(err) {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
		} else {
			// Anything else is treated as an operational failure
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
		}
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	// The report owns stdout, so logs always go to stderr
	logger := oplog.NewLogger(os.Stderr, logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())

	cfg, err := shard.NewConfig(ctx, logger, os.Args[1:])
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, shard.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	svc, err := shard.New(cfg, ctx.App.Writer, ctx.App.ErrWriter, closeApp)
	if err != nil {
		return nil, shard.NewRuntimeError(fmt.Errorf("failed to create op-shard: %w", err))
	}
	return svc, nil
}
