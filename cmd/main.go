package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	cyrunner "github.com/ethereum-optimism/infra/op-cyrunner"
	"github.com/ethereum-optimism/infra/op-cyrunner/flags"
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

	// Start telemetry
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
	app.Name = "op-cyrunner"
	app.Usage = "Cypress test runner service"
	app.Description = "op-cyrunner runs uploaded Cypress specs and returns their HTML reports"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(cyrunner.MainAppAction(Version))
	app.Commands = []*cli.Command{
		{
			Name:      "run",
			Usage:     "Run a single spec file and write its HTML report",
			ArgsUsage: "<spec-file>",
			Flags:     cliapp.ProtectFlags(flags.RunFlags),
			Action:    runSpec,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), cyrunner.ExitCode(err)))
		}
	}
	return app
}

func runSpec(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cyrunner.NewRuntimeError(errors.New("expected exactly one spec file"))
	}
	logger := oplog.NewLogger(oplog.AppOut(ctx), oplog.ReadCLIConfig(ctx))
	oplog.SetGlobalLogHandler(logger.Handler())

	cfg, err := cyrunner.NewConfig(ctx)
	if err != nil {
		return cyrunner.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	if err := cfg.Check(); err != nil {
		return cyrunner.NewRuntimeError(fmt.Errorf("invalid config: %w", err))
	}

	spec := ctx.Args().First()
	out, runErr := cyrunner.RunSpec(ctx.Context, logger, cfg, nil, spec)
	if out != nil {
		dst := ctx.String(flags.Out.Name)
		if err := os.WriteFile(dst, out.Report, 0o644); err != nil {
			return cyrunner.NewRuntimeError(fmt.Errorf("failed to write report: %w", err))
		}
		logger.Info("Wrote report", "path", dst, "bytes", len(out.Report))
		fmt.Fprint(ctx.App.Writer, cyrunner.FormatSummary(spec, out))
	}
	return runErr
}
