package cyrunner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/httputil"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/oppprof"

	"github.com/ethereum-optimism/infra/op-cyrunner/cypress"
	"github.com/ethereum-optimism/infra/op-cyrunner/metrics"
	"github.com/ethereum-optimism/infra/op-cyrunner/runner"
	"github.com/ethereum-optimism/infra/op-cyrunner/service"
)

type RunnerApp struct {
	log log.Logger

	version string

	pprofServer   *oppprof.Service
	metricsServer *httputil.HTTPServer
	registry      *prometheus.Registry

	runner *runner.Runner
	server *service.Server

	stopped atomic.Bool
}

func InitFromConfig(ctx context.Context, log log.Logger, cfg *Config, version string) (*RunnerApp, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app := &RunnerApp{log: log, version: version}
	if err := app.init(cfg); err != nil {
		return nil, errors.Join(err, app.Stop(ctx)) // clean up the failed init attempt
	}
	return app, nil
}

func (a *RunnerApp) init(cfg *Config) error {
	if err := a.initPprof(cfg); err != nil {
		return fmt.Errorf("pprof error: %w", err)
	}
	if err := a.initMetrics(cfg); err != nil {
		return fmt.Errorf("metrics error: %w", err)
	}
	if err := a.initRunner(cfg); err != nil {
		return fmt.Errorf("runner error: %w", err)
	}
	if err := a.initHTTP(cfg); err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	return nil
}

func (a *RunnerApp) initPprof(cfg *Config) error {
	if !cfg.PprofConfig.ListenEnabled {
		return nil
	}
	a.pprofServer = oppprof.New(
		cfg.PprofConfig.ListenEnabled,
		cfg.PprofConfig.ListenAddr,
		cfg.PprofConfig.ListenPort,
		cfg.PprofConfig.ProfileType,
		cfg.PprofConfig.ProfileDir,
		cfg.PprofConfig.ProfileFilename,
	)
	a.log.Info("Starting pprof server", "addr", cfg.PprofConfig.ListenAddr, "port", cfg.PprofConfig.ListenPort)
	if err := a.pprofServer.Start(); err != nil {
		return fmt.Errorf("failed to start pprof server: %w", err)
	}
	return nil
}

func (a *RunnerApp) initMetrics(cfg *Config) error {
	registry := opmetrics.NewRegistry()
	metrics.Register(registry)
	a.registry = registry

	if !cfg.MetricsConfig.Enabled {
		return nil
	}

	metricsCfg := cfg.MetricsConfig
	a.log.Info("Starting metrics server", "addr", metricsCfg.ListenAddr, "port", metricsCfg.ListenPort)
	metricsServer, err := opmetrics.StartServer(registry, metricsCfg.ListenAddr, metricsCfg.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	a.log.Info("Started metrics server", "endpoint", metricsServer.Addr())
	a.metricsServer = metricsServer
	return nil
}

func (a *RunnerApp) initRunner(cfg *Config) error {
	r, err := newRunner(a.log, cfg, nil)
	if err != nil {
		return err
	}
	a.runner = r
	return nil
}

func (a *RunnerApp) initHTTP(cfg *Config) error {
	srv, err := service.New(a.log, cfg.HTTP, a.runner)
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// newRunner wires the CLI tool into a runner. A nil tool invokes the
// configured cypress command.
func newRunner(logger log.Logger, cfg *Config, tool cypress.Tool) (*runner.Runner, error) {
	if tool == nil {
		cliTool, err := cypress.NewCLI(logger, cfg.CypressCommand, nil)
		if err != nil {
			return nil, err
		}
		tool = cliTool
	}
	return runner.New(runner.Config{
		WorkDir:     cfg.WorkDir,
		NodeModules: cfg.NodeModules,
		Profile:     cfg.Profile,
		Tool:        tool,
		Log:         logger,
	})
}

func (a *RunnerApp) Start(ctx context.Context) error {
	if err := a.server.Start(); err != nil {
		return fmt.Errorf("error starting HTTP server: %w", err)
	}
	a.log.Info("Started op-cyrunner HTTP server", "addr", a.server.Addr(), "version", a.version)
	return nil
}

func (a *RunnerApp) Stop(ctx context.Context) error {
	var result error
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
	}
	if a.pprofServer != nil {
		if err := a.pprofServer.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop pprof server: %w", err))
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	a.stopped.Store(true)
	return result
}

func (a *RunnerApp) Stopped() bool {
	return a.stopped.Load()
}

// Addr is the HTTP listen address, valid after Start.
func (a *RunnerApp) Addr() string {
	if a.server == nil || a.server.Addr() == nil {
		return ""
	}
	return a.server.Addr().String()
}

var _ cliapp.Lifecycle = (*RunnerApp)(nil)

func MainAppAction(version string) cliapp.LifecycleAction {
	return func(cliCtx *cli.Context, _ context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		logger := oplog.NewLogger(oplog.AppOut(cliCtx), oplog.ReadCLIConfig(cliCtx))
		oplog.SetGlobalLogHandler(logger.Handler())
		cfg, err := NewConfig(cliCtx)
		if err != nil {
			return nil, NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
		}
		logger.Debug("Config", "config", cfg)
		return InitFromConfig(cliCtx.Context, logger, cfg, version)
	}
}
