package cyrunner

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/oppprof"

	"github.com/ethereum-optimism/infra/op-cyrunner/flags"
	"github.com/ethereum-optimism/infra/op-cyrunner/profile"
	"github.com/ethereum-optimism/infra/op-cyrunner/service"
)

// Config holds the application configuration
type Config struct {
	HTTP           service.Config
	WorkDir        string          // Directory below which work areas are created
	NodeModules    string          // Shared dependency directory, empty disables linking
	CypressCommand string          // Command used to invoke the test runner
	ProfilePath    string          // Optional profile file, empty uses the built-in defaults
	Profile        profile.Profile // Loaded from ProfilePath

	LogConfig     oplog.CLIConfig
	MetricsConfig opmetrics.CLIConfig
	PprofConfig   oppprof.CLIConfig
}

// NewConfig creates a new Config from cli context. Relative directories are
// resolved against the current working directory.
func NewConfig(ctx *cli.Context) (*Config, error) {
	cfg := &Config{
		HTTP: service.Config{
			ListenAddr:        ctx.String(flags.HTTPAddr.Name),
			ListenPort:        ctx.Int(flags.HTTPPort.Name),
			UploadDir:         ctx.String(flags.UploadDir.Name),
			MaxUploadSize:     ctx.Int64(flags.MaxUploadSize.Name),
			MaxConcurrentRuns: ctx.Int64(flags.MaxConcurrentRuns.Name),
		},
		WorkDir:        ctx.String(flags.WorkDir.Name),
		NodeModules:    ctx.String(flags.NodeModules.Name),
		CypressCommand: ctx.String(flags.CypressCommand.Name),
		ProfilePath:    ctx.String(flags.Profile.Name),
		LogConfig:      oplog.ReadCLIConfig(ctx),
		MetricsConfig:  opmetrics.ReadCLIConfig(ctx),
		PprofConfig:    oppprof.ReadCLIConfig(ctx),
	}

	var err error
	if cfg.WorkDir, err = absDir("work", cfg.WorkDir); err != nil {
		return nil, err
	}
	if cfg.HTTP.UploadDir, err = absDir("upload", cfg.HTTP.UploadDir); err != nil {
		return nil, err
	}
	if cfg.NodeModules != "" {
		if cfg.NodeModules, err = absDir("node_modules", cfg.NodeModules); err != nil {
			return nil, err
		}
	}

	if cfg.Profile, err = profile.Load(cfg.ProfilePath); err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return cfg, nil
}

func (c *Config) Check() error {
	if c.WorkDir == "" {
		return errors.New("work directory is required")
	}
	if strings.TrimSpace(c.CypressCommand) == "" {
		return errors.New("cypress command is required")
	}
	if err := c.HTTP.Check(); err != nil {
		return fmt.Errorf("invalid http config: %w", err)
	}
	if err := c.Profile.Check(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	if err := c.MetricsConfig.Check(); err != nil {
		return err
	}
	if err := c.PprofConfig.Check(); err != nil {
		return err
	}
	return nil
}

func absDir(what, dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s directory '%s': %w", what, dir, err)
	}
	return abs, nil
}
