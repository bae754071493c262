package flags

import (
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/oppprof"

	"github.com/ethereum-optimism/infra/op-cyrunner/cypress"
	"github.com/ethereum-optimism/infra/op-cyrunner/service"
)

const EnvVarPrefix = "OP_CYRUNNER"

// PortEnvVar is the conventional platform port variable, honored next to the prefixed one.
const PortEnvVar = "PORT"

var (
	HTTPAddr = &cli.StringFlag{
		Name:    "http.addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HTTP_ADDR"),
		Usage:   "Address the HTTP server listens on",
	}
	HTTPPort = &cli.IntFlag{
		Name:    "http.port",
		Value:   3000,
		EnvVars: append(opservice.PrefixEnvVar(EnvVarPrefix, "HTTP_PORT"), PortEnvVar),
		Usage:   "Port the HTTP server listens on",
	}
	WorkDir = &cli.StringFlag{
		Name:    "work-dir",
		Value:   "runs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORK_DIR"),
		Usage:   "Directory below which per-run work areas are created",
	}
	UploadDir = &cli.StringFlag{
		Name:    "upload-dir",
		Value:   "uploads",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "UPLOAD_DIR"),
		Usage:   "Directory uploaded test files are spooled to before staging",
	}
	NodeModules = &cli.StringFlag{
		Name:    "node-modules",
		Value:   "node_modules",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NODE_MODULES"),
		Usage:   "Shared node_modules directory linked into every work area. Empty disables linking.",
	}
	CypressCommand = &cli.StringFlag{
		Name:    "cypress-command",
		Value:   cypress.DefaultCommand,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CYPRESS_COMMAND"),
		Usage:   "Command used to invoke Cypress, split on whitespace (eg. 'npx cypress' or '/usr/local/bin/cypress')",
	}
	Profile = &cli.StringFlag{
		Name:    "profile",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROFILE"),
		Usage:   "Path to a runner profile (.yaml, .yml or .toml). Built-in defaults apply when empty.",
	}
	MaxUploadSize = &cli.Int64Flag{
		Name:    "max-upload-size",
		Value:   service.DefaultMaxUploadSize,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_UPLOAD_SIZE"),
		Usage:   "Maximum request body size in bytes for test uploads",
	}
	MaxConcurrentRuns = &cli.Int64Flag{
		Name:    "max-concurrent-runs",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_CONCURRENT_RUNS"),
		Usage:   "Maximum number of concurrent test runs. 0 means unlimited.",
	}
)

// Out is only used by the run command.
var Out = &cli.StringFlag{
	Name:    "out",
	Value:   "report.html",
	EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUT"),
	Usage:   "Path the HTML report is written to",
}

var optionalFlags = []cli.Flag{
	HTTPAddr,
	HTTPPort,
	WorkDir,
	UploadDir,
	NodeModules,
	CypressCommand,
	Profile,
	MaxUploadSize,
	MaxConcurrentRuns,
}

var Flags []cli.Flag

var RunFlags = []cli.Flag{
	Out,
}

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, oppprof.CLIFlags(EnvVarPrefix)...)

	Flags = append(Flags, optionalFlags...)
}
