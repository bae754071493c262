package cypress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
)

var _ Tool = (*CLI)(nil)

// Tool runs a single spec through the external test runner and blocks until it exits.
//
// A returned error means the runner could not be run to completion: it could
// not be started, it was killed, or the context was cancelled. A runner that
// exits on its own, successfully or not, yields a Result.
type Tool interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// Invocation is everything the runner needs for one spec.
type Invocation struct {
	ProjectRoot     string
	SpecPath        string
	ConfigFile      string
	Browser         string
	Headless        bool
	Video           bool
	CommandTimeout  time.Duration
	Reporter        string
	ReporterOptions map[string]string
}

// Result is the outcome of a runner process that exited on its own.
type Result struct {
	ExitCode int
	// Message is the runner's own failure text, set only when it exited non-zero.
	Message  string
	Output   string
	Duration time.Duration

	// OutputTruncated is set when Output holds only the tail of stdout.
	OutputTruncated bool
}

// Failed reports whether the runner exited non-zero. For Cypress the exit
// code is the number of failed specs, or 1 when it could not run at all.
func (r *Result) Failed() bool {
	return r != nil && r.ExitCode != 0
}

// CmdBuilder creates the command for the runner. The returned func is called
// once the command has finished.
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// CLI invokes the runner through its command line interface.
type CLI struct {
	command    []string
	cmdBuilder CmdBuilder
	tailBytes  int
	log        log.Logger
}

// NewCLI creates a CLI tool. command is split on whitespace, e.g. "npx cypress"
// or "/usr/local/bin/cypress". A nil cmdBuilder uses DefaultCmdBuilder.
func NewCLI(logger log.Logger, command string, cmdBuilder CmdBuilder) (*CLI, error) {
	if command == "" {
		command = DefaultCommand
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("runner command cannot be blank")
	}
	if cmdBuilder == nil {
		cmdBuilder = DefaultCmdBuilder
	}
	if logger == nil {
		logger = log.Root()
	}
	return &CLI{
		command:    fields,
		cmdBuilder: cmdBuilder,
		tailBytes:  defaultOutputTailBytes,
		log:        logger,
	}, nil
}

// DefaultCmdBuilder runs the runner with CI-friendly, colorless output.
func DefaultCmdBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Env = append(os.Environ(), "CI=1", "NO_COLOR=1", "FORCE_COLOR=0")
	cmd.WaitDelay = waitDelay
	return cmd, func() {}
}

func (c *CLI) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if inv.ProjectRoot == "" || inv.SpecPath == "" {
		return nil, fmt.Errorf("project root and spec path are required")
	}

	args := append(append([]string{}, c.command[1:]...), BuildArgs(inv)...)
	cmd, cleanup := c.cmdBuilder(ctx, c.command[0], args...)
	defer cleanup()
	cmd.Dir = inv.ProjectRoot

	stdout := newTailBuffer(c.tailBytes)
	stderr := newTailBuffer(c.tailBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	c.log.Info("Running spec", "spec", inv.SpecPath, "browser", inv.Browser, "headless", inv.Headless)
	c.log.Debug("Runner command", "cmd", c.command[0], "args", args)

	start := time.Now()
	runErr := cmd.Run()
	result := &Result{
		Duration:        time.Since(start),
		Output:          stripansi.Strip(stdout.String()),
		OutputTruncated: stdout.Truncated(),
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("test runner interrupted after %s: %w", result.Duration, ctxErr)
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to start test runner: %w", runErr)
		}
		if exitErr.ExitCode() < 0 {
			return nil, fmt.Errorf("test runner terminated: %w", runErr)
		}
		result.ExitCode = exitErr.ExitCode()
		result.Message = failureMessage(result.ExitCode, stderr, stdout)
		c.log.Warn("Test runner exited with failure", "exit_code", result.ExitCode, "duration", result.Duration,
			"stdout_bytes", stdout.TotalBytes(), "stderr_bytes", stderr.TotalBytes(),
			"truncated", stdout.Truncated() || stderr.Truncated())
	} else {
		c.log.Info("Test runner finished", "duration", result.Duration,
			"stdout_bytes", stdout.TotalBytes(), "truncated", result.OutputTruncated)
	}
	return result, nil
}

// BuildArgs returns the runner arguments for one invocation, without the command itself.
func BuildArgs(inv Invocation) []string {
	args := []string{
		RunCommand,
		ProjectFlag, inv.ProjectRoot,
		SpecFlag, inv.SpecPath,
	}
	if inv.Browser != "" {
		args = append(args, BrowserFlag, inv.Browser)
	}
	if inv.Headless {
		args = append(args, HeadlessFlag)
	} else {
		args = append(args, HeadedFlag)
	}
	if inv.ConfigFile != "" {
		args = append(args, ConfigFileFlag, inv.ConfigFile)
	}

	config := fmt.Sprintf("video=%t", inv.Video)
	if inv.CommandTimeout > 0 {
		config += fmt.Sprintf(",defaultCommandTimeout=%d", inv.CommandTimeout.Milliseconds())
	}
	args = append(args, ConfigFlag, config)

	if inv.Reporter != "" {
		args = append(args, ReporterFlag, inv.Reporter)
		if opts := joinOptions(inv.ReporterOptions); opts != "" {
			args = append(args, ReporterOptionsFlag, opts)
		}
	}
	return args
}

func joinOptions(opts map[string]string) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+opts[k])
	}
	return strings.Join(parts, ",")
}

// failureMessage picks the most useful text the runner printed: stderr first,
// then stdout, trimmed to the last maxMessageBytes.
func failureMessage(exitCode int, stderr, stdout *tailBuffer) string {
	for _, buf := range []*tailBuffer{stderr, stdout} {
		msg := strings.TrimSpace(stripansi.Strip(buf.String()))
		if msg == "" {
			continue
		}
		if len(msg) > maxMessageBytes {
			msg = "..." + msg[len(msg)-maxMessageBytes:]
		}
		return msg
	}
	return fmt.Sprintf("test runner exited with code %d", exitCode)
}
