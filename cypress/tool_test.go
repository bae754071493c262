package cypress

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

const helperEnv = "GO_WANT_CYPRESS_HELPER"

// helperCmdBuilder re-executes the test binary as a stand-in for the runner.
// The behavior is picked by mode, see TestHelperProcess.
func helperCmdBuilder(mode string) CmdBuilder {
	return func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
		args := append([]string{"-test.run=^TestHelperProcess$", "--", name}, arg...)
		cmd := exec.CommandContext(ctx, os.Args[0], args...)
		cmd.Env = append(os.Environ(), helperEnv+"="+mode)
		return cmd, func() {}
	}
}

// TestHelperProcess is not a real test. It plays the runner when the test
// binary is re-executed by helperCmdBuilder.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	opts := map[string]string{}
	for i := 0; i < len(args)-1; i++ {
		if args[i] == ReporterOptionsFlag {
			for _, kv := range strings.Split(args[i+1], ",") {
				k, v, _ := strings.Cut(kv, "=")
				opts[k] = v
			}
		}
	}

	switch mode {
	case "report":
		fmt.Println("\x1b[32m  All specs passed!\x1b[0m")
		path := filepath.Join(opts["reportDir"], opts["reportFilename"])
		if err := os.WriteFile(path, []byte("<html>report</html>"), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}
		os.Exit(0)
	case "fail":
		fmt.Println("some progress output")
		fmt.Fprintln(os.Stderr, "\x1b[31mCan't run because no spec files were found.\x1b[0m")
		os.Exit(1)
	case "fail-stdout":
		fmt.Println("  2 of 3 failed (67%)")
		os.Exit(2)
	case "fail-silent":
		os.Exit(4)
	case "args":
		fmt.Print(strings.Join(args, "\n"))
		os.Exit(0)
	case "pwd":
		wd, _ := os.Getwd()
		fmt.Print(wd)
		os.Exit(0)
	case "sleep":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(0)
}

func newTestCLI(t *testing.T, mode string) *CLI {
	cli, err := NewCLI(testlog.Logger(t, log.LevelDebug), "npx cypress", helperCmdBuilder(mode))
	require.NoError(t, err)
	return cli
}

func testInvocation(t *testing.T) Invocation {
	root := t.TempDir()
	reports := filepath.Join(root, "cypress", "reports")
	require.NoError(t, os.MkdirAll(reports, 0o755))
	return Invocation{
		ProjectRoot:    root,
		SpecPath:       filepath.Join(root, "cypress", "e2e", "login.cy.js"),
		ConfigFile:     filepath.Join(root, JSConfigFile),
		Browser:        "electron",
		Headless:       true,
		CommandTimeout: time.Minute,
		Reporter:       "mochawesome",
		ReporterOptions: map[string]string{
			"reportDir":      reports,
			"reportFilename": "report.html",
		},
	}
}

func TestNewCLI(t *testing.T) {
	cli, err := NewCLI(nil, "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"npx", "cypress"}, cli.command)
	require.NotNil(t, cli.cmdBuilder)

	_, err = NewCLI(nil, "   ", nil)
	require.ErrorContains(t, err, "cannot be blank")
}

func TestRunWritesReport(t *testing.T) {
	inv := testInvocation(t)
	res, err := newTestCLI(t, "report").Run(context.Background(), inv)
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Empty(t, res.Message)
	require.Contains(t, res.Output, "All specs passed!")
	require.NotContains(t, res.Output, "\x1b[")
	require.False(t, res.OutputTruncated)
	require.FileExists(t, filepath.Join(inv.ReporterOptions["reportDir"], "report.html"))
}

func TestRunKeepsOutputTail(t *testing.T) {
	cli := newTestCLI(t, "report")
	cli.tailBytes = 8
	res, err := cli.Run(context.Background(), testInvocation(t))
	require.NoError(t, err)
	require.True(t, res.OutputTruncated)
	require.LessOrEqual(t, len(res.Output), 8)
	require.NotContains(t, res.Output, "All specs")
}

func TestRunPassesArguments(t *testing.T) {
	inv := testInvocation(t)
	res, err := newTestCLI(t, "args").Run(context.Background(), inv)
	require.NoError(t, err)

	got := strings.Split(res.Output, "\n")
	want := append([]string{"npx", "cypress"}, BuildArgs(inv)...)
	require.Equal(t, want, got)
}

func TestRunUsesProjectRootAsWorkingDir(t *testing.T) {
	inv := testInvocation(t)
	res, err := newTestCLI(t, "pwd").Run(context.Background(), inv)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(inv.ProjectRoot)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(res.Output)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRunFailureMessages(t *testing.T) {
	tests := []struct {
		mode     string
		exitCode int
		message  string
	}{
		{mode: "fail", exitCode: 1, message: "Can't run because no spec files were found."},
		{mode: "fail-stdout", exitCode: 2, message: "2 of 3 failed (67%)"},
		{mode: "fail-silent", exitCode: 4, message: "test runner exited with code 4"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			res, err := newTestCLI(t, tt.mode).Run(context.Background(), testInvocation(t))
			require.NoError(t, err)
			require.True(t, res.Failed())
			require.Equal(t, tt.exitCode, res.ExitCode)
			require.Equal(t, tt.message, res.Message)
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestCLI(t, "sleep").Run(ctx, testInvocation(t))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 30*time.Second)
}

func TestRunMissingBinary(t *testing.T) {
	cli, err := NewCLI(testlog.Logger(t, log.LevelInfo), "/definitely/not/a/cypress-binary", nil)
	require.NoError(t, err)
	_, err = cli.Run(context.Background(), testInvocation(t))
	require.ErrorContains(t, err, "failed to start test runner")
}

func TestRunValidatesInvocation(t *testing.T) {
	cli := newTestCLI(t, "report")
	_, err := cli.Run(context.Background(), Invocation{})
	require.ErrorContains(t, err, "project root and spec path are required")
}

func TestBuildArgs(t *testing.T) {
	inv := Invocation{
		ProjectRoot:    "/work/run-1",
		SpecPath:       "/work/run-1/cypress/e2e/a.cy.js",
		ConfigFile:     "/work/run-1/cypress.config.js",
		Browser:        "electron",
		Headless:       true,
		CommandTimeout: 60 * time.Second,
		Reporter:       "mochawesome",
		ReporterOptions: map[string]string{
			"reportFilename": "report.html",
			"reportDir":      "/work/run-1/cypress/reports",
		},
	}
	require.Equal(t, []string{
		"run",
		"--project", "/work/run-1",
		"--spec", "/work/run-1/cypress/e2e/a.cy.js",
		"--browser", "electron",
		"--headless",
		"--config-file", "/work/run-1/cypress.config.js",
		"--config", "video=false,defaultCommandTimeout=60000",
		"--reporter", "mochawesome",
		"--reporter-options", "reportDir=/work/run-1/cypress/reports,reportFilename=report.html",
	}, BuildArgs(inv))

	headed := BuildArgs(Invocation{ProjectRoot: "/p", SpecPath: "/p/s.js", Video: true})
	require.Equal(t, []string{
		"run", "--project", "/p", "--spec", "/p/s.js", "--headed", "--config", "video=true",
	}, headed)
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("hello "))
	require.False(t, b.Truncated())
	_, _ = b.Write([]byte("world!"))
	require.Equal(t, "o world!", b.String())
	require.Equal(t, int64(12), b.TotalBytes())
	require.True(t, b.Truncated())
}
