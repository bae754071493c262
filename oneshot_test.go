package cyrunner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cyrunner/cypress"
	"github.com/ethereum-optimism/infra/op-cyrunner/cypress/cypresstest"
	"github.com/ethereum-optimism/infra/op-cyrunner/exitcodes"
	"github.com/ethereum-optimism/infra/op-cyrunner/report"
	"github.com/ethereum-optimism/infra/op-cyrunner/runner"
)

func writeSpec(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkout.cy.js")
	require.NoError(t, os.WriteFile(path, []byte("it('works', () => {})\n"), 0o644))
	return path
}

func TestRunSpecKeepsLocalFile(t *testing.T) {
	cfg := testConfig(t)
	spec := writeSpec(t)
	tool := &cypresstest.FakeTool{RunFn: cypresstest.Reporting([]byte("<html>ok</html>"))}

	out, err := RunSpec(context.Background(), testlog.Logger(t, log.LevelInfo), cfg, tool, spec)
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", string(out.Report))
	require.Equal(t, exitcodes.Success, ExitCode(err))

	_, err = os.Stat(spec)
	require.NoError(t, err, "the local spec must survive the run")
	require.Equal(t, "checkout.cy.js", filepath.Base(tool.Invocations()[0].SpecPath))

	uploads, err := os.ReadDir(cfg.HTTP.UploadDir)
	require.NoError(t, err)
	require.Empty(t, uploads)
}

func TestRunSpecErrors(t *testing.T) {
	tests := []struct {
		name     string
		runFn    func(context.Context, cypress.Invocation) (*cypress.Result, error)
		exitCode int
		outcome  bool
	}{
		{
			name: "failing tests",
			runFn: func(_ context.Context, inv cypress.Invocation) (*cypress.Result, error) {
				return &cypress.Result{ExitCode: 3, Message: "3 failed"}, cypresstest.WriteReport(inv, []byte("fail"))
			},
			exitCode: exitcodes.TestFailure,
			outcome:  true,
		},
		{
			name: "runner failure message",
			runFn: func(context.Context, cypress.Invocation) (*cypress.Result, error) {
				return &cypress.Result{ExitCode: 1, Message: "No spec files were found"}, nil
			},
			exitCode: exitcodes.TestFailure,
		},
		{
			name: "report missing",
			runFn: func(context.Context, cypress.Invocation) (*cypress.Result, error) {
				return &cypress.Result{}, nil
			},
			exitCode: exitcodes.RuntimeErr,
		},
		{
			name: "runner cannot start",
			runFn: func(context.Context, cypress.Invocation) (*cypress.Result, error) {
				return nil, errors.New("exec: not found")
			},
			exitCode: exitcodes.RuntimeErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := RunSpec(context.Background(), testlog.Logger(t, log.LevelInfo), testConfig(t),
				&cypresstest.FakeTool{RunFn: tt.runFn}, writeSpec(t))
			require.Error(t, err)
			require.Equal(t, tt.exitCode, ExitCode(err))
			require.Equal(t, tt.outcome, out != nil)
		})
	}
}

func TestRunSpecMissingFile(t *testing.T) {
	_, err := RunSpec(context.Background(), testlog.Logger(t, log.LevelInfo), testConfig(t),
		&cypresstest.FakeTool{}, filepath.Join(t.TempDir(), "nope.cy.js"))
	require.True(t, IsRuntimeError(err))
}

func TestFormatSummary(t *testing.T) {
	out := &runner.Outcome{
		Duration: 1500 * time.Millisecond,
		Result:   &cypress.Result{},
		Stats:    &report.Stats{Tests: 4, Passes: 3, Failures: 1},
	}
	summary := FormatSummary("/tmp/specs/login.cy.js", out)
	require.Contains(t, summary, "login.cy.js")
	require.Contains(t, summary, "FAIL")
	require.Contains(t, summary, "1.5s")

	out = &runner.Outcome{Duration: time.Second, Result: &cypress.Result{}}
	summary = FormatSummary("a.cy.js", out)
	require.Contains(t, summary, "PASS")
}

func TestExitCode(t *testing.T) {
	require.Equal(t, exitcodes.Success, ExitCode(nil))
	require.Equal(t, exitcodes.RuntimeErr, ExitCode(NewRuntimeError(errors.New("x"))))
	require.Equal(t, exitcodes.TestFailure, ExitCode(NewTestFailureError("x")))
	require.Equal(t, exitcodes.TestFailure, ExitCode(errors.New("x")))
}
