package cyrunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-cyrunner/cypress"
	"github.com/ethereum-optimism/infra/op-cyrunner/runner"
	"github.com/ethereum-optimism/infra/op-cyrunner/workarea"
)

// RunSpec runs a single local spec file through the same pipeline the HTTP
// handler uses. specPath is copied into the upload directory first so the
// caller's file survives the run's cleanup.
//
// A report with failures yields both the outcome and a TestFailureError.
// Everything that prevents a report from being produced is a RuntimeError,
// except a runner that reported its own failure, which is a TestFailureError.
func RunSpec(ctx context.Context, logger log.Logger, cfg *Config, tool cypress.Tool, specPath string) (*runner.Outcome, error) {
	r, err := newRunner(logger, cfg, tool)
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	upload, err := copyUpload(cfg.HTTP.UploadDir, specPath)
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	out, err := r.Run(ctx, uuid.NewString(), upload)
	if err != nil {
		if missing, ok := runner.AsMissingReportError(err); ok && missing.ToolMessage != "" {
			return nil, NewTestFailureError(missing.ToolMessage)
		}
		return nil, NewRuntimeError(err)
	}
	if out.Failed() {
		msg := "test runner reported failures"
		if out.Stats != nil {
			msg = fmt.Sprintf("%d of %d tests failed", out.Stats.Failures, out.Stats.Tests)
		}
		return out, NewTestFailureError(msg)
	}
	return out, nil
}

func copyUpload(uploadDir, specPath string) (runner.Upload, error) {
	if _, err := workarea.SanitizeFilename(specPath); err != nil {
		return runner.Upload{}, err
	}
	in, err := os.Open(specPath)
	if err != nil {
		return runner.Upload{}, fmt.Errorf("failed to open spec: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return runner.Upload{}, fmt.Errorf("failed to create upload directory: %w", err)
	}
	dst := filepath.Join(uploadDir, uuid.NewString())
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return runner.Upload{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return runner.Upload{}, fmt.Errorf("failed to copy spec: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return runner.Upload{}, fmt.Errorf("failed to copy spec: %w", err)
	}
	return runner.Upload{Path: dst, Filename: filepath.Base(specPath)}, nil
}

// FormatSummary renders the outcome of a run as a table.
func FormatSummary(spec string, out *runner.Outcome) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle("op-cyrunner")
	t.AppendHeader(table.Row{"Spec", "Duration", "Tests", "Passed", "Failed", "Pending", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Spec", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Pending", Align: text.AlignRight},
	})

	status := "PASS"
	if out.Failed() {
		status = "FAIL"
	}
	row := table.Row{filepath.Base(spec), out.Duration.Round(time.Millisecond).String(), "-", "-", "-", "-", status}
	if s := out.Stats; s != nil {
		row = table.Row{filepath.Base(spec), out.Duration.Round(time.Millisecond).String(), s.Tests, s.Passes, s.Failures, s.Pending, status}
	}
	t.AppendRow(row)

	if out.Failed() {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	t.Render()
	return buf.String()
}
