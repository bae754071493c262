// Package runner drives one spec through a disposable work area:
// stage, invoke the test runner, collect the report, clean up.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-cyrunner/cypress"
	"github.com/ethereum-optimism/infra/op-cyrunner/metrics"
	"github.com/ethereum-optimism/infra/op-cyrunner/profile"
	"github.com/ethereum-optimism/infra/op-cyrunner/report"
	"github.com/ethereum-optimism/infra/op-cyrunner/workarea"
)

const tracerName = "github.com/ethereum-optimism/infra/op-cyrunner/runner"

// Config holds what a Runner needs. Tool and WorkDir are required.
type Config struct {
	WorkDir     string
	NodeModules string
	Profile     profile.Profile
	Tool        cypress.Tool
	Log         log.Logger
	Now         func() time.Time
}

// Upload is a spec file received from a client.
type Upload struct {
	// Path is the server-assigned temporary location of the file.
	Path string
	// Filename is the name supplied by the client.
	Filename string
}

// Outcome is a run that produced a report.
type Outcome struct {
	RunID    string
	Report   []byte
	Stats    *report.Stats
	Result   *cypress.Result
	Duration time.Duration
}

// Failed reports whether the run produced a report with failing tests, or the
// runner itself signalled failure.
func (o *Outcome) Failed() bool {
	return o != nil && (o.Stats.Failed() || o.Result.Failed())
}

type Runner struct {
	workDir     string
	nodeModules string
	profile     profile.Profile
	tool        cypress.Tool
	log         log.Logger
	now         func() time.Time
	tracer      trace.Tracer
}

func New(cfg Config) (*Runner, error) {
	if cfg.WorkDir == "" {
		return nil, errors.New("work directory is required")
	}
	if cfg.Tool == nil {
		return nil, errors.New("tool is required")
	}
	if err := cfg.Profile.Check(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		workDir:     cfg.WorkDir,
		nodeModules: cfg.NodeModules,
		profile:     cfg.Profile,
		tool:        cfg.Tool,
		log:         cfg.Log,
		now:         cfg.Now,
		tracer:      otel.Tracer(tracerName),
	}, nil
}

// Run executes one uploaded spec. The upload file and the work area are
// removed before Run returns, whatever the outcome; removal errors are logged
// and otherwise ignored.
//
// Errors are one of: workarea.ErrInvalidFilename (nothing was staged),
// *StagingError, *ExecutionError or *MissingReportError.
func (r *Runner) Run(ctx context.Context, runID string, upload Upload) (out *Outcome, err error) {
	start := r.now()
	lgr := r.log.New("run_id", runID)

	ctx, span := r.tracer.Start(ctx, "cyrunner.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("spec", upload.Filename),
	))
	finished := metrics.RunStarted()
	defer func() {
		finished()
		metrics.RecordRun(runResult(out, err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	defer func() {
		if upload.Path == "" {
			return
		}
		if rmErr := os.Remove(upload.Path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			lgr.Debug("Failed to remove upload", "path", upload.Path, "err", rmErr)
		}
	}()

	if _, err := workarea.SanitizeFilename(upload.Filename); err != nil {
		return nil, err
	}

	area, err := workarea.New(r.workDir, start)
	if area != nil {
		defer func() {
			if rmErr := area.Remove(); rmErr != nil {
				lgr.Debug("Failed to remove work area", "root", area.Root, "err", rmErr)
			}
		}()
	}
	if err != nil {
		lgr.Error("Failed to create work area", "err", err)
		metrics.RecordError(metrics.ErrorStaging)
		return nil, NewStagingError(err)
	}
	lgr = lgr.New("work_area", area.ID)

	inv, err := r.stage(area, upload)
	if err != nil {
		lgr.Error("Failed to stage work area", "err", err)
		metrics.RecordError(metrics.ErrorStaging)
		return nil, NewStagingError(err)
	}

	var result *cypress.Result
	var pc panics.Catcher
	pc.Try(func() {
		result, err = r.tool.Run(ctx, inv)
	})
	if rec := pc.Recovered(); rec != nil {
		err = fmt.Errorf("test runner panicked: %v", rec.Value)
	}
	if err == nil && result == nil {
		err = errors.New("test runner returned no result")
	}
	if err != nil {
		lgr.Error("Test runner failed", "err", err)
		metrics.RecordError(metrics.ErrorExecution)
		return nil, NewExecutionError(err)
	}

	reportBytes, err := report.Read(area.ReportPath(r.profile.ReportFilename))
	if errors.Is(err, report.ErrMissing) {
		lgr.Warn("Test runner did not write a report", "exit_code", result.ExitCode)
		metrics.RecordError(metrics.ErrorMissingReport)
		return nil, &MissingReportError{ToolMessage: result.Message}
	}
	if err != nil {
		lgr.Error("Failed to read report", "err", err)
		metrics.RecordError(metrics.ErrorExecution)
		return nil, NewExecutionError(err)
	}

	out = &Outcome{
		RunID:  runID,
		Report: reportBytes,
		Result: result,
	}
	if r.profile.ReportJSON {
		stats, err := report.ReadStats(area.ReportPath(r.profile.ReportJSONFilename()))
		if err != nil {
			lgr.Warn("Failed to read report stats", "err", err)
		} else if stats != nil {
			out.Stats = stats
			metrics.RecordSpecTests(stats.Passes, stats.Failures, stats.Pending)
		}
	}
	out.Duration = time.Since(start)
	lgr.Info("Test run completed", "exit_code", result.ExitCode, "report_bytes", len(reportBytes), "duration", out.Duration)
	return out, nil
}

func (r *Runner) stage(area *workarea.Area, upload Upload) (cypress.Invocation, error) {
	specPath, err := area.Stage(upload.Path, upload.Filename)
	if err != nil {
		return cypress.Invocation{}, err
	}
	if err := area.LinkDependencies(r.nodeModules); err != nil {
		return cypress.Invocation{}, err
	}

	configName, err := cypress.ConfigFileName(r.profile.ConfigFormat)
	if err != nil {
		return cypress.Invocation{}, err
	}
	configData, err := cypress.RenderConfig(r.profile.ConfigFormat, cypress.NewConfigParams(r.profile, area.ReportsDir()))
	if err != nil {
		return cypress.Invocation{}, err
	}
	configPath, err := area.WriteFile(configName, configData)
	if err != nil {
		return cypress.Invocation{}, err
	}

	return cypress.Invocation{
		ProjectRoot:    area.Root,
		SpecPath:       specPath,
		ConfigFile:     configPath,
		Browser:        cypress.ResolveBrowser(r.profile),
		Headless:       r.profile.Headless,
		Video:          r.profile.Video,
		CommandTimeout: time.Duration(r.profile.CommandTimeout),
		Reporter:       r.profile.Reporter,
		ReporterOptions: map[string]string{
			"reportDir":      area.ReportsDir(),
			"reportFilename": r.profile.ReportFilename,
			"overwrite":      "false",
			"html":           "true",
			"json":           strconv.FormatBool(r.profile.ReportJSON),
			"inlineAssets":   strconv.FormatBool(r.profile.ReportInlineAssets),
			"quiet":          "true",
		},
	}, nil
}

func runResult(out *Outcome, err error) metrics.RunResult {
	if err != nil {
		if _, ok := AsMissingReportError(err); ok {
			return metrics.RunResultMissingReport
		}
		return metrics.RunResultError
	}
	if out.Failed() {
		return metrics.RunResultFail
	}
	return metrics.RunResultPass
}
