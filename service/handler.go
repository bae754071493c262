package service

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-cyrunner/metrics"
	"github.com/ethereum-optimism/infra/op-cyrunner/runner"
	"github.com/ethereum-optimism/infra/op-cyrunner/workarea"
)

const (
	TestFileField = "testFile"

	RunIDHeader    = "X-Cyrunner-Run-Id"
	TestsHeader    = "X-Cyrunner-Tests"
	PassesHeader   = "X-Cyrunner-Passes"
	FailuresHeader = "X-Cyrunner-Failures"

	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
)

var errNoFile = errors.New("no test file uploaded")

// clientError is a request rejected before anything is staged.
type clientError struct {
	status int
	msg    string
	err    error
}

func (e *clientError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *clientError) Unwrap() error {
	return e.err
}

func (s *Server) handleRunTest(w http.ResponseWriter, r *http.Request) {
	runID := uuid.NewString()
	lgr := s.log.New("run_id", runID)
	w.Header().Set(RunIDHeader, runID)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	upload, err := s.receiveUpload(r)
	if upload.Path != "" {
		defer func() {
			if err := os.Remove(upload.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				lgr.Debug("Failed to remove upload", "path", upload.Path, "err", err)
			}
		}()
	}
	if err != nil {
		var ce *clientError
		if errors.As(err, &ce) {
			lgr.Info("Rejected test run request", "status", ce.status, "err", err)
			s.respond(w, RunTestRoute, ce.status, contentTypeText, []byte(ce.msg))
			return
		}
		lgr.Error("Failed to receive upload", "err", err)
		metrics.RecordError(metrics.ErrorUpload)
		s.respondFragment(w, lgr, http.StatusInternalServerError, fragmentServerError, err.Error())
		return
	}
	lgr.Info("Received test file", "filename", upload.Filename)

	if s.sem != nil {
		if err := s.sem.Acquire(r.Context(), 1); err != nil {
			lgr.Warn("Gave up waiting for a run slot", "err", err)
			s.respond(w, RunTestRoute, http.StatusServiceUnavailable, contentTypeText, []byte("Test runner is busy."))
			return
		}
		defer s.sem.Release(1)
	}

	out, err := s.runner.Run(r.Context(), runID, upload)
	if err != nil {
		s.respondRunError(w, lgr, err)
		return
	}

	if out.Stats != nil {
		w.Header().Set(TestsHeader, strconv.Itoa(out.Stats.Tests))
		w.Header().Set(PassesHeader, strconv.Itoa(out.Stats.Passes))
		w.Header().Set(FailuresHeader, strconv.Itoa(out.Stats.Failures))
	}
	s.respond(w, RunTestRoute, http.StatusOK, contentTypeHTML, out.Report)
}

// receiveUpload spools the testFile part of a multipart body into the upload
// directory. Parts other than the first testFile file are discarded.
func (s *Server) receiveUpload(r *http.Request) (runner.Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return runner.Upload{}, &clientError{status: http.StatusBadRequest, msg: "No test file uploaded.", err: err}
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return runner.Upload{}, &clientError{status: http.StatusBadRequest, msg: "No test file uploaded.", err: errNoFile}
		}
		if err != nil {
			return runner.Upload{}, bodyError(err)
		}
		if part.FormName() != TestFileField || part.FileName() == "" {
			_, err := io.Copy(io.Discard, part)
			_ = part.Close()
			if err != nil {
				return runner.Upload{}, bodyError(err)
			}
			continue
		}
		upload, err := s.spool(part)
		_ = part.Close()
		return upload, err
	}
}

func (s *Server) spool(part *multipart.Part) (runner.Upload, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return runner.Upload{}, fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(s.uploadDir, uuid.NewString())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return runner.Upload{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	upload := runner.Upload{Path: path, Filename: part.FileName()}
	if _, err := io.Copy(f, part); err != nil {
		_ = f.Close()
		return upload, bodyError(err)
	}
	if err := f.Close(); err != nil {
		return upload, fmt.Errorf("failed to write upload file: %w", err)
	}
	return upload, nil
}

func bodyError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &clientError{
			status: http.StatusRequestEntityTooLarge,
			msg:    fmt.Sprintf("Test file exceeds the %d byte limit.", maxBytesErr.Limit),
			err:    err,
		}
	}
	return &clientError{status: http.StatusBadRequest, msg: "Malformed multipart body.", err: err}
}

func (s *Server) respondRunError(w http.ResponseWriter, lgr log.Logger, err error) {
	if errors.Is(err, workarea.ErrInvalidFilename) {
		lgr.Info("Rejected test file name", "err", err)
		s.respond(w, RunTestRoute, http.StatusBadRequest, contentTypeText, []byte("Invalid test file name."))
		return
	}
	if missing, ok := runner.AsMissingReportError(err); ok {
		if missing.ToolMessage != "" {
			s.respondFragment(w, lgr, http.StatusInternalServerError, fragmentRunFailed, missing.ToolMessage)
			return
		}
		s.respondFragment(w, lgr, http.StatusInternalServerError, fragmentReportMissing, nil)
		return
	}
	s.respondFragment(w, lgr, http.StatusInternalServerError, fragmentServerError, err.Error())
}

func (s *Server) respondFragment(w http.ResponseWriter, lgr log.Logger, status int, name string, data any) {
	body, err := renderFragment(name, data)
	if err != nil {
		lgr.Error("Failed to render error fragment", "fragment", name, "err", err)
		s.respond(w, RunTestRoute, http.StatusInternalServerError, contentTypeText, []byte("Internal server error."))
		return
	}
	s.respond(w, RunTestRoute, status, contentTypeHTML, body)
}
