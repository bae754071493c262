package runner

import (
	"errors"
	"fmt"
)

// StagingError is a failure to prepare the work area: directory creation,
// moving the upload, linking dependencies or writing the runner config.
type StagingError struct {
	Err error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging error: %v", e.Err)
}

func (e *StagingError) Unwrap() error {
	return e.Err
}

func NewStagingError(err error) *StagingError {
	return &StagingError{Err: err}
}

// IsStagingError checks if the error is or wraps a StagingError
func IsStagingError(err error) bool {
	var stagingErr *StagingError
	return err != nil && errors.As(err, &stagingErr)
}

// ExecutionError means the runner could not be run to completion.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func NewExecutionError(err error) *ExecutionError {
	return &ExecutionError{Err: err}
}

// IsExecutionError checks if the error is or wraps an ExecutionError
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return err != nil && errors.As(err, &execErr)
}

// MissingReportError means the runner finished without writing the report.
// ToolMessage carries the runner's own failure text, if it printed one.
type MissingReportError struct {
	ToolMessage string
}

func (e *MissingReportError) Error() string {
	if e.ToolMessage != "" {
		return fmt.Sprintf("report missing, test runner failed: %s", e.ToolMessage)
	}
	return "report missing"
}

// AsMissingReportError returns the MissingReportError in err's chain, if any.
func AsMissingReportError(err error) (*MissingReportError, bool) {
	var missing *MissingReportError
	if err != nil && errors.As(err, &missing) {
		return missing, true
	}
	return nil, false
}
