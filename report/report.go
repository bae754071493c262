// Package report reads the artifacts the external test runner leaves in a work area.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrMissing is returned when the runner completed without writing the expected report.
var ErrMissing = errors.New("report file was not generated")

// Stats is the summary block of a mochawesome JSON report.
type Stats struct {
	Suites   int     `json:"suites"`
	Tests    int     `json:"tests"`
	Passes   int     `json:"passes"`
	Pending  int     `json:"pending"`
	Failures int     `json:"failures"`
	Skipped  int     `json:"skipped"`
	Duration float64 `json:"duration"` // milliseconds
}

func (s *Stats) Failed() bool {
	return s != nil && s.Failures > 0
}

// Read returns the report bytes at path, or ErrMissing if the file does not exist.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	return data, nil
}

// ReadStats parses the stats block of the JSON report at path. A missing file
// yields nil stats and no error, the JSON report is optional.
func ReadStats(path string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read json report %s: %w", path, err)
	}
	var doc struct {
		Stats *Stats `json:"stats"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse json report %s: %w", path, err)
	}
	if doc.Stats == nil {
		return nil, fmt.Errorf("json report %s has no stats block", path)
	}
	return doc.Stats, nil
}
