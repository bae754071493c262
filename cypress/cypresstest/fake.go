// Package cypresstest provides an in-process stand-in for the external test
// runner, for tests of packages that drive a cypress.Tool.
package cypresstest

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum-optimism/infra/op-cyrunner/cypress"
)

var _ cypress.Tool = (*FakeTool)(nil)

// FakeTool records invocations and delegates to RunFn.
type FakeTool struct {
	RunFn func(ctx context.Context, inv cypress.Invocation) (*cypress.Result, error)

	mu          sync.Mutex
	invocations []cypress.Invocation
}

func (f *FakeTool) Run(ctx context.Context, inv cypress.Invocation) (*cypress.Result, error) {
	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	f.mu.Unlock()
	if f.RunFn == nil {
		return &cypress.Result{}, nil
	}
	return f.RunFn(ctx, inv)
}

func (f *FakeTool) Invocations() []cypress.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cypress.Invocation(nil), f.invocations...)
}

// WriteReport writes content where the reporter would have written its HTML report.
func WriteReport(inv cypress.Invocation, content []byte) error {
	dir := inv.ReporterOptions["reportDir"]
	name := inv.ReporterOptions["reportFilename"]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), content, 0o644)
}

// Reporting returns a RunFn that writes content as the report and exits cleanly.
func Reporting(content []byte) func(context.Context, cypress.Invocation) (*cypress.Result, error) {
	return func(_ context.Context, inv cypress.Invocation) (*cypress.Result, error) {
		if err := WriteReport(inv, content); err != nil {
			return nil, err
		}
		return &cypress.Result{}, nil
	}
}
