// Package workarea manages the disposable, per-run project directory the
// external test runner is pointed at.
//
// Layout of a work area:
//
//	run-<unix-millis>-<id>/
//	├── cypress/
//	│   ├── e2e/<spec>       staged upload
//	│   └── reports/         reporter output
//	├── node_modules -> shared dependency directory (optional)
//	└── cypress.config.js | cypress.json
package workarea

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	dirPrefix      = "run-"
	specsSubdir    = "cypress/e2e"
	reportsSubdir  = "cypress/reports"
	nodeModulesDir = "node_modules"
)

// ErrInvalidFilename is returned when a client supplied file name cannot be staged.
var ErrInvalidFilename = errors.New("invalid spec file name")

// Area is a single work area. It is owned by exactly one run.
type Area struct {
	ID   string
	Root string
}

// New creates a uniquely named work area below root. The directory name is
// derived from the arrival time plus a random suffix, and the top level
// directory is created with Mkdir so two runs can never share it.
func New(root string, now time.Time) (*Area, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work root %s: %w", root, err)
	}
	id := fmt.Sprintf("%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	a := &Area{
		ID:   id,
		Root: filepath.Join(root, dirPrefix+id),
	}
	if err := os.Mkdir(a.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work area %s: %w", a.Root, err)
	}
	for _, sub := range []string{specsSubdir, reportsSubdir} {
		if err := os.MkdirAll(filepath.Join(a.Root, sub), 0o755); err != nil {
			return a, fmt.Errorf("failed to create %s in work area: %w", sub, err)
		}
	}
	return a, nil
}

// SanitizeFilename reduces a client supplied name to a plain base name.
func SanitizeFilename(name string) (string, error) {
	base := filepath.Base(filepath.Clean(strings.ReplaceAll(name, `\`, "/")))
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return base, nil
}

func (a *Area) SpecsDir() string {
	return filepath.Join(a.Root, specsSubdir)
}

func (a *Area) ReportsDir() string {
	return filepath.Join(a.Root, reportsSubdir)
}

// ReportPath is the deterministic location of a report file written by the reporter.
func (a *Area) ReportPath(filename string) string {
	return filepath.Join(a.ReportsDir(), filename)
}

// Stage moves the uploaded file at src into the specs directory under the
// given file name and returns the new path. Renames across devices fall back
// to copy and remove.
func (a *Area) Stage(src, filename string) (string, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(a.SpecsDir(), name)
	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("failed to move %s into work area: %w", src, err)
	}
	_ = os.Remove(src)
	return dst, nil
}

// LinkDependencies symlinks the shared dependency directory into the work
// area so the runner resolves its plugins and reporters from there.
func (a *Area) LinkDependencies(nodeModules string) error {
	if nodeModules == "" {
		return nil
	}
	target, err := filepath.Abs(nodeModules)
	if err != nil {
		return fmt.Errorf("failed to resolve dependency directory %s: %w", nodeModules, err)
	}
	if err := os.Symlink(target, filepath.Join(a.Root, nodeModulesDir)); err != nil {
		return fmt.Errorf("failed to link dependency directory: %w", err)
	}
	return nil
}

// WriteFile writes a file relative to the work area root.
func (a *Area) WriteFile(name string, data []byte) (string, error) {
	path := filepath.Join(a.Root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// Remove deletes the whole work area. The error is for logging only.
func (a *Area) Remove() error {
	if a == nil || a.Root == "" {
		return nil
	}
	return os.RemoveAll(a.Root)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
