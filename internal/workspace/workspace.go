// internal/workspace/workspace.go
//
// The workspace is the project folder a mode runs against. The orchestrator
// only asks it two questions: where is the root, and does a file exist.

package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Well-known artifacts looked up when an execution context is built.
const (
	FilePRD           = "docs/prd.md"
	FileArchitecture  = "docs/architecture.md"
	FileChecklist     = "docs/checklist.md"
	FileReadme        = "README.md"
	FilePackageJSON   = "package.json"
	FileGoMod         = "go.mod"
	FileJaegisConfig  = ".jaegis/config.yaml"
	DirGitHubWorkflow = ".github/workflows"
)

// WellKnownArtifacts is the fixed scan list, in reporting order.
var WellKnownArtifacts = []string{
	FilePRD,
	FileArchitecture,
	FileChecklist,
	FileReadme,
	FilePackageJSON,
	FileGoMod,
	FileJaegisConfig,
	DirGitHubWorkflow,
}

// ErrNoWorkspace matches every *NoWorkspaceError via errors.Is.
var ErrNoWorkspace = errors.New("no workspace available")

// NoWorkspaceError reports that no usable workspace folder is open.
type NoWorkspaceError struct {
	Path  string
	Cause error
}

func (e *NoWorkspaceError) Error() string {
	if e.Path == "" {
		return "workspace: no workspace folder is open"
	}
	if e.Cause != nil {
		return fmt.Sprintf("workspace: %s is not usable: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("workspace: %s is not usable", e.Path)
}

func (e *NoWorkspaceError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrNoWorkspace) match.
func (e *NoWorkspaceError) Is(target error) bool { return target == ErrNoWorkspace }

// Workspace is the collaborator the orchestrator reads project files through.
type Workspace interface {
	Root() string
	// Exists reports whether the relative path is present. Errors mean the
	// answer is unknown; callers treat them as absence.
	Exists(ctx context.Context, rel string) (bool, error)
}

// Dir is a Workspace backed by a directory on disk.
type Dir struct {
	root string
}

// Open validates that path is an existing directory and wraps it.
func Open(path string) (*Dir, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, &NoWorkspaceError{}
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, &NoWorkspaceError{Path: trimmed, Cause: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &NoWorkspaceError{Path: abs, Cause: err}
	}
	if !info.IsDir() {
		return nil, &NoWorkspaceError{Path: abs, Cause: errors.New("not a directory")}
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute workspace path.
func (d *Dir) Root() string {
	return d.root
}

// Exists checks for a file or directory relative to the root.
func (d *Dir) Exists(ctx context.Context, rel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := d.resolve(rel)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (d *Dir) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(rel)))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("workspace: %q escapes the workspace root", rel)
	}
	return filepath.Join(d.root, clean), nil
}

// ScanArtifacts checks names concurrently and returns those that exist, in
// the order given. Lookup failures count as absence.
func ScanArtifacts(ctx context.Context, ws Workspace, names []string) []string {
	if ws == nil || len(names) == 0 {
		return []string{}
	}
	found := make([]bool, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		g.Go(func() error {
			ok, err := ws.Exists(gctx, name)
			found[i] = err == nil && ok
			return nil
		})
	}
	_ = g.Wait()
	out := make([]string, 0, len(names))
	for i, name := range names {
		if found[i] {
			out = append(out, name)
		}
	}
	return out
}
