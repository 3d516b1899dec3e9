// Package security keeps tool-supplied paths inside the configured work
// directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that escape the work directory.
var ErrOutsideRoot = errors.New("path is outside the work directory")

// PathValidator resolves caller-supplied paths against a root directory.
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at root. The directory need not
// exist yet.
func NewPathValidator(root string) (*PathValidator, error) {
	if root == "" {
		return nil, fmt.Errorf("work directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work directory: %w", err)
	}
	return &PathValidator{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute work directory.
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve returns the absolute form of path. Relative paths are taken
// relative to the root. The result, with symlinks followed as far as the
// path exists, must stay inside the root.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	abs := filepath.Clean(path)

	if !contains(v.root, abs) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	realRoot := evalExisting(v.root)
	if !contains(realRoot, evalExisting(abs)) {
		return "", fmt.Errorf("%w: %s resolves elsewhere", ErrOutsideRoot, path)
	}
	return abs, nil
}

// ResolveOptional is Resolve for optional arguments: "" stays "".
func (v *PathValidator) ResolveOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return v.Resolve(path)
}

// evalExisting follows symlinks through the longest existing prefix of path
// and re-attaches the remainder.
func evalExisting(path string) string {
	rest := ""
	cur := path
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(resolved, rest)
		}
		if _, err := os.Lstat(cur); err == nil {
			// Exists but cannot be resolved, a dangling link.
			return filepath.Join(cur, rest)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
