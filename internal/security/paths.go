// Package security keeps files written by the device (frame dumps,
// report captures, legacy exports) inside the directories it was told
// to use.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for a path that resolves outside every
// allowed root.
var ErrOutsideRoot = errors.New("path escapes allowed directories")

// Resolve returns the canonical absolute form of path with symlinks
// resolved. For a path that does not exist yet, the deepest existing
// ancestor is resolved and the rest re-attached, so a symlinked parent
// cannot smuggle a new file elsewhere.
func Resolve(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, err := filepath.Rel(dir, abs)
			if err != nil {
				return "", err
			}
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// Within reports an error unless path resolves inside root.
func Within(path, root string) error {
	p, err := Resolve(path)
	if err != nil {
		return err
	}
	r, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	if r, err = filepath.EvalSymlinks(r); err != nil {
		return fmt.Errorf("root %s: %w", root, err)
	}
	rel, err := filepath.Rel(r, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}
	return nil
}

// ValidateOutputPath accepts path when it lies inside any of roots.
func ValidateOutputPath(path string, roots ...string) error {
	if len(roots) == 0 {
		return errors.New("no output directories configured")
	}
	for _, root := range roots {
		if Within(path, root) == nil {
			return nil
		}
	}
	return fmt.Errorf("%s must be within one of %v: %w", path, roots, ErrOutsideRoot)
}

// DefaultOutputRoots are the state directory, the working directory and
// the system temp directory.
func DefaultOutputRoots(stateDir string) []string {
	roots := []string{os.TempDir()}
	if stateDir != "" {
		roots = append([]string{stateDir}, roots...)
	}
	if wd, err := os.Getwd(); err == nil {
		roots = append(roots, wd)
	}
	return roots
}

// SanitizeFilename reduces s to ASCII letters, digits, dot, underscore
// and dash, collapsing other runs to one underscore. Used when a host
// address or session label becomes part of a file name.
func SanitizeFilename(s string) string {
	const maxLen = 96
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
			under = r == '_'
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	if out := strings.Trim(b.String(), "._"); out != "" {
		return out
	}
	return "unnamed"
}
