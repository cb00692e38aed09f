// Package pathutil keeps file operations on user-supplied names inside the
// directory they were meant for.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDir is returned when a path escapes its directory.
var ErrOutsideDir = errors.New("path is outside the allowed directory")

// RedactPath reduces a full path to .../<parent>/<basename> for error messages.
// For example, "/home/user/.gkmerge/results.db" becomes ".../.gkmerge/results.db".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// JoinFile joins a single file name onto dir. The name may not contain
// separators, NUL bytes or parent references, and the result must resolve
// (following symlinks on dir) to a file directly inside dir.
func JoinFile(dir, name string) (string, error) {
	switch {
	case name == "", name == ".", name == "..":
		return "", fmt.Errorf("invalid file name %q", name)
	case strings.ContainsRune(name, '\x00'):
		return "", fmt.Errorf("file name contains null byte")
	case strings.ContainsAny(name, `/\`) || filepath.Base(name) != name:
		return "", fmt.Errorf("file name %q: %w", name, ErrOutsideDir)
	}
	path := filepath.Join(dir, name)
	if err := ValidatePath(path, dir); err != nil {
		return "", err
	}
	return path, nil
}

// ValidatePath checks that path lies inside dir once both are made absolute
// and symlinks on their existing ancestors are resolved. Neither needs to
// exist yet.
func ValidatePath(path, dir string) error {
	if path == "" || dir == "" {
		return fmt.Errorf("path validation failed: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	parent, err := resolveExistingParent(filepath.Dir(absPath))
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	base, err := resolveExistingParent(absDir)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	if !isSubpath(filepath.Join(parent, filepath.Base(absPath)), base) {
		return fmt.Errorf("%s: %w", RedactPath(absPath), ErrOutsideDir)
	}
	return nil
}

// resolveExistingParent resolves symlinks on the deepest existing ancestor
// of dir and re-appends the missing tail.
func resolveExistingParent(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}
	resolved, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, filepath.Base(dir)), nil
}

// isSubpath reports whether path is base or below it.
func isSubpath(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}
