// Package security validates user-supplied trip IDs and file names before
// they are turned into paths.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscapes is returned when a path resolves outside its root.
	ErrPathEscapes = errors.New("path escapes directory")
	// ErrInvalidTripID is returned for IDs that are not a single plain path
	// element.
	ErrInvalidTripID = errors.New("invalid trip ID")
)

// WithinDir checks that path stays inside dir once both are made absolute
// and their symlinks resolved. Paths that do not exist yet are resolved
// through their nearest existing parent, so a symlinked parent cannot be used
// to escape.
func WithinDir(path, dir string) error {
	canonicalPath, err := canonical(path)
	if err != nil {
		return err
	}
	canonicalDir, err := canonical(dir)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathEscapes, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscapes, path, dir)
	}
	return nil
}

// canonical returns the absolute, symlink-free form of p. Missing trailing
// components are kept as given.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for check := abs; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return abs, nil
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, abs)
			return filepath.Join(resolved, rel), nil
		}
		check = parent
	}
}

// TripDir returns the directory of trip tid under tripsDir. tid must be a
// single path element that stays inside tripsDir.
func TripDir(tripsDir, tid string) (string, error) {
	if tid == "" || tid == "." || tid == ".." || strings.ContainsAny(tid, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTripID, tid)
	}
	dir := filepath.Join(tripsDir, tid)
	if err := WithinDir(dir, tripsDir); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTripID, err)
	}
	return dir, nil
}

// SanitizeFilename makes a safe filename from an arbitrary string. Anything
// other than ASCII letters, digits, dot, underscore or dash becomes an
// underscore, runs of underscores collapse, and the result is capped at 128
// bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
