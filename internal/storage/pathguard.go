package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"attachment-service/internal/domain"
)

// PathGuard proves that a candidate filename resolves to a path inside
// the storage root before any read, write or delete touches it. The root
// is fixed and canonicalized at construction; every operation re-derives
// and re-checks the path, so a previously validated path is never trusted
// across calls.
type PathGuard struct {
	root string
}

// NewPathGuard canonicalizes root (resolving symlinks) and returns a
// guard bound to it. The root directory must exist.
func NewPathGuard(root string) (*PathGuard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %q: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize storage root %q: %w", abs, err)
	}
	return &PathGuard{root: canonical}, nil
}

// Root returns the canonical storage root
func (g *PathGuard) Root() string {
	return g.root
}

// Resolve joins the root and a bare filename, canonicalizes the result
// and verifies containment. Names carrying path separators or volume
// designators are rejected outright, independent of canonicalization.
func (g *PathGuard) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", &domain.SecurityViolation{Kind: domain.SecurityPathEscape, Name: name}
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, ":") {
		return "", &domain.SecurityViolation{Kind: domain.SecurityPathEscape, Name: name}
	}

	candidate := filepath.Join(g.root, name)

	// The candidate itself may be a symlink pointing outside the root.
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if os.IsNotExist(err) {
			// Not yet written; the parent is already the canonical root.
			resolved = candidate
		} else {
			return "", &domain.SecurityViolation{Kind: domain.SecurityPathEscape, Name: name}
		}
	}

	if resolved != candidate && !g.contains(resolved) {
		return "", &domain.SecurityViolation{Kind: domain.SecurityPathEscape, Name: name}
	}
	if !g.contains(candidate) {
		return "", &domain.SecurityViolation{Kind: domain.SecurityPathEscape, Name: name}
	}

	return candidate, nil
}

// contains reports whether path is the root itself or a descendant of it
func (g *PathGuard) contains(path string) bool {
	if path == g.root {
		return false // the root directory itself is never a valid file path
	}
	return strings.HasPrefix(path, g.root+string(filepath.Separator))
}
