package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// EnsureRoot creates the storage root if it does not exist and proves it
// is writable by creating and removing a probe file. Called once at
// startup; a root that cannot be written to is a fatal misconfiguration.
func EnsureRoot(root string) error {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return fmt.Errorf("failed to create storage root %q: %w", root, err)
	}

	probe := filepath.Join(root, fmt.Sprintf("probe_%s.tmp", uuid.New()))
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return fmt.Errorf("storage root %q is not writable: %w", root, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("failed to remove probe file in %q: %w", root, err)
	}
	return nil
}
