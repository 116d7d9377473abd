package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NameGenerator produces opaque on-disk filenames. A generated name is a
// random UUID joined with a second independent random component plus the
// validated extension, so guessing or enumerating valid names is
// computationally infeasible. No part of the name ever derives from
// caller-supplied text.
type NameGenerator struct{}

// NewNameGenerator creates a NameGenerator
func NewNameGenerator() *NameGenerator {
	return &NameGenerator{}
}

// Generate returns a new stored name for the given validated extension,
// e.g. "9f2c1d3a-....-_a1b2c3d4e5f60718.png".
func (g *NameGenerator) Generate(ext string) (string, error) {
	random := make([]byte, 8)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return fmt.Sprintf("%s_%s%s", uuid.New(), hex.EncodeToString(random), ext), nil
}
