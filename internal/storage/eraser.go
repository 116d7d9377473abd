package storage

import (
	"crypto/rand"
	"os"

	"go.uber.org/zap"

	"attachment-service/internal/domain"
)

const eraseChunkSize = 4096

// Eraser destroys file content irrecoverably: the file's bytes are
// overwritten with random data before the path is unlinked. Deleting an
// already-absent file is not an error.
type Eraser struct {
	logger *zap.Logger
}

// NewEraser creates an Eraser
func NewEraser(logger *zap.Logger) *Eraser {
	return &Eraser{logger: logger}
}

// Erase overwrites the file at path with random bytes in bounded chunks,
// flushes, then removes it. If the overwrite fails the file is still
// unlinked; losing secure erasure is preferable to keeping the bytes
// around, so only a degraded-security warning is logged.
func (e *Eraser) Erase(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return domain.NewIOFailure(domain.IODeleteFailed, err)
	}

	// The writer marks stored files read-only; restore write permission
	// so the overwrite can proceed.
	if err := os.Chmod(path, 0o600); err != nil {
		e.logger.Warn("Failed to clear read-only mode before secure erase",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	if err := e.overwrite(path, info.Size()); err != nil {
		e.logger.Warn("Secure overwrite failed, falling back to plain delete",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return domain.NewIOFailure(domain.IODeleteFailed, err)
	}
	return nil
}

// overwrite rewrites size bytes of the file with random data
func (e *Eraser) overwrite(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, eraseChunkSize)
	for written := int64(0); written < size; written += eraseChunkSize {
		chunk := int64(eraseChunkSize)
		if remaining := size - written; remaining < chunk {
			chunk = remaining
		}
		if _, err := rand.Read(buf[:chunk]); err != nil {
			return err
		}
		if _, err := f.Write(buf[:chunk]); err != nil {
			return err
		}
	}

	return f.Sync()
}
