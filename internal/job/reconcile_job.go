package job

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"attachment-service/internal/metrics"
	"attachment-service/internal/repository"
	"attachment-service/internal/storage"
)

// orphanGracePeriod spares recently written files from the sweep. An
// upload writes its file before the metadata record commits, so a file
// younger than this may be a healthy in-flight upload, not an orphan.
const orphanGracePeriod = 5 * time.Minute

// ReconcileJob sweeps the storage root against the metadata store. The
// record-exists-iff-file-exists invariant may be violated for a bounded
// window during in-flight operations or after a crash; the sweep
// converges the two sides: orphan files with no record are securely
// erased, and records with no backing file are reported loudly.
type ReconcileJob struct {
	attachmentRepo repository.AttachmentRepository
	guard          *storage.PathGuard
	eraser         *storage.Eraser
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

// NewReconcileJob creates a new ReconcileJob
func NewReconcileJob(
	attachmentRepo repository.AttachmentRepository,
	guard *storage.PathGuard,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReconcileJob {
	return &ReconcileJob{
		attachmentRepo: attachmentRepo,
		guard:          guard,
		eraser:         storage.NewEraser(logger),
		metrics:        m,
		logger:         logger,
	}
}

// Run executes one sweep
func (j *ReconcileJob) Run() {
	ctx := context.Background()

	j.logger.Info("Starting storage reconciliation sweep")

	records, err := j.attachmentRepo.FindAll(ctx)
	if err != nil {
		j.logger.Error("Failed to load attachment records for reconciliation", zap.Error(err))
		return
	}

	known := make(map[string]bool, len(records))
	for _, record := range records {
		known[record.StoredName] = true
	}

	entries, err := os.ReadDir(j.guard.Root())
	if err != nil {
		j.logger.Error("Failed to read storage root", zap.Error(err))
		return
	}

	orphans := 0
	for _, entry := range entries {
		if entry.IsDir() || known[entry.Name()] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			j.logger.Warn("Skipping unstatable entry in storage root",
				zap.String("name", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		if time.Since(info.ModTime()) < orphanGracePeriod {
			// Possibly an upload whose record has not committed yet;
			// the next sweep will pick it up if it really is an orphan
			continue
		}

		path, err := j.guard.Resolve(entry.Name())
		if err != nil {
			j.logger.Warn("Skipping unresolvable entry in storage root",
				zap.String("name", entry.Name()),
				zap.Error(err),
			)
			continue
		}

		if err := j.eraser.Erase(path); err != nil {
			j.logger.Error("Failed to erase orphan file",
				zap.String("name", entry.Name()),
				zap.Error(err),
			)
			continue
		}

		j.logger.Warn("Erased orphan file with no metadata record",
			zap.String("name", entry.Name()),
		)
		orphans++
		if j.metrics != nil {
			j.metrics.OrphanFilesErasedTotal.Inc()
		}
	}

	dangling := 0
	for _, record := range records {
		path := filepath.Join(j.guard.Root(), record.StoredName)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			j.logger.Error("Attachment record has no backing file",
				zap.String("attachmentId", record.ID.String()),
				zap.String("bugId", record.BugID.String()),
				zap.String("storedName", record.StoredName),
			)
			dangling++
		}
	}
	if j.metrics != nil {
		j.metrics.DanglingRecordsTotal.Set(float64(dangling))
	}

	j.logger.Info("Storage reconciliation sweep finished",
		zap.Int("records", len(records)),
		zap.Int("orphansErased", orphans),
		zap.Int("danglingRecords", dangling),
	)
}
