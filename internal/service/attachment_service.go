package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attachment-service/internal/domain"
	"attachment-service/internal/metrics"
	"attachment-service/internal/repository"
	"attachment-service/internal/storage"
)

// AttachmentService orchestrates the attachment lifecycle:
// validate -> name -> guard -> write -> persist on upload, and the
// reverse compensation when any step fails. The database is never
// touched before the disk write succeeds, and a stored file never
// outlives its metadata record.
type AttachmentService struct {
	attachmentRepo repository.AttachmentRepository
	validator      *storage.Validator
	nameGen        *storage.NameGenerator
	guard          *storage.PathGuard
	writer         *storage.Writer
	eraser         *storage.Eraser
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

// NewAttachmentService creates a new AttachmentService
func NewAttachmentService(
	attachmentRepo repository.AttachmentRepository,
	validator *storage.Validator,
	guard *storage.PathGuard,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AttachmentService {
	return &AttachmentService{
		attachmentRepo: attachmentRepo,
		validator:      validator,
		nameGen:        storage.NewNameGenerator(),
		guard:          guard,
		writer:         storage.NewWriter(logger),
		eraser:         storage.NewEraser(logger),
		metrics:        m,
		logger:         logger,
	}
}

// Upload validates, stores and records a single attachment
func (s *AttachmentService) Upload(ctx context.Context, bugID, userID uuid.UUID, up storage.Upload) (*domain.Attachment, error) {
	payload, err := s.validator.Validate(up)
	if err != nil {
		s.recordValidationFailure(err)
		return nil, err
	}
	return s.store(ctx, bugID, userID, payload)
}

// UploadBatch validates aggregate limits first, then stores each file in
// order. A failure mid-batch compensates the failing file only; records
// already committed stand. The committed attachments are returned
// alongside the error.
func (s *AttachmentService) UploadBatch(ctx context.Context, bugID, userID uuid.UUID, ups []storage.Upload) ([]*domain.Attachment, error) {
	payloads, err := s.validator.ValidateBatch(ups)
	if err != nil {
		s.recordValidationFailure(err)
		return nil, err
	}

	attachments := make([]*domain.Attachment, 0, len(payloads))
	for _, payload := range payloads {
		attachment, err := s.store(ctx, bugID, userID, payload)
		if err != nil {
			return attachments, err
		}
		attachments = append(attachments, attachment)
	}
	return attachments, nil
}

// store runs the write-before-persist sequence for one validated payload
func (s *AttachmentService) store(ctx context.Context, bugID, userID uuid.UUID, payload *storage.Payload) (*domain.Attachment, error) {
	storedName, err := s.nameGen.Generate(payload.Extension)
	if err != nil {
		return nil, domain.NewIOFailure(domain.IOWriteFailed, err)
	}

	path, err := s.guard.Resolve(storedName)
	if err != nil {
		// A generated name failing the guard is a program bug, not input
		s.recordSecurityViolation(err)
		s.logger.Error("Generated stored name rejected by path guard",
			zap.String("storedName", storedName),
			zap.Error(err),
		)
		return nil, err
	}

	written, err := s.writer.Write(path, payload.Content)
	if err != nil {
		s.logger.Error("Failed to write attachment file",
			zap.String("storedName", storedName),
			zap.Error(err),
		)
		return nil, err
	}

	// Cancellation between write and persist must not leave the file behind
	if err := ctx.Err(); err != nil {
		s.compensate(path, storedName)
		return nil, err
	}

	attachment := &domain.Attachment{
		ID:          uuid.New(),
		BugID:       bugID,
		DisplayName: payload.SanitizedName,
		StoredName:  storedName,
		ContentType: payload.ContentType,
		SizeBytes:   written,
		UploadedBy:  userID,
		UploadedAt:  time.Now().UTC(),
	}

	if err := s.attachmentRepo.Create(ctx, attachment); err != nil {
		s.compensate(path, storedName)
		s.logger.Error("Failed to persist attachment record, file erased",
			zap.String("storedName", storedName),
			zap.String("bugId", bugID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to persist attachment record: %w", err)
	}

	if s.metrics != nil {
		s.metrics.UploadsTotal.Inc()
		s.metrics.UploadBytesTotal.Add(float64(written))
	}

	s.logger.Info("Attachment uploaded",
		zap.String("attachmentId", attachment.ID.String()),
		zap.String("bugId", bugID.String()),
		zap.String("displayName", attachment.DisplayName),
		zap.Int64("sizeBytes", written),
	)

	return attachment, nil
}

// compensate erases a written file after a downstream failure so no
// orphan survives the upload sequence
func (s *AttachmentService) compensate(path, storedName string) {
	if err := s.eraser.Erase(path); err != nil {
		s.logger.Error("Failed to erase file during upload compensation",
			zap.String("storedName", storedName),
			zap.Error(err),
		)
	}
}

// ResolveForRead looks up an attachment and returns its record together
// with the guarded absolute path of the backing file, ready to be
// streamed by the caller. An absent record or absent file both yield
// domain.ErrNotFound.
func (s *AttachmentService) ResolveForRead(ctx context.Context, attachmentID uuid.UUID) (*domain.Attachment, string, error) {
	attachment, err := s.attachmentRepo.FindByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to look up attachment: %w", err)
	}

	path, err := s.guard.Resolve(attachment.StoredName)
	if err != nil {
		s.recordSecurityViolation(err)
		s.logger.Warn("Stored name of existing record failed path guard",
			zap.String("attachmentId", attachmentID.String()),
			zap.String("storedName", attachment.StoredName),
			zap.Error(err),
		)
		return nil, "", err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			// Dangling record: keep reads available, report not found
			s.logger.Warn("Attachment record has no backing file",
				zap.String("attachmentId", attachmentID.String()),
				zap.String("storedName", attachment.StoredName),
			)
			return nil, "", domain.ErrNotFound
		}
		return nil, "", domain.NewIOFailure(domain.IOReadFailed, err)
	}

	if s.metrics != nil {
		s.metrics.DownloadBytesTotal.Add(float64(attachment.SizeBytes))
	}

	return attachment, path, nil
}

// Delete removes the record first, then securely erases the file, so
// repeated or concurrent deletes of the same id converge to "not found"
// instead of racing on the file. Returns whether a record existed.
func (s *AttachmentService) Delete(ctx context.Context, attachmentID uuid.UUID) (bool, error) {
	attachment, err := s.attachmentRepo.FindByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up attachment: %w", err)
	}

	existed, err := s.attachmentRepo.Delete(ctx, attachmentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete attachment record: %w", err)
	}
	if !existed {
		// Lost the race against a concurrent delete; the winner erases
		return false, nil
	}

	path, err := s.guard.Resolve(attachment.StoredName)
	if err != nil {
		s.recordSecurityViolation(err)
		s.logger.Error("Stored name of deleted record failed path guard, file not erased",
			zap.String("attachmentId", attachmentID.String()),
			zap.String("storedName", attachment.StoredName),
			zap.Error(err),
		)
		return true, err
	}

	if err := s.eraser.Erase(path); err != nil {
		s.logger.Error("Failed to erase attachment file after record removal",
			zap.String("attachmentId", attachmentID.String()),
			zap.String("storedName", attachment.StoredName),
			zap.Error(err),
		)
		return true, err
	}

	if s.metrics != nil {
		s.metrics.DeletesTotal.Inc()
	}

	s.logger.Info("Attachment deleted",
		zap.String("attachmentId", attachmentID.String()),
		zap.String("bugId", attachment.BugID.String()),
	)

	return true, nil
}

// ListForBug returns all attachments of a bug report, newest first
func (s *AttachmentService) ListForBug(ctx context.Context, bugID uuid.UUID) ([]*domain.Attachment, error) {
	attachments, err := s.attachmentRepo.FindByBugID(ctx, bugID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return attachments, nil
}

// recordSecurityViolation bumps the path escape counter
func (s *AttachmentService) recordSecurityViolation(err error) {
	if s.metrics == nil {
		return
	}
	if _, ok := domain.AsSecurityViolation(err); ok {
		s.metrics.SecurityViolationsTotal.Inc()
	}
}

// recordValidationFailure bumps the rejection counter by kind
func (s *AttachmentService) recordValidationFailure(err error) {
	if s.metrics == nil {
		return
	}
	if ve, ok := domain.AsValidationError(err); ok {
		s.metrics.ValidationFailuresTotal.WithLabelValues(string(ve.Kind)).Inc()
	}
}
