package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"attachment-service/internal/domain"
)

// ErrDatabaseUnavailable is returned when no database connection has
// been established yet. The service comes up before the database does,
// so requests arriving in that window fail with this instead of a panic.
var ErrDatabaseUnavailable = errors.New("database not available")

// AttachmentRepository defines the interface for attachment metadata
// access. It is the sole source of truth for "this attachment exists".
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.Attachment) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Attachment, error)
	FindByBugID(ctx context.Context, bugID uuid.UUID) ([]*domain.Attachment, error)
	FindAll(ctx context.Context) ([]*domain.Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// attachmentRepositoryImpl is the GORM implementation of
// AttachmentRepository. It resolves the connection per call so a
// database that connects after startup is picked up without a restart.
type attachmentRepositoryImpl struct {
	getDB func() *gorm.DB
}

// NewAttachmentRepository creates an AttachmentRepository over a fixed
// database handle
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepositoryImpl{getDB: func() *gorm.DB { return db }}
}

// NewLazyAttachmentRepository creates an AttachmentRepository that
// resolves its database handle through getDB on every call
func NewLazyAttachmentRepository(getDB func() *gorm.DB) AttachmentRepository {
	return &attachmentRepositoryImpl{getDB: getDB}
}

func (r *attachmentRepositoryImpl) db() (*gorm.DB, error) {
	db := r.getDB()
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}
	return db, nil
}

// Create persists a new attachment record
func (r *attachmentRepositoryImpl) Create(ctx context.Context, attachment *domain.Attachment) error {
	db, err := r.db()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Create(attachment).Error
}

// FindByID finds an attachment by ID. An absent id yields
// domain.ErrNotFound rather than a database error.
func (r *attachmentRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*domain.Attachment, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}
	var attachment domain.Attachment
	err = db.WithContext(ctx).
		Where("id = ?", id).
		First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &attachment, nil
}

// FindByBugID finds all attachments of a bug report, newest first
func (r *attachmentRepositoryImpl) FindByBugID(ctx context.Context, bugID uuid.UUID) ([]*domain.Attachment, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}
	var attachments []*domain.Attachment
	err = db.WithContext(ctx).
		Where("bug_id = ?", bugID).
		Order("uploaded_at DESC").
		Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

// FindAll returns every attachment record. Used by the reconciliation
// sweep to compare metadata against the storage root.
func (r *attachmentRepositoryImpl) FindAll(ctx context.Context) ([]*domain.Attachment, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}
	var attachments []*domain.Attachment
	err = db.WithContext(ctx).Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

// Delete removes an attachment record and reports whether one existed
func (r *attachmentRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	db, err := r.db()
	if err != nil {
		return false, err
	}
	result := db.WithContext(ctx).Delete(&domain.Attachment{}, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
