package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attachment represents a file attached to a bug report.
// Records are immutable after creation: a changed attachment is a new record.
// DisplayName is presentation-only and never used to address the file on
// disk; StoredName is the generated name the file lives under inside the
// storage root.
type Attachment struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BugID       uuid.UUID `gorm:"type:uuid;not null;index" json:"bugId"`
	DisplayName string    `gorm:"size:255;not null" json:"displayName"`
	StoredName  string    `gorm:"size:512;not null;uniqueIndex" json:"-"`
	ContentType string    `gorm:"size:128;not null" json:"contentType"`
	SizeBytes   int64     `gorm:"not null" json:"sizeBytes"`
	UploadedBy  uuid.UUID `gorm:"type:uuid;not null;index" json:"uploadedBy"`
	UploadedAt  time.Time `gorm:"not null" json:"uploadedAt"`
}

// TableName returns the table name for Attachment
func (Attachment) TableName() string {
	return "bug_attachments"
}

// IsImage returns true if the attachment can be displayed inline
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// AttachmentResponse represents attachment data returned to clients
type AttachmentResponse struct {
	ID          uuid.UUID `json:"id"`
	BugID       uuid.UUID `json:"bugId"`
	DisplayName string    `json:"displayName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedBy  uuid.UUID `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
	IsImage     bool      `json:"isImage"`
}

// ToResponse converts Attachment to AttachmentResponse
func (a *Attachment) ToResponse() AttachmentResponse {
	return AttachmentResponse{
		ID:          a.ID,
		BugID:       a.BugID,
		DisplayName: a.DisplayName,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		UploadedBy:  a.UploadedBy,
		UploadedAt:  a.UploadedAt,
		IsImage:     a.IsImage(),
	}
}

// AttachmentListResponse represents the attachments of one bug report
type AttachmentListResponse struct {
	Attachments []AttachmentResponse `json:"attachments"`
	Total       int                  `json:"total"`
}
