package storage

import (
	"bytes"
	"path/filepath"
	"strings"

	"attachment-service/internal/domain"
)

// magic byte signatures per extension
var (
	signatureJPEG = []byte{0xFF, 0xD8}
	signaturePNG  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	signaturePDF  = []byte{0x25, 0x50, 0x44, 0x46} // %PDF
)

// DefaultAllowedTypes maps allowed extensions to acceptable declared
// content types.
func DefaultAllowedTypes() map[string][]string {
	return map[string][]string{
		".jpg":  {"image/jpeg"},
		".jpeg": {"image/jpeg"},
		".png":  {"image/png"},
		".pdf":  {"application/pdf"},
		".txt":  {"text/plain"},
		".log":  {"text/plain"},
	}
}

// Payload describes a file that passed validation. SanitizedName is safe
// for presentation only and is never used to address the file on disk.
type Payload struct {
	SanitizedName string
	Extension     string
	ContentType   string
	Content       []byte
}

// Upload is one file of an upload request as received from the caller
type Upload struct {
	Name        string
	ContentType string
	Content     []byte
}

// Validator checks uploaded files against size, extension, declared-type
// and content-byte constraints before anything touches disk. It is a pure
// function of its inputs and holds no filesystem or database state.
type Validator struct {
	allowedTypes  map[string][]string
	maxFileSize   int64
	maxBatchCount int
	maxBatchSize  int64
}

// NewValidator creates a Validator with the given limits. The allow-list
// is copied so later mutation of the argument cannot change behavior.
func NewValidator(allowedTypes map[string][]string, maxFileSize int64, maxBatchCount int, maxBatchSize int64) *Validator {
	types := make(map[string][]string, len(allowedTypes))
	for ext, cts := range allowedTypes {
		types[ext] = append([]string(nil), cts...)
	}
	return &Validator{
		allowedTypes:  types,
		maxFileSize:   maxFileSize,
		maxBatchCount: maxBatchCount,
		maxBatchSize:  maxBatchSize,
	}
}

// Validate checks a single upload. Checks run in order: empty, size,
// extension/declared type, content signature.
func (v *Validator) Validate(up Upload) (*Payload, error) {
	if len(up.Content) == 0 {
		return nil, domain.NewValidationError(domain.ValidationEmpty, "file %q is empty", up.Name)
	}
	if int64(len(up.Content)) > v.maxFileSize {
		return nil, domain.NewValidationError(domain.ValidationTooLarge,
			"file %q exceeds maximum size of %d bytes", up.Name, v.maxFileSize)
	}

	ext := strings.ToLower(filepath.Ext(up.Name))
	allowed, ok := v.allowedTypes[ext]
	if !ok {
		return nil, domain.NewValidationError(domain.ValidationTypeMismatch,
			"file extension %q is not allowed", ext)
	}

	declared := strings.ToLower(strings.TrimSpace(up.ContentType))
	if !containsString(allowed, declared) {
		return nil, domain.NewValidationError(domain.ValidationTypeMismatch,
			"content type %q is not valid for extension %q", declared, ext)
	}

	if !matchesSignature(up.Content, ext) {
		return nil, domain.NewValidationError(domain.ValidationContentMismatch,
			"file content does not match expected format for %q", ext)
	}

	return &Payload{
		SanitizedName: SanitizeDisplayName(up.Name),
		Extension:     ext,
		ContentType:   declared,
		Content:       up.Content,
	}, nil
}

// ValidateBatch checks aggregate count and size limits before running
// per-file checks. Payloads are returned in input order.
func (v *Validator) ValidateBatch(ups []Upload) ([]*Payload, error) {
	if len(ups) > v.maxBatchCount {
		return nil, domain.NewValidationError(domain.ValidationTooManyFiles,
			"maximum %d files allowed per request, got %d", v.maxBatchCount, len(ups))
	}

	var total int64
	for _, up := range ups {
		total += int64(len(up.Content))
	}
	if total > v.maxBatchSize {
		return nil, domain.NewValidationError(domain.ValidationAggregateTooLarge,
			"total upload size %d exceeds maximum of %d bytes", total, v.maxBatchSize)
	}

	payloads := make([]*Payload, 0, len(ups))
	for _, up := range ups {
		p, err := v.Validate(up)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

// matchesSignature verifies the leading bytes of content against the
// expected signature for the extension. Text extensions require the
// content to be free of NUL bytes and control characters other than
// tab, carriage return and newline.
func matchesSignature(content []byte, ext string) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return bytes.HasPrefix(content, signatureJPEG)
	case ".png":
		return bytes.HasPrefix(content, signaturePNG)
	case ".pdf":
		return bytes.HasPrefix(content, signaturePDF)
	case ".txt", ".log":
		return isValidText(content)
	default:
		return false
	}
}

// isValidText reports whether content looks like plain text
func isValidText(content []byte) bool {
	for _, b := range content {
		if b == 0 {
			return false
		}
		if b < 32 && b != '\t' && b != '\r' && b != '\n' {
			return false
		}
	}
	return true
}

// SanitizeDisplayName reduces a user-supplied filename to a bare name
// with no path components or reserved characters. The result is used for
// presentation only.
func SanitizeDisplayName(name string) string {
	// Strip any directory components, including Windows-style separators
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch r {
		case ':', '*', '?', '"', '<', '>', '|', 0:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "unnamed"
	}
	return cleaned
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
