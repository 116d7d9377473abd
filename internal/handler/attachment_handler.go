package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"attachment-service/internal/domain"
	"attachment-service/internal/service"
	"attachment-service/internal/storage"
)

// AttachmentHandler handles attachment HTTP requests
type AttachmentHandler struct {
	attachmentService *service.AttachmentService
}

// NewAttachmentHandler creates a new AttachmentHandler
func NewAttachmentHandler(attachmentService *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// UploadAttachments handles POST /bugs/:bugId/attachments
// Accepts one or more files under the multipart field "files".
func (h *AttachmentHandler) UploadAttachments(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		handleUnauthorized(c, "User not authenticated")
		return
	}

	bugID, err := uuid.Parse(c.Param("bugId"))
	if err != nil {
		handleBadRequest(c, "Invalid bug ID")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		handleBadRequest(c, "Invalid multipart form")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		handleBadRequest(c, "No files provided")
		return
	}

	uploads := make([]storage.Upload, 0, len(files))
	for _, fh := range files {
		content, err := readMultipartFile(fh)
		if err != nil {
			handleBadRequest(c, fmt.Sprintf("Failed to read file %q", fh.Filename))
			return
		}
		uploads = append(uploads, storage.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     content,
		})
	}

	attachments, err := h.attachmentService.UploadBatch(c.Request.Context(), bugID, userID, uploads)

	responses := make([]domain.AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		responses = append(responses, a.ToResponse())
	}

	if err != nil {
		// A mid-batch failure still committed earlier files; the client
		// needs to know which, or it would have to re-list and guess
		status, code, message := serviceErrorDetail(err)
		if len(responses) > 0 {
			c.JSON(status, PartialUploadResponse{
				Error:       ErrorDetail{Code: code, Message: message},
				Attachments: responses,
				Total:       len(responses),
			})
			return
		}
		respondWithError(c, status, code, message)
		return
	}

	respondWithData(c, http.StatusCreated, domain.AttachmentListResponse{
		Attachments: responses,
		Total:       len(responses),
	})
}

// PartialUploadResponse reports a batch that failed after committing
// some of its files
type PartialUploadResponse struct {
	Error       ErrorDetail                 `json:"error"`
	Attachments []domain.AttachmentResponse `json:"attachments"`
	Total       int                         `json:"total"`
}

// DownloadAttachment handles GET /attachments/:attachmentId/download
// Streams the backing file with cache-defeating headers. Images are
// served inline, everything else as a download.
func (h *AttachmentHandler) DownloadAttachment(c *gin.Context) {
	attachmentID, err := uuid.Parse(c.Param("attachmentId"))
	if err != nil {
		handleBadRequest(c, "Invalid attachment ID")
		return
	}

	attachment, path, err := h.attachmentService.ResolveForRead(c.Request.Context(), attachmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			handleNotFound(c, "Attachment not found")
			return
		}
		h.respondWithServiceError(c, err)
		return
	}

	disposition := "attachment"
	if attachment.IsImage() {
		disposition = "inline"
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, attachment.DisplayName))
	c.Header("Content-Type", attachment.ContentType)
	c.File(path)
}

// GetBugAttachments handles GET /bugs/:bugId/attachments
func (h *AttachmentHandler) GetBugAttachments(c *gin.Context) {
	bugID, err := uuid.Parse(c.Param("bugId"))
	if err != nil {
		handleBadRequest(c, "Invalid bug ID")
		return
	}

	attachments, err := h.attachmentService.ListForBug(c.Request.Context(), bugID)
	if err != nil {
		handleInternalError(c, "Failed to list attachments")
		return
	}

	responses := make([]domain.AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		responses = append(responses, a.ToResponse())
	}

	respondWithData(c, http.StatusOK, domain.AttachmentListResponse{
		Attachments: responses,
		Total:       len(responses),
	})
}

// DeleteAttachment handles DELETE /attachments/:attachmentId
// Idempotent: deleting an absent attachment reports deleted=false.
func (h *AttachmentHandler) DeleteAttachment(c *gin.Context) {
	attachmentID, err := uuid.Parse(c.Param("attachmentId"))
	if err != nil {
		handleBadRequest(c, "Invalid attachment ID")
		return
	}

	existed, err := h.attachmentService.Delete(c.Request.Context(), attachmentID)
	if err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	respondWithData(c, http.StatusOK, gin.H{"deleted": existed})
}

// serviceErrorDetail maps the service error taxonomy onto HTTP
// responses: validation and security failures are client errors with
// their kind as the code, IO failures are retryable server errors.
func serviceErrorDetail(err error) (status int, code, message string) {
	if ve, ok := domain.AsValidationError(err); ok {
		return http.StatusBadRequest, string(ve.Kind), ve.Message
	}
	if sv, ok := domain.AsSecurityViolation(err); ok {
		return http.StatusBadRequest, string(sv.Kind), "Invalid file path"
	}
	if ioe, ok := domain.AsIOFailure(err); ok {
		return http.StatusInternalServerError, string(ioe.Kind), "Storage operation failed"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
}

func (h *AttachmentHandler) respondWithServiceError(c *gin.Context, err error) {
	status, code, message := serviceErrorDetail(err)
	respondWithError(c, status, code, message)
}

// readMultipartFile reads one uploaded file fully into memory
func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
