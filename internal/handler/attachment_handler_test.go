package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attachment-service/internal/domain"
	"attachment-service/internal/service"
	"attachment-service/internal/storage"
)

// Mock attachment repository for testing, backed by a map. createErr
// fails every Create after the first failCreateAfter calls succeed.
type mockAttachmentRepository struct {
	mu              sync.Mutex
	records         map[uuid.UUID]*domain.Attachment
	createCalls     int
	failCreateAfter int
	createErr       error
}

func newMockAttachmentRepository() *mockAttachmentRepository {
	return &mockAttachmentRepository{records: make(map[uuid.UUID]*domain.Attachment)}
}

func (m *mockAttachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil && m.createCalls > m.failCreateAfter {
		return m.createErr
	}
	copied := *attachment
	m.records[attachment.ID] = &copied
	return nil
}

func (m *mockAttachmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attachment, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *attachment
	return &copied, nil
}

func (m *mockAttachmentRepository) FindByBugID(ctx context.Context, bugID uuid.UUID) ([]*domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Attachment
	for _, attachment := range m.records {
		if attachment.BugID == bugID {
			copied := *attachment
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UploadedAt.After(result[j].UploadedAt)
	})
	return result, nil
}

func (m *mockAttachmentRepository) FindAll(ctx context.Context) ([]*domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Attachment, 0, len(m.records))
	for _, attachment := range m.records {
		copied := *attachment
		result = append(result, &copied)
	}
	return result, nil
}

func (m *mockAttachmentRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

// setupAttachmentRouter wires a handler over a real service with an
// in-memory repository and a temp storage root
func setupAttachmentRouter(t *testing.T) (*gin.Engine, uuid.UUID) {
	return setupAttachmentRouterWithRepo(t, newMockAttachmentRepository())
}

func setupAttachmentRouterWithRepo(t *testing.T, repo *mockAttachmentRepository) (*gin.Engine, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	guard, err := storage.NewPathGuard(t.TempDir())
	require.NoError(t, err, "Failed to create path guard")

	validator := storage.NewValidator(storage.DefaultAllowedTypes(), 5*1024*1024, 5, 20*1024*1024)
	svc := service.NewAttachmentService(repo, validator, guard, nil, zap.NewNop())
	handler := NewAttachmentHandler(svc)

	userID := uuid.New()
	router := gin.New()
	// Simulate auth middleware setting the authenticated user
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	router.POST("/bugs/:bugId/attachments", handler.UploadAttachments)
	router.GET("/bugs/:bugId/attachments", handler.GetBugAttachments)
	router.GET("/attachments/:attachmentId/download", handler.DownloadAttachment)
	router.DELETE("/attachments/:attachmentId", handler.DeleteAttachment)

	return router, userID
}

type multipartFile struct {
	name        string
	contentType string
	content     []byte
}

func buildMultipartBody(t *testing.T, files []multipartFile) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.name))
		header.Set("Content-Type", f.contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err, "Failed to create multipart part")
		_, err = part.Write(f.content)
		require.NoError(t, err, "Failed to write multipart content")
	}
	require.NoError(t, writer.Close(), "Failed to close multipart writer")
	return body, writer.FormDataContentType()
}

func uploadFiles(t *testing.T, router *gin.Engine, bugID string, files []multipartFile) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := buildMultipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/bugs/"+bugID+"/attachments", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAttachments_Success(t *testing.T) {
	router, userID := setupAttachmentRouter(t)
	bugID := uuid.New()

	w := uploadFiles(t, router, bugID.String(), []multipartFile{
		{name: "crash.log", contentType: "text/plain", content: []byte("panic: runtime error\n")},
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool                          `json:"success"`
		Data    domain.AttachmentListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Equal(t, 1, resp.Data.Total)

	attachment := resp.Data.Attachments[0]
	assert.Equal(t, "crash.log", attachment.DisplayName)
	assert.Equal(t, "text/plain", attachment.ContentType)
	assert.Equal(t, bugID, attachment.BugID)
	assert.Equal(t, userID, attachment.UploadedBy)
	assert.Equal(t, int64(len("panic: runtime error\n")), attachment.SizeBytes)
	assert.False(t, attachment.IsImage)
}

func TestUploadAttachments_MultipleFiles(t *testing.T) {
	router, _ := setupAttachmentRouter(t)

	w := uploadFiles(t, router, uuid.New().String(), []multipartFile{
		{name: "shot.png", contentType: "image/png", content: append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, 0x01)},
		{name: "notes.txt", contentType: "text/plain", content: []byte("steps to reproduce")},
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data domain.AttachmentListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Total)
}

func TestUploadAttachments_InvalidBugID(t *testing.T) {
	router, _ := setupAttachmentRouter(t)

	w := uploadFiles(t, router, "not-a-uuid", []multipartFile{
		{name: "notes.txt", contentType: "text/plain", content: []byte("text")},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadAttachments_NoFiles(t *testing.T) {
	router, _ := setupAttachmentRouter(t)

	w := uploadFiles(t, router, uuid.New().String(), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadAttachments_RejectedExtension(t *testing.T) {
	router, _ := setupAttachmentRouter(t)

	w := uploadFiles(t, router, uuid.New().String(), []multipartFile{
		{name: "malware.exe", contentType: "text/plain", content: []byte("MZ")},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "TYPE_MISMATCH", resp.Error.Code)
}

func TestUploadAttachments_ContentMismatch(t *testing.T) {
	router, _ := setupAttachmentRouter(t)

	// JPEG bytes behind a .png name
	w := uploadFiles(t, router, uuid.New().String(), []multipartFile{
		{name: "shot.png", contentType: "image/png", content: []byte{0xFF, 0xD8, 0xFF}},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "CONTENT_MISMATCH", resp.Error.Code)
}

func TestUploadAttachments_PartialBatchFailureReportsCommitted(t *testing.T) {
	repo := newMockAttachmentRepository()
	repo.failCreateAfter = 1
	repo.createErr = errors.New("database unavailable")
	router, _ := setupAttachmentRouterWithRepo(t, repo)

	w := uploadFiles(t, router, uuid.New().String(), []multipartFile{
		{name: "first.txt", contentType: "text/plain", content: []byte("committed")},
		{name: "second.txt", contentType: "text/plain", content: []byte("lost")},
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// The body must carry both the error and the files that did commit
	var resp PartialUploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "first.txt", resp.Attachments[0].DisplayName)
}

func TestServiceErrorDetail(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation error",
			err:        domain.NewValidationError(domain.ValidationTooLarge, "too big"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "TOO_LARGE",
		},
		{
			name:       "security violation",
			err:        &domain.SecurityViolation{Kind: domain.SecurityPathEscape, Name: ".."},
			wantStatus: http.StatusBadRequest,
			wantCode:   "PATH_ESCAPE",
		},
		{
			name:       "read failure",
			err:        domain.NewIOFailure(domain.IOReadFailed, errors.New("stat failed")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "READ_FAILED",
		},
		{
			name:       "delete failure",
			err:        domain.NewIOFailure(domain.IODeleteFailed, errors.New("unlink failed")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "DELETE_FAILED",
		},
		{
			name:       "unclassified error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := serviceErrorDetail(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestUploadAttachments_Unauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard, err := storage.NewPathGuard(t.TempDir())
	require.NoError(t, err)
	validator := storage.NewValidator(storage.DefaultAllowedTypes(), 5*1024*1024, 5, 20*1024*1024)
	svc := service.NewAttachmentService(newMockAttachmentRepository(), validator, guard, nil, zap.NewNop())
	handler := NewAttachmentHandler(svc)

	// No middleware sets user_id
	router := gin.New()
	router.POST("/bugs/:bugId/attachments", handler.UploadAttachments)

	w := uploadFiles(t, router, uuid.New().String(), []multipartFile{
		{name: "notes.txt", contentType: "text/plain", content: []byte("text")},
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func uploadOne(t *testing.T, router *gin.Engine, bugID uuid.UUID, f multipartFile) domain.AttachmentResponse {
	t.Helper()
	w := uploadFiles(t, router, bugID.String(), []multipartFile{f})
	require.Equal(t, http.StatusCreated, w.Code, "upload failed: %s", w.Body.String())

	var resp struct {
		Data domain.AttachmentListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Total)
	return resp.Data.Attachments[0]
}

func TestDownloadAttachment_TextFile(t *testing.T) {
	router, _ := setupAttachmentRouter(t)
	content := []byte("reproduction steps")
	attachment := uploadOne(t, router, uuid.New(), multipartFile{
		name: "steps.txt", contentType: "text/plain", content: content,
	})

	req := httptest.NewRequest(http.MethodGet, "/attachments/"+attachment.ID.String()+"/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "steps.txt")
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
}

func TestDownloadAttachment_ImageServedInline(t *testing.T) {
	router, _ := setupAttachmentRouter(t)
	attachment := uploadOne(t, router, uuid.New(), multipartFile{
		name: "shot.jpg", contentType: "image/jpeg", content: []byte{0xFF, 0xD8, 0xFF, 0xE0},
	})

	req := httptest.NewRequest(http.MethodGet, "/attachments/"+attachment.ID.String()+"/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
}

func TestDownloadAttachment_NotFound(t *testing.T) {
	router, _ := setupAttachmentRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/attachments/"+uuid.New().String()+"/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadAttachment_InvalidID(t *testing.T) {
	router, _ := setupAttachmentRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/attachments/not-a-uuid/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBugAttachments(t *testing.T) {
	router, _ := setupAttachmentRouter(t)
	bugID := uuid.New()

	uploadOne(t, router, bugID, multipartFile{name: "a.txt", contentType: "text/plain", content: []byte("a")})
	uploadOne(t, router, bugID, multipartFile{name: "b.txt", contentType: "text/plain", content: []byte("b")})
	uploadOne(t, router, uuid.New(), multipartFile{name: "other.txt", contentType: "text/plain", content: []byte("o")})

	req := httptest.NewRequest(http.MethodGet, "/bugs/"+bugID.String()+"/attachments", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data domain.AttachmentListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Total)
	for _, a := range resp.Data.Attachments {
		assert.Equal(t, bugID, a.BugID)
	}
}

func TestDeleteAttachment_Idempotent(t *testing.T) {
	router, _ := setupAttachmentRouter(t)
	attachment := uploadOne(t, router, uuid.New(), multipartFile{
		name: "doomed.txt", contentType: "text/plain", content: []byte("delete me"),
	})

	req := httptest.NewRequest(http.MethodDelete, "/attachments/"+attachment.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data["deleted"])

	// Second delete converges to deleted=false
	req = httptest.NewRequest(http.MethodDelete, "/attachments/"+attachment.ID.String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data["deleted"])

	// Download after delete is gone
	req = httptest.NewRequest(http.MethodGet, "/attachments/"+attachment.ID.String()+"/download", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAttachment_InvalidID(t *testing.T) {
	router, _ := setupAttachmentRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/attachments/not-a-uuid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
