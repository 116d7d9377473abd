package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"attachment-service/internal/domain"
)

// MockAttachmentRepository is a mock implementation of AttachmentRepository
type MockAttachmentRepository struct {
	CreateFunc      func(ctx context.Context, attachment *domain.Attachment) error
	FindByIDFunc    func(ctx context.Context, id uuid.UUID) (*domain.Attachment, error)
	FindByBugIDFunc func(ctx context.Context, bugID uuid.UUID) ([]*domain.Attachment, error)
	FindAllFunc     func(ctx context.Context) ([]*domain.Attachment, error)
	DeleteFunc      func(ctx context.Context, id uuid.UUID) (bool, error)
}

func (m *MockAttachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, attachment)
	}
	return nil
}

func (m *MockAttachmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Attachment, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *MockAttachmentRepository) FindByBugID(ctx context.Context, bugID uuid.UUID) ([]*domain.Attachment, error) {
	if m.FindByBugIDFunc != nil {
		return m.FindByBugIDFunc(ctx, bugID)
	}
	return nil, nil
}

func (m *MockAttachmentRepository) FindAll(ctx context.Context) ([]*domain.Attachment, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx)
	}
	return nil, nil
}

func (m *MockAttachmentRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return false, nil
}

// memoryAttachmentRepository backs the mock with a map so lifecycle tests
// can exercise the full upload/read/delete sequence without a database.
type memoryAttachmentRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.Attachment
}

func newMemoryAttachmentRepository() (*memoryAttachmentRepository, *MockAttachmentRepository) {
	mem := &memoryAttachmentRepository{records: make(map[uuid.UUID]*domain.Attachment)}
	mock := &MockAttachmentRepository{
		CreateFunc:      mem.create,
		FindByIDFunc:    mem.findByID,
		FindByBugIDFunc: mem.findByBugID,
		FindAllFunc:     mem.findAll,
		DeleteFunc:      mem.delete,
	}
	return mem, mock
}

func (m *memoryAttachmentRepository) create(_ context.Context, attachment *domain.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *attachment
	m.records[attachment.ID] = &copied
	return nil
}

func (m *memoryAttachmentRepository) findByID(_ context.Context, id uuid.UUID) (*domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attachment, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *attachment
	return &copied, nil
}

func (m *memoryAttachmentRepository) findByBugID(_ context.Context, bugID uuid.UUID) ([]*domain.Attachment, error) {
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

func (m *memoryAttachmentRepository) findAll(_ context.Context) ([]*domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Attachment, 0, len(m.records))
	for _, attachment := range m.records {
		copied := *attachment
		result = append(result, &copied)
	}
	return result, nil
}

func (m *memoryAttachmentRepository) delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *memoryAttachmentRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
