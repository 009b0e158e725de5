package services

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vitalchain-project/backend/internal/models"
)

// memoryUserStore is an in-memory UserStore for service and handler tests.
type memoryUserStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	files    map[uuid.UUID][]models.HealthFile
	analyses map[uuid.UUID][]models.AnalysisRecord
	images   map[uuid.UUID][]models.ImageAnalysisRecord
	err      error
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		users:    map[string]*models.User{},
		files:    map[uuid.UUID][]models.HealthFile{},
		analyses: map[uuid.UUID][]models.AnalysisRecord{},
		images:   map[uuid.UUID][]models.ImageAnalysisRecord{},
	}
}

func (s *memoryUserStore) FindByWallet(_ context.Context, wallet string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[strings.ToLower(wallet)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *memoryUserStore) FindOrCreate(_ context.Context, wallet string) (*models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	key := strings.ToLower(wallet)
	if u, ok := s.users[key]; ok {
		return u, false, nil
	}
	u := &models.User{ID: uuid.New(), WalletAddress: key}
	s.users[key] = u
	return u, true, nil
}

func (s *memoryUserStore) ListHealthFiles(_ context.Context, id uuid.UUID) ([]models.HealthFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[id], nil
}

func (s *memoryUserStore) ListAnalyses(_ context.Context, id uuid.UUID, _ int) ([]models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyses[id], nil
}

func (s *memoryUserStore) ListImageAnalyses(_ context.Context, id uuid.UUID, _ int) ([]models.ImageAnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[id], nil
}

func (s *memoryUserStore) AppendHealthFile(_ context.Context, id uuid.UUID, f *models.HealthFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.UserID = id
	s.files[id] = append(s.files[id], *f)
	return nil
}

func (s *memoryUserStore) AppendAnalysis(_ context.Context, id uuid.UUID, r *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.UserID = id
	s.analyses[id] = append(s.analyses[id], *r)
	return nil
}

func (s *memoryUserStore) AppendImageAnalysis(_ context.Context, id uuid.UUID, r *models.ImageAnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.UserID = id
	s.images[id] = append(s.images[id], *r)
	return nil
}
