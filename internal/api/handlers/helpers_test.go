package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vitalchain-project/backend/internal/models"
	"github.com/vitalchain-project/backend/internal/services"
)

// memoryStore implements services.UserStore in memory.
type memoryStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	files    map[uuid.UUID][]models.HealthFile
	analyses map[uuid.UUID][]models.AnalysisRecord
	images   map[uuid.UUID][]models.ImageAnalysisRecord
}

var _ services.UserStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    map[string]*models.User{},
		files:    map[uuid.UUID][]models.HealthFile{},
		analyses: map[uuid.UUID][]models.AnalysisRecord{},
		images:   map[uuid.UUID][]models.ImageAnalysisRecord{},
	}
}

func (s *memoryStore) add(wallet string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: uuid.New(), WalletAddress: strings.ToLower(wallet)}
	s.users[u.WalletAddress] = u
	return u
}

func (s *memoryStore) FindByWallet(_ context.Context, wallet string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[strings.ToLower(wallet)]; ok {
		return u, nil
	}
	return nil, services.ErrUserNotFound
}

func (s *memoryStore) FindOrCreate(ctx context.Context, wallet string) (*models.User, bool, error) {
	if u, err := s.FindByWallet(ctx, wallet); err == nil {
		return u, false, nil
	}
	return s.add(wallet), true, nil
}

func (s *memoryStore) ListHealthFiles(_ context.Context, id uuid.UUID) ([]models.HealthFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[id], nil
}

func (s *memoryStore) ListAnalyses(_ context.Context, id uuid.UUID, _ int) ([]models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyses[id], nil
}

func (s *memoryStore) ListImageAnalyses(_ context.Context, id uuid.UUID, _ int) ([]models.ImageAnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[id], nil
}

func (s *memoryStore) AppendHealthFile(_ context.Context, id uuid.UUID, f *models.HealthFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = append(s.files[id], *f)
	return nil
}

func (s *memoryStore) AppendAnalysis(_ context.Context, id uuid.UUID, r *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[id] = append(s.analyses[id], *r)
	return nil
}

func (s *memoryStore) AppendImageAnalysis(_ context.Context, id uuid.UUID, r *models.ImageAnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[id] = append(s.images[id], *r)
	return nil
}

func newTestIssuer(t *testing.T) *services.SessionIssuer {
	t.Helper()
	issuer, err := services.NewSessionIssuer("handler-secret", time.Hour)
	require.NoError(t, err)
	return issuer
}

func bearer(t *testing.T, issuer *services.SessionIssuer, wallet string) string {
	t.Helper()
	token, _, err := issuer.Issue(wallet)
	require.NoError(t, err)
	return "Bearer " + token
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{BodyLimit: 10 << 20})
}

func doJSON(t *testing.T, app *fiber.App, method, path, auth string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return send(t, app, req)
}

func doMultipart(t *testing.T, app *fiber.App, path, auth, field, filename, contentType string, data []byte) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, w.WriteField("note", "no file here"))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return send(t, app, req)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}
