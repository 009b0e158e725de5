/**
 * @description
 * Upload lifecycle manager.
 * Stages a multipart file to a unique temp path, validates it against a route Policy,
 * runs the route's handler and always removes the temp file afterwards.
 *
 * @notes
 * - Cleanup runs on every exit path once the file exists on disk, exactly once.
 * - Cleanup failures are logged and reported to OnCleanupFailure; they never change
 *   the handler's result or error.
 */

package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/vitalchain-project/backend/internal/logger"
)

var (
	ErrNoFile          = errors.New("no file uploaded")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
)

// Error is a client-facing upload validation failure.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// StagedFile is an upload copied to local disk for the duration of one request.
type StagedFile struct {
	Path         string
	OriginalName string
	MimeType     string
	Size         int64
}

// Read returns the staged file's content.
func (f *StagedFile) Read() ([]byte, error) {
	return os.ReadFile(f.Path)
}

type Manager struct {
	dir string

	// Remove deletes a staged file. Replaceable in tests.
	Remove func(path string) error
	// OnCleanupFailure is notified when Remove fails.
	OnCleanupFailure func(path string, err error)
}

// NewManager creates the staging directory if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &Manager{dir: dir, Remove: os.Remove}, nil
}

// Dir returns the staging directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Handle stages fh, validates it against p, runs handler and cleans up.
// The handler's result and error are returned unchanged.
func Handle[T any](ctx context.Context, m *Manager, fh *multipart.FileHeader, p Policy,
	handler func(ctx context.Context, file *StagedFile) (T, error)) (result T, err error) {

	if fh == nil {
		return result, &Error{Status: http.StatusBadRequest, Message: "No file uploaded", Err: ErrNoFile}
	}

	staged, stageErr := m.stage(fh, p.MaxSize)
	if staged != nil {
		defer m.cleanup(staged.Path)
	}
	if stageErr != nil {
		return result, stageErr
	}

	if !p.Allows(staged.MimeType) {
		return result, &Error{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("Unsupported file type %q. Allowed: %s", staged.MimeType, strings.Join(p.AllowedList(), ", ")),
			Err:     ErrUnsupportedType,
		}
	}
	if staged.Size > p.MaxSize {
		return result, &Error{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("File too large. Maximum size is %dMB", p.MaxSize>>20),
			Err:     ErrFileTooLarge,
		}
	}

	return handler(ctx, staged)
}

// stage copies at most maxSize+1 bytes so oversized uploads are detected without
// writing them in full. The returned StagedFile is non-nil whenever a file was created.
func (m *Manager) stage(fh *multipart.FileHeader, maxSize int64) (*StagedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	path := filepath.Join(m.dir, uuid.NewString()+ext)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	staged := &StagedFile{Path: path, OriginalName: filepath.Base(fh.Filename)}

	written, copyErr := io.Copy(dst, io.LimitReader(src, maxSize+1))
	closeErr := dst.Close()
	if copyErr != nil {
		return staged, fmt.Errorf("failed to stage upload: %w", copyErr)
	}
	if closeErr != nil {
		return staged, fmt.Errorf("failed to stage upload: %w", closeErr)
	}

	staged.Size = written
	if fh.Size > written {
		staged.Size = fh.Size
	}
	staged.MimeType = detectMimeType(fh, path)
	return staged, nil
}

func (m *Manager) cleanup(path string) {
	remove := m.Remove
	if remove == nil {
		remove = os.Remove
	}
	if err := remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("Failed to remove temp upload %s: %v", path, err)
		if m.OnCleanupFailure != nil {
			m.OnCleanupFailure(path, err)
		}
	}
}

// detectMimeType trusts the declared part Content-Type and falls back to sniffing
// when the client sent none or a generic octet-stream.
func detectMimeType(fh *multipart.FileHeader, path string) string {
	declared := fh.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
		return strings.ToLower(mediaType)
	}

	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(head[:n]))
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}
