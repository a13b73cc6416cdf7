package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fundtrace/internal/domain"
)

// FileStore keeps evidence files (receipts, before/after photos) on the local
// filesystem and serves them under a public base URL. It is intended for
// development and small deployments where an object store is not available.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath whose files are
// reachable under baseURL.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Put stores an evidence file under kind/yyyy/mm/<uuid><ext> and returns its
// public URL.
func (s *FileStore) Put(ctx context.Context, kind, filename string, data []byte, now time.Time) (string, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case "receipt", "before", "after":
	default:
		return "", domain.NewValidationError("kind", "oneof=receipt before after")
	}
	if len(data) == 0 {
		return "", domain.NewValidationError("file", "required")
	}
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, "\\", "/")))
	key := fmt.Sprintf("%s/%s/%s%s", kind, now.UTC().Format("2006/01"), uuid.NewString(), ext)
	stored, err := s.Write(ctx, key, data)
	if err != nil {
		return "", err
	}
	return s.URL(stored), nil
}

// URL maps a storage key to its public URL.
func (s *FileStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
