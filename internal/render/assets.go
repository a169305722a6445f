package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AssetStore persists one rendered snapshot and returns a locator usable
// inside outbound message bodies.
type AssetStore interface {
	Put(ctx context.Context, gameID, name string, data []byte) (string, error)
}

// FileAssetStore writes snapshots under a directory served by the tracker
// platform (the repository's own raw-content URL in the original setup).
type FileAssetStore struct {
	Dir     string
	BaseURL string
}

func NewFileAssetStore(dir, baseURL string) *FileAssetStore {
	return &FileAssetStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *FileAssetStore) Put(ctx context.Context, gameID, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := filepath.Join("game-"+strings.TrimSpace(gameID), name)
	path := filepath.Join(s.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	if s.BaseURL == "" {
		return path, nil
	}
	return s.BaseURL + "/" + filepath.ToSlash(rel), nil
}
