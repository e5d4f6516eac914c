package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ironsheep/plansheet-mcp/internal/overlay"
)

// OverlayStore persists committed overlays and returns them when a page is
// reopened without geometry.
type OverlayStore interface {
	SaveOverlay(ctx context.Context, pageID string, fc overlay.FeatureCollection) error
	LoadOverlay(ctx context.Context, pageID string) (overlay.FeatureCollection, bool, error)
}

// MemoryOverlayStore keeps overlays for the lifetime of the process.
type MemoryOverlayStore struct {
	mu    sync.RWMutex
	pages map[string]overlay.FeatureCollection
}

// NewMemoryOverlayStore creates an empty store.
func NewMemoryOverlayStore() *MemoryOverlayStore {
	return &MemoryOverlayStore{pages: make(map[string]overlay.FeatureCollection)}
}

func (m *MemoryOverlayStore) SaveOverlay(ctx context.Context, pageID string, fc overlay.FeatureCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageID] = fc.Clone()
	return nil
}

func (m *MemoryOverlayStore) LoadOverlay(ctx context.Context, pageID string) (overlay.FeatureCollection, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fc, ok := m.pages[pageID]
	if !ok {
		return overlay.FeatureCollection{}, false, nil
	}
	return fc.Clone(), true, nil
}

// FileOverlayStore writes each page's overlay to <Dir>/<pageID>.json.
type FileOverlayStore struct {
	Dir string
}

func (f FileOverlayStore) path(pageID string) (string, error) {
	if pageID == "" || strings.ContainsAny(pageID, `/\`) || pageID == "." || pageID == ".." {
		return "", fmt.Errorf("invalid page id for overlay file: %q", pageID)
	}
	return filepath.Join(f.Dir, pageID+".json"), nil
}

// SaveOverlay writes the collection through a temp file and rename so a
// reader never sees a partial overlay.
func (f FileOverlayStore) SaveOverlay(ctx context.Context, pageID string, fc overlay.FeatureCollection) error {
	path, err := f.path(pageID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create overlay dir: %w", err)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode overlay: %w", err)
	}

	tmp, err := os.CreateTemp(f.Dir, pageID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create overlay file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

// LoadOverlay reads a previously saved overlay. A missing file is not an
// error.
func (f FileOverlayStore) LoadOverlay(ctx context.Context, pageID string) (overlay.FeatureCollection, bool, error) {
	path, err := f.path(pageID)
	if err != nil {
		return overlay.FeatureCollection{}, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return overlay.FeatureCollection{}, false, nil
	}
	if err != nil {
		return overlay.FeatureCollection{}, false, fmt.Errorf("failed to read overlay: %w", err)
	}
	fc, err := overlay.Decode(data)
	if err != nil {
		return overlay.FeatureCollection{}, false, fmt.Errorf("overlay file %s: %w", path, err)
	}
	return fc, true, nil
}
