package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/plansheet-mcp/internal/geometry"
	"github.com/ironsheep/plansheet-mcp/internal/overlay"
)

func testCollection() overlay.FeatureCollection {
	return overlay.FeatureCollection{Features: []overlay.Feature{{
		ID:       "wall_1",
		Type:     "wall",
		Included: true,
		Ring:     []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}},
	}}}
}

func TestFileOverlayStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "overlays")
	store := FileOverlayStore{Dir: dir}

	if _, ok, err := store.LoadOverlay(ctx, "p1"); ok || err != nil {
		t.Fatalf("missing overlay: ok=%v err=%v", ok, err)
	}

	if err := store.SaveOverlay(ctx, "p1", testCollection()); err != nil {
		t.Fatalf("SaveOverlay failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "p1.json")); err != nil {
		t.Fatalf("overlay file not written: %v", err)
	}

	got, ok, err := store.LoadOverlay(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("LoadOverlay: ok=%v err=%v", ok, err)
	}
	if !got.Equal(testCollection()) {
		t.Errorf("round trip: got %+v", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileOverlayStore_RejectsPaths(t *testing.T) {
	store := FileOverlayStore{Dir: t.TempDir()}
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if err := store.SaveOverlay(context.Background(), id, testCollection()); err == nil {
			t.Errorf("SaveOverlay(%q) should fail", id)
		}
	}
}

func TestFileOverlayStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "p1.json"), []byte(`{"features":[{"id":"a","ring":[[0,0]]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := (FileOverlayStore{Dir: dir}).LoadOverlay(context.Background(), "p1"); err == nil {
		t.Error("invalid overlay file should fail to load")
	}
}

func TestMemoryOverlayStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryOverlayStore()

	fc := testCollection()
	if err := store.SaveOverlay(ctx, "p1", fc); err != nil {
		t.Fatal(err)
	}
	fc.Features[0].Ring[0].X = 99

	got, ok, _ := store.LoadOverlay(ctx, "p1")
	if !ok || got.Features[0].Ring[0].X != 0 {
		t.Errorf("store should keep its own copy, got %+v", got)
	}
	if _, ok, _ := store.LoadOverlay(ctx, "p2"); ok {
		t.Error("unknown page should not be found")
	}
}
