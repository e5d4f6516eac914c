package sheet

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/plansheet-mcp/internal/annotate"
	"github.com/ironsheep/plansheet-mcp/internal/geometry"
	"github.com/ironsheep/plansheet-mcp/internal/imaging"
	"github.com/ironsheep/plansheet-mcp/internal/overlay"
)

const (
	previewURL = "https://cdn.example.com/p1/preview.png"
	fullURL    = "https://cdn.example.com/p1/full.png"
)

func createRaster(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}
	return img
}

func square(x, y, size float64) []geometry.Point {
	return []geometry.Point{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}}
}

// rasterFetcher serves fixed rasters by URL.
func rasterFetcher(rasters map[string]image.Image) imaging.Fetcher {
	return imaging.FetcherFunc(func(ctx context.Context, u string) (image.Image, error) {
		if img, ok := rasters[u]; ok {
			return img, nil
		}
		return nil, errors.New("not found")
	})
}

// memoryPersister records every saved collection.
type memoryPersister struct {
	mu    sync.Mutex
	saves []overlay.FeatureCollection
}

func (p *memoryPersister) SaveOverlay(ctx context.Context, pageID string, fc overlay.FeatureCollection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, fc)
	return nil
}

func (p *memoryPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

func (p *memoryPersister) last() overlay.FeatureCollection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves[len(p.saves)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitLoaded(t *testing.T, s *Sheet) {
	t.Helper()
	waitFor(t, "raster load", func() bool { return s.Status().Canvas.RasterLoaded })
}

func openTestSheet(t *testing.T, geom *overlay.FeatureCollection, cfg Config) *Sheet {
	t.Helper()
	if cfg.Loader.Fetcher == nil {
		cfg.Loader.Fetcher = rasterFetcher(map[string]image.Image{
			previewURL: createRaster(400, 300),
			fullURL:    createRaster(800, 600),
		})
	}
	s, err := Open(PageRecord{
		ID:        "p1",
		ImageURLs: imaging.ImageDescriptor{Preview: previewURL, Full: fullURL},
		Geometry:  geom,
	}, cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func pointerAt(x, y float64) geometry.PointerEvent {
	return geometry.PointerEvent{ClientX: x, ClientY: y}
}

func TestSheet_DrawPersistsCommit(t *testing.T) {
	persister := &memoryPersister{}
	s := openTestSheet(t, nil, Config{Persister: persister})
	waitLoaded(t, s)
	ctx := context.Background()

	if err := s.SetTool(annotate.ToolPolygon); err != nil {
		t.Fatalf("SetTool failed: %v", err)
	}
	for _, p := range [][2]float64{{10, 10}, {110, 10}, {110, 110}, {10, 110}} {
		if _, err := s.Pointer(ctx, annotate.PhaseDown, pointerAt(p[0], p[1]), geometry.SurfaceElement{}); err != nil {
			t.Fatalf("Pointer failed: %v", err)
		}
	}
	if persister.count() != 0 {
		t.Error("in-progress drawing must not be persisted")
	}
	if err := s.FinishDrawing(ctx); err != nil {
		t.Fatalf("FinishDrawing failed: %v", err)
	}

	if persister.count() != 1 {
		t.Fatalf("saves: got %d, want 1", persister.count())
	}
	if got := persister.last().Len(); got != 1 {
		t.Errorf("saved features: got %d, want 1", got)
	}

	undone, err := s.Undo(ctx)
	if err != nil || !undone {
		t.Fatalf("Undo = %v, %v", undone, err)
	}
	if persister.count() != 2 || persister.last().Len() != 0 {
		t.Error("undo should persist the restored collection")
	}

	var commits int
	for _, e := range s.Drain() {
		if e.Kind == EventCommit {
			commits++
		}
	}
	if commits != 2 {
		t.Errorf("commit events: got %d, want 2", commits)
	}
	if len(s.Drain()) != 0 {
		t.Error("Drain should clear the queue")
	}
}

func TestSheet_SelectionCallback(t *testing.T) {
	geom := &overlay.FeatureCollection{Features: []overlay.Feature{
		{ID: "wall_1", Type: "wall", Included: true, Ring: square(100, 100, 100)},
	}}
	var gotPage, gotFeature string
	s := openTestSheet(t, geom, Config{OnSelect: func(pageID, featureID string) {
		gotPage, gotFeature = pageID, featureID
	}})
	waitLoaded(t, s)
	ctx := context.Background()

	if _, err := s.Pointer(ctx, annotate.PhaseDown, pointerAt(150, 150), geometry.SurfaceElement{}); err != nil {
		t.Fatalf("Pointer failed: %v", err)
	}
	if gotPage != "p1" || gotFeature != "wall_1" {
		t.Errorf("selection callback: got (%q, %q), want (p1, wall_1)", gotPage, gotFeature)
	}
	if s.Status().Canvas.Selected != "wall_1" {
		t.Error("wall_1 should be selected")
	}

	if _, err := s.Pointer(ctx, annotate.PhaseDown, pointerAt(390, 290), geometry.SurfaceElement{}); err != nil {
		t.Fatalf("Pointer failed: %v", err)
	}
	if s.Status().Canvas.Selected != "" {
		t.Error("miss should clear the selection")
	}
}

func TestSheet_IgnoresPointerUntilLoaded(t *testing.T) {
	release := make(chan struct{})
	fetcher := imaging.FetcherFunc(func(ctx context.Context, u string) (image.Image, error) {
		select {
		case <-release:
			return createRaster(50, 50), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	s := openTestSheet(t, nil, Config{Loader: imaging.LoaderConfig{Fetcher: fetcher}})

	if err := s.SetTool(annotate.ToolPolygon); err != nil {
		t.Fatalf("SetTool failed: %v", err)
	}
	res, err := s.Pointer(context.Background(), annotate.PhaseDown, pointerAt(5, 5), geometry.SurfaceElement{})
	if err != nil {
		t.Fatalf("Pointer failed: %v", err)
	}
	if res.Handled {
		t.Error("pointer should be ignored while loading")
	}
	if _, err := s.Render(RenderOptions{}); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Render before load: expected ErrNotLoaded, got %v", err)
	}

	close(release)
	waitLoaded(t, s)
	res, _ = s.Pointer(context.Background(), annotate.PhaseDown, pointerAt(5, 5), geometry.SurfaceElement{})
	if !res.Handled {
		t.Error("pointer should be handled once loaded")
	}
}

func TestSheet_LoadErrorAndRetry(t *testing.T) {
	var mu sync.Mutex
	fail := true
	fetcher := imaging.FetcherFunc(func(ctx context.Context, u string) (image.Image, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errors.New("connection refused")
		}
		return createRaster(20, 20), nil
	})
	s := openTestSheet(t, nil, Config{Loader: imaging.LoaderConfig{Fetcher: fetcher}})

	waitFor(t, "load error", func() bool { return s.Status().Loader.State == imaging.StateError })
	st := s.Status()
	if st.Error == "" {
		t.Error("status should carry the load error")
	}
	if st.Canvas.RasterLoaded {
		t.Error("raster must not be marked loaded after an error")
	}

	mu.Lock()
	fail = false
	mu.Unlock()
	if err := s.Retry(); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	waitLoaded(t, s)
}

func TestSheet_SetTierReloads(t *testing.T) {
	s := openTestSheet(t, nil, Config{})
	waitLoaded(t, s)
	if got := s.Status().Loader.URL; got != previewURL {
		t.Fatalf("initial url: got %s, want preview", got)
	}

	if err := s.SetTier(imaging.TierFull); err != nil {
		t.Fatalf("SetTier failed: %v", err)
	}
	waitFor(t, "full tier", func() bool {
		st := s.Status()
		return st.Canvas.RasterLoaded && st.Loader.URL == fullURL
	})
	if img := s.Raster(); img == nil || img.Bounds().Dx() != 800 {
		t.Error("full raster should be mounted")
	}

	if err := s.SetTier(imaging.TierThumbnail); err != nil {
		t.Fatalf("SetTier failed: %v", err)
	}
	st := s.Status()
	if st.Tier != imaging.TierPreview || !st.Fallback {
		t.Errorf("thumbnail should fall back to preview, got tier=%s fallback=%v", st.Tier, st.Fallback)
	}
}

func TestSheet_RenderAndInfo(t *testing.T) {
	geom := &overlay.FeatureCollection{Features: []overlay.Feature{
		{ID: "wall_1", Type: "wall", Included: true, Ring: square(100, 100, 100)},
	}}
	s := openTestSheet(t, geom, Config{})
	waitLoaded(t, s)

	out, err := s.Render(RenderOptions{Container: geometry.Size{Width: 200, Height: 200}})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out.Frame.Width != 400 || out.Frame.Features != 1 {
		t.Errorf("frame: %+v", out.Frame)
	}
	if out.Viewport.Width != 200 || out.Viewport.Height != 150 {
		t.Errorf("viewport: got %dx%d, want 200x150", out.Viewport.Width, out.Viewport.Height)
	}
	if s.Status().NeedsRedraw {
		t.Error("rendering should clear the redraw flag")
	}

	if err := s.Select("wall_1"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	info, err := s.Info("")
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Feature.ID != "wall_1" || !info.Selected {
		t.Errorf("info: %+v", info)
	}
	if info.Measurement.AreaPixels != 10000 {
		t.Errorf("area: got %v, want 10000", info.Measurement.AreaPixels)
	}
	if _, err := s.Info("ghost"); !errors.Is(err, overlay.ErrFeatureNotFound) {
		t.Errorf("expected ErrFeatureNotFound, got %v", err)
	}
}

func TestSheet_Closed(t *testing.T) {
	s := openTestSheet(t, nil, Config{})
	s.Close()

	if err := s.SetTool(annotate.ToolPan); !errors.Is(err, ErrClosed) {
		t.Errorf("SetTool after close: expected ErrClosed, got %v", err)
	}
	if _, err := s.Render(RenderOptions{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Render after close: expected ErrClosed, got %v", err)
	}
}

func TestOpen_Rejects(t *testing.T) {
	if _, err := Open(PageRecord{}, Config{}); err == nil {
		t.Error("expected error for empty page id")
	}

	bad := &overlay.FeatureCollection{Features: []overlay.Feature{
		{ID: "a", Ring: square(0, 0, 1)},
		{ID: "a", Ring: square(5, 5, 1)},
	}}
	_, err := Open(PageRecord{ID: "p1", Geometry: bad}, Config{Loader: imaging.LoaderConfig{Fetcher: rasterFetcher(nil)}})
	if !errors.Is(err, overlay.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestOpen_NoImageURL(t *testing.T) {
	s, err := Open(PageRecord{ID: "p1"}, Config{Loader: imaging.LoaderConfig{Fetcher: rasterFetcher(nil)}})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	st := s.Status()
	if st.Error == "" || st.Canvas.RasterLoaded {
		t.Errorf("sheet without urls should report an error, got %+v", st)
	}
	if err := s.Retry(); !errors.Is(err, imaging.ErrNoImageURL) {
		t.Errorf("Retry: expected ErrNoImageURL, got %v", err)
	}
}

func TestSheet_SetImageURLs(t *testing.T) {
	otherURL := "https://cdn.example.com/p1/v2.png"
	s := openTestSheet(t, nil, Config{Loader: imaging.LoaderConfig{Fetcher: rasterFetcher(map[string]image.Image{
		previewURL: createRaster(400, 300),
		otherURL:   createRaster(200, 100),
	})}})
	waitLoaded(t, s)

	if err := s.SetImageURLs(imaging.ImageDescriptor{Preview: previewURL}); err != nil {
		t.Fatalf("SetImageURLs failed: %v", err)
	}
	if !s.Status().Canvas.RasterLoaded {
		t.Error("an unchanged url should not reload")
	}

	if err := s.SetImageURLs(imaging.ImageDescriptor{Legacy: otherURL}); err != nil {
		t.Fatalf("SetImageURLs failed: %v", err)
	}
	waitFor(t, "new image", func() bool {
		img := s.Raster()
		return img != nil && img.Bounds().Dx() == 200
	})
	st := s.Status()
	if st.Tier != imaging.TierLegacy || !st.Fallback {
		t.Errorf("legacy url: got tier=%s fallback=%v", st.Tier, st.Fallback)
	}

	if err := s.SetImageURLs(imaging.ImageDescriptor{}); !errors.Is(err, imaging.ErrNoImageURL) {
		t.Errorf("empty descriptor: expected ErrNoImageURL, got %v", err)
	}
	if s.Raster() != nil {
		t.Error("raster should be dropped when no url remains")
	}
}

func TestSheet_SetGeometry(t *testing.T) {
	persister := &memoryPersister{}
	s := openTestSheet(t, nil, Config{Persister: persister})
	waitLoaded(t, s)

	fc := overlay.FeatureCollection{Features: []overlay.Feature{
		{ID: "room_1", Type: "room", Included: true, Ring: square(0, 0, 50)},
	}}
	if err := s.SetGeometry(fc); err != nil {
		t.Fatalf("SetGeometry failed: %v", err)
	}
	if s.Features().Len() != 1 {
		t.Error("geometry should be replaced")
	}
	if persister.count() != 0 {
		t.Error("loading geometry is not a commit")
	}
	if undone, _ := s.Undo(context.Background()); undone {
		t.Error("history should be cleared by SetGeometry")
	}

	bad := overlay.FeatureCollection{Features: []overlay.Feature{{ID: "", Ring: square(0, 0, 1)}}}
	if err := s.SetGeometry(bad); err == nil {
		t.Error("invalid geometry should be rejected")
	}
}

func TestSheet_SetImageURLsResetsState(t *testing.T) {
	otherURL := "https://cdn.example.com/p1/v2.png"
	s := openTestSheet(t, nil, Config{Loader: imaging.LoaderConfig{Fetcher: rasterFetcher(map[string]image.Image{
		previewURL: createRaster(400, 300),
		otherURL:   createRaster(400, 300),
	})}})
	waitLoaded(t, s)
	ctx := context.Background()

	if err := s.SetTool(annotate.ToolRectangle); err != nil {
		t.Fatal(err)
	}
	s.Pointer(ctx, annotate.PhaseDown, pointerAt(10, 10), geometry.SurfaceElement{})
	s.Pointer(ctx, annotate.PhaseUp, pointerAt(60, 40), geometry.SurfaceElement{})
	if _, err := s.ZoomIn(); err != nil {
		t.Fatal(err)
	}

	if err := s.SetImageURLs(imaging.ImageDescriptor{Preview: otherURL}); err != nil {
		t.Fatalf("SetImageURLs failed: %v", err)
	}
	st := s.Status()
	if st.Canvas.FeatureCount != 1 {
		t.Errorf("features should survive a remount, got %d", st.Canvas.FeatureCount)
	}
	if st.Canvas.Tool != annotate.ToolSelect || st.Canvas.Scale != 1 || st.Canvas.UndoDepth != 0 {
		t.Errorf("canvas state should start over: %+v", st.Canvas)
	}
	waitLoaded(t, s)
}

func TestSheet_SetTierResetsState(t *testing.T) {
	geom := &overlay.FeatureCollection{Features: []overlay.Feature{
		{ID: "wall_1", Type: "wall", Included: true, Ring: square(100, 100, 100)},
	}}
	s := openTestSheet(t, geom, Config{})
	waitLoaded(t, s)
	ctx := context.Background()

	if err := s.ToggleInclusion(ctx, "wall_1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Select("wall_1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTool(annotate.ToolEdit); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ZoomIn(); err != nil {
		t.Fatal(err)
	}

	// Same URL: nothing is remounted.
	if err := s.SetTier(imaging.TierPreview); err != nil {
		t.Fatalf("SetTier failed: %v", err)
	}
	if st := s.Status().Canvas; st.UndoDepth != 1 || st.Selected != "wall_1" || st.Tool != annotate.ToolEdit {
		t.Errorf("unchanged url should keep canvas state: %+v", st)
	}

	if err := s.SetTier(imaging.TierFull); err != nil {
		t.Fatalf("SetTier failed: %v", err)
	}
	st := s.Status()
	if st.Loader.URL != fullURL {
		t.Fatalf("url: got %s, want full", st.Loader.URL)
	}
	if st.Canvas.UndoDepth != 0 || st.Canvas.RedoDepth != 0 {
		t.Errorf("history should start over: undo=%d redo=%d", st.Canvas.UndoDepth, st.Canvas.RedoDepth)
	}
	if st.Canvas.Selected != "" || st.Canvas.Tool != annotate.ToolSelect || st.Canvas.Scale != 1 {
		t.Errorf("canvas state should start over: %+v", st.Canvas)
	}
	if fc := s.Features(); fc.Len() != 1 || fc.Features[0].Included {
		t.Errorf("features should survive a tier change: %+v", fc)
	}
	waitLoaded(t, s)
}
