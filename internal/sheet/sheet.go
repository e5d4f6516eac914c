// Package sheet mounts a single plan sheet page: it resolves and loads the
// page raster, owns the annotation state and the rendering surface, and
// forwards committed edits to the persistence collaborator.
//
// A Sheet is safe for concurrent use. All state changes, including loader
// completions, are serialized on the sheet's mutex.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/ironsheep/plansheet-mcp/internal/annotate"
	"github.com/ironsheep/plansheet-mcp/internal/geometry"
	"github.com/ironsheep/plansheet-mcp/internal/imaging"
	"github.com/ironsheep/plansheet-mcp/internal/logging"
	"github.com/ironsheep/plansheet-mcp/internal/overlay"
	"github.com/ironsheep/plansheet-mcp/internal/render"
)

var (
	// ErrClosed is returned by every operation on a closed sheet.
	ErrClosed = errors.New("sheet is closed")

	// ErrNotLoaded is returned by operations that need the raster.
	ErrNotLoaded = errors.New("sheet raster is not loaded")
)

// PageRecord is the page as delivered by the backend.
type PageRecord struct {
	ID        string                     `json:"id"`
	ImageURLs imaging.ImageDescriptor    `json:"image_urls"`
	Geometry  *overlay.FeatureCollection `json:"geometry,omitempty"`
}

// Persister saves a page's overlay after every committed mutation.
type Persister interface {
	SaveOverlay(ctx context.Context, pageID string, fc overlay.FeatureCollection) error
}

// PersisterFunc adapts a function to the Persister interface.
type PersisterFunc func(ctx context.Context, pageID string, fc overlay.FeatureCollection) error

// SaveOverlay calls f.
func (f PersisterFunc) SaveOverlay(ctx context.Context, pageID string, fc overlay.FeatureCollection) error {
	return f(ctx, pageID, fc)
}

// Config wires a sheet to its collaborators.
type Config struct {
	Tier imaging.Tier

	// Loader carries the fetcher, refresher and timing. Its callbacks are
	// replaced by the sheet.
	Loader imaging.LoaderConfig

	Persister Persister
	OnSelect  func(pageID, featureID string)

	Style   *render.Style
	Machine annotate.Options
}

// Sheet is a mounted page.
type Sheet struct {
	mu sync.Mutex

	id       string
	desc     imaging.ImageDescriptor
	res      imaging.Resolution
	resErr   error
	closed   bool
	raster   image.Image
	stale    bool
	events   []Event
	pending  *overlay.FeatureCollection
	persist  Persister
	onSelect func(pageID, featureID string)
	opts     annotate.Options

	loader     *imaging.Loader
	machine    *annotate.Machine
	dispatcher *annotate.Dispatcher
	pipeline   *render.Pipeline
}

// Open mounts rec and starts loading its raster at cfg.Tier. The load runs in
// the background; Status reports its progress.
func Open(rec PageRecord, cfg Config) (*Sheet, error) {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return nil, fmt.Errorf("page id is required")
	}

	fc := overlay.FeatureCollection{Features: []overlay.Feature{}}
	if rec.Geometry != nil {
		if err := rec.Geometry.Validate(); err != nil {
			return nil, fmt.Errorf("invalid page geometry: %w", err)
		}
		fc = rec.Geometry.Clone()
	}

	style := render.DefaultStyle()
	if cfg.Style != nil {
		style = *cfg.Style
	}
	pipeline, err := render.NewPipeline(style)
	if err != nil {
		return nil, err
	}

	tier := cfg.Tier
	if tier == "" {
		tier = imaging.TierPreview
	}

	s := &Sheet{
		id:       id,
		desc:     rec.ImageURLs,
		persist:  cfg.Persister,
		onSelect: cfg.OnSelect,
		opts:     cfg.Machine,
		pipeline: pipeline,
	}
	s.newMachine(fc)

	lc := cfg.Loader
	lc.OnLoaded = s.handleLoaded
	lc.OnError = s.handleLoadError
	s.loader = imaging.NewLoader(lc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mountLocked(tier)
	return s, nil
}

// ID returns the page id.
func (s *Sheet) ID() string { return s.id }

// Close cancels any in-flight load and releases the surface.
func (s *Sheet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.loader.Close()
	if err := s.pipeline.Close(); err != nil {
		logging.Logger().Debug("closing surface", "page", s.id, "err", err)
	}
	s.raster = nil
}

// newMachine replaces the annotation state with a fresh machine over fc.
func (s *Sheet) newMachine(fc overlay.FeatureCollection) {
	s.machine = annotate.NewMachine(fc, s.opts)
	s.dispatcher = annotate.NewDispatcher(s.machine)
	s.machine.OnChange(func(annotate.Change) { s.stale = true })
	s.machine.OnCommit(s.handleCommit)
	s.machine.OnSelect(s.handleSelect)
	s.stale = true
}

// mountLocked resolves tier and, when the URL changed, drops the current
// raster and starts loading the new one.
func (s *Sheet) mountLocked(tier imaging.Tier) {
	res, err := imaging.Resolve(s.desc, tier)
	prev := s.res.URL
	s.res, s.resErr = res, err
	if err != nil {
		logging.Logger().Warn("no image url for page", "page", s.id, "tier", tier)
		s.raster = nil
		s.machine.SetRasterLoaded(false)
		return
	}
	if res.URL == prev {
		switch s.loader.Status().State {
		case imaging.StateLoading, imaging.StateLoaded:
			return
		}
	}

	s.raster = nil
	s.machine.SetRasterLoaded(false)
	if err := s.loader.Load(s.id, res.URL); err != nil {
		s.resErr = err
	}
}

func (s *Sheet) handleLoaded(r imaging.LoadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || r.Epoch != s.loader.Epoch() {
		return
	}
	s.raster = r.Image
	s.machine.SetRasterLoaded(true)
	s.addEventLocked(Event{Kind: EventLoaded, URL: r.URL})
}

func (s *Sheet) handleLoadError(st imaging.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || st.Epoch != s.loader.Epoch() {
		return
	}
	s.raster = nil
	s.machine.SetRasterLoaded(false)
	s.addEventLocked(Event{Kind: EventLoadError, Error: st.Error})
}

func (s *Sheet) handleCommit(fc overlay.FeatureCollection) {
	s.pending = &fc
	s.addEventLocked(Event{Kind: EventCommit, Features: fc.Len()})
}

func (s *Sheet) handleSelect(featureID string) {
	s.addEventLocked(Event{Kind: EventSelection, FeatureID: featureID})
	if s.onSelect != nil {
		s.onSelect(s.id, featureID)
	}
}

// flushLocked hands the latest committed collection to the persister.
// Failures are logged and reported as events; the edit itself stands.
func (s *Sheet) flushLocked(ctx context.Context) {
	if s.pending == nil {
		return
	}
	fc := *s.pending
	s.pending = nil
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveOverlay(ctx, s.id, fc); err != nil {
		logging.Logger().Warn("save overlay failed", "page", s.id, "err", err)
		s.addEventLocked(Event{Kind: EventPersistError, Error: err.Error()})
	}
}

// do runs fn under the lock, then persists any commit it produced.
func (s *Sheet) do(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := fn()
	s.flushLocked(ctx)
	return err
}

// remountLocked mounts tier and, when the resolved URL changed, starts the
// annotation state over with the current features and empty history.
func (s *Sheet) remountLocked(tier imaging.Tier) error {
	prev := s.res.URL
	s.mountLocked(tier)
	if s.res.URL != prev {
		s.newMachine(s.machine.Features())
	}
	return s.resErr
}

// SetImageURLs replaces the page's image descriptor. When the resolved URL
// changes the sheet is remounted: the raster reloads and the annotation state
// starts over.
func (s *Sheet) SetImageURLs(desc imaging.ImageDescriptor) error {
	return s.do(context.Background(), func() error {
		s.desc = desc
		return s.remountLocked(s.res.Requested)
	})
}

// SetTier re-resolves the raster at tier. A tier that resolves to a
// different URL remounts the sheet like SetImageURLs.
func (s *Sheet) SetTier(tier imaging.Tier) error {
	return s.do(context.Background(), func() error {
		return s.remountLocked(tier)
	})
}

// Retry restarts the raster load with a fresh attempt counter.
func (s *Sheet) Retry() error {
	return s.do(context.Background(), func() error {
		if s.resErr != nil && s.res.URL == "" {
			return s.resErr
		}
		s.raster = nil
		s.machine.SetRasterLoaded(false)
		return s.loader.Retry()
	})
}

// SetGeometry replaces the collection from a fresh page record. History is
// cleared and nothing is persisted.
func (s *Sheet) SetGeometry(fc overlay.FeatureCollection) error {
	if err := fc.Validate(); err != nil {
		return err
	}
	return s.do(context.Background(), func() error {
		s.machine.LoadCollection(fc)
		return nil
	})
}

// Raster returns the loaded raster, or nil.
func (s *Sheet) Raster() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raster
}

// Features returns a copy of the current collection.
func (s *Sheet) Features() overlay.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Features()
}

// Status describes the sheet.
type Status struct {
	PageID      string               `json:"page_id"`
	Requested   imaging.Tier         `json:"requested_tier"`
	Tier        imaging.Tier         `json:"tier,omitempty"`
	Fallback    bool                 `json:"fallback"`
	Loader      imaging.Status       `json:"loader"`
	Canvas      annotate.CanvasState `json:"canvas"`
	NeedsRedraw bool                 `json:"needs_redraw"`
	Error       string               `json:"error,omitempty"`
}

// Status returns a snapshot of the sheet.
func (s *Sheet) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		PageID:      s.id,
		Requested:   s.res.Requested,
		Tier:        s.res.Tier,
		Fallback:    s.res.URL != "" && s.res.Fallback(),
		Loader:      s.loader.Status(),
		Canvas:      s.machine.State(),
		NeedsRedraw: s.stale,
	}
	if s.resErr != nil {
		st.Error = s.resErr.Error()
	} else if st.Loader.Error != "" {
		st.Error = st.Loader.Error
	}
	return st
}

// Drain returns and clears the events emitted since the last call.
func (s *Sheet) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

// pointerSurface sizes the surface element's backing store to the raster.
func (s *Sheet) pointerSurface(el geometry.SurfaceElement) geometry.SurfaceElement {
	if s.raster != nil {
		b := s.raster.Bounds()
		el.BackingWidth, el.BackingHeight = b.Dx(), b.Dy()
	}
	return el
}
