package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/ironsheep/plansheet-mcp/internal/geometry"
	"github.com/ironsheep/plansheet-mcp/internal/logging"
)

// State is the loader's position in Idle → Loading → Loaded | Error.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateError   State = "error"
)

// Defaults used when LoaderConfig leaves a field zero.
const (
	DefaultLoadTimeout = 30 * time.Second
	DefaultRetryBase   = 500 * time.Millisecond
	DefaultMaxAttempts = 3
)

// LoaderConfig configures a Loader. Only Fetcher is required.
type LoaderConfig struct {
	Fetcher   Fetcher
	Refresher Refresher // nil means refresh is unavailable

	Timeout     time.Duration
	RetryBase   time.Duration
	MaxAttempts int

	// Now is used for expiry checks. Defaults to time.Now.
	Now func() time.Time

	// OnLoaded and OnError are invoked from the loader's goroutines without
	// any loader lock held. A callback may arrive after a newer Load has
	// started; compare Status.Epoch against Loader.Epoch to detect that.
	OnLoaded func(LoadResult)
	OnError  func(Status)
}

// Status is a snapshot of the loader.
type Status struct {
	State       State         `json:"state"`
	PageID      string        `json:"page_id,omitempty"`
	URL         string        `json:"url,omitempty"`
	Kind        URLKind       `json:"kind,omitempty"`
	Attempt     int           `json:"attempt"`
	NaturalSize geometry.Size `json:"natural_size"`
	Error       string        `json:"error,omitempty"`
	Epoch       uint64        `json:"epoch"`

	Err error `json:"-"`
}

// LoadResult is delivered to OnLoaded.
type LoadResult struct {
	Status
	Image image.Image
}

// Loader loads one page raster at a time, refreshing signed URLs with
// exponential backoff and discarding completions from superseded requests.
//
// Every asynchronous step captures the epoch current when it was scheduled
// and does nothing if the epoch has moved on.
type Loader struct {
	cfg LoaderConfig

	mu      sync.Mutex
	epoch   uint64
	closed  bool
	state   State
	pageID  string
	url     string
	attempt int
	natural geometry.Size
	err     error

	img image.Image

	cancel       context.CancelFunc
	timeoutTimer *time.Timer
	retryTimer   *time.Timer
}

// NewLoader creates an idle loader.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLoadTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loader{cfg: cfg, state: StateIdle}
}

// Load supersedes any in-flight request and starts loading u for pageID.
func (l *Loader) Load(pageID, u string) error {
	if u == "" {
		return ErrNoImageURL
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errLoaderClosed
	}
	l.pageID = pageID
	l.url = u
	l.attempt = 0
	l.restartLocked()
	return nil
}

// Retry restarts the current request from a fresh attempt counter, whatever
// state the loader is in.
func (l *Loader) Retry() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errLoaderClosed
	}
	if l.url == "" {
		return ErrNoImageURL
	}
	l.attempt = 0
	l.restartLocked()
	return nil
}

// Close cancels any in-flight work. Completions arriving afterwards are
// dropped and further Load calls fail.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.epoch++
	l.stopLocked()
}

// Status returns a snapshot of the loader.
func (l *Loader) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked()
}

// Epoch returns the id of the current request.
func (l *Loader) Epoch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// Image returns the loaded raster, or nil unless the state is Loaded.
func (l *Loader) Image() image.Image {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateLoaded {
		return nil
	}
	return l.img
}

var errLoaderClosed = errors.New("loader is closed")

func (l *Loader) statusLocked() Status {
	st := Status{
		State:       l.state,
		PageID:      l.pageID,
		URL:         l.url,
		Attempt:     l.attempt,
		NaturalSize: l.natural,
		Epoch:       l.epoch,
		Err:         l.err,
	}
	if l.url != "" {
		st.Kind = ClassifyURL(l.url)
	}
	if l.err != nil {
		st.Error = l.err.Error()
	}
	return st
}

// stopLocked cancels the in-flight fetch and any pending timers.
func (l *Loader) stopLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.timeoutTimer != nil {
		l.timeoutTimer.Stop()
		l.timeoutTimer = nil
	}
	if l.retryTimer != nil {
		l.retryTimer.Stop()
		l.retryTimer = nil
	}
}

// restartLocked begins a new request for l.url under a fresh epoch.
func (l *Loader) restartLocked() {
	l.epoch++
	l.stopLocked()
	l.state = StateLoading
	l.err = nil
	l.img = nil
	l.natural = geometry.Size{}

	if IsExpired(l.url, l.cfg.Now()) {
		logging.Logger().Debug("signed url expired before load",
			"page", l.pageID, "err", ErrImageURLExpired)
		l.scheduleRefreshLocked(l.epoch, ErrImageURLExpired)
		return
	}
	l.fetchLocked(l.epoch)
}

// fetchLocked starts the fetch goroutine and the wall-clock timeout.
func (l *Loader) fetchLocked(epoch uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	u := l.url

	l.timeoutTimer = time.AfterFunc(l.cfg.Timeout, func() { l.handleTimeout(epoch) })

	logging.Logger().Debug("loading image", "page", l.pageID, "attempt", l.attempt, "epoch", epoch)
	go func() {
		img, err := l.cfg.Fetcher.Fetch(ctx, u)
		l.handleFetch(epoch, img, err)
	}()
}

func (l *Loader) handleTimeout(epoch uint64) {
	l.mu.Lock()
	if l.closed || epoch != l.epoch {
		l.mu.Unlock()
		return
	}
	// Bump the epoch so the abandoned fetch is treated as stale.
	l.epoch++
	l.stopLocked()
	l.state = StateError
	l.err = fmt.Errorf("%w after %s", ErrImageLoadTimeout, l.cfg.Timeout)
	st := l.statusLocked()
	l.mu.Unlock()

	logging.Logger().Warn("image load timed out", "page", st.PageID, "timeout", l.cfg.Timeout)
	l.notifyError(st)
}

func (l *Loader) handleFetch(epoch uint64, img image.Image, err error) {
	l.mu.Lock()
	if l.closed || epoch != l.epoch {
		l.mu.Unlock()
		return
	}
	if l.timeoutTimer != nil {
		l.timeoutTimer.Stop()
		l.timeoutTimer = nil
	}
	l.cancel = nil

	if err == nil && img == nil {
		err = errors.New("fetcher returned no image")
	}

	if err == nil {
		b := img.Bounds()
		l.state = StateLoaded
		l.img = img
		l.natural = geometry.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
		res := LoadResult{Status: l.statusLocked(), Image: img}
		l.mu.Unlock()

		logging.Logger().Debug("image loaded", "page", res.PageID,
			"width", b.Dx(), "height", b.Dy())
		if l.cfg.OnLoaded != nil {
			l.cfg.OnLoaded(res)
		}
		return
	}

	if ClassifyURL(l.url) == URLSigned {
		logging.Logger().Debug("signed image load failed, refreshing",
			"page", l.pageID, "attempt", l.attempt, "err", err)
		st, terminal := l.scheduleRefreshLocked(epoch, err)
		l.mu.Unlock()
		if terminal {
			l.notifyError(st)
		}
		return
	}

	l.state = StateError
	l.err = fmt.Errorf("%w: %w", ErrImageLoadFailed, err)
	st := l.statusLocked()
	l.mu.Unlock()

	logging.Logger().Warn("image load failed", "page", st.PageID, "err", err)
	l.notifyError(st)
}

// scheduleRefreshLocked arms the backoff timer for the next refresh attempt.
// The first load counts against MaxAttempts, so l.attempt+1 passes have been
// spent when this runs. When attempts are exhausted it moves to Error and
// reports terminal = true; the caller must notify after unlocking.
func (l *Loader) scheduleRefreshLocked(epoch uint64, cause error) (Status, bool) {
	if spent := l.attempt + 1; spent >= l.cfg.MaxAttempts {
		l.epoch++
		l.stopLocked()
		l.state = StateError
		l.err = fmt.Errorf("%w after %d attempts: %w", ErrRefreshExhausted, spent, cause)
		return l.statusLocked(), true
	}

	delay := Delay(l.cfg.RetryBase, l.attempt)
	l.attempt++
	l.retryTimer = time.AfterFunc(delay, func() { l.refresh(epoch) })
	return Status{}, false
}

// refresh asks the Refresher for a new URL and loads again. A failed refresh
// still reloads the current URL so that a transient fetch error can recover;
// each pass consumes one attempt.
func (l *Loader) refresh(epoch uint64) {
	l.mu.Lock()
	if l.closed || epoch != l.epoch {
		l.mu.Unlock()
		return
	}
	l.retryTimer = nil
	pageID := l.pageID
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.Timeout)
	l.cancel = cancel
	l.mu.Unlock()

	fresh, err := l.callRefresher(ctx, pageID)
	cancel()

	l.mu.Lock()
	if l.closed || epoch != l.epoch {
		l.mu.Unlock()
		return
	}
	l.cancel = nil
	if err != nil {
		logging.Logger().Debug("url refresh failed", "page", pageID, "attempt", l.attempt, "err", err)
	} else if fresh != "" {
		l.url = fresh
	}

	if IsExpired(l.url, l.cfg.Now()) {
		st, terminal := l.scheduleRefreshLocked(epoch, ErrImageURLExpired)
		l.mu.Unlock()
		if terminal {
			l.notifyError(st)
		}
		return
	}
	l.fetchLocked(epoch)
	l.mu.Unlock()
}

func (l *Loader) callRefresher(ctx context.Context, pageID string) (string, error) {
	if l.cfg.Refresher == nil {
		return "", ErrRefreshUnavailable
	}
	return l.cfg.Refresher.Refresh(ctx, pageID)
}

func (l *Loader) notifyError(st Status) {
	if l.cfg.OnError != nil {
		l.cfg.OnError(st)
	}
}
