package imaging

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/disintegration/imaging"
)

// Fetcher retrieves and decodes the raster behind a URL.
//
// Implementations must honor ctx cancellation where they can. Errors are
// reported as-is; the Loader classifies them.
type Fetcher interface {
	Fetch(ctx context.Context, u string) (image.Image, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, u string) (image.Image, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, u string) (image.Image, error) {
	return f(ctx, u)
}

// maxImageBytes bounds a single download. Plan sheets at full resolution are
// large, but anything past this is not an image we can draw.
const maxImageBytes = 256 << 20

// HTTPFetcher downloads images over http and https.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch downloads and decodes u. Non-2xx responses are errors.
func (f HTTPFetcher) Fetch(ctx context.Context, u string) (image.Image, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	return decode(io.LimitReader(resp.Body, maxImageBytes))
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.StatusCode)
}

// FileFetcher loads images from local paths and file:// URLs.
type FileFetcher struct{}

// Fetch opens and decodes the file named by u.
func (FileFetcher) Fetch(ctx context.Context, u string) (image.Image, error) {
	path := u
	if strings.HasPrefix(u, "file://") {
		parsed, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("invalid file url: %w", err)
		}
		path = parsed.Path
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return decode(f)
}

// MuxFetcher routes http(s) URLs to HTTP and everything else to File.
type MuxFetcher struct {
	HTTP Fetcher
	File Fetcher
}

// NewMuxFetcher returns a MuxFetcher with the default HTTP and file fetchers.
func NewMuxFetcher(client *http.Client) MuxFetcher {
	return MuxFetcher{HTTP: HTTPFetcher{Client: client}, File: FileFetcher{}}
}

// Fetch dispatches u by scheme.
func (m MuxFetcher) Fetch(ctx context.Context, u string) (image.Image, error) {
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return m.HTTP.Fetch(ctx, u)
	}
	return m.File.Fetch(ctx, u)
}

// CachingFetcher serves rasters from a Cache and fills it on a miss.
type CachingFetcher struct {
	Next  Fetcher
	Cache *Cache
}

// Fetch returns the cached raster for u or fetches it through Next.
func (c CachingFetcher) Fetch(ctx context.Context, u string) (image.Image, error) {
	if img, ok := c.Cache.Get(u); ok {
		return img, nil
	}
	img, err := c.Next.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	c.Cache.Put(u, img)
	return img, nil
}

// decode reads an image honoring EXIF orientation, which scanned sheets
// photographed on phones often carry.
func decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
