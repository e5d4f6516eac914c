package imaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Refresher produces a fresh signed URL for a page. It is only ever consulted
// for signed URLs.
type Refresher interface {
	Refresh(ctx context.Context, pageID string) (string, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, pageID string) (string, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, pageID string) (string, error) {
	return f(ctx, pageID)
}

// HTTPRefresher asks a backend endpoint for a fresh URL.
//
// Endpoint may contain a {page} placeholder; otherwise the escaped page id is
// appended as a path segment. The response body must be a JSON object with a
// "url" field.
type HTTPRefresher struct {
	Endpoint string
	Client   *http.Client
}

// Refresh requests a new URL for pageID.
func (r HTTPRefresher) Refresh(ctx context.Context, pageID string) (string, error) {
	if r.Endpoint == "" {
		return "", ErrRefreshUnavailable
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	endpoint := r.Endpoint
	if strings.Contains(endpoint, "{page}") {
		endpoint = strings.ReplaceAll(endpoint, "{page}", url.PathEscape(pageID))
	} else {
		endpoint = strings.TrimRight(endpoint, "/") + "/" + url.PathEscape(pageID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("refresh request failed: %w", &StatusError{StatusCode: resp.StatusCode})
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if body.URL == "" {
		return "", fmt.Errorf("%w: empty url for page %s", ErrRefreshUnavailable, pageID)
	}
	return body.URL, nil
}
