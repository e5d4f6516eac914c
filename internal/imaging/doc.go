// Package imaging delivers the raster plan-sheet image behind the annotation
// surface.
//
// It has three layers:
//
//   - Resolution: an ImageDescriptor carries up to four candidate URLs
//     (thumbnail, preview, full and a legacy single URL). Resolve picks the
//     best one for a requested Tier using a fixed fallback order.
//   - Classification: ClassifyURL decides whether a URL is public (never
//     expires, never refreshed) or signed (carries an expiry token and may be
//     refreshed through a Refresher).
//   - Loading: Loader is a small state machine (Idle, Loading, Loaded, Error)
//     that fetches and decodes the raster with a wall-clock timeout and, for
//     signed URLs, refreshes and retries with exponential backoff.
//
// Viewport fits a drawn frame into a display box at the current zoom and
// encodes it as PNG for clients that cannot read raw pixels.
//
// # Stale Completions
//
// Every Load bumps an epoch counter. Fetches, timeouts, refreshes and backoff
// timers all capture the epoch they were started under and drop their result
// silently when it no longer matches. Cancellation is cooperative: the fetch
// context is cancelled, but a fetch that ignores its context is simply
// ignored when it finally returns.
//
// # Caching
//
// Decoded rasters are kept in a Cache keyed by the URL with its signing
// parameters removed, so a refreshed signed URL for the same object reuses
// the decoded image.
//
// # Error Handling
//
// Loader never returns image errors to its caller. They surface as the Error
// state with one of the sentinel errors below wrapped inside:
//   - ErrImageLoadTimeout: the fetch did not complete in time
//   - ErrImageLoadFailed: network or decoding failure
//   - ErrRefreshExhausted: a signed URL kept failing after every refresh attempt
//
// ErrImageURLExpired is informational: it triggers a refresh rather than a
// terminal error.
package imaging
