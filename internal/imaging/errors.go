package imaging

import "errors"

var (
	// ErrImageLoadTimeout is reported when a fetch exceeds the load timeout.
	ErrImageLoadTimeout = errors.New("image load timed out")

	// ErrImageLoadFailed is reported for network and decoding failures.
	ErrImageLoadFailed = errors.New("image load failed")

	// ErrImageURLExpired marks a signed URL past its validity. It triggers a
	// refresh and is never a terminal state on its own.
	ErrImageURLExpired = errors.New("image url expired")

	// ErrRefreshExhausted is reported once a signed URL has failed on every
	// allowed attempt.
	ErrRefreshExhausted = errors.New("image url refresh attempts exhausted")

	// ErrNoImageURL is returned when a descriptor carries no URL at all.
	ErrNoImageURL = errors.New("no image url available")

	// ErrRefreshUnavailable is returned by refreshers that cannot produce a
	// fresh URL for a page.
	ErrRefreshUnavailable = errors.New("url refresh unavailable")
)
