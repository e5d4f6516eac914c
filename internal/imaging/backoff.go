package imaging

import "time"

// maxBackoffShift keeps base<<attempt from overflowing.
const maxBackoffShift = 20

// Delay returns the wait before refresh attempt number attempt (zero-based):
// base * 2^attempt. Negative attempts are treated as zero.
func Delay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return base << uint(attempt)
}
