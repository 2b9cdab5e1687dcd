package client

import "time"

// backoffPolicy schedules reconnection attempts: baseDelay doubled for
// every consecutive failure, up to maxAttempts retries total.
type backoffPolicy struct {
	base time.Duration
	max  int
}

// delay returns how long to wait before the given 1-based attempt.
func (b backoffPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return b.base << (attempt - 1)
}

// exhausted reports whether the given 1-based attempt is past the cap.
func (b backoffPolicy) exhausted(attempt int) bool {
	return attempt > b.max
}
