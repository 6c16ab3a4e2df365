package dispatch

import (
	mrand "math/rand"
	"time"
)

const (
	DefaultBaseDelay   = 30 * time.Second
	DefaultMaxDelay    = 1 * time.Hour
	DefaultMaxAttempts = 5
)

// Backoff doubles the base delay per attempt, caps it, and applies jitter:
// the returned delay lands in [d/2, d] so retries from many deliveries to
// the same endpoint do not line up.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attemptCount int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBaseDelay
	}
	max := b.Max
	if max <= 0 {
		max = DefaultMaxDelay
	}

	d := base
	for i := 1; i < attemptCount && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	half := d / 2
	return half + time.Duration(mrand.Int63n(int64(half)+1))
}

// NextAttemptTime returns when attempt attemptCount+1 should run, or nil
// when the attempt cap is reached.
func NextAttemptTime(attemptCount, maxAttempts int, b Backoff) *time.Time {
	if attemptCount >= maxAttempts {
		return nil
	}
	t := time.Now().UTC().Add(b.Delay(attemptCount))
	return &t
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
