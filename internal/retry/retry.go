// Package retry holds the backoff policy for failed sends.
package retry

import (
	"math"
	"time"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/sender"
)

// Policy decides whether a failed attempt is retried and how long to
// wait first. Backoff grows as BaseDelay * Factor^attempt, clamped to
// MaxBackoff.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Factor     float64
	MaxBackoff time.Duration
}

// Default mirrors the shipped configuration: three retries starting at
// two seconds and doubling.
func Default() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 2 * time.Second, Factor: 2.0, MaxBackoff: time.Minute}
}

// ShouldRetry reports whether attempt (zero-based) should be retried
// after err. Only transient failures are retried, and only while
// attempts remain.
func (p Policy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	return sender.IsTransient(err)
}

// BackoffDelay returns the wait before retrying the given zero-based
// attempt.
func (p Policy) BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}
