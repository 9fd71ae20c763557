package gatt

import "time"

// Backoff describes the delays between connection attempts.
type Backoff struct {
	Base     time.Duration // delay after the first failed attempt
	Factor   float64       // growth per attempt
	Max      time.Duration // upper bound of any single delay
	Attempts int           // total attempts, including the first
}

// DefaultBackoff returns the reconnect schedule used by a Link unless
// WithBackoff overrides it.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:     300 * time.Millisecond,
		Factor:   2,
		Max:      5 * time.Second,
		Attempts: 20,
	}
}

// Delay returns the wait after the given failed attempt, counting from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}
