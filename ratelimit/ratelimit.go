// Package ratelimit provides a simple frames-per-second rate limiter.
package ratelimit

import "time"

// Limiter admits pps frames per second on average and tolerates short
// bursts. Unlike a sleeping throttle it never blocks: frames over the
// budget are refused so the caller can drop them.
// Not safe for concurrent use.
type Limiter struct {
	nsPerFrame int64
	tolerance  time.Duration
	tat        time.Time // theoretical arrival time of the next frame
}

// New creates a limiter for pps frames per second.
// If pps == 0, limiting is disabled and New returns nil, which admits
// everything.
func New(pps uint64) *Limiter {
	if pps == 0 {
		return nil
	}
	ns := int64(time.Second) / int64(pps)
	// Allow bursts of ~10ms worth of frames. At most 1024.
	burst := min(max(pps/100, 1), 1024)
	return &Limiter{
		nsPerFrame: ns,
		tolerance:  time.Duration(int64(burst-1) * ns),
	}
}

// Allow reports whether a frame sent at now fits the budget and, if so,
// accounts for it.
func (l *Limiter) Allow(now time.Time) bool {
	if l == nil {
		return true
	}
	tat := l.tat
	if tat.Before(now) {
		tat = now
	}
	if tat.Sub(now) > l.tolerance {
		return false
	}
	l.tat = tat.Add(time.Duration(l.nsPerFrame))
	return true
}
