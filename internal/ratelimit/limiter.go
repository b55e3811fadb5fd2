// Package ratelimit implements a per-session sliding-window request limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
	"github.com/capitalize-ai/ai-twin/pkg/metrics"
)

const (
	// DefaultLimit is the number of requests admitted per window.
	DefaultLimit = 100

	// DefaultWindow is the sliding window length.
	DefaultWindow = time.Hour
)

// Limiter admits at most limit requests per session within any window
// ending at the current instant. Only admitted requests are recorded.
type Limiter struct {
	clock  clock.Clock
	logger *logger.Logger
	limit  int
	window time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionWindow
}

type sessionWindow struct {
	mu     sync.Mutex
	stamps []time.Time // ascending
	dead   bool        // removed from the map by Sweep
}

// New creates a Limiter. Non-positive limit or window use the defaults.
func New(c clock.Clock, log *logger.Logger, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		clock:    c,
		logger:   log,
		limit:    limit,
		window:   window,
		sessions: make(map[string]*sessionWindow),
	}
}

// Limit returns the configured per-window request count.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow reports whether sessionKey may make another request now, using the
// configured limit and window.
func (l *Limiter) Allow(sessionKey string) bool {
	return l.AllowWith(sessionKey, l.limit, l.window)
}

// AllowWith is Allow with an explicit limit and window. Non-positive
// values fall back to the configured ones.
func (l *Limiter) AllowWith(sessionKey string, limit int, window time.Duration) bool {
	if limit <= 0 {
		limit = l.limit
	}
	if window <= 0 {
		window = l.window
	}

	sw := l.lock(sessionKey)
	defer sw.mu.Unlock()

	now := l.clock.Now()
	sw.prune(now.Add(-window))

	allowed := len(sw.stamps) < limit
	if allowed {
		sw.stamps = append(sw.stamps, now)
	} else {
		l.logger.Warn("session rate limit exceeded",
			zap.String("session_key", sessionKey),
			zap.Int("limit", limit),
			zap.Duration("window", window),
		)
	}
	metrics.RecordRateLimit(allowed)
	return allowed
}

// RetryAfter returns how long until sessionKey gains a free slot under the
// configured limit and window. Zero means a request would be admitted now.
func (l *Limiter) RetryAfter(sessionKey string) time.Duration {
	sw := l.lock(sessionKey)
	defer sw.mu.Unlock()

	now := l.clock.Now()
	sw.prune(now.Add(-l.window))
	if len(sw.stamps) < l.limit {
		return 0
	}
	// The slot frees once the oldest stamp that keeps us at the limit
	// leaves the window.
	oldest := sw.stamps[len(sw.stamps)-l.limit]
	return oldest.Add(l.window).Sub(now)
}

// lock returns the locked window for key, creating it if needed. A window
// retired by Sweep between lookup and locking is never used.
func (l *Limiter) lock(key string) *sessionWindow {
	for {
		l.mu.Lock()
		sw, ok := l.sessions[key]
		if !ok {
			sw = &sessionWindow{}
			l.sessions[key] = sw
		}
		l.mu.Unlock()

		sw.mu.Lock()
		if !sw.dead {
			return sw
		}
		sw.mu.Unlock()
	}
}

// prune drops stamps at or before cutoff.
func (sw *sessionWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(sw.stamps) && !sw.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.stamps = append(sw.stamps[:0], sw.stamps[i:]...)
	}
}

// Sweep forgets sessions whose every recorded request has left the
// configured window and returns how many were removed. It never changes
// an admission decision made with the configured window; sessions checked
// through AllowWith with a longer window may be forgotten early.
func (l *Limiter) Sweep() int {
	cutoff := l.clock.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, sw := range l.sessions {
		sw.mu.Lock()
		sw.prune(cutoff)
		if len(sw.stamps) == 0 {
			sw.dead = true
			delete(l.sessions, key)
			removed++
		}
		sw.mu.Unlock()
	}
	return removed
}

// Sessions returns the number of tracked sessions.
func (l *Limiter) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// Run calls Sweep every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("swept idle rate limit sessions", zap.Int("removed", n))
			}
		}
	}
}
