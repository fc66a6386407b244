package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter throttles voucher code validation so the endpoint cannot be
// used to enumerate codes.
type rateLimiter interface {
	Allow(key string) bool
}

type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]clientWindow
}

type clientWindow struct {
	attempts int
	resetAt  time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]clientWindow),
	}
}

func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	win, ok := l.windows[key]
	if !ok || now.After(win.resetAt) {
		l.evictExpired(now)
		l.windows[key] = clientWindow{attempts: 1, resetAt: now.Add(l.window)}
		return true
	}

	if win.attempts >= l.limit {
		return false
	}
	win.attempts++
	l.windows[key] = win
	return true
}

// evictExpired runs under the mutex; called only when a new window opens so
// steady-state requests stay O(1).
func (l *fixedWindowLimiter) evictExpired(now time.Time) {
	for key, win := range l.windows {
		if now.After(win.resetAt) {
			delete(l.windows, key)
		}
	}
}
