package security

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultMaxEntries caps the number of tracked identifiers so an attacker
// rotating source addresses cannot grow the limiter map without bound.
const defaultMaxEntries = 10000

// limiterEntry tracks a token bucket and when it was last used.
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier (typically per-IP) token bucket rate
// limiting with periodic cleanup of idle entries.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*limiterEntry
	rate       rate.Limit
	burst      int
	maxEntries int
	idleAfter  time.Duration
	logger     *slog.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond with the
// given burst per identifier. A nil logger uses slog.Default(). Call Stop
// when done to release the cleanup goroutine.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RateLimiter{
		entries:    make(map[string]*limiterEntry),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: defaultMaxEntries,
		idleAfter:  10 * time.Minute,
		logger:     logger,
		stop:       make(chan struct{}),
	}

	go rl.cleanupLoop(5 * time.Minute)

	return rl
}

// Allow reports whether a request from the given identifier may proceed.
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[identifier]
	if !ok {
		if len(rl.entries) >= rl.maxEntries {
			rl.evictOldest()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.entries[identifier] = entry
	}

	entry.lastAccess = time.Now()
	return entry.limiter.Allow()
}

// evictOldest removes the entry with the oldest last access. Caller holds
// the mutex.
func (rl *RateLimiter) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range rl.entries {
		if oldestKey == "" || e.lastAccess.Before(oldest) {
			oldestKey = k
			oldest = e.lastAccess
		}
	}
	if oldestKey != "" {
		delete(rl.entries, oldestKey)
	}
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup removes entries idle longer than idleAfter.
func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.idleAfter)

	rl.mu.Lock()
	removed := 0
	for k, e := range rl.entries {
		if e.lastAccess.Before(cutoff) {
			delete(rl.entries, k)
			removed++
		}
	}
	remaining := len(rl.entries)
	rl.mu.Unlock()

	if removed > 0 {
		rl.logger.Debug("rate limiter cleanup", "removed", removed, "remaining", remaining)
	}
}

// Stop terminates the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Len returns the number of tracked identifiers. Used by tests.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}
