package http

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Bucket capacity and refill rate: bursts up to writeBurst go through,
	// sustained writes level out at one per second.
	writeBurst  = 60
	staleAfter  = 10 * time.Minute
	sweepEvery  = 5 * time.Minute
)

// rateLimiter applies a per-client-IP token bucket to mutating requests.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// sweep drops buckets for clients that have gone quiet so the map does not
// grow with every IP ever seen.
func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-staleAfter)
			for ip, b := range rl.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(rl.buckets, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

// allow reports whether a request from clientIP may proceed, consuming one
// token when it does.
func (rl *rateLimiter) allow(clientIP string, metrics *securityMetrics) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[clientIP]
	if !ok {
		rl.buckets[clientIP] = &bucket{tokens: writeBurst - 1, lastSeen: now}
		return true
	}

	// Refill one token per second of elapsed time, capped at the burst size.
	b.tokens += now.Sub(b.lastSeen).Seconds()
	if b.tokens > writeBurst {
		b.tokens = writeBurst
	}
	b.lastSeen = now

	if b.tokens < 1 {
		if metrics != nil {
			atomic.AddInt64(&metrics.rateLimitHits, 1)
		}
		return false
	}
	b.tokens--
	return true
}
