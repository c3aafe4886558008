// Package ratelimit throttles outbound GraphQL calls per operation kind and
// inbound local API calls per remote address, using token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mapflag/mapflag-client/internal/errors"
)

const (
	// Buckets untouched for this long are dropped by the sweeper.
	idleTTL       = 10 * time.Minute
	sweepInterval = time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter gives every key its own token bucket.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*entry
	limit   rate.Limit
	burst   int

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter allowing rps requests per second per key with the given burst.
// A non-positive rps disables limiting.
func New(rps float64, burst int) *KeyedRateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	krl := &KeyedRateLimiter{
		buckets: make(map[string]*entry),
		limit:   limit,
		burst:   burst,
		done:    make(chan struct{}),
	}
	go krl.sweep()
	return krl
}

// Allow reports whether a request for key may proceed now. Used for inbound requests.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.get(key).Allow()
}

// Wait blocks until key has a token or ctx ends. Used for outbound requests.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	if err := krl.get(key).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, errors.CodeRateLimited, "rate limit "+key)
	}
	return nil
}

// Len returns the number of live buckets.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.buckets)
}

func (krl *KeyedRateLimiter) get(key string) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	e, ok := krl.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.buckets[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// Stop ends the sweeper.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case now := <-ticker.C:
			krl.evictIdle(now)
		}
	}
}

func (krl *KeyedRateLimiter) evictIdle(now time.Time) {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	for key, e := range krl.buckets {
		if now.Sub(e.lastSeen) > idleTTL {
			delete(krl.buckets, key)
		}
	}
}
