package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionUpload      = "upload"
	ActionAPI         = "api"
)

// Policy allows PerMinute events with bursts of up to Burst.
type Policy struct {
	PerMinute int
	Burst     int
}

func (p Policy) limiter() *rate.Limiter {
	if p.PerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := p.Burst
	if burst <= 0 {
		burst = p.PerMinute
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.PerMinute)), burst)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting for different users and actions
type RateLimiter struct {
	policies map[string]Policy
	fallback Policy
	buckets  map[string]*bucket
	mutex    sync.Mutex
	now      func() time.Time
}

// NewRateLimiter creates a limiter that applies policies by action and
// fallback to any other action.
func NewRateLimiter(policies map[string]Policy, fallback Policy) *RateLimiter {
	return &RateLimiter{
		policies: policies,
		fallback: fallback,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow consumes one token for key and action. When it is denied, the second
// value is how long until a token is available.
func (rl *RateLimiter) Allow(key, action string) (bool, time.Duration) {
	now := rl.now()
	b := rl.bucket(key, action, now)

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) bucket(key, action string, now time.Time) *bucket {
	id := key + ":" + action

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	b, ok := rl.buckets[id]
	if !ok {
		policy, ok := rl.policies[action]
		if !ok {
			policy = rl.fallback
		}
		b = &bucket{limiter: policy.limiter()}
		rl.buckets[id] = b
	}
	b.lastSeen = now
	return b
}

// Cleanup removes buckets that have not been used for idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for id, b := range rl.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine drops idle buckets every interval until ctx is done.
func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			}
		}
	}()
}
