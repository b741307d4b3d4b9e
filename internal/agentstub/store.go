package agentstub

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/fakeyudi/parley/internal/transport"
)

// conversation is one server-side session. mu is held for a whole request.
type conversation struct {
	mu      sync.Mutex
	history []transport.WireMessage
	pending bool
}

func (c *conversation) append(m transport.WireMessage) {
	c.history = append(c.history, m)
}

func (c *conversation) snapshot() []transport.WireMessage {
	out := make([]transport.WireMessage, len(c.history))
	copy(out, c.history)
	return out
}

func (srv *Server) lookupOrCreate(id string) *conversation {
	srv.createMu.Lock()
	defer srv.createMu.Unlock()
	if conv, ok := srv.sessions.Get(id); ok {
		return conv
	}
	conv := &conversation{}
	srv.sessions.Add(id, conv)
	return conv
}

// rateLimiter keeps one token bucket per key, expiring idle keys.
type rateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

func newRateLimiter(requestsPerMin, size int, ttl time.Duration) *rateLimiter {
	burst := requestsPerMin / 10
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
		rate:     rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burst,
	}
}

func (rl *rateLimiter) Allow(key string) error {
	rl.mu.Lock()
	limiter, ok := rl.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters.Add(key, limiter)
	}
	rl.mu.Unlock()

	if !limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for %s", key)
	}
	return nil
}
