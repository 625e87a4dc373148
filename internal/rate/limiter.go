package rate

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per recipient key.
type Limiter struct {
	keys map[string]*rate.Limiter
	mu   *sync.RWMutex
	r    rate.Limit
	b    int
}

var idLimiter *Limiter
var globalLimiter *rate.Limiter

// Start creates both the per-recipient and the global rate limiters.
func Start() {
	idLimiter = newIdRateLimiter(rate.Limit(0.3), 20)
	globalLimiter = rate.NewLimiter(rate.Limit(30), 30)
}

func newIdRateLimiter(r rate.Limit, b int) *Limiter {
	return &Limiter{
		keys: make(map[string]*rate.Limiter),
		mu:   &sync.RWMutex{},
		r:    r,
		b:    b,
	}
}

// CheckLimit blocks until a send to the given recipient key is allowed.
// Keys are "platform:id" strings, e.g. "twitter:259539164".
func CheckLimit(key string) {
	if globalLimiter == nil {
		return
	}
	globalLimiter.Wait(context.Background())
	if len(key) > 0 {
		idLimiter.GetLimiter(key).Wait(context.Background())
	}
}

// Add creates a new rate limiter and adds it to the keys map,
// using the key
func (i *Limiter) Add(key string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter := rate.NewLimiter(i.r, i.b)

	i.keys[key] = limiter

	return limiter
}

// GetLimiter returns the rate limiter for the provided key if it exists.
// Otherwise, calls Add to add key address to the map
func (i *Limiter) GetLimiter(key string) *rate.Limiter {
	i.mu.Lock()
	limiter, exists := i.keys[key]

	if !exists {
		i.mu.Unlock()
		return i.Add(key)
	}

	i.mu.Unlock()

	return limiter
}
