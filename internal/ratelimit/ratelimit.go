// Package ratelimit bounds how many requests a single client may make.
package ratelimit

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/example/devinsights/internal/apperr"
)

// Limiter hands out one token bucket per client key.
type Limiter struct {
	mu       sync.Mutex
	clients  map[string]*client
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
	lastTidy time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New allows requests per window for each client, refilling evenly across the window.
func New(requests int, window time.Duration) *Limiter {
	if requests < 1 {
		requests = 1
	}
	return &Limiter{
		clients: make(map[string]*client),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		idleTTL: window,
		now:     time.Now,
	}
}

// Allow reports whether key may make another request now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tidy(now)

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// tidy forgets clients that have been idle long enough to have a full bucket again.
func (l *Limiter) tidy(now time.Time) {
	if now.Sub(l.lastTidy) < l.idleTTL {
		return
	}
	l.lastTidy = now
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.idleTTL {
			delete(l.clients, key)
		}
	}
}

// Middleware rejects clients over budget with 429, keyed by client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			err := apperr.TooManyRequests()
			_ = c.Error(err)
			c.AbortWithStatusJSON(apperr.StatusOf(err), gin.H{"status": "error", "error": apperr.PublicMessage(err)})
			return
		}
		c.Next()
	}
}
