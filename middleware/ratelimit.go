package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/dotecxy/legado2-sub001/config"
	"github.com/dotecxy/legado2-sub001/response"
)

// RateLimitMiddleware limits requests per client IP with a token bucket.
// Idle client buckets expire after ten minutes.
type RateLimitMiddleware struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	clients *cache.Cache
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(cfg config.ServerConfig) *RateLimitMiddleware {
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitMiddleware{
		limit:   rate.Limit(cfg.RateLimit),
		burst:   burst,
		clients: cache.New(10*time.Minute, 20*time.Minute),
	}
}

// Handler returns the middleware handler function
func (r *RateLimitMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.limit <= 0 {
			c.Next()
			return
		}

		limiter := r.limiterFor(c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.FormatFloat(float64(r.limit), 'f', -1, 64))
		if !limiter.Allow() {
			response.TooManyRequests(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (r *RateLimitMiddleware) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.clients.Get(key); ok {
		r.clients.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(r.limit, r.burst)
	r.clients.SetDefault(key, limiter)
	return limiter
}
