package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter 按客户端IP的令牌桶限流
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	idle     time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器，rps为每秒补充的令牌数
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

// Allow 判断该客户端本次请求是否放行
func (r *RateLimiter) Allow(client string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry, ok := r.limiters[client]
	if !ok {
		r.evict(now)
		entry = &clientLimiter{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.limiters[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evict 清理长时间没有请求的客户端，调用方需持有锁
func (r *RateLimiter) evict(now time.Time) {
	for client, entry := range r.limiters {
		if now.Sub(entry.lastSeen) > r.idle {
			delete(r.limiters, client)
		}
	}
}

// Middleware 返回gin中间件，超限时返回429
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			HandleError(c, NewTooManyRequestsError("Too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}
