package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleTimeout     = 30 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware keeps one token bucket per client.
type RateLimiterMiddleware struct {
	clients    map[string]*clientLimiter
	mu         sync.Mutex
	refillRate rate.Limit
	bucketSize int
}

// NewRateLimiterMiddleware starts a goroutine that forgets idle clients.
func NewRateLimiterMiddleware(refillRate, bucketSize int) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients:    make(map[string]*clientLimiter),
		refillRate: rate.Limit(refillRate),
		bucketSize: bucketSize,
	}
	go rm.cleanupClients()
	return rm
}

// clientKey prefers the authenticated user so clients behind one NAT do not
// share a bucket.
func clientKey(c *gin.Context) string {
	if id, ok := CurrentUserID(c); ok {
		return "user:" + id.String()
	}
	return "ip:" + c.ClientIP()
}

func (rm *RateLimiterMiddleware) getClientLimiter(key string) *rate.Limiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	cl, exists := rm.clients[key]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rm.refillRate, rm.bucketSize)}
		rm.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

func (rm *RateLimiterMiddleware) cleanupClients() {
	for {
		time.Sleep(limiterCleanupInterval)
		rm.evictIdle(time.Now())
	}
}

func (rm *RateLimiterMiddleware) evictIdle(now time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, cl := range rm.clients {
		if now.Sub(cl.lastSeen) > limiterIdleTimeout {
			delete(rm.clients, id)
			count++
		}
	}
	if count > 0 {
		log.Printf("Rate limiter cleanup removed %d idle client entries.", count)
	}
	return count
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		if !rm.getClientLimiter(key).Allow() {
			log.Printf("Rate limit exceeded for client %s on %s %s", key, c.Request.Method, c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
