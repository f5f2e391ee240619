package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Rate limit tiers
const (
	// submit and session creation (side-effecting)
	limitStrict = rate.Limit(2)
	burstStrict = 5

	// preview refreshes and reads
	limitGeneral = rate.Limit(10)
	burstGeneral = 20
)

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterRegistry struct {
	mu       sync.Mutex
	visitors map[string]*visitor
}

func newLimiterRegistry() *limiterRegistry {
	reg := &limiterRegistry{visitors: make(map[string]*visitor)}
	go reg.cleanup()
	return reg
}

// get retrieves or creates a rate limiter for the given identity.
func (reg *limiterRegistry) get(key string, r rate.Limit, b int) *rate.Limiter {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	v, exists := reg.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(r, b)
		reg.visitors[key] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanup removes stale entries to prevent the map growing without bound.
func (reg *limiterRegistry) cleanup() {
	for {
		time.Sleep(time.Minute)

		reg.mu.Lock()
		for key, v := range reg.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(reg.visitors, key)
			}
		}
		reg.mu.Unlock()
	}
}

var registry = newLimiterRegistry()

// RateLimitMiddleware throttles requests per calling identity. Side-effecting
// routes should pass strict=true.
func RateLimitMiddleware(strict bool) gin.HandlerFunc {
	limit, burst, tier := limitGeneral, burstGeneral, "general"
	if strict {
		limit, burst, tier = limitStrict, burstStrict, "strict"
	}

	return func(c *gin.Context) {
		var identity string
		if key, ok := GetDeviceKeyFromContext(c); ok {
			identity = "device:" + key.ID.String()
		} else {
			ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
			if err != nil {
				ip = c.Request.RemoteAddr
			}
			identity = "ip:" + ip
		}

		// separate quotas per tier for the same identity
		limiter := registry.get(identity+":"+tier, limit, burst)
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": http.StatusText(http.StatusTooManyRequests)})
			return
		}

		c.Next()
	}
}
