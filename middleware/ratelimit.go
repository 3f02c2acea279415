package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimit gives each caller its own token bucket. Idle buckets expire.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	buckets := gocache.New(10*time.Minute, 20*time.Minute)
	var mu sync.Mutex

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if v, ok := buckets.Get(key); ok {
			buckets.SetDefault(key, v)
			return v.(*rate.Limiter)
		}
		l := rate.NewLimiter(rate.Limit(rps), burst)
		buckets.SetDefault(key, l)
		return l
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID := utils.GetCurrentUserID(c); userID != uuid.Nil {
			key = userID.String()
		}

		if !limiterFor(key).Allow() {
			log.Printf("⚠️  Rate limit exceeded for %s on %s", key, c.FullPath())
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Too many requests, retry shortly")
			c.Abort()
			return
		}
		c.Next()
	}
}
