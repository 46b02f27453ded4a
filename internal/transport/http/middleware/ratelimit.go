package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/ErlanBelekov/token-ledger/internal/metrics"
	"github.com/ErlanBelekov/token-ledger/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

const errRateLimited = "Too many requests"

// RateLimit throttles each caller separately. Callers are keyed by the
// authenticated subject when Auth ran, otherwise by client IP.
func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(SubjectKey)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		lim := store.Get(key)
		r := lim.Reserve()
		if !r.OK() {
			reject(c, 1)
			return
		}
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			reject(c, int(math.Ceil(delay.Seconds())))
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, retryAfter int) {
	metrics.RateLimitedTotal.Inc()
	c.Header("Retry-After", strconv.Itoa(max(retryAfter, 1)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": errRateLimited})
}
