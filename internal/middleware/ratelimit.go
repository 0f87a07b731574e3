package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ckd-api/pkg/httputil"
	"github.com/jwalitptl/ckd-api/pkg/ratelimit"
)

// RateLimit counts each request against a fixed window for its client. The
// client is the authenticated user when one is known, the remote IP otherwise.
func RateLimit(limiter *ratelimit.Limiter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := limiter.Check(c.Request.Context(), ratelimit.Key(scope, clientKey(c)), limit, window)
		if err := res.Err(); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		httputil.SetRateLimitHeaders(c, res.Limit, res.Remaining, res.ResetAt.Unix())
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if id := c.GetString(ContextUserID); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}
