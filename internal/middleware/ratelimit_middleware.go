// internal/middleware/ratelimit_middleware.go
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"propdesk-service/internal/pkg/ratelimit"
	"propdesk-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimit caps requests per account (client IP before Auth) within window. A limiter
// error lets the request through.
func RateLimit(limiter ratelimit.Limiter, scope string, max int64, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "ip:" + c.ClientIP()
		if accountID, ok := GetAccountID(c); ok {
			subject = fmt.Sprintf("account:%d", accountID)
		}

		allowed, remaining, err := limiter.Allow(c.Request.Context(), scope+":"+subject, max, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !allowed {
			response.Error(c, http.StatusTooManyRequests, "too many requests, try again later", nil)
			return
		}
		c.Next()
	}
}
