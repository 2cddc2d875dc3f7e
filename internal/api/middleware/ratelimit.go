package middleware

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"ngeblog/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// Limiter 按 subject 的非阻塞限流。
type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, time.Duration, error)
}

// RateLimit 按客户端 IP 限流，超限返回 429；限流器出错时放行。
func RateLimit(limiter Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ok, wait, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			Abort(c, apperr.TooMany("Too many requests"))
			return
		}
		c.Next()
	}
}
