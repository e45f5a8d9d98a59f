package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"todoapp/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Limiter 按主体限流。
type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, time.Duration, error)
}

// Throttle 按客户端 IP 限流。限流器不可用时放行。
func Throttle(limiter Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		allowed, wait, err := limiter.Allow(ctx, c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			metrics.LoginThrottledTotal.Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
			c.Abort()
			return
		}
		c.Next()
	}
}
