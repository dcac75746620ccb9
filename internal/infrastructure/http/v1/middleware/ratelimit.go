package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"retailstock/internal/core/apperror"
	appctx "retailstock/internal/core/context"
	"retailstock/pkg/logger"
)

// RateLimitConfig bounds requests per caller in a fixed window.
type RateLimitConfig struct {
	Requests int64
	Window   time.Duration
}

// RateLimit limits requests per authenticated user, or per client IP when
// the request carries no user. Limiter failures let the request through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: cfg.Window,
		Limit:  cfg.Requests,
	})

	return func(c *gin.Context) {
		key := appctx.GetUserID(c.Request.Context())
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		lctx, err := instance.Get(c.Request.Context(), key)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			_ = c.Error(apperror.NewRateLimited(lctx.Limit, lctx.Reset))
			c.Abort()
			return
		}
		c.Next()
	}
}
