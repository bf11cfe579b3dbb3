package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/tour-booking-backend/internal/common/cache"
	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	"github.com/dumeirei/tour-booking-backend/internal/common/response"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Store   *cache.Store
	Limit   int
	Window  time.Duration
	KeyFunc func(*gin.Context) string
}

// RateLimit 基于 Redis 的固定窗口限流，Redis 故障时放行
func RateLimit(cfg *RateLimitConfig) gin.HandlerFunc {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = clientKey
	}

	return func(c *gin.Context) {
		key := cache.BuildKey(cache.KeyPrefixRateLimit, keyFunc(c))

		count, err := cfg.Store.IncrWithExpire(c.Request.Context(), key, cfg.Window)
		if err != nil {
			logger.Warn("限流计数失败，放行请求", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		if int(count) > cfg.Limit {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", fmt.Sprintf("%d", int(cfg.Window.Seconds())))
			response.TooManyRequests(c, "")
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(cfg.Limit-int(count)))
		c.Next()
	}
}

// clientKey 已登录用户按用户限流，否则按 IP
func clientKey(c *gin.Context) string {
	if userID := GetUserID(c); userID > 0 {
		return "user:" + strconv.FormatInt(userID, 10)
	}
	return "ip:" + c.ClientIP()
}

// IPRateLimit 每分钟按 IP 限流
func IPRateLimit(store *cache.Store, perMinute int) gin.HandlerFunc {
	return RateLimit(&RateLimitConfig{
		Store:  store,
		Limit:  perMinute,
		Window: time.Minute,
		KeyFunc: func(c *gin.Context) string {
			return "ip:" + c.ClientIP()
		},
	})
}
