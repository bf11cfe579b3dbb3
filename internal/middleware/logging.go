package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	commonMiddleware "github.com/dumeirei/tour-booking-backend/internal/common/middleware"
)

// LoggingConfig 访问日志配置
type LoggingConfig struct {
	Logger    *zap.Logger
	SkipPaths []string
}

// Logging 访问日志中间件，按状态码选择日志级别
func Logging(cfg *LoggingConfig) gin.HandlerFunc {
	skip := map[string]struct{}{"/health": {}, "/ready": {}, "/metrics": {}}
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			logger.RequestID(GetRequestID(c)),
			logger.Method(c.Request.Method),
			logger.Path(path),
			zap.String("query", c.Request.URL.RawQuery),
			logger.StatusCode(status),
			logger.Latency(time.Since(start)),
			logger.IP(c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if traceID := commonMiddleware.GetTraceID(c); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		if userID := GetUserID(c); userID > 0 {
			fields = append(fields, logger.UserID(userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			cfg.Logger.Error("HTTP Request", fields...)
		case status >= 400:
			cfg.Logger.Warn("HTTP Request", fields...)
		default:
			cfg.Logger.Info("HTTP Request", fields...)
		}
	}
}

// AccessLog 默认访问日志中间件
func AccessLog(l *zap.Logger) gin.HandlerFunc {
	return Logging(&LoggingConfig{Logger: l})
}
