package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	"github.com/dumeirei/tour-booking-backend/internal/models"
)

// OperationLogWriter 操作日志持久化
type OperationLogWriter interface {
	Create(ctx context.Context, log *models.OperationLog) error
}

// OperationConfig 路由对应的模块与操作
type OperationConfig struct {
	Module     string
	Action     string
	TargetType string
}

// 路由前缀之后的路径，如 "PUT /tours/:id"
var moduleActionMap = map[string]OperationConfig{
	"POST /tours":                    {Module: "tour", Action: "create", TargetType: "tour"},
	"PUT /tours/:id":                 {Module: "tour", Action: "update", TargetType: "tour"},
	"DELETE /tours/:id":              {Module: "tour", Action: "delete", TargetType: "tour"},
	"POST /tours/:id/images":         {Module: "tour", Action: "upload_image", TargetType: "tour"},
	"PUT /bookings/:id":              {Module: "booking", Action: "update", TargetType: "booking"},
	"DELETE /bookings/:id":           {Module: "booking", Action: "cancel", TargetType: "booking"},
	"PUT /admin/bookings/:id/status": {Module: "booking", Action: "update_status", TargetType: "booking"},
	"PATCH /admin/users/:id":         {Module: "user", Action: "update", TargetType: "user"},
	"DELETE /admin/users/:id":        {Module: "user", Action: "delete", TargetType: "user"},
}

var sensitiveFields = []string{
	"password", "token", "secret", "card", "client_secret",
}

// OperationLogger 管理员操作审计中间件
type OperationLogger struct {
	writer OperationLogWriter
	prefix string
}

// NewOperationLogger 创建操作日志中间件，prefix 为路由组前缀（如 /api/v1）
func NewOperationLogger(writer OperationLogWriter, prefix string) *OperationLogger {
	return &OperationLogger{writer: writer, prefix: strings.TrimSuffix(prefix, "/")}
}

// Log 记录管理员的写操作，仅在请求成功时落库
func (l *OperationLogger) Log() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWriteMethod(c.Request.Method) {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil && strings.HasPrefix(c.ContentType(), "application/json") {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		adminID, ok := adminIDFrom(c)
		if !ok {
			return
		}

		entry := l.buildEntry(c, adminID, body)
		if entry == nil {
			return
		}

		// gin.Context 在请求结束后会被复用，只把构建好的记录交给 goroutine
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.writer.Create(ctx, entry); err != nil {
				logger.Warn("写入操作日志失败", zap.Error(err), logger.Module(entry.Module), logger.Action(entry.Action))
			}
		}()
	}
}

func (l *OperationLogger) buildEntry(c *gin.Context, adminID int64, body []byte) *models.OperationLog {
	route := strings.TrimPrefix(c.FullPath(), l.prefix)
	cfg, ok := moduleActionMap[c.Request.Method+" "+route]
	if !ok {
		return nil
	}

	entry := &models.OperationLog{
		AdminID: adminID,
		Module:  cfg.Module,
		Action:  cfg.Action,
		IP:      c.ClientIP(),
	}
	if ua := c.Request.UserAgent(); ua != "" {
		entry.UserAgent = &ua
	}
	if cfg.TargetType != "" {
		targetType := cfg.TargetType
		entry.TargetType = &targetType
		if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
			entry.TargetID = &id
		}
	}
	if len(body) > 0 {
		var data map[string]interface{}
		if err := json.Unmarshal(body, &data); err == nil {
			entry.RequestData = filterSensitiveData(data).(map[string]interface{})
		}
	}
	return entry
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// adminIDFrom 从认证中间件写入的上下文中读取管理员 ID
func adminIDFrom(c *gin.Context) (int64, bool) {
	if role, _ := c.Get("role"); role != models.RoleAdmin {
		return 0, false
	}
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func filterSensitiveData(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitiveKey(key) {
				out[key] = "***"
				continue
			}
			out[key] = filterSensitiveData(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = filterSensitiveData(item)
		}
		return out
	default:
		return data
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, f := range sensitiveFields {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
