// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/tour-booking-backend/internal/authz"
	"github.com/dumeirei/tour-booking-backend/internal/common/jwt"
	"github.com/dumeirei/tour-booking-backend/internal/common/response"
	"github.com/dumeirei/tour-booking-backend/internal/models"
)

// 上下文键
const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"
)

// TokenParser 访问令牌解析
type TokenParser interface {
	ParseAccessToken(token string) (*jwt.Claims, error)
}

// Auth 认证中间件，要求有效的访问令牌
func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c, "Authentication required")
			c.Abort()
			return
		}

		claims, err := parser.ParseAccessToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Unauthorized(c, "Token has expired")
			} else {
				response.Unauthorized(c, "Invalid token")
			}
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// AdminOnly 要求管理员角色，需在 Auth 之后使用
func AdminOnly() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(ContextKeyUserID, claims.UserID)
	c.Set(ContextKeyRole, claims.Role)
}

// extractToken 从 Authorization 头提取 Bearer 令牌
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) int64 {
	if v, ok := c.Get(ContextKeyUserID); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// GetRole 从上下文获取角色
func GetRole(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}

// GetActor 从上下文获取当前操作者
func GetActor(c *gin.Context) authz.Actor {
	return authz.Actor{UserID: GetUserID(c), Role: GetRole(c)}
}
