package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/common/cache"
	"github.com/dumeirei/tour-booking-backend/internal/common/database"
)

// readyCheckTimeout 单项依赖检查超时
const readyCheckTimeout = 3 * time.Second

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// healthHandler 健康检查（简单版）
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
	})
}

// readyHandler 就绪检查（检查数据库与 Redis）
// @Summary 就绪检查
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /ready [get]
func readyHandler(db *gorm.DB, store *cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make(map[string]string, 2)
		allHealthy := true

		check := func(name string, ping func(ctx context.Context) error) {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyCheckTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				checks[name] = "error: " + err.Error()
				allHealthy = false
				return
			}
			checks[name] = "ok"
		}

		check("database", func(ctx context.Context) error { return database.Ping(ctx, db) })
		if store != nil {
			check("redis", store.Ping)
		}

		resp := HealthResponse{Status: "ready", Timestamp: time.Now().Unix(), Checks: checks}
		if !allHealthy {
			resp.Status = "not ready"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
