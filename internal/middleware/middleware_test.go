package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dumeirei/tour-booking-backend/internal/common/cache"
	"github.com/dumeirei/tour-booking-backend/internal/common/config"
	"github.com/dumeirei/tour-booking-backend/internal/common/jwt"
	"github.com/dumeirei/tour-booking-backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWT() *jwt.Manager {
	return jwt.NewManager(&jwt.Config{Secret: "mw-secret", AccessExpireTime: time.Hour, RefreshExpireTime: time.Hour})
}

func bearer(t *testing.T, m *jwt.Manager, userID int64, role string, refresh bool) string {
	t.Helper()
	pair, err := m.GenerateTokenPair(userID, role)
	require.NoError(t, err)
	if refresh {
		return "Bearer " + pair.RefreshToken
	}
	return "Bearer " + pair.AccessToken
}

func TestAuth(t *testing.T) {
	m := newJWT()
	r := gin.New()
	r.GET("/me", Auth(m), func(c *gin.Context) {
		actor := GetActor(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.UserID, "role": actor.Role})
	})
	r.GET("/admin", Auth(m), AdminOnly(), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"无令牌", "/me", "", http.StatusUnauthorized},
		{"格式错误", "/me", "Token abc", http.StatusUnauthorized},
		{"刷新令牌不能访问", "/me", bearer(t, m, 1, models.RoleUser, true), http.StatusUnauthorized},
		{"有效令牌", "/me", bearer(t, m, 1, models.RoleUser, false), http.StatusOK},
		{"普通用户访问管理接口", "/admin", bearer(t, m, 1, models.RoleUser, false), http.StatusForbidden},
		{"管理员访问管理接口", "/admin", bearer(t, m, 2, models.RoleAdmin, false), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"code":500,"message":"Internal server error"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	cfg := &config.CORSConfig{
		FrontendOrigin:   "http://localhost:3000",
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/tours", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("预检请求", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/tours", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("未允许的来源", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/tours", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	store := cache.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	r := gin.New()
	r.Use(RateLimit(&RateLimitConfig{Store: store, Limit: 2, Window: time.Minute}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// Redis 不可用时放行
	mr.Close()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestSizeLimiter(t *testing.T) {
	r := gin.New()
	r.POST("/", RequestSizeLimiter(4), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.ContentLength = 10
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
