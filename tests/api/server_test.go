//go:build api

// Package api 端到端 HTTP 接口测试
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/common/crypto"
	"github.com/dumeirei/tour-booking-backend/internal/common/handler"
	"github.com/dumeirei/tour-booking-backend/internal/common/jwt"
	commonMiddleware "github.com/dumeirei/tour-booking-backend/internal/common/middleware"
	"github.com/dumeirei/tour-booking-backend/internal/common/response"
	adminHandler "github.com/dumeirei/tour-booking-backend/internal/handler/admin"
	authHandler "github.com/dumeirei/tour-booking-backend/internal/handler/auth"
	bookingHandler "github.com/dumeirei/tour-booking-backend/internal/handler/booking"
	paymentHandler "github.com/dumeirei/tour-booking-backend/internal/handler/payment"
	tourHandler "github.com/dumeirei/tour-booking-backend/internal/handler/tour"
	"github.com/dumeirei/tour-booking-backend/internal/middleware"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	adminService "github.com/dumeirei/tour-booking-backend/internal/service/admin"
	authService "github.com/dumeirei/tour-booking-backend/internal/service/auth"
	bookingService "github.com/dumeirei/tour-booking-backend/internal/service/booking"
	paymentService "github.com/dumeirei/tour-booking-backend/internal/service/payment"
	tourService "github.com/dumeirei/tour-booking-backend/internal/service/tour"
	"github.com/dumeirei/tour-booking-backend/pkg/oss"
	"github.com/dumeirei/tour-booking-backend/pkg/paygateway"
	"github.com/dumeirei/tour-booking-backend/tests/helpers"
)

const testWebhookSecret = "whsec_api_test"

// testServer 完整路由与依赖
type testServer struct {
	engine  *gin.Engine
	db      *gorm.DB
	gateway *paygateway.Mock
	oss     *oss.MockUploader
}

// apiResponse 统一响应结构
type apiResponse struct {
	Success bool              `json:"success"`
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler.UseJSONFieldNames()

	db := helpers.SetupTestDB(t)
	store, _ := helpers.SetupTestRedis(t)
	gw := paygateway.NewMock(testWebhookSecret)
	uploader := oss.NewMockUploader()

	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:            "api-test-secret",
		AccessExpireTime:  time.Hour,
		RefreshExpireTime: 24 * time.Hour,
		Issuer:            "test",
	})

	userRepo := repository.NewUserRepository(db)
	tourRepo := repository.NewTourRepository(db)
	bookingRepo := repository.NewBookingRepository(db)

	authSvc := authService.NewAuthService(userRepo, jwtManager, crypto.NewHasher(4))
	tourSvc := tourService.NewTourService(tourRepo, bookingRepo, store, uploader, nil, tourService.Options{})
	bookingSvc := bookingService.NewBookingService(db, bookingRepo, tourRepo, userRepo, nil, nil, 0)
	paymentSvc := paymentService.NewPaymentService(
		db, bookingRepo, userRepo, repository.NewWebhookEventRepository(db), gw, store, nil, nil, "usd",
	)

	authH := authHandler.NewHandler(authSvc)
	tourH := tourHandler.NewHandler(tourSvc)
	bookingH := bookingHandler.NewHandler(bookingSvc)
	paymentH := paymentHandler.NewHandler(paymentSvc)
	opLogRepo := repository.NewOperationLogRepository(db)
	adminH := adminHandler.NewHandler(
		adminService.NewUserAdminService(userRepo),
		adminService.NewBookingAdminService(bookingRepo, bookingSvc),
		adminService.NewDashboardService(userRepo, tourRepo, bookingRepo),
		adminService.NewAuditService(opLogRepo),
	)

	r := gin.New()
	r.Use(middleware.Recovery(zap.NewNop()), middleware.RequestID())

	v1 := r.Group("/api/v1")
	authH.RegisterRoutes(v1)
	tourH.RegisterRoutes(v1)
	paymentH.RegisterCallbackRoutes(v1)

	user := v1.Group("")
	user.Use(middleware.Auth(jwtManager), middleware.NoCache())
	authH.RegisterProtectedRoutes(user)
	bookingH.RegisterRoutes(user)
	paymentH.RegisterRoutes(user)

	admin := v1.Group("")
	admin.Use(
		middleware.Auth(jwtManager),
		middleware.AdminOnly(),
		commonMiddleware.NewOperationLogger(opLogRepo, "/api/v1").Log(),
	)
	tourH.RegisterAdminRoutes(admin)
	bookingH.RegisterAdminRoutes(admin)
	adminH.RegisterRoutes(admin)

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, http.StatusNotFound, "Route not found")
	})

	return &testServer{engine: r, db: db, gateway: gw, oss: uploader}
}

// do 发送请求，body 为 nil 时不带请求体
func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, *apiResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *apiResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Header().Get("Content-Type") != "image/png" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, &resp
}

// decode 解析 data 字段
func decode[T any](t *testing.T, resp *apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

// register 注册并返回访问令牌与用户 ID
func (s *testServer) register(t *testing.T) (string, int64) {
	t.Helper()

	w, resp := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      helpers.RandomEmail(),
		"password":   "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	login := decode[authService.LoginResponse](t, resp)
	return login.TokenPair.AccessToken, login.User.ID
}

// registerAdmin 注册后提升为管理员并重新登录，角色随令牌下发
func (s *testServer) registerAdmin(t *testing.T) (string, int64) {
	t.Helper()

	email := helpers.RandomEmail()
	w, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"first_name": "Grace",
		"last_name":  "Hopper",
		"email":      email,
		"password":   "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, s.db.Model(&models.User{}).Where("email = ?", email).Update("role", models.RoleAdmin).Error)

	w, resp := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	login := decode[authService.LoginResponse](t, resp)
	require.Equal(t, models.RoleAdmin, login.User.Role)
	return login.TokenPair.AccessToken, login.User.ID
}
