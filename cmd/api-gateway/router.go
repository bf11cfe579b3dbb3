package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/common/cache"
	"github.com/dumeirei/tour-booking-backend/internal/common/config"
	"github.com/dumeirei/tour-booking-backend/internal/common/crypto"
	"github.com/dumeirei/tour-booking-backend/internal/common/handler"
	"github.com/dumeirei/tour-booking-backend/internal/common/jwt"
	"github.com/dumeirei/tour-booking-backend/internal/common/metrics"
	commonMiddleware "github.com/dumeirei/tour-booking-backend/internal/common/middleware"
	"github.com/dumeirei/tour-booking-backend/internal/common/response"
	adminHandler "github.com/dumeirei/tour-booking-backend/internal/handler/admin"
	authHandler "github.com/dumeirei/tour-booking-backend/internal/handler/auth"
	bookingHandler "github.com/dumeirei/tour-booking-backend/internal/handler/booking"
	paymentHandler "github.com/dumeirei/tour-booking-backend/internal/handler/payment"
	tourHandler "github.com/dumeirei/tour-booking-backend/internal/handler/tour"
	"github.com/dumeirei/tour-booking-backend/internal/middleware"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	adminService "github.com/dumeirei/tour-booking-backend/internal/service/admin"
	authService "github.com/dumeirei/tour-booking-backend/internal/service/auth"
	bookingService "github.com/dumeirei/tour-booking-backend/internal/service/booking"
	"github.com/dumeirei/tour-booking-backend/internal/service/notify"
	paymentService "github.com/dumeirei/tour-booking-backend/internal/service/payment"
	tourService "github.com/dumeirei/tour-booking-backend/internal/service/tour"
	"github.com/dumeirei/tour-booking-backend/pkg/oss"
	"github.com/dumeirei/tour-booking-backend/pkg/paygateway"
)

// authRateLimitPerMinute 登录注册接口按 IP 的限流值
const authRateLimitPerMinute = 20

// dependencies 路由依赖的基础设施
type dependencies struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *gorm.DB
	store    *cache.Store
	metrics  *metrics.Metrics
	gateway  paygateway.Gateway
	uploader oss.Uploader
	notifier *notify.Notifier
}

// services 业务服务集合
type services struct {
	jwt          *jwt.Manager
	auth         *authService.AuthService
	tour         *tourService.TourService
	booking      *bookingService.BookingService
	payment      *paymentService.PaymentService
	userAdmin    *adminService.UserAdminService
	bookingAdmin *adminService.BookingAdminService
	dashboard    *adminService.DashboardService
	audit        *adminService.AuditService
	opLogs       *repository.OperationLogRepository
}

// newServices 初始化仓储与服务
func newServices(d *dependencies) *services {
	cfg := d.cfg

	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:            cfg.JWT.Secret,
		AccessExpireTime:  cfg.JWT.AccessTokenDuration(),
		RefreshExpireTime: cfg.JWT.RefreshTokenDuration(),
		Issuer:            cfg.JWT.Issuer,
	})

	// 初始化仓储
	userRepo := repository.NewUserRepository(d.db)
	tourRepo := repository.NewTourRepository(d.db)
	bookingRepo := repository.NewBookingRepository(d.db)
	eventRepo := repository.NewWebhookEventRepository(d.db)
	opLogRepo := repository.NewOperationLogRepository(d.db)

	// 初始化服务
	bookingSvc := bookingService.NewBookingService(
		d.db, bookingRepo, tourRepo, userRepo, d.notifier, d.metrics, cfg.Business.ChildrenPriceRate,
	)

	return &services{
		jwt:  jwtManager,
		auth: authService.NewAuthService(userRepo, jwtManager, crypto.NewHasher(cfg.Crypto.BcryptCost)),
		tour: tourService.NewTourService(tourRepo, bookingRepo, d.store, d.uploader, d.metrics, tourService.Options{
			CacheTTL:     time.Duration(cfg.Business.TourCacheTTL) * time.Second,
			MaxImageSize: cfg.OSS.MaxImageSize,
			UploadDir:    cfg.OSS.UploadDir,
		}),
		booking: bookingSvc,
		payment: paymentService.NewPaymentService(
			d.db, bookingRepo, userRepo, eventRepo, d.gateway, d.store, d.notifier, d.metrics, cfg.Payment.Currency,
		),
		userAdmin:    adminService.NewUserAdminService(userRepo),
		bookingAdmin: adminService.NewBookingAdminService(bookingRepo, bookingSvc),
		dashboard:    adminService.NewDashboardService(userRepo, tourRepo, bookingRepo),
		audit:        adminService.NewAuditService(opLogRepo),
		opLogs:       opLogRepo,
	}
}

// setupRouter 设置路由
func setupRouter(r *gin.Engine, d *dependencies, svc *services) {
	cfg := d.cfg
	handler.UseJSONFieldNames()

	// 初始化处理器
	authH := authHandler.NewHandler(svc.auth)
	tourH := tourHandler.NewHandler(svc.tour)
	bookingH := bookingHandler.NewHandler(svc.booking)
	paymentH := paymentHandler.NewHandler(svc.payment)
	adminH := adminHandler.NewHandler(svc.userAdmin, svc.bookingAdmin, svc.dashboard, svc.audit)

	// 全局中间件
	r.Use(middleware.Recovery(d.log))
	r.Use(middleware.RequestID())
	if cfg.Tracing.Enabled {
		r.Use(commonMiddleware.Tracing(&commonMiddleware.TracingConfig{
			ServiceName: cfg.Tracing.ServiceName,
			SkipPaths:   []string{"/health", "/ready", "/metrics"},
		}))
	}
	if d.metrics != nil {
		r.Use(d.metrics.Middleware())
	}
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS(&cfg.CORS))
	r.Use(middleware.AccessLog(d.log))

	// 健康检查（不需要认证）
	r.GET("/health", healthHandler)
	r.GET("/ready", readyHandler(d.db, d.store))
	if d.metrics != nil {
		r.GET(cfg.Metrics.Path, d.metrics.Handler())
	}

	// Swagger 文档
	if cfg.Server.Mode != gin.ReleaseMode {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// API v1 路由组
	v1 := r.Group("/api/v1")
	if cfg.RateLimit.Enabled && d.store != nil {
		v1.Use(middleware.RateLimit(&middleware.RateLimitConfig{
			Store:  d.store,
			Limit:  cfg.RateLimit.RequestsPerMinute,
			Window: time.Minute,
		}))
	}
	{
		// 公开接口（无需认证）
		public := v1.Group("")
		{
			authRoutes := public.Group("")
			if d.store != nil {
				authRoutes.Use(middleware.IPRateLimit(d.store, authRateLimitPerMinute))
			}
			authH.RegisterRoutes(authRoutes)
			tourH.RegisterRoutes(public)
		}

		// 支付回调（需要验签，不需要认证）
		paymentH.RegisterCallbackRoutes(v1)

		// 用户端接口（需要用户认证）
		user := v1.Group("")
		user.Use(middleware.Auth(svc.jwt), middleware.NoCache())
		{
			authH.RegisterProtectedRoutes(user)
			bookingH.RegisterRoutes(user)
			paymentH.RegisterRoutes(user)
		}

		// 管理端接口（需要管理员认证）
		opLogger := commonMiddleware.NewOperationLogger(svc.opLogs, "/api/v1")
		adminAuth := v1.Group("")
		adminAuth.Use(middleware.Auth(svc.jwt), middleware.AdminOnly(), opLogger.Log())
		{
			tourH.RegisterAdminRoutes(adminAuth)
			bookingH.RegisterAdminRoutes(adminAuth)
			adminH.RegisterRoutes(adminAuth)
		}
	}

	// 404 处理
	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, http.StatusNotFound, "Route not found")
	})
}
