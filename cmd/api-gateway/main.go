// Package main 是应用程序入口
// @title Tour Booking API
// @version 1.0
// @description 旅游线路预订服务
// @BasePath /api/v1
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/tour-booking-backend/internal/common/cache"
	"github.com/dumeirei/tour-booking-backend/internal/common/config"
	"github.com/dumeirei/tour-booking-backend/internal/common/crypto"
	"github.com/dumeirei/tour-booking-backend/internal/common/database"
	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	"github.com/dumeirei/tour-booking-backend/internal/common/metrics"
	"github.com/dumeirei/tour-booking-backend/internal/common/tracing"
	"github.com/dumeirei/tour-booking-backend/internal/scheduler"
	"github.com/dumeirei/tour-booking-backend/internal/service/notify"
	"github.com/dumeirei/tour-booking-backend/pkg/oss"
	"github.com/dumeirei/tour-booking-backend/pkg/paygateway"
	"github.com/dumeirei/tour-booking-backend/pkg/sms"
)

const version = "1.0.0"

func main() {
	// 加载配置
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.GetLogger()

	log.Info("Starting Tour Booking Backend",
		zap.String("version", version),
		zap.String("env", cfg.Server.Mode),
	)

	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case gin.ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case gin.TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	// 初始化链路追踪
	if cfg.Tracing.Enabled {
		tracer, err := tracing.Init(&tracing.Config{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			Environment:    cfg.Server.Mode,
			Endpoint:       cfg.Tracing.Endpoint,
			SampleRate:     cfg.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			log.Fatal("Failed to init tracing", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracer.Shutdown(ctx)
		}()
	}

	// 初始化数据库连接
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis 连接
	redisClient, err := cache.Open(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	store := cache.NewStore(redisClient)
	log.Info("Redis connected successfully")

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace, cfg.Metrics.Path)
	}

	// 初始化外部服务客户端
	publisher, err := notify.NewPublisher(cfg, log)
	if err != nil {
		log.Warn("Event publisher unavailable, events disabled", zap.Error(err))
		publisher = notify.NopPublisher{}
	}
	notifier := notify.NewNotifier(publisher, newSMSSender(cfg, log), cfg.SMS.ConfirmTemplate, m)

	deps := &dependencies{
		cfg:      cfg,
		log:      log,
		db:       db,
		store:    store,
		metrics:  m,
		gateway:  newPaymentGateway(cfg, log),
		uploader: newUploader(cfg, log),
		notifier: notifier,
	}
	svc := newServices(deps)

	// 创建 Gin 引擎并设置路由
	engine := gin.New()
	setupRouter(engine, deps, svc)

	// 启动定时任务
	sched := scheduler.NewScheduler(log, m)
	tasks := scheduler.NewTaskHandler(svc.booking, log).
		WithLogPurger(svc.audit, time.Duration(cfg.Business.OperationLogRetention)*24*time.Hour)
	scheduler.RegisterTasks(sched, tasks, time.Duration(cfg.Business.CompleteCheckInterval)*time.Minute)
	sched.Start()

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// 创建超时上下文用于优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	sched.Stop()
	if err := notifier.Close(); err != nil {
		log.Warn("Failed to close event publisher", zap.Error(err))
	}
	_ = store.Close()
	_ = database.Close(db)

	log.Info("Server exited")
}

// newPaymentGateway 创建支付网关
// 未配置密钥时调试模式使用模拟网关，其余模式下支付接口返回未配置错误
func newPaymentGateway(cfg *config.Config, log *zap.Logger) paygateway.Gateway {
	switch {
	case cfg.Payment.Provider == "mock":
		log.Warn("Using mock payment gateway")
		return paygateway.NewMock(cfg.Payment.WebhookSecret)
	case cfg.Payment.SecretKey != "":
		log.Info("Payment gateway configured", zap.String("secret_key", crypto.MaskSecretKey(cfg.Payment.SecretKey)))
		return paygateway.NewStripe(&paygateway.Config{
			SecretKey:     cfg.Payment.SecretKey,
			WebhookSecret: cfg.Payment.WebhookSecret,
			Currency:      cfg.Payment.Currency,
		})
	case cfg.Server.Mode == gin.DebugMode:
		log.Warn("Payment secret key not set, using mock payment gateway")
		return paygateway.NewMock(cfg.Payment.WebhookSecret)
	default:
		log.Warn("Payment secret key not set, payment endpoints disabled")
		return nil
	}
}

// newUploader 创建图片上传器
func newUploader(cfg *config.Config, log *zap.Logger) oss.Uploader {
	if cfg.OSS.Provider != "aliyun" {
		return oss.NewMockUploader()
	}
	uploader, err := oss.NewAliyunUploader(&oss.AliyunConfig{
		Endpoint:        cfg.OSS.Endpoint,
		AccessKeyID:     cfg.OSS.AccessKeyID,
		AccessKeySecret: cfg.OSS.AccessKeySecret,
		BucketName:      cfg.OSS.Bucket,
		Domain:          cfg.OSS.CustomDomain,
		BasePath:        cfg.OSS.UploadDir,
	})
	if err != nil {
		log.Fatal("Failed to init OSS uploader", zap.Error(err))
	}
	return uploader
}

// newSMSSender 创建短信发送器，未配置时返回 nil
func newSMSSender(cfg *config.Config, log *zap.Logger) sms.Sender {
	switch cfg.SMS.Provider {
	case "aliyun":
		sender, err := sms.NewAliyunSender(&sms.AliyunConfig{
			AccessKeyID:     cfg.SMS.AccessKeyID,
			AccessKeySecret: cfg.SMS.AccessKeySecret,
			SignName:        cfg.SMS.SignName,
			RegionID:        cfg.SMS.RegionID,
		})
		if err != nil {
			log.Warn("Failed to init SMS sender, SMS disabled", zap.Error(err))
			return nil
		}
		return sender
	case "mock":
		return sms.NewMockSender()
	default:
		return nil
	}
}
