// Package payment 提供支付协调服务
package payment

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/authz"
	"github.com/dumeirei/tour-booking-backend/internal/common/cache"
	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	"github.com/dumeirei/tour-booking-backend/internal/common/metrics"
	"github.com/dumeirei/tour-booking-backend/internal/common/tracing"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	"github.com/dumeirei/tour-booking-backend/internal/service/booking"
	"github.com/dumeirei/tour-booking-backend/internal/service/notify"
	"github.com/dumeirei/tour-booking-backend/pkg/paygateway"
)

// webhookDedupTTL 回调事件去重键的有效期
const webhookDedupTTL = 24 * time.Hour

// PaymentService 支付服务
type PaymentService struct {
	db          *gorm.DB
	bookingRepo *repository.BookingRepository
	userRepo    *repository.UserRepository
	eventRepo   *repository.WebhookEventRepository
	gateway     paygateway.Gateway
	cache       *cache.Store
	notifier    *notify.Notifier
	metrics     *metrics.Metrics
	currency    string
}

// NewPaymentService 创建支付服务
// gateway 为 nil 时支付接口返回未配置错误，store 为 nil 时仅依赖数据库去重
func NewPaymentService(
	db *gorm.DB,
	bookingRepo *repository.BookingRepository,
	userRepo *repository.UserRepository,
	eventRepo *repository.WebhookEventRepository,
	gateway paygateway.Gateway,
	store *cache.Store,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	currency string,
) *PaymentService {
	if currency == "" {
		currency = "usd"
	}
	return &PaymentService{
		db:          db,
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
		eventRepo:   eventRepo,
		gateway:     gateway,
		cache:       store,
		notifier:    notifier,
		metrics:     m,
		currency:    currency,
	}
}

// CreateIntentRequest 创建支付意图请求
type CreateIntentRequest struct {
	BookingID int64 `json:"bookingId" binding:"required,gt=0"`
}

// ConfirmPaymentRequest 确认支付请求
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required,max=100"`
}

// IntentInfo 支付意图信息
type IntentInfo struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// StatusInfo 支付状态
type StatusInfo struct {
	BookingID       int64  `json:"booking_id"`
	PaymentStatus   string `json:"payment_status"`
	Status          string `json:"status"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
}

// WebhookResult 回调处理结果
type WebhookResult struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// CreatePaymentIntent 为预订创建支付意图
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, bookingID int64, actor authz.Actor) (*IntentInfo, error) {
	// 1. 获取预订并检查状态
	b, err := s.getAccessible(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus == models.PaymentStatusPaid {
		return nil, errors.ErrAlreadyPaid
	}
	if b.Status == models.BookingStatusCancelled || b.Status == models.BookingStatusCompleted {
		return nil, errors.ErrPaymentNotAllowed
	}
	if s.gateway == nil {
		return nil, errors.ErrPaymentNotConfigured
	}

	// 2. 获取或创建网关客户
	customerID, err := s.ensureCustomer(ctx, b)
	if err != nil {
		return nil, err
	}

	// 3. 创建支付意图
	intent, err := s.gateway.CreatePaymentIntent(ctx, &paygateway.CreateIntentParams{
		Amount:     utils.ToMinorUnits(b.TotalPrice),
		Currency:   s.currency,
		CustomerID: customerID,
		Metadata: map[string]string{
			"booking_id": strconv.FormatInt(b.ID, 10),
			"user_id":    strconv.FormatInt(b.UserID, 10),
			"tour_id":    strconv.FormatInt(b.TourID, 10),
		},
	})
	if err != nil {
		return nil, gatewayError(err)
	}

	// 4. 记录支付意图
	fields := map[string]interface{}{
		"payment_intent_id":   intent.ID,
		"payment_customer_id": customerID,
		"payment_method":      models.PaymentMethodCard,
	}
	if err := s.bookingRepo.UpdateFields(ctx, nil, b.ID, fields); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	s.metrics.RecordPayment("intent_created")
	logger.Info("支付意图已创建",
		logger.BookingID(b.ID),
		logger.PaymentIntentID(intent.ID),
		zap.Int64("amount", utils.ToMinorUnits(b.TotalPrice)),
	)

	return &IntentInfo{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

// ConfirmPayment 以网关状态为准确认支付
func (s *PaymentService) ConfirmPayment(ctx context.Context, intentID string, actor authz.Actor) (*StatusInfo, error) {
	// 1. 根据支付意图找到预订
	b, err := s.bookingRepo.GetByPaymentIntentID(ctx, nil, intentID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !authz.CanAccessBooking(actor, b) {
		return nil, errors.ErrPermissionDenied
	}
	if s.gateway == nil {
		return nil, errors.ErrPaymentNotConfigured
	}

	// 2. 重新查询网关，不信任客户端
	intent, err := s.gateway.GetPaymentIntent(ctx, intentID)
	if err != nil {
		if stderrors.Is(err, paygateway.ErrIntentNotFound) {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, gatewayError(err)
	}

	// 3. 按意图状态更新
	var changed bool
	switch intent.Status {
	case paygateway.IntentStatusSucceeded:
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, changed, err = s.applySucceeded(ctx, tx, intent)
			return err
		})
	case paygateway.IntentStatusRequiresPaymentMethod:
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, changed, err = s.applyFailed(ctx, tx, intent.ID)
			return err
		})
	default:
		return nil, errors.ErrPaymentProcessing
	}
	if err != nil {
		return nil, txError(err)
	}

	updated, err := s.afterPayment(ctx, b.ID, intent.Status, changed)
	if err != nil {
		return nil, err
	}
	return newStatusInfo(updated), nil
}

// HandleWebhook 处理支付网关回调
// 先验签再解析，按事件 ID 去重，重复投递直接确认
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.gateway == nil {
		return nil, errors.ErrPaymentNotConfigured
	}

	// 1. 验签
	evt, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.metrics.RecordWebhook("unknown", "invalid_signature")
		logger.Warn("支付回调验签失败", zap.Error(err))
		return nil, errors.ErrWebhookSignature
	}

	// 2. Redis 快速去重
	dedupKey := cache.BuildKey(cache.KeyPrefixWebhookEvent, evt.ID)
	if s.cache != nil {
		fresh, err := s.cache.SetNX(ctx, dedupKey, evt.Type, webhookDedupTTL)
		switch {
		case err != nil:
			logger.Warn("回调去重缓存不可用", zap.Error(err), zap.String("event_id", evt.ID))
		case !fresh:
			s.metrics.RecordWebhook(evt.Type, "duplicate")
			return &WebhookResult{Received: true, Duplicate: true}, nil
		}
	}

	// 3. 在事务中登记事件并应用
	var (
		duplicate bool
		changed   bool
		bookingID int64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recorded, err := s.eventRepo.Record(ctx, tx, evt.ID, evt.Type)
		if err != nil {
			return err
		}
		if !recorded {
			duplicate = true
			return nil
		}

		switch {
		case evt.Intent == nil:
			return nil
		case evt.Type == paygateway.EventIntentSucceeded:
			bookingID, changed, err = s.applySucceeded(ctx, tx, evt.Intent)
		case evt.Type == paygateway.EventIntentFailed:
			bookingID, changed, err = s.applyFailed(ctx, tx, evt.Intent.ID)
		}
		return err
	})
	if err != nil {
		if s.cache != nil {
			_ = s.cache.Delete(ctx, dedupKey)
		}
		s.metrics.RecordWebhook(evt.Type, "error")
		return nil, txError(err)
	}
	if duplicate {
		s.metrics.RecordWebhook(evt.Type, "duplicate")
		return &WebhookResult{Received: true, Duplicate: true}, nil
	}

	s.metrics.RecordWebhook(evt.Type, "processed")
	tracing.AddEvent(ctx, "payment.webhook_applied", tracing.WithOperation(evt.Type), tracing.WithBookingID(bookingID))
	logger.Info("支付回调已处理",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
		logger.BookingID(bookingID),
	)

	// 4. 提交后通知，仅在支付状态确实变化时发送
	if bookingID > 0 && changed {
		status := paygateway.IntentStatusRequiresPaymentMethod
		if evt.Type == paygateway.EventIntentSucceeded {
			status = paygateway.IntentStatusSucceeded
		}
		if _, err := s.afterPayment(ctx, bookingID, status, true); err != nil {
			logger.Warn("回调后读取预订失败", zap.Error(err), logger.BookingID(bookingID))
		}
	}
	return &WebhookResult{Received: true}, nil
}

// GetPaymentStatus 获取预订的支付状态
func (s *PaymentService) GetPaymentStatus(ctx context.Context, bookingID int64, actor authz.Actor) (*StatusInfo, error) {
	b, err := s.getAccessible(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	return newStatusInfo(b), nil
}

// applySucceeded 标记支付成功，返回预订 ID 以及本次是否改变了预订，找不到预订时返回 0
// 只有待确认的预订会流转为已确认，已取消或已完成的预订仅记录扣款号
func (s *PaymentService) applySucceeded(ctx context.Context, tx *gorm.DB, intent *paygateway.Intent) (int64, bool, error) {
	b, err := s.bookingRepo.GetByPaymentIntentID(ctx, tx, intent.ID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("支付意图没有对应的预订", logger.PaymentIntentID(intent.ID))
			return 0, false, nil
		}
		return 0, false, err
	}

	if intent.LatestChargeID != "" {
		if err := s.bookingRepo.UpdateFields(ctx, tx, b.ID, map[string]interface{}{
			"payment_charge_id": intent.LatestChargeID,
		}); err != nil {
			return 0, false, err
		}
	}

	var changed bool
	switch b.Status {
	case models.BookingStatusPending:
		if err := booking.CheckTransition(b.Status, models.BookingStatusConfirmed); err != nil {
			return 0, false, err
		}
		changed, err = s.bookingRepo.UpdateFieldsWhere(ctx, tx, b.ID,
			map[string]interface{}{"status": models.BookingStatusPending},
			map[string]interface{}{
				"status":         models.BookingStatusConfirmed,
				"payment_status": models.PaymentStatusPaid,
			},
		)
	case models.BookingStatusConfirmed:
		changed, err = s.bookingRepo.UpdateFieldsWhere(ctx, tx, b.ID,
			map[string]interface{}{"payment_status": []string{models.PaymentStatusPending, models.PaymentStatusFailed}},
			map[string]interface{}{"payment_status": models.PaymentStatusPaid},
		)
	default:
		logger.Warn("预订已结束，忽略支付成功状态",
			logger.BookingID(b.ID),
			zap.String("status", b.Status),
			logger.PaymentIntentID(intent.ID),
		)
	}
	if err != nil {
		return 0, false, err
	}
	return b.ID, changed, nil
}

// applyFailed 标记支付失败，仅待支付的预订会变化，已支付的预订不受影响
func (s *PaymentService) applyFailed(ctx context.Context, tx *gorm.DB, intentID string) (int64, bool, error) {
	b, err := s.bookingRepo.GetByPaymentIntentID(ctx, tx, intentID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("支付意图没有对应的预订", logger.PaymentIntentID(intentID))
			return 0, false, nil
		}
		return 0, false, err
	}
	changed, err := s.bookingRepo.UpdateFieldsWhere(ctx, tx, b.ID,
		map[string]interface{}{"payment_status": models.PaymentStatusPending},
		map[string]interface{}{"payment_status": models.PaymentStatusFailed},
	)
	if err != nil {
		return 0, false, err
	}
	return b.ID, changed, nil
}

// afterPayment 重新读取预订，changed 为 true 时记录指标并发送通知
func (s *PaymentService) afterPayment(ctx context.Context, bookingID int64, intentStatus string, changed bool) (*models.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !changed {
		return b, nil
	}
	switch {
	case intentStatus == paygateway.IntentStatusSucceeded && b.PaymentStatus == models.PaymentStatusPaid:
		s.metrics.RecordPayment(models.PaymentStatusPaid)
		s.notifier.PaymentSucceeded(ctx, b)
	case b.PaymentStatus == models.PaymentStatusFailed:
		s.metrics.RecordPayment(models.PaymentStatusFailed)
		s.notifier.PaymentFailed(ctx, b)
	}
	return b, nil
}

func (s *PaymentService) ensureCustomer(ctx context.Context, b *models.Booking) (string, error) {
	if id := utils.SafeString(b.PaymentCustomerID); id != "" {
		return id, nil
	}

	user, err := s.userRepo.GetByID(ctx, b.UserID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.ErrUserNotFound
		}
		return "", errors.ErrDatabaseError.WithError(err)
	}
	if id := utils.SafeString(user.PaymentCustomerID); id != "" {
		return id, nil
	}

	id, err := s.gateway.CreateCustomer(ctx, user.Email, user.FullName())
	if err != nil {
		return "", gatewayError(err)
	}
	if err := s.userRepo.UpdateFields(ctx, user.ID, map[string]interface{}{"payment_customer_id": id}); err != nil {
		return "", errors.ErrDatabaseError.WithError(err)
	}
	return id, nil
}

func (s *PaymentService) getAccessible(ctx context.Context, bookingID int64, actor authz.Actor) (*models.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrBookingNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !authz.CanAccessBooking(actor, b) {
		return nil, errors.ErrPermissionDenied
	}
	return b, nil
}

// gatewayError 转换网关错误，卡片错误返回 400，其余返回 502
func gatewayError(err error) error {
	var ge *paygateway.Error
	if stderrors.As(err, &ge) {
		if ge.Card {
			return errors.ErrPaymentCardDeclined.WithMessage(ge.Message).WithError(err)
		}
		return errors.ErrPaymentGateway.WithMessage("Payment gateway error: " + ge.Message).WithError(err)
	}
	return errors.ErrPaymentGateway.WithError(err)
}

func txError(err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.ErrDatabaseError.WithError(err)
}

func newStatusInfo(b *models.Booking) *StatusInfo {
	return &StatusInfo{
		BookingID:       b.ID,
		PaymentStatus:   b.PaymentStatus,
		Status:          b.Status,
		PaymentIntentID: utils.SafeString(b.PaymentIntentID),
	}
}
