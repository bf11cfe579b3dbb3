package booking

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/authz"
	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	"github.com/dumeirei/tour-booking-backend/internal/common/metrics"
	"github.com/dumeirei/tour-booking-backend/internal/common/qrcode"
	"github.com/dumeirei/tour-booking-backend/internal/common/tracing"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	"github.com/dumeirei/tour-booking-backend/internal/service/notify"
)

// DefaultChildrenPriceRate 儿童票价折算比例
const DefaultChildrenPriceRate = 0.7

// BookingService 预订服务
type BookingService struct {
	db          *gorm.DB
	bookingRepo *repository.BookingRepository
	tourRepo    *repository.TourRepository
	userRepo    *repository.UserRepository
	notifier    *notify.Notifier
	metrics     *metrics.Metrics
	qr          *qrcode.Generator
	childRate   float64
	now         func() time.Time
}

// NewBookingService 创建预订服务
func NewBookingService(
	db *gorm.DB,
	bookingRepo *repository.BookingRepository,
	tourRepo *repository.TourRepository,
	userRepo *repository.UserRepository,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	childRate float64,
) *BookingService {
	if childRate <= 0 {
		childRate = DefaultChildrenPriceRate
	}
	return &BookingService{
		db:          db,
		bookingRepo: bookingRepo,
		tourRepo:    tourRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		metrics:     m,
		qr:          qrcode.NewGenerator(qrcode.WithSize(320)),
		childRate:   childRate,
		now:         time.Now,
	}
}

// PartySize 出行人数
type PartySize struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

// ContactInfo 联系方式，邮箱以当前用户为准
type ContactInfo struct {
	Phone string `json:"phone" binding:"omitempty,max=30"`
	Email string `json:"email" binding:"omitempty,max=255"`
}

// CreateBookingRequest 创建预订请求
type CreateBookingRequest struct {
	TourID          int64       `json:"tourId"`
	StartDate       string      `json:"startDate"`
	NumberOfPeople  PartySize   `json:"numberOfPeople"`
	PaymentMethod   string      `json:"paymentMethod" binding:"omitempty,max=30"`
	ContactInfo     ContactInfo `json:"contactInfo"`
	SpecialRequests *string     `json:"specialRequests" binding:"omitempty,max=1000"`
}

// CancelBookingRequest 取消预订请求
type CancelBookingRequest struct {
	CancellationReason string `json:"cancellationReason" binding:"max=500"`
}

// UpdateBookingRequest 管理员更新预订请求
type UpdateBookingRequest struct {
	Status             string   `json:"status" binding:"required"`
	PaymentStatus      *string  `json:"paymentStatus"`
	CancellationReason *string  `json:"cancellationReason" binding:"omitempty,max=500"`
	RefundAmount       *float64 `json:"refundAmount" binding:"omitempty,gte=0"`
}

// ListQuery 用户预订列表查询参数，格式错误的值会被忽略
type ListQuery struct {
	Status    string `form:"status"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	TourID    string `form:"tourId"`
}

// TourSummary 预订中的线路摘要
type TourSummary struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Destination string  `json:"destination"`
	Duration    int     `json:"duration"`
	Price       float64 `json:"price"`
	Image       string  `json:"image,omitempty"`
}

// UserSummary 预订中的用户摘要
type UserSummary struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// BookingInfo 预订信息
type BookingInfo struct {
	ID                 int64        `json:"id"`
	Reference          string       `json:"reference"`
	UserID             int64        `json:"user_id"`
	TourID             int64        `json:"tour_id"`
	StartDate          string       `json:"start_date"`
	Adults             int          `json:"adults"`
	Children           int          `json:"children"`
	TotalPrice         float64      `json:"total_price"`
	Status             string       `json:"status"`
	PaymentStatus      string       `json:"payment_status"`
	PaymentMethod      string       `json:"payment_method"`
	PaymentIntentID    string       `json:"payment_intent_id,omitempty"`
	ContactPhone       string       `json:"contact_phone"`
	ContactEmail       string       `json:"contact_email"`
	SpecialRequests    string       `json:"special_requests,omitempty"`
	CancellationReason string       `json:"cancellation_reason,omitempty"`
	RefundAmount       float64      `json:"refund_amount"`
	Tour               *TourSummary `json:"tour,omitempty"`
	User               *UserSummary `json:"user,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// CreateBooking 创建预订
func (s *BookingService) CreateBooking(ctx context.Context, userID int64, req *CreateBookingRequest) (*BookingInfo, error) {
	// 1. 校验线路 ID
	if req.TourID <= 0 {
		s.metrics.RecordBooking("rejected")
		return nil, errors.ErrInvalidTourID
	}

	// 2. 线路必须存在且上架
	tour, err := s.tourRepo.GetByID(ctx, req.TourID)
	if err != nil {
		s.metrics.RecordBooking("rejected")
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrTourNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !tour.IsActive {
		s.metrics.RecordBooking("rejected")
		return nil, errors.ErrTourNotFound
	}

	// 3. 解析出发日期
	startDate, err := ParseStartDate(req.StartDate)
	if err != nil {
		s.metrics.RecordBooking("rejected")
		return nil, errors.ErrInvalidStartDate
	}

	// 4. 出发日期必须晚于今天（UTC）
	if !startDate.After(utils.UTCDate(s.now())) {
		s.metrics.RecordBooking("rejected")
		return nil, errors.ErrStartDateNotFuture
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = models.PaymentMethodCard
	}

	// 5. 锁定线路后检查名额并写入，同一线路的并发预订在此串行
	var booking *models.Booking
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.tourRepo.GetForUpdate(ctx, tx, tour.ID)
		if err != nil {
			return err
		}
		if !locked.IsActive {
			return errors.ErrTourNotFound
		}

		count, err := s.bookingRepo.CountActiveForDate(ctx, tx, locked.ID, startDate)
		if err != nil {
			return err
		}
		if count >= int64(locked.MaxGroupSize) {
			return errors.ErrTourFullyBooked
		}
		tracing.AddEvent(ctx, "booking.capacity_checked", tracing.WithTourID(locked.ID))

		// 6. 校验人数并计算总价
		if req.NumberOfPeople.Adults < 1 {
			return errors.ErrInvalidPartySize
		}
		if req.NumberOfPeople.Children < 0 {
			return errors.ErrInvalidPartySize.WithMessage("Number of children cannot be negative")
		}

		// 7. 写入预订
		booking = &models.Booking{
			UserID:          userID,
			TourID:          locked.ID,
			StartDate:       startDate,
			EndDate:         models.TripEndDate(startDate, locked.Duration),
			Adults:          req.NumberOfPeople.Adults,
			Children:        req.NumberOfPeople.Children,
			TotalPrice:      TotalPrice(locked.Price, req.NumberOfPeople.Adults, req.NumberOfPeople.Children, s.childRate),
			Status:          models.BookingStatusPending,
			PaymentStatus:   models.PaymentStatusPending,
			PaymentMethod:   paymentMethod,
			ContactPhone:    strings.TrimSpace(req.ContactInfo.Phone),
			ContactEmail:    user.Email,
			SpecialRequests: req.SpecialRequests,
		}
		return s.bookingRepo.CreateTx(ctx, tx, booking)
	})
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrTourFullyBooked):
			s.metrics.RecordBooking("fully_booked")
		default:
			s.metrics.RecordBooking("rejected")
		}
		return nil, txError(err, errors.ErrTourNotFound)
	}

	s.metrics.RecordBooking("created")
	logger.Info("预订已创建",
		logger.BookingID(booking.ID),
		logger.UserID(userID),
		logger.TourID(tour.ID),
		zap.String("start_date", startDate.Format(utils.DateLayout)),
	)
	s.notifier.BookingCreated(ctx, booking)

	booking.Tour = tour
	return NewBookingInfo(booking), nil
}

// CancelBooking 取消预订并按距出发天数计算退款
func (s *BookingService) CancelBooking(ctx context.Context, bookingID int64, actor authz.Actor, reason string) (*BookingInfo, error) {
	var from string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 锁定预订
		b, err := s.bookingRepo.GetForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		// 2. 权限与状态检查
		if !authz.CanAccessBooking(actor, b) {
			return errors.ErrPermissionDenied
		}
		if err := CheckTransition(b.Status, models.BookingStatusCancelled); err != nil {
			return err
		}
		from = b.Status

		// 3. 计算退款
		refund := RefundAmount(b.TotalPrice, DaysUntil(b.StartDate, s.now()))
		fields := map[string]interface{}{
			"status":              models.BookingStatusCancelled,
			"payment_status":      models.PaymentStatusRefunded,
			"cancellation_reason": nullableString(reason),
			"refund_amount":       refund,
		}
		return s.bookingRepo.UpdateFields(ctx, tx, b.ID, fields)
	})
	if err != nil {
		return nil, txError(err, errors.ErrBookingNotFound)
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	s.metrics.RecordTransition(from, models.BookingStatusCancelled)
	s.metrics.RecordRefund(booking.RefundAmount)
	logger.Info("预订已取消",
		logger.BookingID(booking.ID),
		logger.UserID(actor.UserID),
		zap.Float64("refund_amount", booking.RefundAmount),
	)
	s.notifier.BookingCancelled(ctx, booking)

	return NewBookingInfo(booking), nil
}

// GetUserBookings 获取用户预订列表，按创建时间倒序
func (s *BookingService) GetUserBookings(ctx context.Context, userID int64, query ListQuery) ([]*BookingInfo, error) {
	bookings, err := s.bookingRepo.ListByUser(ctx, userID, ParseListQuery(query))
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	list := make([]*BookingInfo, 0, len(bookings))
	for _, b := range bookings {
		list = append(list, NewBookingInfo(b))
	}
	return list, nil
}

// GetBooking 获取预订详情
func (s *BookingService) GetBooking(ctx context.Context, bookingID int64, actor authz.Actor) (*BookingInfo, error) {
	b, err := s.getAccessible(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	return NewBookingInfo(b), nil
}

// UpdateBooking 管理员更新预订状态
func (s *BookingService) UpdateBooking(ctx context.Context, bookingID int64, req *UpdateBookingRequest) (*BookingInfo, error) {
	// 1. 校验枚举
	if !utils.Contains(models.BookingStatuses, req.Status) {
		return nil, errors.ErrValidation.WithMessagef("Invalid status: %s", req.Status)
	}
	if req.PaymentStatus != nil && !utils.Contains(models.PaymentStatuses, *req.PaymentStatus) {
		return nil, errors.ErrValidation.WithMessagef("Invalid payment status: %s", *req.PaymentStatus)
	}
	// 退款金额只对取消后的预订有意义
	if req.RefundAmount != nil && req.Status != models.BookingStatusCancelled {
		return nil, errors.ErrValidation.WithMessage("Refund amount is only allowed when status is cancelled")
	}

	var from string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 2. 锁定预订
		b, err := s.bookingRepo.GetForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		from = b.Status

		// 3. 状态变化时校验流转
		fields := map[string]interface{}{}
		if req.Status != b.Status {
			if err := CheckTransition(b.Status, req.Status); err != nil {
				return err
			}
			fields["status"] = req.Status
		}
		if req.PaymentStatus != nil {
			fields["payment_status"] = *req.PaymentStatus
		}
		if req.CancellationReason != nil {
			fields["cancellation_reason"] = nullableString(*req.CancellationReason)
		}

		// 4. 取消时处理退款
		if req.RefundAmount != nil {
			if *req.RefundAmount > b.TotalPrice {
				return errors.ErrValidation.WithMessage("Refund amount cannot exceed total price")
			}
			fields["refund_amount"] = utils.RoundMoney(*req.RefundAmount)
		}
		if req.Status == models.BookingStatusCancelled && req.Status != b.Status {
			if req.RefundAmount == nil {
				fields["refund_amount"] = RefundAmount(b.TotalPrice, DaysUntil(b.StartDate, s.now()))
			}
			if req.PaymentStatus == nil {
				fields["payment_status"] = models.PaymentStatusRefunded
			}
		}

		if len(fields) == 0 {
			return nil
		}
		return s.bookingRepo.UpdateFields(ctx, tx, b.ID, fields)
	})
	if err != nil {
		return nil, txError(err, errors.ErrBookingNotFound)
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	if from != booking.Status {
		s.metrics.RecordTransition(from, booking.Status)
		logger.Info("预订状态已变更",
			logger.BookingID(booking.ID),
			zap.String("from", from),
			zap.String("to", booking.Status),
		)
		s.notifier.BookingStatusChanged(ctx, booking, from)
		if booking.Status == models.BookingStatusCancelled {
			s.metrics.RecordRefund(booking.RefundAmount)
			s.notifier.BookingCancelled(ctx, booking)
		}
	}

	return NewBookingInfo(booking), nil
}

// CompleteFinished 将行程已结束的已确认预订标记为已完成，返回处理数量
func (s *BookingService) CompleteFinished(ctx context.Context, batchSize int) (int, error) {
	today := utils.UTCDate(s.now())
	bookings, err := s.bookingRepo.ListFinishedConfirmed(ctx, today, batchSize)
	if err != nil {
		return 0, errors.ErrDatabaseError.WithError(err)
	}

	completed := 0
	for _, b := range bookings {
		if err := CheckTransition(b.Status, models.BookingStatusCompleted); err != nil {
			continue
		}
		ok, err := s.bookingRepo.UpdateFieldsIf(ctx, nil, b.ID,
			[]string{models.BookingStatusConfirmed},
			map[string]interface{}{"status": models.BookingStatusCompleted},
		)
		if err != nil {
			return completed, errors.ErrDatabaseError.WithError(err)
		}
		if !ok {
			continue
		}
		completed++
		s.metrics.RecordTransition(models.BookingStatusConfirmed, models.BookingStatusCompleted)
		b.Status = models.BookingStatusCompleted
		s.notifier.BookingStatusChanged(ctx, b, models.BookingStatusConfirmed)
	}
	return completed, nil
}

// Voucher 生成预订凭证二维码 PNG
func (s *BookingService) Voucher(ctx context.Context, bookingID int64, actor authz.Actor) ([]byte, string, error) {
	b, err := s.getAccessible(ctx, bookingID, actor)
	if err != nil {
		return nil, "", err
	}
	if b.Status != models.BookingStatusConfirmed && b.Status != models.BookingStatusCompleted {
		return nil, "", errors.ErrVoucherUnavailable
	}

	reference := utils.BookingReference(b.ID, b.CreatedAt)
	png, err := s.qr.GeneratePNG(qrcode.Voucher{
		Reference: reference,
		TourID:    b.TourID,
		StartDate: b.StartDate,
		Adults:    b.Adults,
		Children:  b.Children,
	}.Content())
	if err != nil {
		return nil, "", errors.ErrInternalError.WithError(err)
	}
	return png, reference, nil
}

func (s *BookingService) getAccessible(ctx context.Context, bookingID int64, actor authz.Actor) (*models.Booking, error) {
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

// ParseStartDate 解析出发日期，支持 YYYY-MM-DD 与 RFC3339，结果为 UTC 日历日
func ParseStartDate(value string) (time.Time, error) {
	return utils.ParseDate(value)
}

// ParseListQuery 宽松解析列表过滤条件，无法识别的值直接丢弃
func ParseListQuery(q ListQuery) repository.BookingFilter {
	var filter repository.BookingFilter
	if utils.Contains(models.BookingStatuses, q.Status) {
		filter.Status = q.Status
	}
	if d, err := ParseStartDate(q.StartDate); err == nil {
		filter.From = &d
	}
	if d, err := ParseStartDate(q.EndDate); err == nil {
		filter.To = &d
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(q.TourID), 10, 64); err == nil && id > 0 {
		filter.TourID = id
	}
	return filter
}

// NewBookingInfo 转换为预订信息
func NewBookingInfo(b *models.Booking) *BookingInfo {
	info := &BookingInfo{
		ID:                 b.ID,
		Reference:          utils.BookingReference(b.ID, b.CreatedAt),
		UserID:             b.UserID,
		TourID:             b.TourID,
		StartDate:          b.StartDate.UTC().Format(utils.DateLayout),
		Adults:             b.Adults,
		Children:           b.Children,
		TotalPrice:         b.TotalPrice,
		Status:             b.Status,
		PaymentStatus:      b.PaymentStatus,
		PaymentMethod:      b.PaymentMethod,
		PaymentIntentID:    utils.SafeString(b.PaymentIntentID),
		ContactPhone:       b.ContactPhone,
		ContactEmail:       b.ContactEmail,
		SpecialRequests:    utils.SafeString(b.SpecialRequests),
		CancellationReason: utils.SafeString(b.CancellationReason),
		RefundAmount:       b.RefundAmount,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	if b.Tour != nil {
		info.Tour = &TourSummary{
			ID:          b.Tour.ID,
			Title:       b.Tour.Title,
			Destination: b.Tour.Destination,
			Duration:    b.Tour.Duration,
			Price:       b.Tour.Price,
		}
		if len(b.Tour.Images) > 0 {
			info.Tour.Image = b.Tour.Images[0].URL
		}
	}
	if b.User != nil {
		info.User = &UserSummary{
			ID:        b.User.ID,
			FirstName: b.User.FirstName,
			LastName:  b.User.LastName,
			Email:     b.User.Email,
		}
	}
	return info
}

// txError 将事务错误转换为业务错误
func txError(err error, notFound *errors.AppError) error {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return errors.ErrDatabaseError.WithError(err)
}

func nullableString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
