package admin

import (
	"context"
	"strconv"
	"strings"

	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	"github.com/dumeirei/tour-booking-backend/internal/service/booking"
)

// BookingAdminService 预订管理服务
type BookingAdminService struct {
	bookingRepo *repository.BookingRepository
	bookings    *booking.BookingService
}

// NewBookingAdminService 创建预订管理服务
func NewBookingAdminService(bookingRepo *repository.BookingRepository, bookings *booking.BookingService) *BookingAdminService {
	return &BookingAdminService{
		bookingRepo: bookingRepo,
		bookings:    bookings,
	}
}

// BookingListQuery 预订列表查询参数，无法识别的过滤值直接忽略
type BookingListQuery struct {
	utils.Pagination
	booking.ListQuery
	PaymentStatus string `form:"payment_status"`
	UserID        string `form:"userId"`
}

// BookingStats 预订统计
type BookingStats struct {
	Total           int64            `json:"total"`
	ByStatus        map[string]int64 `json:"by_status"`
	ByPaymentStatus map[string]int64 `json:"by_payment_status"`
	Revenue         float64          `json:"revenue"`
	Refunded        float64          `json:"refunded"`
}

// List 分页获取预订列表
func (s *BookingAdminService) List(ctx context.Context, q *BookingListQuery) ([]*booking.BookingInfo, int64, error) {
	q.Normalize()

	filter := booking.ParseListQuery(q.ListQuery)
	if utils.Contains(models.PaymentStatuses, q.PaymentStatus) {
		filter.PaymentStatus = q.PaymentStatus
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(q.UserID), 10, 64); err == nil && id > 0 {
		filter.UserID = id
	}

	list, total, err := s.bookingRepo.List(ctx, q.GetOffset(), q.GetLimit(), filter)
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}

	results := make([]*booking.BookingInfo, len(list))
	for i, b := range list {
		results[i] = booking.NewBookingInfo(b)
	}
	return results, total, nil
}

// Stats 预订统计，收入只计算已支付的预订
func (s *BookingAdminService) Stats(ctx context.Context) (*BookingStats, error) {
	stats := &BookingStats{}
	var err error

	if stats.Total, err = s.bookingRepo.Count(ctx); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if stats.ByStatus, err = s.bookingRepo.CountByStatus(ctx); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if stats.ByPaymentStatus, err = s.bookingRepo.CountByPaymentStatus(ctx); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if stats.Revenue, err = s.bookingRepo.SumRevenue(ctx); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if stats.Refunded, err = s.bookingRepo.SumRefunded(ctx); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	stats.Revenue = utils.RoundMoney(stats.Revenue)
	stats.Refunded = utils.RoundMoney(stats.Refunded)
	return stats, nil
}

// UpdateStatus 修改预订状态，沿用预订服务的状态流转规则
func (s *BookingAdminService) UpdateStatus(ctx context.Context, id int64, req *booking.UpdateBookingRequest) (*booking.BookingInfo, error) {
	return s.bookings.UpdateBooking(ctx, id, req)
}
