package admin

import (
	"context"
	"time"

	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
)

// DashboardService 管理员仪表盘服务
type DashboardService struct {
	userRepo    *repository.UserRepository
	tourRepo    *repository.TourRepository
	bookingRepo *repository.BookingRepository
	now         func() time.Time
}

// NewDashboardService 创建仪表盘服务
func NewDashboardService(
	userRepo *repository.UserRepository,
	tourRepo *repository.TourRepository,
	bookingRepo *repository.BookingRepository,
) *DashboardService {
	return &DashboardService{
		userRepo:    userRepo,
		tourRepo:    tourRepo,
		bookingRepo: bookingRepo,
		now:         time.Now,
	}
}

// Overview 平台概览数据
type Overview struct {
	TotalUsers    int64   `json:"total_users"`
	TotalTours    int64   `json:"total_tours"`
	ActiveTours   int64   `json:"active_tours"`
	TotalBookings int64   `json:"total_bookings"`
	TodayBookings int64   `json:"today_bookings"`
	TotalRevenue  float64 `json:"total_revenue"`
}

// GetOverview 获取平台概览
func (s *DashboardService) GetOverview(ctx context.Context) (*Overview, error) {
	overview := &Overview{}
	var err error

	// 用户统计
	if overview.TotalUsers, err = s.userRepo.Count(ctx); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	// 线路统计
	if overview.TotalTours, overview.ActiveTours, err = s.tourRepo.CountAll(ctx); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	// 预订统计，今日按 UTC 计算
	if overview.TotalBookings, err = s.bookingRepo.Count(ctx); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if overview.TodayBookings, err = s.bookingRepo.CountCreatedSince(ctx, utils.UTCDate(s.now())); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	revenue, err := s.bookingRepo.SumRevenue(ctx)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	overview.TotalRevenue = utils.RoundMoney(revenue)

	return overview, nil
}
