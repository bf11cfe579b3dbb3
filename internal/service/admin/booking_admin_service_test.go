package admin

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	"github.com/dumeirei/tour-booking-backend/internal/service/booking"
	"github.com/dumeirei/tour-booking-backend/tests/helpers"
)

func setupBookingAdminService(t *testing.T) (*BookingAdminService, *gorm.DB) {
	db := helpers.SetupTestDB(t)
	bookingRepo := repository.NewBookingRepository(db)
	bookings := booking.NewBookingService(
		db,
		bookingRepo,
		repository.NewTourRepository(db),
		repository.NewUserRepository(db),
		nil,
		nil,
		0,
	)
	return NewBookingAdminService(bookingRepo, bookings), db
}

func setPayment(t *testing.T, db *gorm.DB, b *models.Booking, paymentStatus string, total, refund float64) {
	t.Helper()
	require.NoError(t, db.Model(&models.Booking{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
		"payment_status": paymentStatus,
		"total_price":    total,
		"refund_amount":  refund,
	}).Error)
}

func TestBookingAdminService_List(t *testing.T) {
	svc, db := setupBookingAdminService(t)
	ctx := context.Background()

	alice := helpers.CreateUser(t, db, models.RoleUser)
	bob := helpers.CreateUser(t, db, models.RoleUser)
	lisbon := helpers.CreateTour(t, db, 100, 10)
	porto := helpers.CreateTour(t, db, 200, 10)

	helpers.CreateBooking(t, db, alice.ID, lisbon, helpers.DaysFromToday(5), models.BookingStatusPending)
	b2 := helpers.CreateBooking(t, db, alice.ID, porto, helpers.DaysFromToday(20), models.BookingStatusConfirmed)
	helpers.CreateBooking(t, db, bob.ID, lisbon, helpers.DaysFromToday(40), models.BookingStatusCancelled)
	setPayment(t, db, b2, models.PaymentStatusPaid, 200, 0)

	tests := []struct {
		name      string
		query     BookingListQuery
		wantTotal int64
	}{
		{"全部", BookingListQuery{}, 3},
		{"按状态", BookingListQuery{ListQuery: booking.ListQuery{Status: models.BookingStatusPending}}, 1},
		{"按支付状态", BookingListQuery{PaymentStatus: models.PaymentStatusPaid}, 1},
		{"按用户", BookingListQuery{UserID: strconv.FormatInt(alice.ID, 10)}, 2},
		{"按线路", BookingListQuery{ListQuery: booking.ListQuery{TourID: strconv.FormatInt(lisbon.ID, 10)}}, 2},
		{"按出发日期区间", BookingListQuery{ListQuery: booking.ListQuery{
			StartDate: helpers.DaysFromToday(10).Format(utils.DateLayout),
			EndDate:   helpers.DaysFromToday(30).Format(utils.DateLayout),
		}}, 1},
		{"无法识别的过滤值被忽略", BookingListQuery{
			ListQuery:     booking.ListQuery{Status: "bogus", TourID: "abc", StartDate: "not-a-date"},
			PaymentStatus: "maybe",
			UserID:        "-1",
		}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query
			list, total, err := svc.List(ctx, &q)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			assert.Len(t, list, int(total))
		})
	}

	t.Run("包含线路与用户摘要", func(t *testing.T) {
		list, _, err := svc.List(ctx, &BookingListQuery{PaymentStatus: models.PaymentStatusPaid})
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.NotNil(t, list[0].Tour)
		require.NotNil(t, list[0].User)
		assert.Equal(t, porto.Title, list[0].Tour.Title)
		assert.Equal(t, alice.Email, list[0].User.Email)
	})
}

func TestBookingAdminService_Stats(t *testing.T) {
	svc, db := setupBookingAdminService(t)
	ctx := context.Background()
	user := helpers.CreateUser(t, db, models.RoleUser)
	tour := helpers.CreateTour(t, db, 100, 10)

	paid := helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(10), models.BookingStatusConfirmed)
	setPayment(t, db, paid, models.PaymentStatusPaid, 300.5, 0)
	refunded := helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(40), models.BookingStatusCancelled)
	setPayment(t, db, refunded, models.PaymentStatusRefunded, 400, 360)
	helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(12), models.BookingStatusPending)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[models.BookingStatusConfirmed])
	assert.Equal(t, int64(1), stats.ByStatus[models.BookingStatusCancelled])
	assert.Equal(t, int64(1), stats.ByStatus[models.BookingStatusPending])
	assert.Equal(t, int64(0), stats.ByStatus[models.BookingStatusCompleted])
	assert.Equal(t, int64(1), stats.ByPaymentStatus[models.PaymentStatusPaid])
	assert.Equal(t, int64(0), stats.ByPaymentStatus[models.PaymentStatusFailed])
	assert.Equal(t, 300.5, stats.Revenue)
	assert.Equal(t, 360.0, stats.Refunded)
}

func TestBookingAdminService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("待确认改为已确认", func(t *testing.T) {
		svc, db := setupBookingAdminService(t)
		user := helpers.CreateUser(t, db, models.RoleUser)
		tour := helpers.CreateTour(t, db, 100, 10)
		b := helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(10), models.BookingStatusPending)

		info, err := svc.UpdateStatus(ctx, b.ID, &booking.UpdateBookingRequest{Status: models.BookingStatusConfirmed})
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusConfirmed, info.Status)
	})

	t.Run("非法流转", func(t *testing.T) {
		svc, db := setupBookingAdminService(t)
		user := helpers.CreateUser(t, db, models.RoleUser)
		tour := helpers.CreateTour(t, db, 100, 10)
		b := helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(10), models.BookingStatusCompleted)

		_, err := svc.UpdateStatus(ctx, b.ID, &booking.UpdateBookingRequest{Status: models.BookingStatusPending})
		require.ErrorIs(t, err, errors.ErrInvalidTransition)
		assert.Equal(t, "Cannot change status from completed to pending", errors.GetAppError(err).Message)
	})
}
