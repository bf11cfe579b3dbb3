package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/tests/helpers"
)

func TestBookingRepository_CountActiveForDate(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	user := helpers.CreateUser(t, db, models.RoleUser)
	tour := helpers.CreateTour(t, db, 100, 3)
	day := helpers.DaysFromToday(10)

	helpers.CreateBooking(t, db, user.ID, tour, day, models.BookingStatusPending)
	helpers.CreateBooking(t, db, user.ID, tour, day, models.BookingStatusConfirmed)
	helpers.CreateBooking(t, db, user.ID, tour, day, models.BookingStatusCancelled)
	helpers.CreateBooking(t, db, user.ID, tour, day.AddDate(0, 0, 1), models.BookingStatusPending)

	count, err := repo.CountActiveForDate(ctx, db, tour.ID, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountActiveByTour(ctx, db, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestBookingRepository_CreateTxRollback(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	user := helpers.CreateUser(t, db, models.RoleUser)
	tour := helpers.CreateTour(t, db, 100, 3)

	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, repo.CreateTx(ctx, tx, &models.Booking{
			UserID: user.ID, TourID: tour.ID, StartDate: helpers.DaysFromToday(3), Adults: 1, TotalPrice: 100,
		}))
		return gorm.ErrInvalidTransaction
	})

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestBookingRepository_ListByUser(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	user := helpers.CreateUser(t, db, models.RoleUser)
	other := helpers.CreateUser(t, db, models.RoleUser)
	tourA := helpers.CreateTour(t, db, 100, 5)
	tourB := helpers.CreateTour(t, db, 200, 5)

	first := helpers.CreateBooking(t, db, user.ID, tourA, helpers.DaysFromToday(5), models.BookingStatusPending)
	second := helpers.CreateBooking(t, db, user.ID, tourB, helpers.DaysFromToday(20), models.BookingStatusConfirmed)
	helpers.CreateBooking(t, db, other.ID, tourA, helpers.DaysFromToday(5), models.BookingStatusPending)

	from := helpers.DaysFromToday(10)
	tests := []struct {
		name   string
		filter BookingFilter
		want   []int64
	}{
		{"全部且倒序", BookingFilter{}, []int64{second.ID, first.ID}},
		{"按状态", BookingFilter{Status: models.BookingStatusPending}, []int64{first.ID}},
		{"按线路", BookingFilter{TourID: tourB.ID}, []int64{second.ID}},
		{"按日期区间", BookingFilter{From: &from}, []int64{second.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings, err := repo.ListByUser(ctx, user.ID, tt.filter)
			require.NoError(t, err)
			ids := make([]int64, 0, len(bookings))
			for _, b := range bookings {
				ids = append(ids, b.ID)
				require.NotNil(t, b.Tour)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestBookingRepository_ListAdmin(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	user := helpers.CreateUser(t, db, models.RoleUser)
	tour := helpers.CreateTour(t, db, 100, 5)
	for i := 0; i < 3; i++ {
		helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(5+i), models.BookingStatusPending)
	}

	bookings, total, err := repo.List(ctx, 0, 2, BookingFilter{UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, bookings, 2)
	assert.NotNil(t, bookings[0].Tour)
	assert.NotNil(t, bookings[0].User)
}

func TestBookingRepository_UpdateFieldsIf(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	user := helpers.CreateUser(t, db, models.RoleUser)
	tour := helpers.CreateTour(t, db, 100, 5)
	booking := helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(5), models.BookingStatusCancelled)

	updated, err := repo.UpdateFieldsIf(ctx, nil, booking.ID,
		[]string{models.BookingStatusPending},
		map[string]interface{}{"status": models.BookingStatusConfirmed})
	require.NoError(t, err)
	assert.False(t, updated)

	found, err := repo.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, found.Status)
}

func TestBookingRepository_GetByPaymentIntentID(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	user := helpers.CreateUser(t, db, models.RoleUser)
	tour := helpers.CreateTour(t, db, 100, 5)
	booking := helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(5), models.BookingStatusPending)
	require.NoError(t, repo.UpdateFields(ctx, nil, booking.ID, map[string]interface{}{"payment_intent_id": "pi_123"}))

	found, err := repo.GetByPaymentIntentID(ctx, nil, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, booking.ID, found.ID)

	_, err = repo.GetByPaymentIntentID(ctx, nil, "pi_missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestBookingRepository_ListFinishedConfirmed(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	user := helpers.CreateUser(t, db, models.RoleUser)
	tour := helpers.CreateTour(t, db, 100, 5) // 3 天行程
	today := helpers.Today()

	done := helpers.CreateBooking(t, db, user.ID, tour, today.AddDate(0, 0, -4), models.BookingStatusConfirmed)
	helpers.CreateBooking(t, db, user.ID, tour, today.AddDate(0, 0, -3), models.BookingStatusConfirmed) // 今天结束
	helpers.CreateBooking(t, db, user.ID, tour, today.AddDate(0, 0, -10), models.BookingStatusPending)

	bookings, err := repo.ListFinishedConfirmed(ctx, today, 100)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, done.ID, bookings[0].ID)
}

func TestBookingRepository_ListFinishedConfirmed_LongTourDoesNotBlockBatch(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()
	today := helpers.Today()

	user := helpers.CreateUser(t, db, models.RoleUser)
	long := helpers.NewTestTour(100, 5)
	long.Duration = 60
	require.NoError(t, db.Create(long).Error)
	short := helpers.CreateTour(t, db, 100, 5)

	// 长线路出发更早但仍在进行中
	helpers.CreateBooking(t, db, user.ID, long, today.AddDate(0, 0, -20), models.BookingStatusConfirmed)
	finished := helpers.CreateBooking(t, db, user.ID, short, today.AddDate(0, 0, -10), models.BookingStatusConfirmed)

	bookings, err := repo.ListFinishedConfirmed(ctx, today, 1)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, finished.ID, bookings[0].ID)
}

func TestBookingRepository_Stats(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	user := helpers.CreateUser(t, db, models.RoleUser)
	tour := helpers.CreateTour(t, db, 100, 10)
	paid := helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(5), models.BookingStatusConfirmed)
	refunded := helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(5), models.BookingStatusCancelled)
	helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(5), models.BookingStatusPending)

	require.NoError(t, repo.UpdateFields(ctx, nil, paid.ID, map[string]interface{}{"payment_status": models.PaymentStatusPaid}))
	require.NoError(t, repo.UpdateFields(ctx, nil, refunded.ID, map[string]interface{}{
		"payment_status": models.PaymentStatusRefunded,
		"refund_amount":  70.0,
	}))

	byStatus, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		models.BookingStatusPending:   1,
		models.BookingStatusConfirmed: 1,
		models.BookingStatusCancelled: 1,
		models.BookingStatusCompleted: 0,
	}, byStatus)

	byPayment, err := repo.CountByPaymentStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), byPayment[models.PaymentStatusPaid])
	assert.Equal(t, int64(0), byPayment[models.PaymentStatusFailed])

	revenue, err := repo.SumRevenue(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, revenue, 0.001)

	refundedSum, err := repo.SumRefunded(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 70.0, refundedSum, 0.001)

	today, err := repo.CountCreatedSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), today)
}

func TestWebhookEventRepository_Record(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	first, err := repo.Record(ctx, nil, "evt_1", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.Record(ctx, nil, "evt_1", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.False(t, again)

	exists, err := repo.Exists(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, exists)
}
