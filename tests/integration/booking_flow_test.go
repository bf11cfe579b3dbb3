//go:build integration

package integration

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/tour-booking-backend/internal/authz"
	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	"github.com/dumeirei/tour-booking-backend/internal/service/booking"
	"github.com/dumeirei/tour-booking-backend/tests/helpers"
)

func newBookingService() *booking.BookingService {
	return booking.NewBookingService(
		testDB,
		repository.NewBookingRepository(testDB),
		repository.NewTourRepository(testDB),
		repository.NewUserRepository(testDB),
		nil,
		nil,
		0,
	)
}

// bookConcurrently 多个用户同时预订同一线路同一天
func bookConcurrently(t *testing.T, svc *booking.BookingService, tour *models.Tour, date string, n int) (succeeded int, fullyBooked int) {
	t.Helper()

	users := make([]*models.User, n)
	for i := range users {
		users[i] = helpers.CreateUser(t, testDB, models.RoleUser)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := make(chan struct{})
	for _, u := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			<-start
			_, err := svc.CreateBooking(context.Background(), userID, &booking.CreateBookingRequest{
				TourID:         tour.ID,
				StartDate:      date,
				NumberOfPeople: booking.PartySize{Adults: 1},
				ContactInfo:    booking.ContactInfo{Phone: "13800000000"},
			})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(u.ID)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case stderrors.Is(err, errors.ErrTourFullyBooked):
			fullyBooked++
		default:
			t.Errorf("unexpected booking error: %v", err)
		}
	}
	return succeeded, fullyBooked
}

func TestBookingFlow_ConcurrentCapacity(t *testing.T) {
	svc := newBookingService()

	const capacity = 5
	tour := helpers.CreateTour(t, testDB, 100, capacity)
	date := helpers.DaysFromToday(20).Format(utils.DateLayout)

	succeeded, fullyBooked := bookConcurrently(t, svc, tour, date, capacity+1)
	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, 1, fullyBooked)

	var count int64
	require.NoError(t, testDB.Model(&models.Booking{}).
		Where("tour_id = ? AND status IN ?", tour.ID, []string{models.BookingStatusPending, models.BookingStatusConfirmed}).
		Count(&count).Error)
	assert.Equal(t, int64(capacity), count)
}

func TestBookingFlow_SingleSeatThenCancel(t *testing.T) {
	svc := newBookingService()
	ctx := context.Background()

	tour := helpers.CreateTour(t, testDB, 500, 1)
	date := helpers.DaysFromToday(10).Format(utils.DateLayout)

	succeeded, fullyBooked := bookConcurrently(t, svc, tour, date, 2)
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, fullyBooked)

	var b models.Booking
	require.NoError(t, testDB.Where("tour_id = ?", tour.ID).First(&b).Error)
	assert.Equal(t, 500.0, b.TotalPrice)

	// 距出发 10 天取消，退款 50%
	cancelled, err := svc.CancelBooking(ctx, b.ID, authz.Actor{UserID: b.UserID, Role: models.RoleUser}, "change of plans")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, models.PaymentStatusRefunded, cancelled.PaymentStatus)
	assert.Equal(t, 250.0, cancelled.RefundAmount)

	// 名额释放后可以再次预订
	succeeded, _ = bookConcurrently(t, svc, tour, date, 1)
	assert.Equal(t, 1, succeeded)
}
