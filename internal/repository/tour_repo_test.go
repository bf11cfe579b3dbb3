package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/tests/helpers"
)

func TestTourRepository_CreateWithChildren(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewTourRepository(db)
	ctx := context.Background()

	tour := helpers.NewTestTour(250, 8, helpers.DaysFromToday(20), helpers.DaysFromToday(10))
	tour.Images = []models.TourImage{{URL: "https://img.example.com/1.jpg"}}
	tour.Features = []models.TourFeature{{Label: "Guide"}, {Label: "Lunch"}}
	require.NoError(t, repo.Create(ctx, tour))

	found, err := repo.GetByID(ctx, tour.ID)
	require.NoError(t, err)
	assert.Len(t, found.Images, 1)
	assert.Len(t, found.Features, 2)
	require.Len(t, found.StartDates, 2)
	assert.True(t, found.StartDates[0].StartDate.Before(found.StartDates[1].StartDate))
}

func TestTourRepository_CreateInactive(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewTourRepository(db)
	ctx := context.Background()

	tour := helpers.NewTestTour(180, 6, helpers.DaysFromToday(15))
	tour.IsActive = false
	require.NoError(t, repo.Create(ctx, tour))
	assert.False(t, tour.IsActive)

	var stored models.Tour
	require.NoError(t, db.First(&stored, tour.ID).Error)
	assert.False(t, stored.IsActive)
	require.Len(t, tour.StartDates, 1)

	tours, total, err := repo.List(ctx, TourFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, tours)
}

func TestTourRepository_List(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewTourRepository(db)
	ctx := context.Background()

	paris := helpers.NewTestTour(100, 5, helpers.DaysFromToday(40))
	paris.Destination = "Paris, France"
	require.NoError(t, repo.Create(ctx, paris))

	rome := helpers.NewTestTour(300, 5, helpers.DaysFromToday(5))
	rome.Destination = "Rome"
	require.NoError(t, repo.Create(ctx, rome))

	hidden := helpers.NewTestTour(150, 5)
	hidden.Destination = "Paris"
	require.NoError(t, repo.Create(ctx, hidden))
	require.NoError(t, db.Model(hidden).Update("is_active", false).Error)

	lo, hi := 100.0, 300.0
	date := helpers.DaysFromToday(30)

	tests := []struct {
		name   string
		filter TourFilter
		want   []int64
	}{
		{"仅返回上架线路", TourFilter{}, []int64{rome.ID, paris.ID}},
		{"目的地不区分大小写", TourFilter{Destination: "paris"}, []int64{paris.ID}},
		{"价格下限包含边界", TourFilter{MinPrice: &hi}, []int64{rome.ID}},
		{"价格上限包含边界", TourFilter{MaxPrice: &lo}, []int64{paris.ID}},
		{"出发日期过滤", TourFilter{StartDate: &date}, []int64{paris.ID}},
		{"分页", TourFilter{Offset: 1, Limit: 1}, []int64{paris.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tours, _, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]int64, 0, len(tours))
			for _, tour := range tours {
				ids = append(ids, tour.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestTourRepository_List_DestinationWildcards(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewTourRepository(db)
	ctx := context.Background()

	names := []string{"500 Lisbon", "50% Off Porto", "Cabo_Verde", "CaboXVerde", "Wow! Iceland"}
	ids := make(map[string]int64, len(names))
	for _, name := range names {
		tour := helpers.NewTestTour(100, 5)
		tour.Title = name
		tour.Destination = name
		require.NoError(t, repo.Create(ctx, tour))
		ids[name] = tour.ID
	}

	tests := []struct {
		name        string
		destination string
		want        []string
	}{
		{"百分号按字面匹配", "50%", []string{"50% Off Porto"}},
		{"下划线按字面匹配", "o_v", []string{"Cabo_Verde"}},
		{"感叹号按字面匹配", "wow!", []string{"Wow! Iceland"}},
		{"普通子串", "cabo", []string{"Cabo_Verde", "CaboXVerde"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tours, total, err := repo.List(ctx, TourFilter{Destination: tt.destination})
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), total)
			got := make([]int64, 0, len(tours))
			for _, tour := range tours {
				got = append(got, tour.ID)
			}
			want := make([]int64, 0, len(tt.want))
			for _, name := range tt.want {
				want = append(want, ids[name])
			}
			assert.ElementsMatch(t, want, got)
		})
	}
}

func TestTourRepository_ExistsActiveDuplicate(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewTourRepository(db)
	ctx := context.Background()

	tour := helpers.NewTestTour(100, 5)
	tour.Title, tour.Destination = "Alps Trek", "Zermatt"
	require.NoError(t, repo.Create(ctx, tour))

	dup, err := repo.ExistsActiveDuplicate(ctx, " alps trek ", "ZERMATT", 0)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = repo.ExistsActiveDuplicate(ctx, "Alps Trek", "Zermatt", tour.ID)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestTourRepository_UpdateReplacesOnlyProvidedChildren(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewTourRepository(db)
	ctx := context.Background()

	tour := helpers.NewTestTour(100, 5, helpers.DaysFromToday(10))
	tour.Images = []models.TourImage{{URL: "a.jpg"}, {URL: "b.jpg"}}
	tour.Features = []models.TourFeature{{Label: "Guide"}}
	require.NoError(t, repo.Create(ctx, tour))

	empty := []models.TourImage{}
	dates := []models.TourStartDate{{StartDate: helpers.DaysFromToday(50)}, {StartDate: helpers.DaysFromToday(60)}}
	err := repo.Update(ctx, tour.ID, map[string]interface{}{"price": 120.0}, TourChildren{
		Images:     &empty,
		StartDates: &dates,
	})
	require.NoError(t, err)

	found, err := repo.GetByID(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.0, found.Price)
	assert.Empty(t, found.Images)
	assert.Len(t, found.StartDates, 2)
	assert.Len(t, found.Features, 1, "未提供的子表保持不变")
}

func TestTourRepository_Delete(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewTourRepository(db)
	ctx := context.Background()
	user := helpers.CreateUser(t, db, models.RoleUser)

	tour := helpers.CreateTour(t, db, 100, 5, helpers.DaysFromToday(10))
	helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(10), models.BookingStatusCancelled)

	errBlocked := errors.New("blocked")
	err := repo.Delete(ctx, tour.ID, func(tx *gorm.DB) error { return errBlocked })
	assert.ErrorIs(t, err, errBlocked)
	exists, _ := repo.Exists(ctx, tour.ID)
	assert.True(t, exists, "中止后回滚")

	require.NoError(t, repo.Delete(ctx, tour.ID, nil))
	exists, _ = repo.Exists(ctx, tour.ID)
	assert.False(t, exists)

	var children, bookings int64
	db.Model(&models.TourStartDate{}).Where("tour_id = ?", tour.ID).Count(&children)
	db.Model(&models.Booking{}).Where("tour_id = ?", tour.ID).Count(&bookings)
	assert.Zero(t, children)
	assert.Zero(t, bookings)

	err = repo.Delete(ctx, tour.ID, nil)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestTourRepository_AddImageAndCount(t *testing.T) {
	db := helpers.SetupTestDB(t)
	repo := NewTourRepository(db)
	ctx := context.Background()

	tour := helpers.CreateTour(t, db, 100, 5)
	inactive := helpers.CreateTour(t, db, 100, 5)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	require.NoError(t, repo.AddImage(ctx, &models.TourImage{TourID: tour.ID, URL: "c.jpg"}))
	found, err := repo.GetByID(ctx, tour.ID)
	require.NoError(t, err)
	assert.Len(t, found.Images, 1)

	total, active, err := repo.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), active)
}
