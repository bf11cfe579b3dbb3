package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	"github.com/dumeirei/tour-booking-backend/tests/helpers"
)

func setupUserAdminService(t *testing.T) (*UserAdminService, *gorm.DB) {
	db := helpers.SetupTestDB(t)
	return NewUserAdminService(repository.NewUserRepository(db)), db
}

// backdate 修改用户注册时间
func backdate(t *testing.T, db *gorm.DB, user *models.User, at time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("created_at", at).Error)
}

func TestUserAdminService_List(t *testing.T) {
	svc, db := setupUserAdminService(t)
	ctx := context.Background()

	alice := helpers.NewTestUser(models.RoleUser)
	alice.FirstName = "Alice"
	alice.Email = "alice@example.com"
	require.NoError(t, db.Create(alice).Error)
	helpers.CreateUser(t, db, models.RoleUser)
	helpers.CreateUser(t, db, models.RoleAdmin)

	tests := []struct {
		name      string
		query     UserListQuery
		wantTotal int64
	}{
		{"全部用户", UserListQuery{}, 3},
		{"按角色过滤", UserListQuery{Role: models.RoleAdmin}, 1},
		{"未知角色忽略", UserListQuery{Role: "superuser"}, 3},
		{"按姓名搜索不区分大小写", UserListQuery{Search: "aLiCe"}, 1},
		{"按邮箱搜索", UserListQuery{Search: "alice@"}, 1},
		{"分页", UserListQuery{Pagination: utils.Pagination{Page: 2, PageSize: 2}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query
			list, total, err := svc.List(ctx, &q)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			if q.Page == 2 {
				assert.Len(t, list, 1)
			}
		})
	}
}

func TestGrowthPercent(t *testing.T) {
	tests := []struct {
		name     string
		current  int64
		previous int64
		want     float64
	}{
		{"均为零", 0, 0, 0},
		{"上期为零", 5, 0, 100},
		{"增长", 15, 10, 50},
		{"下降", 5, 10, -50},
		{"保留两位小数", 1, 3, -66.67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GrowthPercent(tt.current, tt.previous))
		})
	}
}

func TestUserAdminService_Stats(t *testing.T) {
	svc, db := setupUserAdminService(t)
	ctx := context.Background()
	now := time.Now().Add(time.Minute)
	svc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		helpers.CreateUser(t, db, models.RoleUser)
	}
	helpers.CreateUser(t, db, models.RoleAdmin)
	old := helpers.CreateUser(t, db, models.RoleUser)
	backdate(t, db, old, now.AddDate(0, 0, -45))
	older := helpers.CreateUser(t, db, models.RoleUser)
	backdate(t, db, older, now.AddDate(0, 0, -50))
	ancient := helpers.CreateUser(t, db, models.RoleUser)
	backdate(t, db, ancient, now.AddDate(0, 0, -90))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(7), stats.TotalUsers)
	assert.Equal(t, int64(6), stats.ByRole[models.RoleUser])
	assert.Equal(t, int64(1), stats.ByRole[models.RoleAdmin])
	assert.Equal(t, int64(4), stats.NewUsers)
	assert.Equal(t, int64(2), stats.PreviousPeriod)
	assert.Equal(t, 100.0, stats.GrowthPercent)
}

func TestUserAdminService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("修改姓名", func(t *testing.T) {
		svc, db := setupUserAdminService(t)
		admin := helpers.CreateUser(t, db, models.RoleAdmin)
		user := helpers.CreateUser(t, db, models.RoleUser)

		info, err := svc.Update(ctx, user.ID, admin.ID, &UpdateUserRequest{FirstName: utils.StringPtr(" Grace ")})
		require.NoError(t, err)
		assert.Equal(t, "Grace", info.FirstName)
		assert.Equal(t, user.LastName, info.LastName)
		assert.Equal(t, models.RoleUser, info.Role)
	})

	t.Run("提升为管理员", func(t *testing.T) {
		svc, db := setupUserAdminService(t)
		admin := helpers.CreateUser(t, db, models.RoleAdmin)
		user := helpers.CreateUser(t, db, models.RoleUser)

		info, err := svc.Update(ctx, user.ID, admin.ID, &UpdateUserRequest{Role: utils.StringPtr(models.RoleAdmin)})
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, info.Role)
	})

	t.Run("不能修改自己的角色", func(t *testing.T) {
		svc, db := setupUserAdminService(t)
		admin := helpers.CreateUser(t, db, models.RoleAdmin)

		_, err := svc.Update(ctx, admin.ID, admin.ID, &UpdateUserRequest{Role: utils.StringPtr(models.RoleUser)})
		require.ErrorIs(t, err, errors.ErrCannotDemoteSelf)
		assert.Equal(t, 400, errors.GetAppError(err).HTTPStatus())
	})

	t.Run("保持自己角色不变是允许的", func(t *testing.T) {
		svc, db := setupUserAdminService(t)
		admin := helpers.CreateUser(t, db, models.RoleAdmin)

		_, err := svc.Update(ctx, admin.ID, admin.ID, &UpdateUserRequest{
			Role:     utils.StringPtr(models.RoleAdmin),
			LastName: utils.StringPtr("Hopper"),
		})
		assert.NoError(t, err)
	})

	t.Run("非法角色", func(t *testing.T) {
		svc, db := setupUserAdminService(t)
		admin := helpers.CreateUser(t, db, models.RoleAdmin)
		user := helpers.CreateUser(t, db, models.RoleUser)

		_, err := svc.Update(ctx, user.ID, admin.ID, &UpdateUserRequest{Role: utils.StringPtr("root")})
		assert.ErrorIs(t, err, errors.ErrInvalidRole)
	})

	t.Run("用户不存在", func(t *testing.T) {
		svc, db := setupUserAdminService(t)
		admin := helpers.CreateUser(t, db, models.RoleAdmin)

		_, err := svc.Update(ctx, 9999, admin.ID, &UpdateUserRequest{})
		assert.ErrorIs(t, err, errors.ErrUserNotFound)
	})
}

func TestUserAdminService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("级联删除预订", func(t *testing.T) {
		svc, db := setupUserAdminService(t)
		admin := helpers.CreateUser(t, db, models.RoleAdmin)
		user := helpers.CreateUser(t, db, models.RoleUser)
		other := helpers.CreateUser(t, db, models.RoleUser)
		tour := helpers.CreateTour(t, db, 100, 10)
		helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(10), models.BookingStatusPending)
		helpers.CreateBooking(t, db, user.ID, tour, helpers.DaysFromToday(20), models.BookingStatusConfirmed)
		helpers.CreateBooking(t, db, other.ID, tour, helpers.DaysFromToday(10), models.BookingStatusPending)

		require.NoError(t, svc.Delete(ctx, user.ID, admin.ID))

		var users, bookings int64
		db.Model(&models.User{}).Where("id = ?", user.ID).Count(&users)
		db.Model(&models.Booking{}).Where("user_id = ?", user.ID).Count(&bookings)
		assert.Zero(t, users)
		assert.Zero(t, bookings)

		db.Model(&models.Booking{}).Where("user_id = ?", other.ID).Count(&bookings)
		assert.Equal(t, int64(1), bookings)
	})

	t.Run("不能删除自己", func(t *testing.T) {
		svc, db := setupUserAdminService(t)
		admin := helpers.CreateUser(t, db, models.RoleAdmin)

		err := svc.Delete(ctx, admin.ID, admin.ID)
		require.ErrorIs(t, err, errors.ErrCannotDeleteSelf)
		assert.Equal(t, 400, errors.GetAppError(err).HTTPStatus())

		var count int64
		db.Model(&models.User{}).Where("id = ?", admin.ID).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("用户不存在", func(t *testing.T) {
		svc, db := setupUserAdminService(t)
		admin := helpers.CreateUser(t, db, models.RoleAdmin)

		err := svc.Delete(ctx, 9999, admin.ID)
		assert.ErrorIs(t, err, errors.ErrUserNotFound)
	})
}
