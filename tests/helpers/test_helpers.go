// Package helpers 提供测试辅助工具
package helpers

import (
	"bytes"
	"fmt"
	"math/rand"
	"mime/multipart"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/tour-booking-backend/internal/common/cache"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
)

var dbSeq atomic.Int64

// SetupTestDB 返回一个 SQLite 内存数据库
// 每个测试独立一个库，并限制为单连接，使事务串行执行
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared&_busy_timeout=5000", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...), "failed to migrate test database")
	return db
}

// RandomString 生成随机字符串
func RandomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

// RandomEmail 生成随机邮箱
func RandomEmail() string {
	return "user_" + RandomString(8) + "@example.com"
}

// Today UTC 当日零点
func Today() time.Time {
	return utils.UTCDate(time.Now())
}

// DaysFromToday 距今 n 天的 UTC 日期
func DaysFromToday(n int) time.Time {
	return Today().AddDate(0, 0, n)
}

// NewTestUser 创建测试用户（未入库）
func NewTestUser(role string) *models.User {
	return &models.User{
		FirstName: "Test",
		LastName:  "User" + RandomString(4),
		Email:     RandomEmail(),
		Password:  "$2a$04$placeholderplaceholderplaceholderplaceholderplaceho",
		Role:      role,
	}
}

// CreateUser 创建并保存测试用户
func CreateUser(t *testing.T, db *gorm.DB, role string) *models.User {
	t.Helper()
	user := NewTestUser(role)
	require.NoError(t, db.Create(user).Error)
	return user
}

// NewTestTour 创建测试线路（未入库），附带若干出发日期
func NewTestTour(price float64, capacity int, startDates ...time.Time) *models.Tour {
	tour := &models.Tour{
		Title:        "Tour " + RandomString(6),
		Description:  "A test tour",
		Destination:  "Lisbon",
		Duration:     3,
		Price:        price,
		MaxGroupSize: capacity,
		Rating:       4.5,
		IsActive:     true,
	}
	for _, d := range startDates {
		tour.StartDates = append(tour.StartDates, models.TourStartDate{StartDate: d})
	}
	return tour
}

// CreateTour 创建并保存测试线路
func CreateTour(t *testing.T, db *gorm.DB, price float64, capacity int, startDates ...time.Time) *models.Tour {
	t.Helper()
	tour := NewTestTour(price, capacity, startDates...)
	require.NoError(t, db.Create(tour).Error)
	return tour
}

// CreateBooking 直接保存一条预订记录
func CreateBooking(t *testing.T, db *gorm.DB, userID int64, tour *models.Tour, startDate time.Time, status string) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		UserID:        userID,
		TourID:        tour.ID,
		StartDate:     startDate,
		EndDate:       models.TripEndDate(startDate, tour.Duration),
		Adults:        1,
		TotalPrice:    tour.Price,
		Status:        status,
		PaymentStatus: models.PaymentStatusPending,
		ContactEmail:  "contact@example.com",
	}
	require.NoError(t, db.Create(booking).Error)
	return booking
}

// SetupTestRedis 启动 miniredis 并返回缓存封装
func SetupTestRedis(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := cache.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

// PNGBytes 最小的 PNG 文件头，足以通过内容类型检测
var PNGBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

// NewFileHeader 构造 multipart 文件，用于上传测试
func NewFileHeader(t *testing.T, field, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(body, w.Boundary()).ReadForm(10 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	files := form.File[field]
	require.Len(t, files, 1)
	return files[0]
}
