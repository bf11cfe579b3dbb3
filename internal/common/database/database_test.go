package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/tour-booking-backend/internal/common/config"
	"github.com/dumeirei/tour-booking-backend/internal/models"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

// ==================== Open / Migrate 测试 ====================

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", Name: ":memory:", MaxIdleConns: 1, MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable(&models.Booking{}))
	assert.True(t, db.Migrator().HasTable(&models.TourStartDate{}))
	assert.NoError(t, Ping(context.Background(), db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestMigrate_BackfillsEndDate(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", Name: ":memory:", MaxIdleConns: 1, MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, Migrate(db))

	user := &models.User{FirstName: "Ana", LastName: "Silva", Email: "ana@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)
	tour := &models.Tour{Title: "Douro", Destination: "Porto", Duration: 5, Price: 100, MaxGroupSize: 4}
	require.NoError(t, db.Create(tour).Error)
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	b := &models.Booking{UserID: user.ID, TourID: tour.ID, StartDate: start, Adults: 1, TotalPrice: 100}
	require.NoError(t, db.Create(b).Error)
	require.NoError(t, db.Model(&models.Booking{}).Where("id = ?", b.ID).Update("end_date", nil).Error)

	require.NoError(t, Migrate(db))

	var stored models.Booking
	require.NoError(t, db.First(&stored, b.ID).Error)
	assert.Equal(t, "2026-03-15", stored.EndDate.Format("2006-01-02"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestClose_WithNilDB(t *testing.T) {
	assert.NoError(t, Close(nil))
}

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, getLogLevel(true))
	assert.Equal(t, logger.Silent, getLogLevel(false))
}

// ==================== 作用域 测试 ====================

func TestPaginate(t *testing.T) {
	db := openMemory(t)

	type Item struct {
		ID   int64
		Name string
	}
	require.NoError(t, db.AutoMigrate(&Item{}))
	for i := 1; i <= 50; i++ {
		db.Create(&Item{ID: int64(i), Name: "item"})
	}

	tests := []struct {
		name         string
		page         int
		pageSize     int
		expectedLen  int
		expectedFrom int64
	}{
		{"first page", 1, 10, 10, 1},
		{"second page", 2, 10, 10, 11},
		{"past the end", 6, 10, 0, 0},
		{"zero page defaults to 1", 0, 10, 10, 1},
		{"zero pageSize defaults to 10", 1, 0, 10, 1},
		{"pageSize over 100 capped", 1, 200, 50, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []Item
			db.Scopes(Paginate(tt.page, tt.pageSize)).Order("id").Find(&results)

			assert.Len(t, results, tt.expectedLen)
			if tt.expectedLen > 0 {
				assert.Equal(t, tt.expectedFrom, results[0].ID)
			}
		})
	}
}

func TestOrderByCreatedDesc(t *testing.T) {
	db := openMemory(t)

	type Record struct {
		ID        int64
		CreatedAt time.Time
	}
	require.NoError(t, db.AutoMigrate(&Record{}))

	now := time.Now()
	db.Create(&Record{ID: 1, CreatedAt: now.Add(-2 * time.Hour)})
	db.Create(&Record{ID: 2, CreatedAt: now})
	db.Create(&Record{ID: 3, CreatedAt: now})

	var results []Record
	db.Scopes(OrderByCreatedDesc).Find(&results)

	require.Len(t, results, 3)
	// 创建时间相同按 id 降序
	assert.Equal(t, []int64{3, 2, 1}, []int64{results[0].ID, results[1].ID, results[2].ID})
}

func TestForUpdate_SQLiteSkipsLocking(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, db.AutoMigrate(&models.Tour{}))
	require.NoError(t, db.Create(&models.Tour{Title: "t", Destination: "d", Duration: 1, MaxGroupSize: 1, IsActive: true}).Error)

	var tour models.Tour
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Scopes(ForUpdate).First(&tour).Error
	})
	require.NoError(t, err)
	assert.Equal(t, "t", tour.Title)

	stmt := db.Session(&gorm.Session{DryRun: true}).Scopes(ForUpdate).First(&models.Tour{}).Statement
	assert.NotContains(t, stmt.SQL.String(), "FOR UPDATE")
}

func TestContainsPattern(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"普通文本转小写", "Lisbon", "%lisbon%"},
		{"百分号", "50%", "%50!%%"},
		{"下划线", "a_b", "%a!_b%"},
		{"转义字符本身", "hi!", "%hi!!%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsPattern(tt.in))
		})
	}
}
