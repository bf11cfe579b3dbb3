package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/common/database"
	"github.com/dumeirei/tour-booking-backend/internal/models"
)

// TourRepository 线路仓储
type TourRepository struct {
	db *gorm.DB
}

// NewTourRepository 创建线路仓储
func NewTourRepository(db *gorm.DB) *TourRepository {
	return &TourRepository{db: db}
}

// TourFilter 线路列表过滤条件，nil 表示不过滤
type TourFilter struct {
	Destination string
	MinPrice    *float64
	MaxPrice    *float64
	StartDate   *time.Time // 至少有一个出发日期不早于该日期
	Offset      int
	Limit       int // 0 表示不分页
}

// TourChildren 线路子表数据，nil 表示不修改
type TourChildren struct {
	Images     *[]models.TourImage
	StartDates *[]models.TourStartDate
	Features   *[]models.TourFeature
}

func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("StartDates", func(db *gorm.DB) *gorm.DB { return db.Order("start_date") }).
		Preload("Features", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

// Create 在一个事务中创建线路，子表随关联一起写入
// is_active 带默认值，false 会被忽略，需在同一事务内补写
func (r *TourRepository) Create(ctx context.Context, tour *models.Tour) error {
	active := tour.IsActive
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tour).Error; err != nil {
			return err
		}
		if active {
			return nil
		}
		if err := tx.Model(&models.Tour{}).Where("id = ?", tour.ID).Update("is_active", false).Error; err != nil {
			return err
		}
		tour.IsActive = false
		return nil
	})
}

// GetByID 根据 ID 获取线路（包含图片、出发日期、特色）
func (r *TourRepository) GetByID(ctx context.Context, id int64) (*models.Tour, error) {
	var tour models.Tour
	if err := r.db.WithContext(ctx).Scopes(withChildren).First(&tour, id).Error; err != nil {
		return nil, err
	}
	return &tour, nil
}

// GetForUpdate 在事务中锁定线路行
func (r *TourRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*models.Tour, error) {
	var tour models.Tour
	if err := tx.WithContext(ctx).Scopes(database.ForUpdate).First(&tour, id).Error; err != nil {
		return nil, err
	}
	return &tour, nil
}

// List 获取上架线路列表
func (r *TourRepository) List(ctx context.Context, filter TourFilter) ([]*models.Tour, int64, error) {
	var tours []*models.Tour
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Tour{}).Where("is_active = ?", true)
	if d := strings.TrimSpace(filter.Destination); d != "" {
		query = query.Where("LOWER(destination) LIKE ? ESCAPE '!'", database.ContainsPattern(d))
	}
	if filter.MinPrice != nil {
		query = query.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query = query.Where("price <= ?", *filter.MaxPrice)
	}
	if filter.StartDate != nil {
		query = query.Where(
			"EXISTS (SELECT 1 FROM tour_start_dates sd WHERE sd.tour_id = tours.id AND sd.start_date >= ?)",
			*filter.StartDate,
		)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(withChildren).Scopes(database.OrderByCreatedDesc)
	if filter.Limit > 0 {
		query = query.Offset(filter.Offset).Limit(filter.Limit)
	}
	if err := query.Find(&tours).Error; err != nil {
		return nil, 0, err
	}
	return tours, total, nil
}

// ExistsActiveDuplicate 是否存在同名同目的地的上架线路（不区分大小写）
func (r *TourRepository) ExistsActiveDuplicate(ctx context.Context, title, destination string, excludeID int64) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Tour{}).
		Where("is_active = ?", true).
		Where("LOWER(title) = ? AND LOWER(destination) = ?",
			strings.ToLower(strings.TrimSpace(title)),
			strings.ToLower(strings.TrimSpace(destination)))
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

// Update 在一个事务中更新标量字段并替换提供的子表
func (r *TourRepository) Update(ctx context.Context, id int64, fields map[string]interface{}, children TourChildren) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(fields) > 0 {
			result := tx.Model(&models.Tour{}).Where("id = ?", id).Updates(fields)
			if result.Error != nil {
				return result.Error
			}
		}

		if children.Images != nil {
			if err := tx.Where("tour_id = ?", id).Delete(&models.TourImage{}).Error; err != nil {
				return err
			}
			if err := createChildren(tx, *children.Images, func(m *models.TourImage) { m.ID, m.TourID = 0, id }); err != nil {
				return err
			}
		}
		if children.StartDates != nil {
			if err := tx.Where("tour_id = ?", id).Delete(&models.TourStartDate{}).Error; err != nil {
				return err
			}
			if err := createChildren(tx, *children.StartDates, func(m *models.TourStartDate) { m.ID, m.TourID = 0, id }); err != nil {
				return err
			}
		}
		if children.Features != nil {
			if err := tx.Where("tour_id = ?", id).Delete(&models.TourFeature{}).Error; err != nil {
				return err
			}
			if err := createChildren(tx, *children.Features, func(m *models.TourFeature) { m.ID, m.TourID = 0, id }); err != nil {
				return err
			}
		}
		return nil
	})
}

func createChildren[T any](tx *gorm.DB, rows []T, bind func(*T)) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		bind(&rows[i])
	}
	return tx.Create(&rows).Error
}

// Exists 线路是否存在
func (r *TourRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Tour{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Delete 在一个事务中删除线路、其子表与预订
// blocked 在锁定线路后于事务内执行，返回错误时中止删除
func (r *TourRepository) Delete(ctx context.Context, id int64, blocked func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.GetForUpdate(ctx, tx, id); err != nil {
			return err
		}
		if blocked != nil {
			if err := blocked(tx); err != nil {
				return err
			}
		}
		for _, m := range []interface{}{&models.Booking{}, &models.TourImage{}, &models.TourStartDate{}, &models.TourFeature{}} {
			if err := tx.Where("tour_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Tour{}, id).Error
	})
}

// AddImage 追加线路图片
func (r *TourRepository) AddImage(ctx context.Context, image *models.TourImage) error {
	return r.db.WithContext(ctx).Create(image).Error
}

// CountAll 线路总数与上架数
func (r *TourRepository) CountAll(ctx context.Context) (total, active int64, err error) {
	db := r.db.WithContext(ctx).Model(&models.Tour{})
	if err = db.Count(&total).Error; err != nil {
		return
	}
	err = r.db.WithContext(ctx).Model(&models.Tour{}).Where("is_active = ?", true).Count(&active).Error
	return
}
