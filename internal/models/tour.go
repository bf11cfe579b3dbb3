package models

import (
	"time"
)

// Tour 旅游线路
type Tour struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string    `gorm:"type:varchar(200);not null;index" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	Destination  string    `gorm:"type:varchar(200);not null;index" json:"destination"`
	Duration     int       `gorm:"not null;default:1" json:"duration"`
	Price        float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	MaxGroupSize int       `gorm:"not null;default:1" json:"max_group_size"`
	Rating       float64   `gorm:"type:decimal(2,1);not null;default:0" json:"rating"`
	IsActive     bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Images     []TourImage     `gorm:"foreignKey:TourID;constraint:OnDelete:CASCADE" json:"images"`
	StartDates []TourStartDate `gorm:"foreignKey:TourID;constraint:OnDelete:CASCADE" json:"start_dates"`
	Features   []TourFeature   `gorm:"foreignKey:TourID;constraint:OnDelete:CASCADE" json:"features"`
}

// TableName 表名
func (Tour) TableName() string {
	return "tours"
}

// TourImage 线路图片
type TourImage struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TourID int64  `gorm:"index;not null" json:"tour_id"`
	URL    string `gorm:"type:varchar(500);not null" json:"url"`
}

// TableName 表名
func (TourImage) TableName() string {
	return "tour_images"
}

// TourStartDate 线路出发日期
type TourStartDate struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TourID    int64     `gorm:"index;not null" json:"tour_id"`
	StartDate time.Time `gorm:"type:date;not null;index" json:"start_date"`
}

// TableName 表名
func (TourStartDate) TableName() string {
	return "tour_start_dates"
}

// TourFeature 线路特色
type TourFeature struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TourID int64  `gorm:"index;not null" json:"tour_id"`
	Label  string `gorm:"type:varchar(255);not null" json:"label"`
}

// TableName 表名
func (TourFeature) TableName() string {
	return "tour_features"
}
