package models

import (
	"time"
)

// OperationLog 管理员操作日志
type OperationLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AdminID     int64     `gorm:"index;not null" json:"admin_id"`
	Module      string    `gorm:"type:varchar(50);not null" json:"module"`
	Action      string    `gorm:"type:varchar(50);not null" json:"action"`
	TargetType  *string   `gorm:"type:varchar(50)" json:"target_type,omitempty"`
	TargetID    *int64    `json:"target_id,omitempty"`
	RequestData JSON      `gorm:"type:text" json:"request_data,omitempty"`
	IP          string    `gorm:"type:varchar(45);not null" json:"ip"`
	UserAgent   *string   `gorm:"type:varchar(255)" json:"user_agent,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 表名
func (OperationLog) TableName() string {
	return "operation_logs"
}

// AllModels 返回需要自动建表的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Tour{},
		&TourImage{},
		&TourStartDate{},
		&TourFeature{},
		&Booking{},
		&ProcessedWebhookEvent{},
		&OperationLog{},
	}
}
