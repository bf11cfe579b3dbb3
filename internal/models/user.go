// Package models 定义数据模型
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// User 用户模型
type User struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName         string    `gorm:"type:varchar(50);not null" json:"first_name"`
	LastName          string    `gorm:"type:varchar(50);not null" json:"last_name"`
	Email             string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password          string    `gorm:"type:varchar(255);not null" json:"-"`
	Role              string    `gorm:"type:varchar(20);not null;default:'user';index" json:"role"`
	Phone             *string   `gorm:"type:varchar(30)" json:"phone,omitempty"`
	PaymentCustomerID *string   `gorm:"type:varchar(100)" json:"-"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Bookings []Booking `gorm:"foreignKey:UserID" json:"bookings,omitempty"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}

// 用户角色
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// IsValidRole 角色是否合法
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// FullName 姓名
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// JSON 自定义 JSON 类型
type JSON map[string]interface{}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
