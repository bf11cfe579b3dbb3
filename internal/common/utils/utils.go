// Package utils 提供通用工具函数
package utils

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// BookingReference 生成预订凭证编号，例如 BK20261015-000042
func BookingReference(id int64, createdAt time.Time) string {
	return fmt.Sprintf("BK%s-%06d", createdAt.UTC().Format("20060102"), id)
}

// RoundMoney 金额保留两位小数
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// ToMinorUnits 金额转换为最小货币单位（分）
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// UTCDate 取时间在 UTC 下的日历日（零点）
func UTCDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// ParseDate 解析 YYYY-MM-DD 或 RFC3339，结果为 UTC 日历日
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if d, err := time.Parse(DateLayout, value); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return UTCDate(t), nil
}

// NormalizeEmail 邮箱统一小写并去除空白
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StringPtr 返回字符串指针
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr 返回浮点数指针
func Float64Ptr(f float64) *float64 {
	return &f
}

// SafeString 安全获取字符串值
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Contains 检查切片是否包含元素
func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// Pagination 分页参数
type Pagination struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"page_size" form:"page_size"`
}

// GetOffset 获取偏移量
func (p *Pagination) GetOffset() int {
	return (p.Page - 1) * p.PageSize
}

// GetLimit 获取限制数
func (p *Pagination) GetLimit() int {
	return p.PageSize
}

// Normalize 规范化分页参数
func (p *Pagination) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 10
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}
