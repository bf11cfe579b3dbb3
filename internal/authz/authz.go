// Package authz 集中定义访问控制判断
package authz

import (
	"github.com/dumeirei/tour-booking-backend/internal/models"
)

// Actor 当前请求的操作者
type Actor struct {
	UserID int64
	Role   string
}

// IsAdmin 是否为管理员
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// CanAccessBooking 预订所有者或管理员可访问
func CanAccessBooking(actor Actor, booking *models.Booking) bool {
	if booking == nil || actor.UserID <= 0 {
		return false
	}
	return actor.IsAdmin() || booking.UserID == actor.UserID
}
