// Package booking 提供线路预订服务
package booking

import (
	"math"
	"time"

	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
)

// transitions 预订状态流转表，cancelled 与 completed 为终态
var transitions = map[string][]string{
	models.BookingStatusPending:   {models.BookingStatusConfirmed, models.BookingStatusCancelled},
	models.BookingStatusConfirmed: {models.BookingStatusCompleted, models.BookingStatusCancelled},
}

// CanTransition 判断状态能否从 from 流转到 to
func CanTransition(from, to string) bool {
	return utils.Contains(transitions[from], to)
}

// CheckTransition 不允许流转时返回 StateTransition 错误
func CheckTransition(from, to string) error {
	if !CanTransition(from, to) {
		return errors.TransitionError(from, to)
	}
	return nil
}

// IsCancelable 是否可取消
func IsCancelable(status string) bool {
	return CanTransition(status, models.BookingStatusCancelled)
}

// DaysUntil 距出发的天数，向上取整
func DaysUntil(startDate, now time.Time) int {
	return int(math.Ceil(startDate.Sub(now).Hours() / 24))
}

// RefundRate 退款比例
//
//	> 30 天: 90%
//	> 15 天: 70%
//	>  7 天: 50%
//	其余: 不退款
func RefundRate(days int) float64 {
	switch {
	case days > 30:
		return 0.9
	case days > 15:
		return 0.7
	case days > 7:
		return 0.5
	default:
		return 0
	}
}

// RefundAmount 按距出发天数计算退款金额
func RefundAmount(totalPrice float64, days int) float64 {
	return utils.RoundMoney(totalPrice * RefundRate(days))
}

// TotalPrice 计算订单总价，儿童按 childRate 折算
func TotalPrice(price float64, adults, children int, childRate float64) float64 {
	return utils.RoundMoney(price*float64(adults) + price*childRate*float64(children))
}
