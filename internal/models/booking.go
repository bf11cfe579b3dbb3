package models

import (
	"time"
)

// Booking 线路预订
type Booking struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID             int64     `gorm:"index;not null" json:"user_id"`
	TourID             int64     `gorm:"index:idx_booking_tour_date;not null" json:"tour_id"`
	StartDate          time.Time `gorm:"type:date;index:idx_booking_tour_date;not null" json:"start_date"`
	EndDate            time.Time `gorm:"type:date;index" json:"end_date"`
	Adults             int       `gorm:"not null;default:1" json:"adults"`
	Children           int       `gorm:"not null;default:0" json:"children"`
	TotalPrice         float64   `gorm:"type:decimal(10,2);not null" json:"total_price"`
	Status             string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus      string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status"`
	PaymentMethod      string    `gorm:"type:varchar(30)" json:"payment_method"`
	PaymentCustomerID  *string   `gorm:"type:varchar(100)" json:"payment_customer_id,omitempty"`
	PaymentIntentID    *string   `gorm:"type:varchar(100);index" json:"payment_intent_id,omitempty"`
	PaymentChargeID    *string   `gorm:"type:varchar(100)" json:"payment_charge_id,omitempty"`
	SpecialRequests    *string   `gorm:"type:text" json:"special_requests,omitempty"`
	ContactPhone       string    `gorm:"type:varchar(30)" json:"contact_phone"`
	ContactEmail       string    `gorm:"type:varchar(255)" json:"contact_email"`
	CancellationReason *string   `gorm:"type:text" json:"cancellation_reason,omitempty"`
	RefundAmount       float64   `gorm:"type:decimal(10,2);not null;default:0" json:"refund_amount"`
	CreatedAt          time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Tour *Tour `gorm:"foreignKey:TourID" json:"tour,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 表名
func (Booking) TableName() string {
	return "bookings"
}

// TripEndDate 行程结束日，出发日期加线路天数，天数不足 1 按 1 天计
func TripEndDate(startDate time.Time, duration int) time.Time {
	if duration < 1 {
		duration = 1
	}
	return startDate.AddDate(0, 0, duration)
}

// 预订状态
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

// 支付状态
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
	PaymentStatusFailed   = "failed"
)

// BookingStatuses 全部预订状态
var BookingStatuses = []string{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusCancelled,
	BookingStatusCompleted,
}

// PaymentStatuses 全部支付状态
var PaymentStatuses = []string{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusRefunded,
	PaymentStatusFailed,
}

// PaymentMethodCard 银行卡支付
const PaymentMethodCard = "card"

// ProcessedWebhookEvent 已处理的支付网关回调事件
type ProcessedWebhookEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"event_id"`
	EventType   string    `gorm:"type:varchar(100);not null" json:"event_type"`
	ProcessedAt time.Time `gorm:"autoCreateTime" json:"processed_at"`
}

// TableName 表名
func (ProcessedWebhookEvent) TableName() string {
	return "processed_webhook_events"
}
