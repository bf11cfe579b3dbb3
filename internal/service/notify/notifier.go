package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/tour-booking-backend/internal/common/crypto"
	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	"github.com/dumeirei/tour-booking-backend/internal/common/metrics"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/pkg/sms"
)

const dispatchTimeout = 5 * time.Second

// BookingEvent 预订事件负载
type BookingEvent struct {
	Event         string    `json:"event"`
	BookingID     int64     `json:"booking_id"`
	Reference     string    `json:"reference"`
	UserID        int64     `json:"user_id"`
	TourID        int64     `json:"tour_id"`
	StartDate     string    `json:"start_date"`
	Status        string    `json:"status"`
	PreviousState string    `json:"previous_status,omitempty"`
	PaymentStatus string    `json:"payment_status"`
	TotalPrice    float64   `json:"total_price"`
	RefundAmount  float64   `json:"refund_amount,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier 事务提交后的异步通知
// 发布与短信失败只记录日志，不影响请求结果
type Notifier struct {
	publisher   Publisher
	sms         sms.Sender
	smsTemplate string
	metrics     *metrics.Metrics
	wg          sync.WaitGroup
}

// NewNotifier 创建通知器，sender 为 nil 时不发送短信
func NewNotifier(publisher Publisher, sender sms.Sender, smsTemplate string, m *metrics.Metrics) *Notifier {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Notifier{
		publisher:   publisher,
		sms:         sender,
		smsTemplate: smsTemplate,
		metrics:     m,
	}
}

// BookingCreated 预订已创建
func (n *Notifier) BookingCreated(ctx context.Context, b *models.Booking) {
	n.publish(ctx, newBookingEvent(EventBookingCreated, b, ""))
}

// BookingCancelled 预订已取消
func (n *Notifier) BookingCancelled(ctx context.Context, b *models.Booking) {
	n.publish(ctx, newBookingEvent(EventBookingCancelled, b, ""))
}

// BookingStatusChanged 预订状态变更
func (n *Notifier) BookingStatusChanged(ctx context.Context, b *models.Booking, from string) {
	n.publish(ctx, newBookingEvent(EventBookingStatusChanged, b, from))
}

// PaymentSucceeded 支付成功，附带确认短信
func (n *Notifier) PaymentSucceeded(ctx context.Context, b *models.Booking) {
	evt := newBookingEvent(EventPaymentSucceeded, b, "")
	n.publish(ctx, evt)

	if n == nil || n.sms == nil || b.ContactPhone == "" {
		return
	}
	phone := b.ContactPhone
	params := map[string]string{
		"reference":  evt.Reference,
		"start_date": evt.StartDate,
	}
	n.dispatch(ctx, func(ctx context.Context) {
		if err := n.sms.Send(ctx, phone, n.smsTemplate, params); err != nil {
			logger.Warn("发送确认短信失败",
				zap.Error(err),
				logger.BookingID(evt.BookingID),
				zap.String("phone", crypto.MaskPhone(phone)),
			)
		}
	})
}

// PaymentFailed 支付失败
func (n *Notifier) PaymentFailed(ctx context.Context, b *models.Booking) {
	n.publish(ctx, newBookingEvent(EventPaymentFailed, b, ""))
}

// Wait 等待在途通知完成
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

// Close 等待在途通知并关闭发布器
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	n.wg.Wait()
	return n.publisher.Close()
}

func (n *Notifier) publish(ctx context.Context, evt BookingEvent) {
	if n == nil {
		return
	}
	n.dispatch(ctx, func(ctx context.Context) {
		err := n.publisher.Publish(ctx, evt.Event, evt)
		n.metrics.RecordEventPublished(evt.Event, err)
		if err != nil {
			logger.Warn("发布事件失败",
				zap.Error(err),
				zap.String("event", evt.Event),
				logger.BookingID(evt.BookingID),
			)
		}
	})
}

// dispatch 脱离请求生命周期执行 fn
func (n *Notifier) dispatch(ctx context.Context, fn func(ctx context.Context)) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func newBookingEvent(event string, b *models.Booking, from string) BookingEvent {
	return BookingEvent{
		Event:         event,
		BookingID:     b.ID,
		Reference:     utils.BookingReference(b.ID, b.CreatedAt),
		UserID:        b.UserID,
		TourID:        b.TourID,
		StartDate:     b.StartDate.UTC().Format("2006-01-02"),
		Status:        b.Status,
		PreviousState: from,
		PaymentStatus: b.PaymentStatus,
		TotalPrice:    b.TotalPrice,
		RefundAmount:  b.RefundAmount,
		OccurredAt:    time.Now().UTC(),
	}
}
