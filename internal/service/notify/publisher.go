// Package notify 提供领域事件发布与短信通知
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dumeirei/tour-booking-backend/internal/common/config"
	"github.com/dumeirei/tour-booking-backend/pkg/mqtt"
	"github.com/dumeirei/tour-booking-backend/pkg/rabbitmq"
)

// 领域事件
const (
	EventBookingCreated       = "booking.created"
	EventBookingCancelled     = "booking.cancelled"
	EventBookingStatusChanged = "booking.status_changed"
	EventPaymentSucceeded     = "payment.succeeded"
	EventPaymentFailed        = "payment.failed"
)

// Publisher 事件发布器
type Publisher interface {
	Publish(ctx context.Context, event string, payload interface{}) error
	Close() error
}

// NopPublisher 不发布任何事件
type NopPublisher struct{}

// Publish 丢弃事件
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// Close 无操作
func (NopPublisher) Close() error { return nil }

type rabbitPublisher struct {
	p *rabbitmq.Publisher
}

func (r *rabbitPublisher) Publish(ctx context.Context, event string, payload interface{}) error {
	return r.p.Publish(ctx, event, payload)
}

func (r *rabbitPublisher) Close() error {
	return r.p.Close()
}

type mqttPublisher struct {
	c *mqtt.Client
}

func (m *mqttPublisher) Publish(ctx context.Context, event string, payload interface{}) error {
	return m.c.Publish(ctx, m.c.Topic(event), payload)
}

func (m *mqttPublisher) Close() error {
	m.c.Disconnect()
	return nil
}

// NewPublisher 根据 events.driver 创建发布器
func NewPublisher(cfg *config.Config, log *zap.Logger) (Publisher, error) {
	switch cfg.Events.Driver {
	case "", "none":
		return NopPublisher{}, nil
	case "rabbitmq":
		p, err := rabbitmq.NewPublisher(cfg.Events.URL, cfg.Events.Exchange, cfg.Server.Name)
		if err != nil {
			return nil, err
		}
		return &rabbitPublisher{p: p}, nil
	case "mqtt":
		c := mqtt.NewClient(&mqtt.Config{
			Broker:        cfg.MQTT.Broker,
			Port:          cfg.MQTT.Port,
			ClientID:      cfg.MQTT.ClientIDPrefix + cfg.Server.Name,
			Username:      cfg.MQTT.Username,
			Password:      cfg.MQTT.Password,
			CleanSession:  true,
			QoS:           cfg.MQTT.QoS,
			KeepAlive:     cfg.MQTT.KeepAlive,
			AutoReconnect: cfg.MQTT.AutoReconnect,
			TopicPrefix:   cfg.MQTT.TopicPrefix,
		}, log)
		if err := c.Connect(); err != nil {
			return nil, err
		}
		return &mqttPublisher{c: c}, nil
	default:
		return nil, fmt.Errorf("unsupported events driver: %s", cfg.Events.Driver)
	}
}
