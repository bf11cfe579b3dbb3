// Package mqtt 提供 MQTT 事件发布客户端
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrNotConnected 未连接到 Broker
var ErrNotConnected = errors.New("mqtt: not connected")

// Config MQTT 配置
type Config struct {
	Broker        string
	Port          int
	ClientID      string
	Username      string
	Password      string
	CleanSession  bool
	QoS           byte
	KeepAlive     int
	AutoReconnect bool
	TopicPrefix   string
}

// Client MQTT 客户端
type Client struct {
	config *Config
	client mqtt.Client
	log    *zap.Logger
}

// NewClient 创建 MQTT 客户端
func NewClient(config *Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{config: config, log: log.Named("mqtt")}
}

// Connect 连接 MQTT Broker
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(c.config.CleanSession)
	opts.SetKeepAlive(time.Duration(c.config.KeepAlive) * time.Second)
	opts.SetAutoReconnect(c.config.AutoReconnect)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warn("连接断开", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.log.Info("已连接", zap.String("broker", c.config.Broker), zap.Int("port", c.config.Port))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.log.Info("正在重连")
	})

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect error: %w", token.Error())
	}
	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	if c.IsConnected() {
		c.client.Disconnect(250)
	}
}

// IsConnected 检查是否已连接
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Topic 拼接主题前缀，事件名中的点号转换为层级
// booking.created -> tour-booking/booking/created
func (c *Client) Topic(event string) string {
	return c.config.TopicPrefix + strings.ReplaceAll(event, ".", "/")
}

// Publish 发布消息，受 ctx 超时控制
func (c *Client) Publish(ctx context.Context, topic string, payload interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	data, err := encode(payload)
	if err != nil {
		return err
	}

	token := c.client.Publish(topic, c.config.QoS, false, data)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("mqtt publish error: %w", token.Error())
		}
		return nil
	}
}

func encode(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("mqtt marshal payload error: %w", err)
		}
		return data, nil
	}
}
