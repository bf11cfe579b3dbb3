package paygateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Mock 内存支付网关（用于开发/测试）
// 回调使用与 Stripe 相同的签名格式
type Mock struct {
	mu            sync.Mutex
	webhookSecret string
	customers     map[string]string
	intents       map[string]*Intent

	// Err 非空时所有网关调用返回该错误
	Err error
}

// NewMock 创建模拟网关
func NewMock(webhookSecret string) *Mock {
	if webhookSecret == "" {
		webhookSecret = "whsec_mock"
	}
	return &Mock{
		webhookSecret: webhookSecret,
		customers:     make(map[string]string),
		intents:       make(map[string]*Intent),
	}
}

// CreateCustomer 模拟创建客户
func (m *Mock) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	id := "cus_mock_" + shortID()
	m.customers[id] = email
	return id, nil
}

// CreatePaymentIntent 模拟创建支付意图，初始状态为待支付
func (m *Mock) CreatePaymentIntent(ctx context.Context, p *CreateIntentParams) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	id := "pi_mock_" + shortID()
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + shortID(),
		Status:       IntentStatusRequiresPaymentMethod,
		Amount:       p.Amount,
		Metadata:     p.Metadata,
	}
	m.intents[id] = intent
	copied := *intent
	return &copied, nil
}

// GetPaymentIntent 模拟查询支付意图
func (m *Mock) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	intent, ok := m.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	copied := *intent
	return &copied, nil
}

// ParseWebhook 验签并解析回调
func (m *Mock) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return parseSignedEvent(payload, signatureHeader, m.webhookSecret)
}

// SetIntentStatus 修改支付意图状态，模拟客户端完成支付
func (m *Mock) SetIntentStatus(id, status, chargeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if intent, ok := m.intents[id]; ok {
		intent.Status = status
		intent.LatestChargeID = chargeID
	}
}

// SignedEvent 生成带签名的回调请求体与签名头
func (m *Mock) SignedEvent(eventID, eventType string, intent *Intent) ([]byte, string, error) {
	object := map[string]interface{}{
		"id":       intent.ID,
		"object":   "payment_intent",
		"status":   intent.Status,
		"amount":   intent.Amount,
		"metadata": intent.Metadata,
	}
	if intent.LatestChargeID != "" {
		object["latest_charge"] = intent.LatestChargeID
	}
	payload, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		return nil, "", err
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    m.webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header, nil
}

func shortID() string {
	return uuid.NewString()[:8]
}
