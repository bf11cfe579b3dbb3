// Package paygateway 封装银行卡支付网关
package paygateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// 支付意图状态
const (
	IntentStatusSucceeded             = "succeeded"
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusRequiresConfirmation  = "requires_confirmation"
	IntentStatusRequiresAction        = "requires_action"
	IntentStatusProcessing            = "processing"
	IntentStatusCanceled              = "canceled"
)

// 回调事件类型
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// ErrInvalidSignature 回调签名校验失败
var ErrInvalidSignature = errors.New("paygateway: invalid webhook signature")

// ErrIntentNotFound 支付意图不存在
var ErrIntentNotFound = errors.New("paygateway: payment intent not found")

// Config 网关配置
type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// CreateIntentParams 创建支付意图参数
type CreateIntentParams struct {
	Amount     int64 // 最小货币单位
	Currency   string
	CustomerID string
	Metadata   map[string]string
}

// Intent 支付意图
type Intent struct {
	ID             string
	ClientSecret   string
	Status         string
	Amount         int64
	LatestChargeID string
	Metadata       map[string]string
}

// Event 已验签的回调事件
type Event struct {
	ID     string
	Type   string
	Intent *Intent // 非支付意图事件为 nil
}

// Gateway 支付网关
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreatePaymentIntent(ctx context.Context, params *CreateIntentParams) (*Intent, error)
	GetPaymentIntent(ctx context.Context, id string) (*Intent, error)
	ParseWebhook(payload []byte, signatureHeader string) (*Event, error)
}

// Error 网关调用错误
type Error struct {
	Op      string
	Message string
	Card    bool // 卡片被拒等由用户输入导致的错误
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("paygateway %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCardError 是否为卡片错误
func IsCardError(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Card
}

var secretPattern = regexp.MustCompile(`\b(sk|rk)_(test|live)_[A-Za-z0-9*]+`)

// redactSecrets 隐藏消息中出现的密钥
func redactSecrets(msg string) string {
	return secretPattern.ReplaceAllString(msg, "${1}_${2}_****")
}
