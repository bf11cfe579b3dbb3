package paygateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeGateway 基于 Stripe 的支付网关
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripe 创建 Stripe 网关
func NewStripe(cfg *Config) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

// CreateCustomer 创建网关客户
func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return "", g.wrap("create customer", err)
	}
	return cus.ID, nil
}

// CreatePaymentIntent 创建支付意图
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, p *CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, g.wrap("create payment intent", err)
	}
	return fromStripeIntent(pi), nil
}

// GetPaymentIntent 查询支付意图
func (g *StripeGateway) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return nil, ErrIntentNotFound
		}
		return nil, g.wrap("get payment intent", err)
	}
	return fromStripeIntent(pi), nil
}

// ParseWebhook 验签并解析回调
func (g *StripeGateway) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return parseSignedEvent(payload, signatureHeader, g.webhookSecret)
}

func (g *StripeGateway) wrap(op string, err error) error {
	ge := &Error{Op: op, Message: "request failed", Err: err}
	var se *stripe.Error
	if errors.As(err, &se) {
		ge.Card = se.Type == stripe.ErrorTypeCard
		if se.Msg != "" {
			ge.Message = redactSecrets(se.Msg)
		}
	}
	return ge
}

// parseSignedEvent 校验 Stripe 签名格式的回调并提取支付意图
func parseSignedEvent(payload []byte, header, secret string) (*Event, error) {
	if secret == "" || header == "" {
		return nil, ErrInvalidSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ErrInvalidSignature
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data != nil && strings.HasPrefix(out.Type, "payment_intent.") {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, err
		}
		out.Intent = fromStripeIntent(&pi)
	}
	return out, nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Metadata:     pi.Metadata,
	}
	if pi.LatestCharge != nil {
		intent.LatestChargeID = pi.LatestCharge.ID
	}
	return intent
}
