// Package payment 提供支付相关的 HTTP Handler
package payment

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/handler"
	"github.com/dumeirei/tour-booking-backend/internal/middleware"
	paymentService "github.com/dumeirei/tour-booking-backend/internal/service/payment"
)

const (
	// signatureHeader 网关回调签名头
	signatureHeader = "Stripe-Signature"
	// maxWebhookBody 回调请求体上限
	maxWebhookBody = 64 << 10
)

// Handler 支付处理器
type Handler struct {
	paymentService *paymentService.PaymentService
}

// NewHandler 创建支付处理器
func NewHandler(paymentSvc *paymentService.PaymentService) *Handler {
	return &Handler{
		paymentService: paymentSvc,
	}
}

// CreatePaymentIntent 创建支付意图
// @Summary 创建支付意图
// @Tags 支付
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body paymentService.CreateIntentRequest true "请求参数"
// @Success 200 {object} response.Response{data=paymentService.IntentInfo}
// @Failure 409 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /payments/create-payment-intent [post]
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}

	var req paymentService.CreateIntentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.paymentService.CreatePaymentIntent(c.Request.Context(), req.BookingID, actor)
	handler.MustSucceed(c, err, result)
}

// ConfirmPayment 确认支付
// @Summary 确认支付
// @Description 以网关查询结果为准，不信任客户端状态
// @Tags 支付
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body paymentService.ConfirmPaymentRequest true "请求参数"
// @Success 200 {object} response.Response{data=paymentService.StatusInfo}
// @Failure 202 {object} response.Response
// @Router /payments/confirm-payment [post]
func (h *Handler) ConfirmPayment(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}

	var req paymentService.ConfirmPaymentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.paymentService.ConfirmPayment(c.Request.Context(), req.PaymentIntentID, actor)
	handler.MustSucceed(c, err, result)
}

// GetPaymentStatus 查询支付状态
// @Summary 查询支付状态
// @Tags 支付
// @Produce json
// @Security Bearer
// @Param bookingId path int true "预订 ID"
// @Success 200 {object} response.Response{data=paymentService.StatusInfo}
// @Router /payments/status/{bookingId} [get]
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}
	bookingID, ok := handler.ParseParamID(c, "bookingId", "booking")
	if !ok {
		return
	}

	result, err := h.paymentService.GetPaymentStatus(c.Request.Context(), bookingID, actor)
	handler.MustSucceed(c, err, result)
}

// Webhook 支付网关回调
// @Summary 支付网关回调
// @Description 校验签名后处理，重复事件直接确认
// @Tags 支付
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "回调签名"
// @Success 200 {object} response.Response{data=paymentService.WebhookResult}
// @Failure 400 {object} response.Response
// @Router /payments/webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		handler.HandleError(c, errors.ErrInvalidParams.WithMessage("Failed to read request body"))
		return
	}

	result, err := h.paymentService.HandleWebhook(c.Request.Context(), body, c.GetHeader(signatureHeader))
	handler.MustSucceed(c, err, result)
}

// RegisterRoutes 注册需要认证的路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("/create-payment-intent", h.CreatePaymentIntent)
		payments.POST("/confirm-payment", h.ConfirmPayment)
		payments.GET("/status/:bookingId", h.GetPaymentStatus)
	}
}

// RegisterCallbackRoutes 注册回调路由（无需认证）
func (h *Handler) RegisterCallbackRoutes(r *gin.RouterGroup) {
	r.POST("/payments/webhook", middleware.RequestSizeLimiter(maxWebhookBody), h.Webhook)
}
