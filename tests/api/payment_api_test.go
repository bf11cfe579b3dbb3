//go:build api

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/tour-booking-backend/internal/models"
	bookingService "github.com/dumeirei/tour-booking-backend/internal/service/booking"
	paymentService "github.com/dumeirei/tour-booking-backend/internal/service/payment"
	"github.com/dumeirei/tour-booking-backend/pkg/paygateway"
	"github.com/dumeirei/tour-booking-backend/tests/helpers"
)

func (s *testServer) postWebhook(t *testing.T, payload []byte, signature string) (*httptest.ResponseRecorder, *apiResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	return s.serve(t, req)
}

func TestPaymentAPI_IntentAndWebhook(t *testing.T) {
	s := newTestServer(t)
	userToken, _ := s.register(t)
	tour := helpers.CreateTour(t, s.db, 250, 5)

	w, resp := s.do(t, http.MethodPost, "/api/v1/bookings", userToken, bookingBody(tour.ID, 20, 1, 0))
	require.Equal(t, http.StatusCreated, w.Code)
	booking := decode[bookingService.BookingInfo](t, resp)

	// 创建支付意图
	w, resp = s.do(t, http.MethodPost, "/api/v1/payments/create-payment-intent", userToken, map[string]int64{"bookingId": booking.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	intentInfo := decode[paymentService.IntentInfo](t, resp)
	assert.NotEmpty(t, intentInfo.ClientSecret)

	// 网关仍在处理
	s.gateway.SetIntentStatus(intentInfo.PaymentIntentID, paygateway.IntentStatusProcessing, "")
	w, _ = s.do(t, http.MethodPost, "/api/v1/payments/confirm-payment", userToken, map[string]string{"paymentIntentId": intentInfo.PaymentIntentID})
	assert.Equal(t, http.StatusAccepted, w.Code)

	// 签名错误的回调
	s.gateway.SetIntentStatus(intentInfo.PaymentIntentID, paygateway.IntentStatusSucceeded, "ch_api")
	intent, err := s.gateway.GetPaymentIntent(t.Context(), intentInfo.PaymentIntentID)
	require.NoError(t, err)
	payload, signature, err := s.gateway.SignedEvent("evt_api_1", paygateway.EventIntentSucceeded, intent)
	require.NoError(t, err)

	w, _ = s.postWebhook(t, payload, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 正确签名
	w, resp = s.postWebhook(t, payload, signature)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[paymentService.WebhookResult](t, resp).Duplicate)

	// 重放
	w, resp = s.postWebhook(t, payload, signature)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[paymentService.WebhookResult](t, resp).Duplicate)

	// 查询状态
	w, resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/payments/status/%d", booking.ID), userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[paymentService.StatusInfo](t, resp)
	assert.Equal(t, models.PaymentStatusPaid, status.PaymentStatus)
	assert.Equal(t, models.BookingStatusConfirmed, status.Status)
	assert.Equal(t, intentInfo.PaymentIntentID, status.PaymentIntentID)

	// 已支付不能再创建意图
	w, _ = s.do(t, http.MethodPost, "/api/v1/payments/create-payment-intent", userToken, map[string]int64{"bookingId": booking.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPaymentAPI_Validation(t *testing.T) {
	s := newTestServer(t)
	userToken, _ := s.register(t)

	w, resp := s.do(t, http.MethodPost, "/api/v1/payments/create-payment-intent", userToken, map[string]int64{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Errors, "bookingId")

	w, _ = s.do(t, http.MethodPost, "/api/v1/payments/confirm-payment", userToken, map[string]string{"paymentIntentId": "pi_unknown"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/payments/status/x", userToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/payments/create-payment-intent", "", map[string]int64{"bookingId": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
