// Package errors 定义业务错误码和错误处理
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind 错误类别，决定 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindStateTransition
	KindExternalService
	KindRateLimit
)

// AppError 应用错误
type AppError struct {
	Code    int               `json:"code"`
	Kind    Kind              `json:"-"`
	Status  int               `json:"-"` // 非零时覆盖 Kind 对应的状态码
	Message string            `json:"message"`
	Fields  map[string]string `json:"errors,omitempty"`
	Err     error             `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，WithMessage 派生出的错误仍与原始哨兵匹配
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus 返回对应的 HTTP 状态码
func (e *AppError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation, KindStateTransition:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindExternalService:
		return http.StatusBadGateway
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// New 创建新的应用错误
func New(code int, kind Kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, kind Kind, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func (e *AppError) clone() *AppError {
	c := *e
	return &c
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	c := e.clone()
	c.Message = message
	return c
}

// WithMessagef 按格式修改错误消息
func (e *AppError) WithMessagef(format string, args ...interface{}) *AppError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	c := e.clone()
	c.Err = err
	return c
}

// WithStatus 覆盖 HTTP 状态码
func (e *AppError) WithStatus(status int) *AppError {
	c := e.clone()
	c.Status = status
	return c
}

// WithFields 附加字段级校验错误
func (e *AppError) WithFields(fields map[string]string) *AppError {
	c := e.clone()
	c.Fields = fields
	return c
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown         = New(1000, KindInternal, "Internal server error")
	ErrInvalidParams   = New(1001, KindValidation, "Invalid request parameters")
	ErrNotFound        = New(1002, KindNotFound, "Resource not found")
	ErrAlreadyExists   = New(1003, KindConflict, "Resource already exists")
	ErrDatabaseError   = New(1004, KindInternal, "Database error")
	ErrCacheError      = New(1005, KindInternal, "Cache error")
	ErrInternalError   = New(1006, KindInternal, "Internal server error")
	ErrExternalService = New(1007, KindExternalService, "External service error")
	ErrRateLimitExceed = New(1008, KindRateLimit, "Too many requests")
	ErrValidation      = New(1009, KindValidation, "Validation failed")
)

// 认证错误码 (2000-2999)
var (
	ErrUnauthorized       = New(2000, KindUnauthorized, "Authentication required")
	ErrTokenExpired       = New(2001, KindUnauthorized, "Token has expired")
	ErrTokenInvalid       = New(2002, KindUnauthorized, "Invalid token")
	ErrTokenRefreshFail   = New(2003, KindUnauthorized, "Failed to refresh token")
	ErrPermissionDenied   = New(2004, KindForbidden, "Permission denied")
	ErrInvalidCredentials = New(2005, KindUnauthorized, "Invalid email or password")
)

// 用户错误码 (3000-3999)
var (
	ErrUserNotFound     = New(3000, KindNotFound, "User not found")
	ErrEmailExists      = New(3001, KindConflict, "Email is already registered")
	ErrCannotDeleteSelf = New(3002, KindConflict, "You cannot delete your own account").WithStatus(http.StatusBadRequest)
	ErrCannotDemoteSelf = New(3003, KindConflict, "You cannot change your own role").WithStatus(http.StatusBadRequest)
	ErrInvalidRole      = New(3004, KindValidation, "Invalid role")
)

// 行程错误码 (4000-4999)
var (
	ErrTourNotFound     = New(4000, KindNotFound, "Tour not found")
	ErrTourExists       = New(4001, KindConflict, "An active tour with this title and destination already exists")
	ErrTourHasBookings  = New(4002, KindConflict, "Tour has active bookings and cannot be deleted")
	ErrInvalidTourID    = New(4003, KindValidation, "Invalid tour id")
	ErrInvalidImageFile = New(4004, KindValidation, "Invalid image file")
)

// 支付错误码 (6000-6999)
var (
	ErrPaymentNotFound      = New(6000, KindNotFound, "Payment not found")
	ErrAlreadyPaid          = New(6001, KindConflict, "Booking is already paid")
	ErrPaymentNotAllowed    = New(6002, KindConflict, "Booking cannot be paid in its current status")
	ErrPaymentProcessing    = New(6003, KindConflict, "Payment is still processing").WithStatus(http.StatusAccepted)
	ErrWebhookSignature     = New(6004, KindValidation, "Invalid webhook signature")
	ErrPaymentGateway       = New(6005, KindExternalService, "Payment gateway error")
	ErrPaymentNotConfigured = New(6006, KindExternalService, "Payment gateway is not configured").WithStatus(http.StatusInternalServerError)
	ErrPaymentCardDeclined  = New(6007, KindExternalService, "Payment was declined").WithStatus(http.StatusBadRequest)
)

// 预订错误码 (8000-8999)
var (
	ErrBookingNotFound      = New(8000, KindNotFound, "Booking not found")
	ErrInvalidTransition    = New(8001, KindStateTransition, "Invalid status transition")
	ErrTourFullyBooked      = New(8002, KindConflict, "Tour is fully booked for this date").WithStatus(http.StatusBadRequest)
	ErrInvalidStartDate     = New(8003, KindValidation, "Invalid start date")
	ErrStartDateNotFuture   = New(8004, KindValidation, "Booking date must be in the future")
	ErrInvalidPartySize     = New(8005, KindValidation, "At least one adult is required")
	ErrBookingNotCancelable = New(8006, KindStateTransition, "Booking cannot be cancelled")
	ErrVoucherUnavailable   = New(8007, KindConflict, "Voucher is only available for confirmed bookings")
)

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrUnknown.WithError(err)
}

// TransitionError 构造状态流转错误
func TransitionError(from, to string) *AppError {
	return ErrInvalidTransition.WithMessagef("Cannot change status from %s to %s", from, to)
}
