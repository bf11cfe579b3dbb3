// Package booking 提供预订相关的 HTTP Handler
package booking

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/tour-booking-backend/internal/common/handler"
	"github.com/dumeirei/tour-booking-backend/internal/common/response"
	bookingService "github.com/dumeirei/tour-booking-backend/internal/service/booking"
)

// Handler 预订处理器
type Handler struct {
	bookingService *bookingService.BookingService
}

// NewHandler 创建预订处理器
func NewHandler(bookingSvc *bookingService.BookingService) *Handler {
	return &Handler{bookingService: bookingSvc}
}

// Create 创建预订
// @Summary 创建预订
// @Tags 预订
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body bookingService.CreateBookingRequest true "请求参数"
// @Success 201 {object} response.Response{data=bookingService.BookingInfo}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /bookings [post]
func (h *Handler) Create(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}

	var req bookingService.CreateBookingRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.bookingService.CreateBooking(c.Request.Context(), actor.UserID, &req)
	if handler.HandleError(c, err) {
		return
	}
	response.Created(c, result)
}

// List 获取我的预订
// @Summary 获取我的预订
// @Tags 预订
// @Produce json
// @Security Bearer
// @Param status query string false "状态"
// @Param startDate query string false "出发日期下限 YYYY-MM-DD"
// @Param endDate query string false "出发日期上限 YYYY-MM-DD"
// @Param tourId query int false "线路 ID"
// @Success 200 {object} response.Response{data=[]bookingService.BookingInfo}
// @Router /bookings [get]
func (h *Handler) List(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}

	var q bookingService.ListQuery
	// 过滤参数宽松处理，绑定失败时使用空条件
	_ = c.ShouldBindQuery(&q)

	list, err := h.bookingService.GetUserBookings(c.Request.Context(), actor.UserID, q)
	handler.MustSucceed(c, err, list)
}

// Get 获取预订详情
// @Summary 获取预订详情
// @Description 仅本人或管理员可见
// @Tags 预订
// @Produce json
// @Security Bearer
// @Param id path int true "预订 ID"
// @Success 200 {object} response.Response{data=bookingService.BookingInfo}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /bookings/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "booking")
	if !ok {
		return
	}

	result, err := h.bookingService.GetBooking(c.Request.Context(), id, actor)
	handler.MustSucceed(c, err, result)
}

// Cancel 取消预订
// @Summary 取消预订
// @Description 按距出发天数计算退款金额
// @Tags 预订
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "预订 ID"
// @Param request body bookingService.CancelBookingRequest false "取消原因"
// @Success 200 {object} response.Response{data=bookingService.BookingInfo}
// @Failure 400 {object} response.Response
// @Router /bookings/{id} [delete]
func (h *Handler) Cancel(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "booking")
	if !ok {
		return
	}

	var req bookingService.CancelBookingRequest
	if !handler.BindOptionalJSON(c, &req) {
		return
	}

	result, err := h.bookingService.CancelBooking(c.Request.Context(), id, actor, req.CancellationReason)
	handler.MustSucceed(c, err, result)
}

// Voucher 下载预订凭证二维码
// @Summary 下载预订凭证
// @Description 已确认或已完成的预订返回 PNG 二维码
// @Tags 预订
// @Produce png
// @Security Bearer
// @Param id path int true "预订 ID"
// @Success 200 {file} file
// @Failure 409 {object} response.Response
// @Router /bookings/{id}/voucher [get]
func (h *Handler) Voucher(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "booking")
	if !ok {
		return
	}

	png, reference, err := h.bookingService.Voucher(c.Request.Context(), id, actor)
	if handler.HandleError(c, err) {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.png"`, reference))
	c.Data(http.StatusOK, "image/png", png)
}

// Update 管理员更新预订
// @Summary 更新预订
// @Tags 预订管理
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "预订 ID"
// @Param request body bookingService.UpdateBookingRequest true "请求参数"
// @Success 200 {object} response.Response{data=bookingService.BookingInfo}
// @Failure 400 {object} response.Response
// @Router /bookings/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id, ok := handler.ParseID(c, "booking")
	if !ok {
		return
	}

	var req bookingService.UpdateBookingRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.bookingService.UpdateBooking(c.Request.Context(), id, &req)
	handler.MustSucceed(c, err, result)
}

// RegisterRoutes 注册需要认证的路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.Create)
		bookings.GET("", h.List)
		bookings.GET("/:id", h.Get)
		bookings.GET("/:id/voucher", h.Voucher)
		bookings.DELETE("/:id", h.Cancel)
	}
}

// RegisterAdminRoutes 注册管理员路由
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.PUT("/bookings/:id", h.Update)
}
