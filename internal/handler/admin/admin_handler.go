// Package admin 提供管理后台的 HTTP Handler
package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/tour-booking-backend/internal/common/handler"
	"github.com/dumeirei/tour-booking-backend/internal/common/response"
	adminService "github.com/dumeirei/tour-booking-backend/internal/service/admin"
	bookingService "github.com/dumeirei/tour-booking-backend/internal/service/booking"
)

// Handler 管理后台处理器
type Handler struct {
	userAdmin    *adminService.UserAdminService
	bookingAdmin *adminService.BookingAdminService
	dashboard    *adminService.DashboardService
	audit        *adminService.AuditService
}

// NewHandler 创建管理后台处理器
func NewHandler(
	userAdmin *adminService.UserAdminService,
	bookingAdmin *adminService.BookingAdminService,
	dashboard *adminService.DashboardService,
	audit *adminService.AuditService,
) *Handler {
	return &Handler{
		userAdmin:    userAdmin,
		bookingAdmin: bookingAdmin,
		dashboard:    dashboard,
		audit:        audit,
	}
}

// ListUsers 用户列表
// @Summary 用户列表
// @Tags 管理-用户
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param role query string false "角色"
// @Param search query string false "姓名或邮箱关键字"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	var q adminService.UserListQuery
	_ = c.ShouldBindQuery(&q)

	list, total, err := h.userAdmin.List(c.Request.Context(), &q)
	if handler.HandleError(c, err) {
		return
	}
	response.SuccessPage(c, list, total, q.Page, q.PageSize)
}

// UserStats 用户统计
// @Summary 用户统计
// @Tags 管理-用户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=adminService.UserStats}
// @Router /admin/users/stats [get]
func (h *Handler) UserStats(c *gin.Context) {
	stats, err := h.userAdmin.Stats(c.Request.Context())
	handler.MustSucceed(c, err, stats)
}

// UpdateUser 更新用户
// @Summary 更新用户
// @Description 管理员不能修改自己的角色
// @Tags 管理-用户
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "用户 ID"
// @Param request body adminService.UpdateUserRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /admin/users/{id} [patch]
func (h *Handler) UpdateUser(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "user")
	if !ok {
		return
	}

	var req adminService.UpdateUserRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	user, err := h.userAdmin.Update(c.Request.Context(), id, actor.UserID, &req)
	handler.MustSucceed(c, err, user)
}

// DeleteUser 删除用户及其预订
// @Summary 删除用户
// @Tags 管理-用户
// @Produce json
// @Security Bearer
// @Param id path int true "用户 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /admin/users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	actor, ok := handler.RequireActor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "user")
	if !ok {
		return
	}

	if handler.HandleError(c, h.userAdmin.Delete(c.Request.Context(), id, actor.UserID)) {
		return
	}
	response.SuccessWithMessage(c, "User deleted successfully", nil)
}

// ListBookings 预订列表
// @Summary 预订列表
// @Tags 管理-预订
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param status query string false "状态"
// @Param payment_status query string false "支付状态"
// @Param startDate query string false "出发日期下限"
// @Param endDate query string false "出发日期上限"
// @Param tourId query int false "线路 ID"
// @Param userId query int false "用户 ID"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /admin/bookings [get]
func (h *Handler) ListBookings(c *gin.Context) {
	var q adminService.BookingListQuery
	_ = c.ShouldBindQuery(&q)

	list, total, err := h.bookingAdmin.List(c.Request.Context(), &q)
	if handler.HandleError(c, err) {
		return
	}
	response.SuccessPage(c, list, total, q.Page, q.PageSize)
}

// BookingStats 预订统计
// @Summary 预订统计
// @Tags 管理-预订
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=adminService.BookingStats}
// @Router /admin/bookings/stats [get]
func (h *Handler) BookingStats(c *gin.Context) {
	stats, err := h.bookingAdmin.Stats(c.Request.Context())
	handler.MustSucceed(c, err, stats)
}

// UpdateBookingStatus 更新预订状态
// @Summary 更新预订状态
// @Tags 管理-预订
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "预订 ID"
// @Param request body bookingService.UpdateBookingRequest true "请求参数"
// @Success 200 {object} response.Response{data=bookingService.BookingInfo}
// @Router /admin/bookings/{id}/status [put]
func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	id, ok := handler.ParseID(c, "booking")
	if !ok {
		return
	}

	var req bookingService.UpdateBookingRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.bookingAdmin.UpdateStatus(c.Request.Context(), id, &req)
	handler.MustSucceed(c, err, result)
}

// Dashboard 仪表盘概览
// @Summary 仪表盘概览
// @Tags 管理-仪表盘
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=adminService.Overview}
// @Router /admin/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	overview, err := h.dashboard.GetOverview(c.Request.Context())
	handler.MustSucceed(c, err, overview)
}

// ListOperationLogs 操作日志列表
// @Summary 操作日志列表
// @Tags 管理-日志
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param admin_id query int false "管理员 ID"
// @Param module query string false "模块"
// @Param target_id query int false "目标 ID"
// @Param start_date query string false "开始日期"
// @Param end_date query string false "结束日期"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /admin/logs/operation [get]
func (h *Handler) ListOperationLogs(c *gin.Context) {
	var q adminService.OperationLogQuery
	_ = c.ShouldBindQuery(&q)

	logs, total, err := h.audit.List(c.Request.Context(), &q)
	if handler.HandleError(c, err) {
		return
	}
	response.SuccessPage(c, logs, total, q.Page, q.PageSize)
}

// RegisterRoutes 注册管理员路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	{
		admin.GET("/users", h.ListUsers)
		admin.GET("/users/stats", h.UserStats)
		admin.PATCH("/users/:id", h.UpdateUser)
		admin.DELETE("/users/:id", h.DeleteUser)

		admin.GET("/bookings", h.ListBookings)
		admin.GET("/bookings/stats", h.BookingStats)
		admin.PUT("/bookings/:id/status", h.UpdateBookingStatus)

		admin.GET("/dashboard", h.Dashboard)
		admin.GET("/logs/operation", h.ListOperationLogs)
	}
}
