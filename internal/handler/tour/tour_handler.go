// Package tour 提供线路相关的 HTTP Handler
package tour

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/handler"
	"github.com/dumeirei/tour-booking-backend/internal/common/response"
	tourService "github.com/dumeirei/tour-booking-backend/internal/service/tour"
)

// imageFormField 图片上传的表单字段
const imageFormField = "image"

// Handler 线路处理器
type Handler struct {
	tourService *tourService.TourService
}

// NewHandler 创建线路处理器
func NewHandler(tourSvc *tourService.TourService) *Handler {
	return &Handler{tourService: tourSvc}
}

// List 获取线路列表
// @Summary 获取线路列表
// @Description 只返回上架线路，过滤参数格式错误时忽略；不带分页参数时返回全部
// @Tags 线路
// @Produce json
// @Param destination query string false "目的地（模糊匹配，不区分大小写）"
// @Param minPrice query number false "最低价格"
// @Param maxPrice query number false "最高价格"
// @Param startDate query string false "出发日期 YYYY-MM-DD"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=[]tourService.TourInfo}
// @Router /tours [get]
func (h *Handler) List(c *gin.Context) {
	q := tourService.ListQuery{
		Destination: strings.TrimSpace(c.Query("destination")),
		MinPrice:    handler.QueryFloat(c, "minPrice"),
		MaxPrice:    handler.QueryFloat(c, "maxPrice"),
		StartDate:   c.Query("startDate"),
	}

	if !handler.HasPagination(c) {
		list, _, err := h.tourService.List(c.Request.Context(), q)
		handler.MustSucceed(c, err, list)
		return
	}

	p := handler.BindPagination(c)
	q.Page, q.PageSize = p.Page, p.PageSize
	list, total, err := h.tourService.List(c.Request.Context(), q)
	if handler.HandleError(c, err) {
		return
	}
	response.SuccessPage(c, list, total, p.Page, p.PageSize)
}

// Get 获取线路详情
// @Summary 获取线路详情
// @Tags 线路
// @Produce json
// @Param id path int true "线路 ID"
// @Success 200 {object} response.Response{data=tourService.TourInfo}
// @Failure 404 {object} response.Response
// @Router /tours/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "tour")
	if !ok {
		return
	}

	tour, err := h.tourService.Get(c.Request.Context(), id)
	handler.MustSucceed(c, err, tour)
}

// Create 创建线路
// @Summary 创建线路
// @Tags 线路管理
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body tourService.CreateTourRequest true "请求参数"
// @Success 201 {object} response.Response{data=tourService.TourInfo}
// @Failure 409 {object} response.Response
// @Router /tours [post]
func (h *Handler) Create(c *gin.Context) {
	var req tourService.CreateTourRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tour, err := h.tourService.Create(c.Request.Context(), &req)
	if handler.HandleError(c, err) {
		return
	}
	response.Created(c, tour)
}

// Update 更新线路
// @Summary 更新线路
// @Description 只修改提交的字段；提交 images/startDates/features 时整体替换
// @Tags 线路管理
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "线路 ID"
// @Param request body tourService.UpdateTourRequest true "请求参数"
// @Success 200 {object} response.Response{data=tourService.TourInfo}
// @Router /tours/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id, ok := handler.ParseID(c, "tour")
	if !ok {
		return
	}

	var req tourService.UpdateTourRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tour, err := h.tourService.Update(c.Request.Context(), id, &req)
	handler.MustSucceed(c, err, tour)
}

// Delete 删除线路
// @Summary 删除线路
// @Description 存在待确认或已确认预订时拒绝删除
// @Tags 线路管理
// @Produce json
// @Security Bearer
// @Param id path int true "线路 ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /tours/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id, ok := handler.ParseID(c, "tour")
	if !ok {
		return
	}

	if handler.HandleError(c, h.tourService.Delete(c.Request.Context(), id)) {
		return
	}
	response.SuccessWithMessage(c, "Tour deleted successfully", nil)
}

// UploadImage 上传线路图片
// @Summary 上传线路图片
// @Tags 线路管理
// @Accept multipart/form-data
// @Produce json
// @Security Bearer
// @Param id path int true "线路 ID"
// @Param image formData file true "图片文件"
// @Success 201 {object} response.Response{data=tourService.ImageInfo}
// @Router /tours/{id}/images [post]
func (h *Handler) UploadImage(c *gin.Context) {
	id, ok := handler.ParseID(c, "tour")
	if !ok {
		return
	}

	file, err := c.FormFile(imageFormField)
	if err != nil {
		handler.HandleError(c, errors.ErrInvalidImageFile.WithMessage("Image file is required"))
		return
	}

	image, err := h.tourService.UploadImage(c.Request.Context(), id, file)
	if handler.HandleError(c, err) {
		return
	}
	response.Created(c, image)
}

// RegisterRoutes 注册公开路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tours := r.Group("/tours")
	{
		tours.GET("", h.List)
		tours.GET("/:id", h.Get)
	}
}

// RegisterAdminRoutes 注册管理员路由
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	tours := r.Group("/tours")
	{
		tours.POST("", h.Create)
		tours.PUT("/:id", h.Update)
		tours.DELETE("/:id", h.Delete)
		tours.POST("/:id/images", h.UploadImage)
	}
}
