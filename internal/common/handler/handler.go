// Package handler 提供 API Handler 的通用辅助函数
// 统一错误处理、请求绑定、认证检查与参数解析
package handler

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dumeirei/tour-booking-backend/internal/authz"
	"github.com/dumeirei/tour-booking-backend/internal/common/config"
	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	"github.com/dumeirei/tour-booking-backend/internal/common/response"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/middleware"
)

// ============================================================================
// 统一错误处理
// ============================================================================

// HandleError 处理错误并发送响应
// err 为 nil 时返回 false；否则写入错误响应并返回 true，调用方应直接 return
//
//	result, err := service.DoSomething(ctx)
//	if handler.HandleError(c, err) {
//	    return
//	}
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		logger.Error("未处理的内部错误",
			zap.Error(err),
			logger.RequestID(middleware.GetRequestID(c)),
			logger.Path(c.Request.URL.Path),
		)
		message := "Internal server error"
		if config.Get().IsDebug() {
			message = fmt.Sprintf("%s: %v", message, err)
		}
		response.Error(c, http.StatusInternalServerError, errors.ErrInternalError.Code, message)
		return true
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error("请求处理失败",
			zap.Error(appErr),
			logger.RequestID(middleware.GetRequestID(c)),
			logger.Path(c.Request.URL.Path),
		)
	}

	message := appErr.Message
	if appErr.Err != nil && status >= http.StatusInternalServerError && config.Get().IsDebug() {
		message = fmt.Sprintf("%s: %v", message, appErr.Err)
	}

	if len(appErr.Fields) > 0 {
		response.ErrorWithFields(c, status, appErr.Code, message, appErr.Fields)
		return true
	}
	response.Error(c, status, appErr.Code, message)
	return true
}

// MustSucceed 有错误时返回错误响应，否则返回成功响应
func MustSucceed(c *gin.Context, err error, data interface{}) {
	if HandleError(c, err) {
		return
	}
	response.Success(c, data)
}

// ============================================================================
// 请求绑定
// ============================================================================

// BindJSON 绑定并校验 JSON 请求体，失败时写入 400 响应并返回 false
// 校验错误以字段名为键放入 errors
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		HandleError(c, BindingError(err))
		return false
	}
	return true
}

// BindOptionalJSON 绑定可选的 JSON 请求体，请求体为空时保留零值并返回 true
// 不依赖 Content-Length，分块传输的请求体同样会被读取
func BindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		if stderrors.Is(err, io.EOF) {
			return true
		}
		HandleError(c, BindingError(err))
		return false
	}
	return true
}

// BindingError 将绑定错误转换为带字段信息的校验错误
func BindingError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe)] = fieldMessage(fe)
		}
		return errors.ErrValidation.WithFields(fields)
	}
	return errors.ErrInvalidParams.WithMessage("Invalid request body").WithError(err)
}

// fieldPath 去掉顶层结构体名，如 CreateBookingRequest.numberOfPeople.adults -> numberOfPeople.adults
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// UseJSONFieldNames 让校验错误使用 json 标签中的字段名
func UseJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date in format " + fe.Param()
	default:
		return "is invalid"
	}
}

// ============================================================================
// 用户认证检查
// ============================================================================

// RequireActor 获取当前操作者，未登录时返回 401
func RequireActor(c *gin.Context) (authz.Actor, bool) {
	actor := middleware.GetActor(c)
	if actor.UserID == 0 {
		response.Unauthorized(c, "")
		return authz.Actor{}, false
	}
	return actor, true
}

// ============================================================================
// 参数解析
// ============================================================================

// ParseID 解析路径参数 "id"
func ParseID(c *gin.Context, resource string) (int64, bool) {
	return ParseParamID(c, "id", resource)
}

// ParseParamID 解析指定路径参数为正整数
func ParseParamID(c *gin.Context, param, resource string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid "+resource+" id")
		return 0, false
	}
	return id, true
}

// QueryFloat 解析可选的浮点查询参数，格式错误时忽略
func QueryFloat(c *gin.Context, key string) *float64 {
	v, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil {
		return nil
	}
	return &v
}

// QueryInt64 解析可选的整数查询参数，格式错误时忽略
func QueryInt64(c *gin.Context, key string) *int64 {
	v, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ============================================================================
// 分页处理
// ============================================================================

// BindPagination 从查询参数绑定并规范化分页参数
// 默认 page=1, page_size=10, 最大 page_size=100
func BindPagination(c *gin.Context) utils.Pagination {
	var p utils.Pagination
	p.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	p.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	p.Normalize()
	return p
}

// HasPagination 请求是否携带分页参数
func HasPagination(c *gin.Context) bool {
	return c.Query("page") != "" || c.Query("page_size") != ""
}
