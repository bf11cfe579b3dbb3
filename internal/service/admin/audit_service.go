package admin

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
)

// AuditService 管理员操作日志服务
type AuditService struct {
	logRepo *repository.OperationLogRepository
	now     func() time.Time
}

// NewAuditService 创建操作日志服务
func NewAuditService(logRepo *repository.OperationLogRepository) *AuditService {
	return &AuditService{logRepo: logRepo, now: time.Now}
}

// OperationLogQuery 操作日志查询参数，格式错误的过滤值被忽略
type OperationLogQuery struct {
	utils.Pagination
	AdminID   string `form:"admin_id"`
	Module    string `form:"module"`
	TargetID  string `form:"target_id"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

// List 分页获取操作日志
func (s *AuditService) List(ctx context.Context, q *OperationLogQuery) ([]*models.OperationLog, int64, error) {
	q.Normalize()

	filter := repository.OperationLogFilter{Module: strings.TrimSpace(q.Module)}
	if id, err := strconv.ParseInt(q.AdminID, 10, 64); err == nil && id > 0 {
		filter.AdminID = id
	}
	if id, err := strconv.ParseInt(q.TargetID, 10, 64); err == nil && id > 0 {
		filter.TargetID = id
	}
	if d, err := utils.ParseDate(q.StartDate); err == nil {
		filter.StartTime = &d
	}
	if d, err := utils.ParseDate(q.EndDate); err == nil {
		end := d.Add(24*time.Hour - time.Nanosecond)
		filter.EndTime = &end
	}

	logs, total, err := s.logRepo.List(ctx, q.GetOffset(), q.GetLimit(), filter)
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}
	return logs, total, nil
}

// Purge 删除超过保留期的操作日志
func (s *AuditService) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.logRepo.DeleteBefore(ctx, s.now().Add(-retention))
}
