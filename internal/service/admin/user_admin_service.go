// Package admin 管理端服务
package admin

import (
	"context"
	stderrors "errors"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	"github.com/dumeirei/tour-booking-backend/internal/service/auth"
)

// statsWindow 用户增长统计窗口
const statsWindow = 30 * 24 * time.Hour

// UserAdminService 用户管理服务
type UserAdminService struct {
	userRepo *repository.UserRepository
	now      func() time.Time
}

// NewUserAdminService 创建用户管理服务
func NewUserAdminService(userRepo *repository.UserRepository) *UserAdminService {
	return &UserAdminService{
		userRepo: userRepo,
		now:      time.Now,
	}
}

// UserListQuery 用户列表查询参数
type UserListQuery struct {
	utils.Pagination
	Role   string `form:"role"`
	Search string `form:"search"`
}

// UpdateUserRequest 更新用户请求，只修改提交的字段
type UpdateUserRequest struct {
	FirstName *string `json:"first_name" binding:"omitempty,min=1,max=50"`
	LastName  *string `json:"last_name" binding:"omitempty,min=1,max=50"`
	Role      *string `json:"role"`
}

// UserStats 用户统计
type UserStats struct {
	TotalUsers      int64            `json:"total_users"`
	ByRole          map[string]int64 `json:"by_role"`
	NewUsers        int64            `json:"new_users"`
	PreviousPeriod  int64            `json:"previous_period"`
	GrowthPercent   float64          `json:"growth_percent"`
	PeriodStartedAt time.Time        `json:"period_started_at"`
}

// List 分页获取用户列表
func (s *UserAdminService) List(ctx context.Context, q *UserListQuery) ([]*auth.UserInfo, int64, error) {
	q.Normalize()

	filter := repository.UserFilter{Search: q.Search}
	if models.IsValidRole(q.Role) {
		filter.Role = q.Role
	}

	users, total, err := s.userRepo.List(ctx, q.GetOffset(), q.GetLimit(), filter)
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}

	results := make([]*auth.UserInfo, len(users))
	for i, user := range users {
		results[i] = auth.NewUserInfo(user)
	}
	return results, total, nil
}

// Stats 用户统计，增长率按最近 30 天与之前 30 天对比
func (s *UserAdminService) Stats(ctx context.Context) (*UserStats, error) {
	total, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	byRole, err := s.userRepo.CountByRole(ctx)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	now := s.now()
	periodStart := now.Add(-statsWindow)
	current, err := s.userRepo.CountCreatedBetween(ctx, periodStart, now)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	previous, err := s.userRepo.CountCreatedBetween(ctx, periodStart.Add(-statsWindow), periodStart)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	return &UserStats{
		TotalUsers:      total,
		ByRole:          byRole,
		NewUsers:        current,
		PreviousPeriod:  previous,
		GrowthPercent:   GrowthPercent(current, previous),
		PeriodStartedAt: periodStart,
	}, nil
}

// GrowthPercent 计算增长百分比，保留两位小数
// 上期为 0 时：本期大于 0 记为 100，否则为 0
func GrowthPercent(current, previous int64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	pct := float64(current-previous) / float64(previous) * 100
	return math.Round(pct*100) / 100
}

// Update 更新用户，管理员不能修改自己的角色
func (s *UserAdminService) Update(ctx context.Context, id, actorID int64, req *UpdateUserRequest) (*auth.UserInfo, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.FirstName != nil {
		fields["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		fields["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Role != nil && *req.Role != user.Role {
		if !models.IsValidRole(*req.Role) {
			return nil, errors.ErrInvalidRole
		}
		if id == actorID {
			return nil, errors.ErrCannotDemoteSelf
		}
		fields["role"] = *req.Role
	}

	if len(fields) > 0 {
		if err := s.userRepo.UpdateFields(ctx, id, fields); err != nil {
			return nil, errors.ErrDatabaseError.WithError(err)
		}
		logger.Info("管理员更新用户", logger.UserID(id), logger.Action("update_user"))
	}

	updated, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return auth.NewUserInfo(updated), nil
}

// Delete 删除用户及其预订，管理员不能删除自己
func (s *UserAdminService) Delete(ctx context.Context, id, actorID int64) error {
	if id == actorID {
		return errors.ErrCannotDeleteSelf
	}
	if err := s.userRepo.DeleteWithBookings(ctx, id); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrUserNotFound
		}
		return errors.ErrDatabaseError.WithError(err)
	}
	logger.Info("管理员删除用户", logger.UserID(id), logger.Action("delete_user"))
	return nil
}

func (s *UserAdminService) getUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return user, nil
}
