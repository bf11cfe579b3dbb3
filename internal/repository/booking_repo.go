package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dumeirei/tour-booking-backend/internal/common/database"
	"github.com/dumeirei/tour-booking-backend/internal/models"
)

// BookingRepository 预订仓储
type BookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository 创建预订仓储
func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// BookingFilter 预订列表过滤条件，零值表示不过滤
type BookingFilter struct {
	UserID        int64
	TourID        int64
	Status        string
	PaymentStatus string
	From          *time.Time // 出发日期下限（含）
	To            *time.Time // 出发日期上限（含）
}

func (f BookingFilter) apply(query *gorm.DB) *gorm.DB {
	if f.UserID > 0 {
		query = query.Where("bookings.user_id = ?", f.UserID)
	}
	if f.TourID > 0 {
		query = query.Where("bookings.tour_id = ?", f.TourID)
	}
	if f.Status != "" {
		query = query.Where("bookings.status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		query = query.Where("bookings.payment_status = ?", f.PaymentStatus)
	}
	if f.From != nil {
		query = query.Where("bookings.start_date >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("bookings.start_date <= ?", *f.To)
	}
	return query
}

// activeStatuses 占用名额的预订状态
var activeStatuses = []string{models.BookingStatusPending, models.BookingStatusConfirmed}

// CreateTx 在事务中创建预订
func (r *BookingRepository) CreateTx(ctx context.Context, tx *gorm.DB, booking *models.Booking) error {
	return tx.WithContext(ctx).Create(booking).Error
}

// CountActiveForDate 在事务中统计某线路某出发日期的有效预订数
func (r *BookingRepository) CountActiveForDate(ctx context.Context, tx *gorm.DB, tourID int64, startDate time.Time) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&models.Booking{}).
		Where("tour_id = ? AND start_date = ?", tourID, startDate).
		Where("status IN ?", activeStatuses).
		Count(&count).Error
	return count, err
}

// CountActiveByTour 在事务中统计某线路的有效预订数
func (r *BookingRepository) CountActiveByTour(ctx context.Context, tx *gorm.DB, tourID int64) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&models.Booking{}).
		Where("tour_id = ? AND status IN ?", tourID, activeStatuses).
		Count(&count).Error
	return count, err
}

// GetByID 根据 ID 获取预订（包含线路）
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Preload("Tour").First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetForUpdate 在事务中锁定预订行
func (r *BookingRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*models.Booking, error) {
	var booking models.Booking
	if err := tx.WithContext(ctx).Scopes(database.ForUpdate).First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetByPaymentIntentID 根据支付意图 ID 获取预订，tx 非 nil 时加行锁
func (r *BookingRepository) GetByPaymentIntentID(ctx context.Context, tx *gorm.DB, intentID string) (*models.Booking, error) {
	query := r.db.WithContext(ctx)
	if tx != nil {
		query = tx.WithContext(ctx).Scopes(database.ForUpdate)
	}
	var booking models.Booking
	if err := query.Where("payment_intent_id = ?", intentID).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListByUser 获取用户全部预订，按创建时间倒序
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64, filter BookingFilter) ([]*models.Booking, error) {
	var bookings []*models.Booking
	filter.UserID = userID
	err := filter.apply(r.db.WithContext(ctx).Model(&models.Booking{})).
		Preload("Tour").
		Scopes(database.OrderByCreatedDesc).
		Find(&bookings).Error
	return bookings, err
}

// List 分页获取预订列表（包含线路与用户）
func (r *BookingRepository) List(ctx context.Context, offset, limit int, filter BookingFilter) ([]*models.Booking, int64, error) {
	var bookings []*models.Booking
	var total int64

	query := filter.apply(r.db.WithContext(ctx).Model(&models.Booking{}))
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Tour").
		Preload("User").
		Scopes(database.OrderByCreatedDesc).
		Offset(offset).Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// UpdateFields 更新指定字段，tx 为 nil 时使用默认连接
func (r *BookingRepository) UpdateFields(ctx context.Context, tx *gorm.DB, id int64, fields map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Model(&models.Booking{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateFieldsWhere 仅在满足 cond 时更新，cond 中的切片值按 IN 匹配，返回是否更新
func (r *BookingRepository) UpdateFieldsWhere(ctx context.Context, tx *gorm.DB, id int64, cond map[string]interface{}, fields map[string]interface{}) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", id).
		Where(cond).
		Updates(fields)
	return result.RowsAffected > 0, result.Error
}

// UpdateFieldsIf 仅在当前状态属于 fromStatuses 时更新，返回是否更新
func (r *BookingRepository) UpdateFieldsIf(ctx context.Context, tx *gorm.DB, id int64, fromStatuses []string, fields map[string]interface{}) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(fields)
	return result.RowsAffected > 0, result.Error
}

// ListFinishedConfirmed 获取行程已结束的已确认预订
// 结束日严格早于 today 才算结束
func (r *BookingRepository) ListFinishedConfirmed(ctx context.Context, today time.Time, limit int) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := r.db.WithContext(ctx).
		Preload("Tour").
		Where("status = ? AND end_date < ?", models.BookingStatusConfirmed, today).
		Order("end_date").
		Order("id").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

// CountByStatus 按预订状态统计
func (r *BookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return r.countGrouped(ctx, "status", models.BookingStatuses)
}

// CountByPaymentStatus 按支付状态统计
func (r *BookingRepository) CountByPaymentStatus(ctx context.Context) (map[string]int64, error) {
	return r.countGrouped(ctx, "payment_status", models.PaymentStatuses)
}

func (r *BookingRepository) countGrouped(ctx context.Context, column string, keys []string) (map[string]int64, error) {
	var rows []struct {
		GroupKey string
		Count    int64
	}
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Select(column + " AS group_key, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(keys))
	for _, k := range keys {
		result[k] = 0
	}
	for _, row := range rows {
		result[row.GroupKey] = row.Count
	}
	return result, nil
}

// Count 预订总数
func (r *BookingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).Count(&count).Error
	return count, err
}

// CountCreatedSince 统计某时间之后创建的预订数
func (r *BookingRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("created_at >= ?", since).
		Count(&count).Error
	return count, err
}

// SumRevenue 已支付预订的总金额
func (r *BookingRepository) SumRevenue(ctx context.Context) (float64, error) {
	var sum float64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("payment_status = ?", models.PaymentStatusPaid).
		Select("COALESCE(SUM(total_price), 0)").
		Scan(&sum).Error
	return sum, err
}

// SumRefunded 退款总金额
func (r *BookingRepository) SumRefunded(ctx context.Context) (float64, error) {
	var sum float64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Select("COALESCE(SUM(refund_amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// WebhookEventRepository 支付回调事件仓储
type WebhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository 创建回调事件仓储
func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record 在事务中登记回调事件，事件已存在时返回 false
func (r *WebhookEventRepository) Record(ctx context.Context, tx *gorm.DB, eventID, eventType string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&models.ProcessedWebhookEvent{EventID: eventID, EventType: eventType})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Exists 回调事件是否已处理
func (r *WebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProcessedWebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}
