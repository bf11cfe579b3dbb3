// Package tour 提供线路目录服务
package tour

import (
	"context"
	stderrors "errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/tour-booking-backend/internal/common/cache"
	"github.com/dumeirei/tour-booking-backend/internal/common/errors"
	"github.com/dumeirei/tour-booking-backend/internal/common/logger"
	"github.com/dumeirei/tour-booking-backend/internal/common/metrics"
	"github.com/dumeirei/tour-booking-backend/internal/common/utils"
	"github.com/dumeirei/tour-booking-backend/internal/models"
	"github.com/dumeirei/tour-booking-backend/internal/repository"
	"github.com/dumeirei/tour-booking-backend/pkg/oss"
)

const (
	// DefaultCacheTTL 线路详情缓存时间
	DefaultCacheTTL = 10 * time.Minute
	// DefaultMaxImageSize 线路图片最大大小（5MB）
	DefaultMaxImageSize = 5 * 1024 * 1024

	cacheName = "tour_detail"
)

// Options 线路服务配置
type Options struct {
	CacheTTL     time.Duration
	MaxImageSize int64
	UploadDir    string
}

// TourService 线路服务
type TourService struct {
	tourRepo    *repository.TourRepository
	bookingRepo *repository.BookingRepository
	cache       *cache.Store
	uploader    oss.Uploader
	metrics     *metrics.Metrics
	opts        Options
}

// NewTourService 创建线路服务，store 为 nil 时不使用缓存
func NewTourService(
	tourRepo *repository.TourRepository,
	bookingRepo *repository.BookingRepository,
	store *cache.Store,
	uploader oss.Uploader,
	m *metrics.Metrics,
	opts Options,
) *TourService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = DefaultMaxImageSize
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "tours"
	}
	return &TourService{
		tourRepo:    tourRepo,
		bookingRepo: bookingRepo,
		cache:       store,
		uploader:    uploader,
		metrics:     m,
		opts:        opts,
	}
}

// ListQuery 线路列表查询参数
type ListQuery struct {
	Destination string
	MinPrice    *float64
	MaxPrice    *float64
	StartDate   string
	Page        int
	PageSize    int // 0 表示不分页
}

// CreateTourRequest 创建线路请求
type CreateTourRequest struct {
	Title        string   `json:"title" binding:"required,max=200"`
	Description  string   `json:"description" binding:"max=10000"`
	Destination  string   `json:"destination" binding:"required,max=200"`
	Duration     int      `json:"duration" binding:"required,min=1"`
	Price        *float64 `json:"price" binding:"required,gte=0"`
	MaxGroupSize int      `json:"maxGroupSize" binding:"required,min=1"`
	Rating       *float64 `json:"rating" binding:"omitempty,gte=0,lte=5"`
	IsActive     *bool    `json:"isActive"`
	Images       []string `json:"images" binding:"omitempty,dive,required,max=500"`
	StartDates   []string `json:"startDates" binding:"omitempty,dive,required"`
	Features     []string `json:"features" binding:"omitempty,dive,required,max=255"`
}

// UpdateTourRequest 更新线路请求，未提供的字段保持不变
// 子表字段提供空数组时清空，未提供时不动
type UpdateTourRequest struct {
	Title        *string   `json:"title" binding:"omitempty,min=1,max=200"`
	Description  *string   `json:"description" binding:"omitempty,max=10000"`
	Destination  *string   `json:"destination" binding:"omitempty,min=1,max=200"`
	Duration     *int      `json:"duration" binding:"omitempty,min=1"`
	Price        *float64  `json:"price" binding:"omitempty,gte=0"`
	MaxGroupSize *int      `json:"maxGroupSize" binding:"omitempty,min=1"`
	Rating       *float64  `json:"rating" binding:"omitempty,gte=0,lte=5"`
	IsActive     *bool     `json:"isActive"`
	Images       *[]string `json:"images" binding:"omitempty,dive,required,max=500"`
	StartDates   *[]string `json:"startDates" binding:"omitempty,dive,required"`
	Features     *[]string `json:"features" binding:"omitempty,dive,required,max=255"`
}

// ImageInfo 线路图片
type ImageInfo struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// TourInfo 线路信息
type TourInfo struct {
	ID           int64       `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Destination  string      `json:"destination"`
	Duration     int         `json:"duration"`
	Price        float64     `json:"price"`
	MaxGroupSize int         `json:"max_group_size"`
	Rating       float64     `json:"rating"`
	IsActive     bool        `json:"is_active"`
	Images       []ImageInfo `json:"images"`
	StartDates   []string    `json:"start_dates"`
	Features     []string    `json:"features"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// List 获取上架线路列表
func (s *TourService) List(ctx context.Context, q ListQuery) ([]*TourInfo, int64, error) {
	filter := repository.TourFilter{
		Destination: q.Destination,
		MinPrice:    q.MinPrice,
		MaxPrice:    q.MaxPrice,
	}
	if d, err := utils.ParseDate(q.StartDate); err == nil {
		filter.StartDate = &d
	}
	if q.PageSize > 0 {
		p := utils.Pagination{Page: q.Page, PageSize: q.PageSize}
		p.Normalize()
		filter.Offset, filter.Limit = p.GetOffset(), p.GetLimit()
	}

	tours, total, err := s.tourRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}

	list := make([]*TourInfo, 0, len(tours))
	for _, t := range tours {
		list = append(list, NewTourInfo(t))
	}
	return list, total, nil
}

// Get 获取线路详情，优先读缓存
func (s *TourService) Get(ctx context.Context, id int64) (*TourInfo, error) {
	key := cacheKey(id)
	if s.cache != nil {
		var cached TourInfo
		err := s.cache.GetJSON(ctx, key, &cached)
		switch {
		case err == nil:
			s.metrics.RecordCacheHit(cacheName)
			return &cached, nil
		case stderrors.Is(err, cache.ErrCacheMiss):
			s.metrics.RecordCacheMiss(cacheName)
		default:
			s.metrics.RecordCacheMiss(cacheName)
			logger.Warn("读取线路缓存失败", zap.Error(err), logger.TourID(id))
		}
	}

	tour, err := s.tourRepo.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrTourNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	info := NewTourInfo(tour)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, info, s.opts.CacheTTL); err != nil {
			logger.Warn("写入线路缓存失败", zap.Error(err), logger.TourID(id))
		}
	}
	return info, nil
}

// Create 创建线路
func (s *TourService) Create(ctx context.Context, req *CreateTourRequest) (*TourInfo, error) {
	// 1. 同名同目的地的上架线路不能重复，下架创建不受限
	active := req.IsActive == nil || *req.IsActive
	if active {
		dup, err := s.tourRepo.ExistsActiveDuplicate(ctx, req.Title, req.Destination, 0)
		if err != nil {
			return nil, errors.ErrDatabaseError.WithError(err)
		}
		if dup {
			return nil, errors.ErrTourExists
		}
	}

	// 2. 解析出发日期
	startDates, err := toStartDates(req.StartDates)
	if err != nil {
		return nil, err
	}

	// 3. 线路与子表一并写入
	tour := &models.Tour{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Destination:  strings.TrimSpace(req.Destination),
		Duration:     req.Duration,
		Price:        utils.RoundMoney(*req.Price),
		MaxGroupSize: req.MaxGroupSize,
		IsActive:     active,
		Images:       toImages(req.Images),
		StartDates:   startDates,
		Features:     toFeatures(req.Features),
	}
	if req.Rating != nil {
		tour.Rating = *req.Rating
	}
	if err := s.tourRepo.Create(ctx, tour); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	logger.Info("线路已创建", logger.TourID(tour.ID), zap.String("title", tour.Title))
	return s.load(ctx, tour.ID)
}

// Update 更新线路
func (s *TourService) Update(ctx context.Context, id int64, req *UpdateTourRequest) (*TourInfo, error) {
	// 1. 获取线路
	current, err := s.tourRepo.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrTourNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	// 2. 收集标量字段
	fields := map[string]interface{}{}
	title, destination, active := current.Title, current.Destination, current.IsActive
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
		fields["title"] = title
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Destination != nil {
		destination = strings.TrimSpace(*req.Destination)
		fields["destination"] = destination
	}
	if req.Duration != nil {
		fields["duration"] = *req.Duration
	}
	if req.Price != nil {
		fields["price"] = utils.RoundMoney(*req.Price)
	}
	if req.MaxGroupSize != nil {
		fields["max_group_size"] = *req.MaxGroupSize
	}
	if req.Rating != nil {
		fields["rating"] = *req.Rating
	}
	if req.IsActive != nil {
		active = *req.IsActive
		fields["is_active"] = active
	}

	// 3. 标题、目的地或上架状态变化时检查重复
	changed := !strings.EqualFold(title, current.Title) ||
		!strings.EqualFold(destination, current.Destination) ||
		(active && !current.IsActive)
	if active && changed {
		dup, err := s.tourRepo.ExistsActiveDuplicate(ctx, title, destination, id)
		if err != nil {
			return nil, errors.ErrDatabaseError.WithError(err)
		}
		if dup {
			return nil, errors.ErrTourExists
		}
	}

	// 4. 子表：提供即替换
	var children repository.TourChildren
	if req.Images != nil {
		images := toImages(*req.Images)
		children.Images = &images
	}
	if req.StartDates != nil {
		dates, err := toStartDates(*req.StartDates)
		if err != nil {
			return nil, err
		}
		children.StartDates = &dates
	}
	if req.Features != nil {
		features := toFeatures(*req.Features)
		children.Features = &features
	}

	if err := s.tourRepo.Update(ctx, id, fields, children); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	s.invalidate(ctx, id)

	return s.load(ctx, id)
}

// Delete 删除线路，存在进行中的预订时拒绝
func (s *TourService) Delete(ctx context.Context, id int64) error {
	err := s.tourRepo.Delete(ctx, id, func(tx *gorm.DB) error {
		active, err := s.bookingRepo.CountActiveByTour(ctx, tx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return errors.ErrTourHasBookings.WithMessagef("Tour has %d active bookings and cannot be deleted", active)
		}
		return nil
	})
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return appErr
		}
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrTourNotFound
		}
		return errors.ErrDatabaseError.WithError(err)
	}

	s.invalidate(ctx, id)
	logger.Info("线路已删除", logger.TourID(id))
	return nil
}

// UploadImage 上传线路图片并追加到图片列表
func (s *TourService) UploadImage(ctx context.Context, id int64, file *multipart.FileHeader) (*ImageInfo, error) {
	if file == nil {
		return nil, errors.ErrInvalidImageFile.WithMessage("Image file is required")
	}

	// 1. 线路必须存在
	exists, err := s.tourRepo.Exists(ctx, id)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !exists {
		return nil, errors.ErrTourNotFound
	}

	// 2. 校验图片
	f, err := file.Open()
	if err != nil {
		return nil, errors.ErrInvalidImageFile.WithError(err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !stderrors.Is(err, io.ErrUnexpectedEOF) && !stderrors.Is(err, io.EOF) {
		return nil, errors.ErrInvalidImageFile.WithError(err)
	}
	contentType, err := oss.ValidateImage(file.Filename, file.Size, s.opts.MaxImageSize, head[:n])
	if err != nil {
		return nil, errors.ErrInvalidImageFile.WithMessage(imageErrorMessage(err, s.opts.MaxImageSize)).WithError(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.ErrInvalidImageFile.WithError(err)
	}

	// 3. 上传对象存储
	key := oss.GenerateObjectKey(s.opts.UploadDir+"/"+strconv.FormatInt(id, 10), file.Filename)
	url, err := s.uploader.Upload(ctx, key, f, contentType)
	if err != nil {
		return nil, errors.ErrExternalService.WithMessage("Failed to upload image").WithError(err)
	}

	// 4. 写入图片记录
	image := &models.TourImage{TourID: id, URL: url}
	if err := s.tourRepo.AddImage(ctx, image); err != nil {
		if delErr := s.uploader.Delete(ctx, key); delErr != nil {
			logger.Warn("清理已上传图片失败", zap.Error(delErr), zap.String("key", key))
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	s.invalidate(ctx, id)

	return &ImageInfo{ID: image.ID, URL: image.URL}, nil
}

func (s *TourService) load(ctx context.Context, id int64) (*TourInfo, error) {
	tour, err := s.tourRepo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return NewTourInfo(tour), nil
}

func (s *TourService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		logger.Warn("清理线路缓存失败", zap.Error(err), logger.TourID(id))
	}
}

func cacheKey(id int64) string {
	return cache.BuildKey(cache.KeyPrefixTourDetail, strconv.FormatInt(id, 10))
}

func imageErrorMessage(err error, maxSize int64) string {
	switch {
	case stderrors.Is(err, oss.ErrUnsupportedFormat):
		return "Only jpg, jpeg, png, gif and webp images are supported"
	case stderrors.Is(err, oss.ErrFileTooLarge):
		return "Image must not exceed " + strconv.FormatInt(maxSize>>20, 10) + "MB"
	default:
		return "File is not a valid image"
	}
}

func toImages(urls []string) []models.TourImage {
	images := make([]models.TourImage, 0, len(urls))
	for _, u := range urls {
		images = append(images, models.TourImage{URL: strings.TrimSpace(u)})
	}
	return images
}

func toFeatures(labels []string) []models.TourFeature {
	features := make([]models.TourFeature, 0, len(labels))
	for _, l := range labels {
		features = append(features, models.TourFeature{Label: strings.TrimSpace(l)})
	}
	return features
}

func toStartDates(values []string) ([]models.TourStartDate, error) {
	dates := make([]models.TourStartDate, 0, len(values))
	for _, v := range values {
		d, err := utils.ParseDate(v)
		if err != nil {
			return nil, errors.ErrValidation.WithMessagef("Invalid start date: %s", v)
		}
		dates = append(dates, models.TourStartDate{StartDate: d})
	}
	return dates, nil
}

// NewTourInfo 转换为线路信息
func NewTourInfo(t *models.Tour) *TourInfo {
	info := &TourInfo{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Destination:  t.Destination,
		Duration:     t.Duration,
		Price:        t.Price,
		MaxGroupSize: t.MaxGroupSize,
		Rating:       t.Rating,
		IsActive:     t.IsActive,
		Images:       make([]ImageInfo, 0, len(t.Images)),
		StartDates:   make([]string, 0, len(t.StartDates)),
		Features:     make([]string, 0, len(t.Features)),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	for _, img := range t.Images {
		info.Images = append(info.Images, ImageInfo{ID: img.ID, URL: img.URL})
	}
	for _, d := range t.StartDates {
		info.StartDates = append(info.StartDates, d.StartDate.UTC().Format(utils.DateLayout))
	}
	for _, f := range t.Features {
		info.Features = append(info.Features, f.Label)
	}
	return info
}
