// Package oss 对象存储服务
package oss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// 图片校验错误
var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrNotImage          = errors.New("file is not a valid image")
)

// Uploader 上传器接口
type Uploader interface {
	Upload(ctx context.Context, objectKey string, reader io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, objectKey string) error
}

// AliyunConfig 阿里云 OSS 配置
type AliyunConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	BucketName      string
	Domain          string // 自定义域名（可选）
	BasePath        string // 基础路径，如 "tours/"
}

// AliyunUploader 阿里云 OSS 上传器
type AliyunUploader struct {
	bucket *oss.Bucket
	config *AliyunConfig
}

// NewAliyunUploader 创建阿里云 OSS 上传器
func NewAliyunUploader(config *AliyunConfig) (*AliyunUploader, error) {
	client, err := oss.New(config.Endpoint, config.AccessKeyID, config.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("create oss client: %w", err)
	}

	bucket, err := client.Bucket(config.BucketName)
	if err != nil {
		return nil, fmt.Errorf("get oss bucket: %w", err)
	}

	return &AliyunUploader{bucket: bucket, config: config}, nil
}

// Upload 上传对象并返回访问地址
func (u *AliyunUploader) Upload(ctx context.Context, objectKey string, reader io.Reader, contentType string) (string, error) {
	fullKey := u.fullKey(objectKey)
	opts := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}

	if err := u.bucket.PutObject(fullKey, reader, opts...); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return u.URL(objectKey), nil
}

// Delete 删除对象
func (u *AliyunUploader) Delete(ctx context.Context, objectKey string) error {
	return u.bucket.DeleteObject(u.fullKey(objectKey), oss.WithContext(ctx))
}

// URL 获取对象访问地址
func (u *AliyunUploader) URL(objectKey string) string {
	fullKey := u.fullKey(objectKey)
	if u.config.Domain != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(u.config.Domain, "/"), fullKey)
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(u.config.Endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", u.config.BucketName, endpoint, fullKey)
}

func (u *AliyunUploader) fullKey(objectKey string) string {
	if u.config.BasePath == "" {
		return objectKey
	}
	return path.Join(u.config.BasePath, objectKey)
}

// GenerateObjectKey 生成对象键，如 tours/12/2026/10/15/<uuid>.jpg
func GenerateObjectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%s/%s%s", strings.Trim(prefix, "/"), time.Now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
}

var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ValidateImage 校验图片扩展名、大小与文件头，返回 Content-Type
func ValidateImage(filename string, size, maxSize int64, head []byte) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := imageExts[ext]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if maxSize > 0 && size > maxSize {
		return "", ErrFileTooLarge
	}

	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}
	return contentType, nil
}

// MockUploader 模拟上传器（用于开发/测试）
type MockUploader struct {
	mu    sync.Mutex
	Files map[string][]byte
}

// NewMockUploader 创建模拟上传器
func NewMockUploader() *MockUploader {
	return &MockUploader{Files: make(map[string][]byte)}
}

// Upload 模拟上传
func (u *MockUploader) Upload(ctx context.Context, objectKey string, reader io.Reader, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", err
	}
	u.mu.Lock()
	u.Files[objectKey] = buf.Bytes()
	u.mu.Unlock()
	return "https://mock-oss.example.com/" + objectKey, nil
}

// Delete 模拟删除
func (u *MockUploader) Delete(ctx context.Context, objectKey string) error {
	u.mu.Lock()
	delete(u.Files, objectKey)
	u.mu.Unlock()
	return nil
}

// Get 获取已上传内容
func (u *MockUploader) Get(objectKey string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.Files[objectKey]
	return data, ok
}
