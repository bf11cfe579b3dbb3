// Package helpers 提供 mock 实现
package helpers

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockPublisher 事件发布器 mock
type MockPublisher struct {
	mock.Mock

	mu     sync.Mutex
	events []string
}

func (m *MockPublisher) Publish(ctx context.Context, event string, payload interface{}) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	args := m.Called(ctx, event, payload)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Events 已发布的事件名
func (m *MockPublisher) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// NewRecordingPublisher 接受任意事件的发布器 mock
func NewRecordingPublisher() *MockPublisher {
	m := &MockPublisher{}
	m.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.On("Close").Return(nil)
	return m
}
