package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// 任务名称
const (
	TaskCompleteFinishedBookings = "complete_finished_bookings"
	TaskPurgeOperationLogs       = "purge_operation_logs"
)

// completeBatchSize 每次处理的预订数量上限
const completeBatchSize = 200

// BookingCompleter 将已结束行程的预订标记为完成
type BookingCompleter interface {
	CompleteFinished(ctx context.Context, batchSize int) (int, error)
}

// LogPurger 清理过期操作日志
type LogPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// PanicError 任务执行 panic
type PanicError struct {
	Task  string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// TaskHandler 任务处理器
type TaskHandler struct {
	bookings     BookingCompleter
	logs         LogPurger
	logRetention time.Duration
	log          *zap.Logger
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(bookings BookingCompleter, log *zap.Logger) *TaskHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskHandler{bookings: bookings, log: log}
}

// CompleteFinishedBookings 完成行程已结束的已确认预订
// 一批处理满时继续下一批，直到没有待处理的预订
func (h *TaskHandler) CompleteFinishedBookings(ctx context.Context) error {
	total := 0
	for {
		n, err := h.bookings.CompleteFinished(ctx, completeBatchSize)
		total += n
		if err != nil {
			return err
		}
		if n < completeBatchSize || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		h.log.Info("已完成结束行程的预订", zap.Int("count", total))
	}
	return nil
}

// WithLogPurger 启用操作日志清理，retention 不大于 0 时不清理
func (h *TaskHandler) WithLogPurger(p LogPurger, retention time.Duration) *TaskHandler {
	h.logs = p
	h.logRetention = retention
	return h
}

// PurgeOperationLogs 删除超过保留期的操作日志
func (h *TaskHandler) PurgeOperationLogs(ctx context.Context) error {
	n, err := h.logs.Purge(ctx, h.logRetention)
	if err != nil {
		return err
	}
	if n > 0 {
		h.log.Info("已清理过期操作日志", zap.Int64("count", n))
	}
	return nil
}

// RegisterTasks 注册全部定时任务
func RegisterTasks(s *Scheduler, h *TaskHandler, completeInterval time.Duration) {
	if completeInterval <= 0 {
		completeInterval = time.Hour
	}
	s.AddTask(TaskCompleteFinishedBookings, completeInterval, h.CompleteFinishedBookings)

	if h.logs != nil && h.logRetention > 0 {
		s.AddTask(TaskPurgeOperationLogs, 24*time.Hour, h.PurgeOperationLogs)
	}
}
