package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// 预定义错误.
var (
	// ErrJobNameEmpty 任务名称为空.
	ErrJobNameEmpty = errors.New("scheduler: job name is required")

	// ErrHandlerNil 任务回调为空.
	ErrHandlerNil = errors.New("scheduler: onTick callback is required")

	// ErrSchedulerClosed 调度器已关闭.
	ErrSchedulerClosed = errors.New("scheduler: scheduler is closed")

	// ErrJobNotFound 任务未找到.
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrJobExists 任务已存在.
	ErrJobExists = errors.New("scheduler: job already exists")

	// ErrInvalidMutation 任务处于 Scheduled 或 Running 状态时修改调度.
	ErrInvalidMutation = errors.New("scheduler: cannot change schedule while job is scheduled or running, stop it first")

	// ErrCallbackFailed 回调执行失败.
	ErrCallbackFailed = errors.New("scheduler: callback failed")

	// ErrHandlerNotFound 配置文件引用了未注册的回调.
	ErrHandlerNotFound = errors.New("scheduler: handler not registered")

	// ErrInvalidJobFile 任务配置文件内容无效.
	ErrInvalidJobFile = errors.New("scheduler: invalid job file")

	// errStoppedBeforeStart 回调开始前任务已停止，本次触发被跳过.
	errStoppedBeforeStart = errors.New("job stopped before callback started")
)

// CallbackError 回调执行失败，包含任务和触发时间.
//
// errors.Is(err, ErrCallbackFailed) 为 true，Unwrap 返回回调本身的错误.
type CallbackError struct {
	Job       string
	Scheduled time.Time
	Err       error
}

func (e *CallbackError) Error() string {
	if e.Scheduled.IsZero() {
		return fmt.Sprintf("scheduler: job %q callback failed: %v", e.Job, e.Err)
	}
	return fmt.Sprintf("scheduler: job %q tick at %s failed: %v",
		e.Job, e.Scheduled.Format(time.RFC3339), e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrCallbackFailed) 成立.
func (e *CallbackError) Is(target error) bool { return target == ErrCallbackFailed }
