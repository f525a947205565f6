package schedule

import (
	"errors"
	"fmt"
)

// 预定义错误.
var (
	// ErrInvalidExpression 无效的 Cron 表达式.
	ErrInvalidExpression = errors.New("schedule: invalid cron expression")

	// ErrInvalidTimezone 无效的时区标识.
	ErrInvalidTimezone = errors.New("schedule: invalid timezone")

	// ErrInvalidInstant 无法转换为绝对时间点的值.
	ErrInvalidInstant = errors.New("schedule: invalid instant")

	// ErrEmptySchedule 调度为空.
	ErrEmptySchedule = errors.New("schedule: schedule is required")
)

// ParseError 表达式解析错误.
//
// 通过 errors.Is(err, ErrInvalidExpression) 判断.
type ParseError struct {
	// Field 出错的字段名，字段数量错误时为空.
	Field string

	// Token 出错的原始文本.
	Token string

	// Reason 错误原因.
	Reason string
}

// Error 实现 error 接口.
func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schedule: invalid expression %q: %s", e.Token, e.Reason)
	}
	return fmt.Sprintf("schedule: invalid %s field %q: %s", e.Field, e.Token, e.Reason)
}

// Unwrap 返回 ErrInvalidExpression.
func (e *ParseError) Unwrap() error {
	return ErrInvalidExpression
}
