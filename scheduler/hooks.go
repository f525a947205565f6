package scheduler

import (
	"context"
	"time"
)

// TickContext 一次触发的上下文.
type TickContext struct {
	// Job 当前任务.
	Job *Job

	// Scheduled 计划触发时间，手动触发时为调用时刻.
	Scheduled time.Time

	// StartTime 开始执行时间.
	StartTime time.Time

	// Manual 是否由 Trigger 或 runOnInit 触发.
	Manual bool

	// Error 回调错误（仅在 AfterTick/OnError 中有值）.
	Error error

	// Duration 回调耗时（仅在 AfterTick/OnError 中有值）.
	Duration time.Duration

	// Skipped 是否被跳过.
	Skipped bool

	// SkipReason 跳过原因.
	SkipReason string
}

// BeforeTickHook 回调执行前调用，返回 error 将跳过本次触发.
type BeforeTickHook func(ctx context.Context, tc *TickContext) error

// AfterTickHook 回调执行后调用，无论成功失败.
type AfterTickHook func(ctx context.Context, tc *TickContext)

// OnErrorHook 回调失败时调用.
type OnErrorHook func(ctx context.Context, tc *TickContext)

// OnSkipHook 触发被跳过时调用.
type OnSkipHook func(ctx context.Context, tc *TickContext)

// Hooks 钩子集合.
type Hooks struct {
	BeforeTick []BeforeTickHook
	AfterTick  []AfterTickHook
	OnError    []OnErrorHook
	OnSkip     []OnSkipHook
}

func (h *Hooks) runBeforeHooks(ctx context.Context, tc *TickContext) error {
	if h == nil {
		return nil
	}
	for _, hook := range h.BeforeTick {
		if err := hook(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hooks) runAfterHooks(ctx context.Context, tc *TickContext) {
	if h == nil {
		return
	}
	for _, hook := range h.AfterTick {
		hook(ctx, tc)
	}
}

func (h *Hooks) runErrorHooks(ctx context.Context, tc *TickContext) {
	if h == nil {
		return
	}
	for _, hook := range h.OnError {
		hook(ctx, tc)
	}
}

func (h *Hooks) runSkipHooks(ctx context.Context, tc *TickContext) {
	if h == nil {
		return
	}
	for _, hook := range h.OnSkip {
		hook(ctx, tc)
	}
}

// HooksBuilder 钩子构建器.
type HooksBuilder struct {
	hooks *Hooks
}

// NewHooks 创建钩子构建器.
func NewHooks() *HooksBuilder {
	return &HooksBuilder{hooks: &Hooks{}}
}

// BeforeTick 添加前置钩子.
func (b *HooksBuilder) BeforeTick(hook BeforeTickHook) *HooksBuilder {
	b.hooks.BeforeTick = append(b.hooks.BeforeTick, hook)
	return b
}

// AfterTick 添加后置钩子.
func (b *HooksBuilder) AfterTick(hook AfterTickHook) *HooksBuilder {
	b.hooks.AfterTick = append(b.hooks.AfterTick, hook)
	return b
}

// OnError 添加错误钩子.
func (b *HooksBuilder) OnError(hook OnErrorHook) *HooksBuilder {
	b.hooks.OnError = append(b.hooks.OnError, hook)
	return b
}

// OnSkip 添加跳过钩子.
func (b *HooksBuilder) OnSkip(hook OnSkipHook) *HooksBuilder {
	b.hooks.OnSkip = append(b.hooks.OnSkip, hook)
	return b
}

// Build 构建钩子.
func (b *HooksBuilder) Build() *Hooks {
	return b.hooks
}
