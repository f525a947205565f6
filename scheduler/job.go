package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tsukikage7/cronjob/clock"
	"github.com/Tsukikage7/cronjob/logger"
	"github.com/Tsukikage7/cronjob/recovery"
	"github.com/Tsukikage7/cronjob/schedule"
	"github.com/Tsukikage7/cronjob/tracing"
)

// TickFunc 任务回调.
//
// target 为构造时传入的执行上下文，未传入时为 *Job 本身.
type TickFunc func(ctx context.Context, target any) error

// CompleteFunc 任务完成回调，参数与 TickFunc 的 target 相同.
type CompleteFunc func(target any)

// JobState 任务状态.
type JobState int32

const (
	// JobStateIdle 已创建，尚未启动.
	JobStateIdle JobState = iota
	// JobStateScheduled 已设置定时器，等待触发.
	JobStateScheduled
	// JobStateRunning 回调执行中.
	JobStateRunning
	// JobStateStopped 已停止.
	JobStateStopped
)

// String 返回状态字符串.
func (s JobState) String() string {
	switch s {
	case JobStateIdle:
		return "idle"
	case JobStateScheduled:
		return "scheduled"
	case JobStateRunning:
		return "running"
	case JobStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// JobConfig 任务的具名配置形式.
type JobConfig struct {
	// Name 任务名称，加入 Scheduler 时必填.
	Name string `mapstructure:"name"`

	// Schedule Cron 表达式、时间戳字符串、time.Time、Unix 毫秒或 schedule.Schedule.
	Schedule any `mapstructure:"schedule"`

	// OnTick 任务回调.
	OnTick TickFunc `mapstructure:"-"`

	// OnComplete 任务完成回调[可选].
	OnComplete CompleteFunc `mapstructure:"-"`

	// Start 创建后立即启动.
	Start bool `mapstructure:"start"`

	// Timezone IANA 时区名，为空时使用 WithLocation 指定的时区.
	Timezone string `mapstructure:"timezone"`

	// Context 回调的执行上下文，为 nil 时使用 *Job.
	Context any `mapstructure:"context"`

	// RunOnInit 创建时先同步执行一次回调.
	RunOnInit bool `mapstructure:"run_on_init"`

	// Timeout 单次回调超时时间，0 时使用 WithDefaultTimeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Job 定时任务.
//
// 同一任务的回调串行执行. Start/Stop/SetSchedule 可以在回调中调用.
type Job struct {
	id         string
	name       string
	opts       *options
	loc        *time.Location
	onTick     TickFunc
	onComplete CompleteFunc
	target     any
	timeout    time.Duration
	stats      *JobStats

	mu     sync.Mutex
	sched  schedule.Schedule
	state  JobState
	timer  *clock.Timer
	gen    uint64
	next   time.Time
	cancel context.CancelFunc

	tickMu sync.Mutex
}

// NewJob 以位置参数创建任务.
//
// spec 可以是 Cron 表达式、时间戳字符串、time.Time、Unix 毫秒或 schedule.Schedule.
// timezone 为空时使用 WithLocation 指定的时区，target 为 nil 时回调收到 *Job.
func NewJob(spec any, onTick TickFunc, onComplete CompleteFunc, start bool, timezone string, target any, runOnInit bool, opts ...Option) (*Job, error) {
	return NewJobFromConfig(JobConfig{
		Schedule:   spec,
		OnTick:     onTick,
		OnComplete: onComplete,
		Start:      start,
		Timezone:   timezone,
		Context:    target,
		RunOnInit:  runOnInit,
	}, opts...)
}

// NewJobFromConfig 以具名配置创建任务.
func NewJobFromConfig(cfg JobConfig, opts ...Option) (*Job, error) {
	j, err := newJob(cfg, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	j.init(cfg)
	return j, nil
}

// MustNewJob 创建任务，失败时 panic.
func MustNewJob(spec any, onTick TickFunc, onComplete CompleteFunc, start bool, timezone string, target any, runOnInit bool, opts ...Option) *Job {
	j, err := NewJob(spec, onTick, onComplete, start, timezone, target, runOnInit, opts...)
	if err != nil {
		panic(err)
	}
	return j
}

// MustNewJobFromConfig 以具名配置创建任务，失败时 panic.
func MustNewJobFromConfig(cfg JobConfig, opts ...Option) *Job {
	j, err := NewJobFromConfig(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return j
}

// newJob 校验配置并构造任务，不执行 runOnInit 和 Start.
func newJob(cfg JobConfig, o *options) (*Job, error) {
	if cfg.OnTick == nil {
		return nil, ErrHandlerNil
	}

	loc := o.location
	if cfg.Timezone != "" {
		l, err := schedule.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, err
		}
		loc = l
	}

	sched, err := schedule.New(cfg.Schedule, loc)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}

	j := &Job{
		id:         uuid.NewString(),
		name:       cfg.Name,
		opts:       o,
		loc:        loc,
		onTick:     cfg.OnTick,
		onComplete: cfg.OnComplete,
		target:     cfg.Context,
		timeout:    timeout,
		stats:      &JobStats{},
		sched:      sched,
		state:      JobStateIdle,
	}
	if j.target == nil {
		j.target = j
	}
	return j, nil
}

// init 执行 runOnInit 并按需启动.
func (j *Job) init(cfg JobConfig) {
	if cfg.RunOnInit {
		ctx, cancel := j.tickContext(context.Background())
		_ = j.tick(ctx, j.opts.clock.Now(), true)
		cancel()
	}
	if cfg.Start {
		j.Start()
	}
}

// ID 返回任务唯一标识.
func (j *Job) ID() string { return j.id }

// Name 返回任务名称.
func (j *Job) Name() string { return j.name }

// Location 返回任务时区.
func (j *Job) Location() *time.Location { return j.loc }

// label 用于日志和指标的任务标识.
func (j *Job) label() string {
	if j.name != "" {
		return j.name
	}
	return j.id
}

// State 返回任务状态.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Running 任务是否处于 Scheduled 或 Running 状态.
func (j *Job) Running() bool {
	s := j.State()
	return s == JobStateScheduled || s == JobStateRunning
}

// NextRun 返回下次触发时间，未设置定时器时返回 false.
func (j *Job) NextRun() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != JobStateScheduled {
		return time.Time{}, false
	}
	return j.next, true
}

// LastRun 返回上次回调开始执行的时间.
func (j *Job) LastRun() time.Time {
	return j.stats.lastRun()
}

// Schedule 返回当前调度.
func (j *Job) Schedule() schedule.Schedule {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sched
}

// Stats 返回执行统计.
func (j *Job) Stats() JobStats {
	return j.stats.Clone()
}

// Start 启动任务.
//
// 已处于 Scheduled 或 Running 状态时不做任何事. 调度已耗尽时直接进入
// Stopped，不调用 onComplete.
func (j *Job) Start() {
	j.mu.Lock()
	if j.state == JobStateScheduled || j.state == JobStateRunning {
		j.mu.Unlock()
		return
	}
	now := j.opts.clock.Now()
	next, armed := j.armLocked(now, now)
	j.mu.Unlock()

	if armed {
		j.logDebugf("任务已启动: %s [next:%s]", j.label(), next.Format(time.RFC3339))
	} else {
		j.logDebugf("任务调度已耗尽: %s", j.label())
	}
}

// armLocked 计算 ref 之后的下次触发时间并设置定时器. 调用方持有 j.mu.
func (j *Job) armLocked(ref, now time.Time) (time.Time, bool) {
	next, ok := j.sched.Next(ref)
	if !ok {
		j.state = JobStateStopped
		j.timer = nil
		j.next = time.Time{}
		j.opts.metrics.SetNextRun(j.label(), time.Time{})
		return time.Time{}, false
	}

	j.gen++
	gen := j.gen
	j.timer = j.opts.clock.AfterFunc(next.Sub(now), func() {
		_ = j.fire(gen, next)
	})
	j.state = JobStateScheduled
	j.next = next
	j.opts.metrics.SetNextRun(j.label(), next)
	return next, true
}

// fire 定时器到期处理.
//
// 回调失败时返回 *CallbackError，此时状态机已经完成重新调度或停止.
func (j *Job) fire(gen uint64, at time.Time) error {
	j.mu.Lock()
	if gen != j.gen || j.state != JobStateScheduled {
		j.mu.Unlock()
		return nil
	}
	j.state = JobStateRunning
	j.timer = nil
	ctx, cancel := j.tickContext(context.Background())
	j.cancel = cancel
	j.mu.Unlock()

	err := j.tick(ctx, at, false)
	cancel()

	j.mu.Lock()
	if gen != j.gen || j.state != JobStateRunning {
		// 回调中调用了 Stop 或重新 Start
		j.mu.Unlock()
		return j.wrapErr(at, err)
	}
	j.cancel = nil

	var complete bool
	if j.sched.OneShot() {
		j.gen++
		j.state = JobStateStopped
		j.next = time.Time{}
		j.opts.metrics.SetNextRun(j.label(), time.Time{})
		complete = true
	} else if _, armed := j.armLocked(at, j.opts.clock.Now()); !armed {
		j.logDebugf("任务调度已耗尽: %s", j.label())
	}
	j.mu.Unlock()

	if complete {
		j.complete()
	}
	return j.wrapErr(at, err)
}

// Stop 停止任务.
//
// 取消已设置的定时器和进行中回调的 context. 仅当确实取消了定时器或打断了
// 执行中的回调时调用 onComplete，重复调用不会再次触发.
func (j *Job) Stop() {
	j.mu.Lock()
	live := j.state == JobStateScheduled || j.state == JobStateRunning
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	if live {
		j.gen++
	}
	j.state = JobStateStopped
	j.next = time.Time{}
	j.mu.Unlock()

	if !live {
		return
	}
	j.opts.metrics.SetNextRun(j.label(), time.Time{})
	j.logDebugf("任务已停止: %s", j.label())
	j.complete()
}

// SetSchedule 替换任务调度.
//
// 任务处于 Scheduled 或 Running 状态时返回 ErrInvalidMutation. 新调度使用
// 任务的时区解析，任务状态保持不变.
func (j *Job) SetSchedule(spec any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == JobStateScheduled || j.state == JobStateRunning {
		return ErrInvalidMutation
	}
	sched, err := schedule.New(spec, j.loc)
	if err != nil {
		return err
	}
	j.sched = sched
	return nil
}

// SetTime 等同于 SetSchedule.
func (j *Job) SetTime(spec any) error {
	return j.SetSchedule(spec)
}

// Trigger 立即同步执行一次回调，不影响调度状态.
//
// 与定时触发串行执行，不能在回调内部调用.
func (j *Job) Trigger(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := j.tickContext(ctx)
	defer cancel()

	now := j.opts.clock.Now()
	return j.wrapErr(now, j.tick(ctx, now, true))
}

// Wait 等待进行中的回调结束，ctx 结束时返回 ctx.Err().
func (j *Job) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		j.tickMu.Lock()
		j.tickMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) tickContext(parent context.Context) (context.Context, context.CancelFunc) {
	if j.timeout > 0 {
		return context.WithTimeout(parent, j.timeout)
	}
	return context.WithCancel(parent)
}

// tick 执行一次回调，包括钩子、链路、统计和指标.
func (j *Job) tick(ctx context.Context, scheduled time.Time, manual bool) error {
	j.tickMu.Lock()
	defer j.tickMu.Unlock()

	start := j.opts.clock.Now()
	tc := &TickContext{
		Job:       j,
		Scheduled: scheduled,
		StartTime: start,
		Manual:    manual,
	}
	ctx = logger.ContextWithJobID(ctx, j.id)

	if err := j.opts.hooks.runBeforeHooks(ctx, tc); err != nil {
		j.skip(ctx, tc, err.Error())
		return nil
	}
	if ctx.Err() != nil {
		j.skip(ctx, tc, errStoppedBeforeStart.Error())
		return nil
	}

	ctx, span := tracing.StartTick(ctx, j.opts.tracer, tracing.TickInfo{
		JobName:     j.name,
		JobID:       j.id,
		ScheduledAt: scheduled,
		Manual:      manual,
	})
	if traceID := tracing.TraceID(ctx); traceID != "" {
		ctx = logger.ContextWithTraceID(ctx, traceID)
	}

	err := recovery.Do(ctx, func(ctx context.Context) error {
		// Stop 可能在开启 span 期间返回
		if ctx.Err() != nil {
			return errStoppedBeforeStart
		}
		j.stats.recordStart(start)
		j.logDebugf("开始执行任务: %s [scheduled:%s]", j.label(), scheduled.Format(time.RFC3339))
		return j.onTick(ctx, j.target)
	}, recovery.WithLogger(j.opts.logger))
	if errors.Is(err, errStoppedBeforeStart) {
		span.End()
		j.skip(ctx, tc, errStoppedBeforeStart.Error())
		return nil
	}

	end := j.opts.clock.Now()
	duration := end.Sub(start)
	tracing.EndTick(span, err)

	tc.Error = err
	tc.Duration = duration
	j.opts.metrics.RecordTick(j.label(), duration, err)

	if err != nil {
		var panicErr *recovery.PanicError
		if errors.As(err, &panicErr) {
			j.opts.metrics.RecordPanic(j.label())
		}
		j.stats.recordFail(end, duration, err)
		j.logErrorf("任务执行失败: %s [duration:%v] [error:%v]", j.label(), duration, err)
		j.opts.hooks.runErrorHooks(ctx, tc)
	} else {
		j.stats.recordSuccess(end, duration)
		j.logDebugf("任务执行成功: %s [duration:%v]", j.label(), duration)
	}
	j.opts.hooks.runAfterHooks(ctx, tc)
	return err
}

func (j *Job) skip(ctx context.Context, tc *TickContext, reason string) {
	tc.Skipped = true
	tc.SkipReason = reason
	j.stats.recordSkip()
	j.opts.metrics.RecordSkip(j.label())
	j.opts.hooks.runSkipHooks(ctx, tc)
	j.logDebugf("任务跳过: %s [reason:%s]", j.label(), reason)
}

func (j *Job) complete() {
	if j.onComplete == nil {
		return
	}
	j.onComplete(j.target)
}

func (j *Job) wrapErr(at time.Time, err error) error {
	if err == nil {
		return nil
	}
	return &CallbackError{Job: j.label(), Scheduled: at, Err: err}
}

// String 返回任务描述.
func (j *Job) String() string {
	return fmt.Sprintf("%s [schedule:%s, state:%s]", j.label(), j.Schedule(), j.State())
}

// 日志辅助方法.

func (j *Job) logDebugf(format string, args ...any) {
	if log := j.opts.logger; log != nil {
		log.Debugf("[Scheduler] "+format, args...)
	}
}

func (j *Job) logErrorf(format string, args ...any) {
	if log := j.opts.logger; log != nil {
		log.Errorf("[Scheduler] "+format, args...)
	}
}
