package scheduler

import "time"

// JobBuilder 任务构建器.
type JobBuilder struct {
	cfg JobConfig
}

// NewBuilder 创建任务构建器.
func NewBuilder(name string) *JobBuilder {
	return &JobBuilder{cfg: JobConfig{Name: name}}
}

// Schedule 设置调度，可以是 Cron 表达式或时间点.
func (b *JobBuilder) Schedule(spec any) *JobBuilder {
	b.cfg.Schedule = spec
	return b
}

// OnTick 设置回调.
func (b *JobBuilder) OnTick(fn TickFunc) *JobBuilder {
	b.cfg.OnTick = fn
	return b
}

// OnComplete 设置完成回调.
func (b *JobBuilder) OnComplete(fn CompleteFunc) *JobBuilder {
	b.cfg.OnComplete = fn
	return b
}

// Timezone 设置时区.
func (b *JobBuilder) Timezone(tz string) *JobBuilder {
	b.cfg.Timezone = tz
	return b
}

// Context 设置回调的执行上下文.
func (b *JobBuilder) Context(target any) *JobBuilder {
	b.cfg.Context = target
	return b
}

// Timeout 设置超时时间.
func (b *JobBuilder) Timeout(d time.Duration) *JobBuilder {
	b.cfg.Timeout = d
	return b
}

// RunOnInit 创建时先执行一次回调.
func (b *JobBuilder) RunOnInit() *JobBuilder {
	b.cfg.RunOnInit = true
	return b
}

// Start 创建后立即启动.
func (b *JobBuilder) Start() *JobBuilder {
	b.cfg.Start = true
	return b
}

// Config 返回具名配置，可传给 Scheduler.Add.
func (b *JobBuilder) Config() JobConfig {
	return b.cfg
}

// Build 构建任务.
func (b *JobBuilder) Build(opts ...Option) (*Job, error) {
	return NewJobFromConfig(b.cfg, opts...)
}

// MustBuild 构建任务，失败时 panic.
func (b *JobBuilder) MustBuild(opts ...Option) *Job {
	job, err := b.Build(opts...)
	if err != nil {
		panic(err)
	}
	return job
}
