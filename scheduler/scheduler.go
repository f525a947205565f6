// Package scheduler 提供基于 Cron 表达式或固定时间点的任务调度.
//
// 特性：
//   - 支持六字段（秒级）和五字段 Cron 表达式，以及一次性的时间点任务
//   - 按时区的墙上时间计算触发时间，正确处理夏令时切换
//   - 每个任务只有一个定时器，回调串行执行
//   - 任务状态机：Idle → Scheduled → Running → Scheduled/Stopped
//   - Hook 机制：BeforeTick/AfterTick/OnError/OnSkip
//   - 执行统计、Prometheus 指标和 OpenTelemetry 链路
//   - 可替换时钟，测试中使用虚拟时间
//
// 示例：
//
//	job, err := scheduler.NewJob("0 */5 * * * *", syncHandler, nil, true, "Asia/Shanghai", nil, false,
//	    scheduler.WithLogger(log),
//	)
//
//	// 或者由调度器统一管理
//	s := scheduler.MustNew(scheduler.WithLogger(log))
//	s.Add(scheduler.NewBuilder("sync-data").
//	    Schedule("0 */5 * * * *").
//	    OnTick(syncHandler).
//	    Config(),
//	)
//	s.Start()
//	defer s.Shutdown(ctx)
package scheduler

import "context"

// Scheduler 调度器接口，按名称管理一组任务.
type Scheduler interface {
	// Add 创建并添加任务. 调度器运行中或 cfg.Start 为 true 时立即启动.
	Add(cfg JobConfig) (*Job, error)

	// Remove 停止并移除任务.
	Remove(name string) error

	// Get 获取任务.
	Get(name string) (*Job, bool)

	// List 按添加顺序列出所有任务.
	List() []*Job

	// Start 启动调度器和所有任务.
	Start() error

	// Stop 停止所有任务，之后可以再次 Start.
	Stop()

	// Shutdown 停止所有任务并等待进行中的回调结束.
	Shutdown(ctx context.Context) error

	// Running 检查是否运行中.
	Running() bool

	// Trigger 异步立即执行一次任务回调（不影响正常调度）.
	Trigger(name string) error
}

// New 创建调度器.
func New(opts ...Option) (Scheduler, error) {
	return newJobScheduler(opts...), nil
}

// MustNew 创建调度器，失败时 panic.
func MustNew(opts ...Option) Scheduler {
	s, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return s
}
