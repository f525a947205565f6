package scheduler

import (
	"context"
	"sync"
)

// jobScheduler 按名称管理任务的调度器实现.
type jobScheduler struct {
	opts    *options
	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string
	running bool
	closed  bool

	// closers 在 Shutdown 时释放由调度器创建的资源
	closers []func(context.Context) error
}

// newJobScheduler 创建调度器.
func newJobScheduler(opts ...Option) *jobScheduler {
	return &jobScheduler{
		opts: buildOptions(opts),
		jobs: make(map[string]*Job),
	}
}

// Add 添加任务.
func (s *jobScheduler) Add(cfg JobConfig) (*Job, error) {
	if cfg.Name == "" {
		return nil, ErrJobNameEmpty
	}
	if err := s.checkAddable(cfg.Name); err != nil {
		return nil, err
	}

	job, err := newJob(cfg, s.opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.checkAddableLocked(cfg.Name); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.jobs[cfg.Name] = job
	s.order = append(s.order, cfg.Name)
	running := s.running
	s.mu.Unlock()

	s.logDebugf("任务已添加: %s [schedule:%s]", cfg.Name, job.Schedule())

	// 回调可能访问调度器，因此在锁外执行
	job.init(JobConfig{RunOnInit: cfg.RunOnInit, Start: cfg.Start || running})
	return job, nil
}

func (s *jobScheduler) checkAddable(name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkAddableLocked(name)
}

func (s *jobScheduler) checkAddableLocked(name string) error {
	if s.closed {
		return ErrSchedulerClosed
	}
	if _, exists := s.jobs[name]; exists {
		return ErrJobExists
	}
	return nil
}

// Remove 停止并移除任务.
func (s *jobScheduler) Remove(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	if !exists {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	delete(s.jobs, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	job.Stop()
	s.opts.metrics.Forget(name)
	s.logDebugf("任务已移除: %s", name)
	return nil
}

// Get 获取任务.
func (s *jobScheduler) Get(name string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[name]
	return job, exists
}

// List 按添加顺序列出所有任务.
func (s *jobScheduler) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.order))
	for _, name := range s.order {
		jobs = append(jobs, s.jobs[name])
	}
	return jobs
}

// Start 启动调度器.
func (s *jobScheduler) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	for _, job := range s.List() {
		job.Start()
	}
	s.logDebugf("调度器已启动 [jobs:%d]", len(s.List()))
	return nil
}

// Stop 停止所有任务.
func (s *jobScheduler) Stop() {
	s.mu.Lock()
	if !s.running || s.closed {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	for _, job := range s.List() {
		job.Stop()
	}
	s.logDebugf("调度器已停止")
}

// Shutdown 优雅关闭.
func (s *jobScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.running = false
	s.mu.Unlock()

	jobs := s.List()
	for _, job := range jobs {
		job.Stop()
	}

	var waitErr error
	for _, job := range jobs {
		if err := job.Wait(ctx); err != nil {
			s.logWarnf("等待任务完成超时: %s", job.label())
			waitErr = err
			break
		}
	}
	if waitErr == nil {
		s.logDebugf("调度器优雅关闭完成")
	}

	if err := runClosers(ctx, s.closers); err != nil && waitErr == nil {
		return err
	}
	return waitErr
}

// runClosers 按注册的逆序释放资源，返回第一个错误.
func runClosers(ctx context.Context, closers []func(context.Context) error) error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Running 检查是否运行中.
func (s *jobScheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Trigger 异步立即执行任务回调.
func (s *jobScheduler) Trigger(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return ErrSchedulerClosed
	}
	if !exists {
		return ErrJobNotFound
	}

	go func() {
		_ = job.Trigger(context.Background())
	}()
	return nil
}

// 日志辅助方法.

func (s *jobScheduler) logDebugf(format string, args ...any) {
	if log := s.opts.logger; log != nil {
		log.Debugf("[Scheduler] "+format, args...)
	}
}

func (s *jobScheduler) logWarnf(format string, args ...any) {
	if log := s.opts.logger; log != nil {
		log.Warnf("[Scheduler] "+format, args...)
	}
}

func (s *jobScheduler) logErrorf(format string, args ...any) {
	if log := s.opts.logger; log != nil {
		log.Errorf("[Scheduler] "+format, args...)
	}
}
