package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/Tsukikage7/cronjob/config"
	"github.com/Tsukikage7/cronjob/logger"
	"github.com/Tsukikage7/cronjob/schedule"
	"github.com/Tsukikage7/cronjob/tracing"
)

// FileConfig 任务定义文件.
//
//	timezone: Asia/Shanghai
//	log:
//	  level: info
//	tracing:
//	  enabled: true
//	  service_name: report-worker
//	  otlp:
//	    endpoint: http://localhost:4318
//	jobs:
//	  - name: daily-report
//	    schedule: "0 0 9 * * 1-5"
//	    handler: report
//	    timeout: 30s
type FileConfig struct {
	// Timezone 未指定时区的任务使用的默认时区
	Timezone string `mapstructure:"timezone"`
	// Log 日志配置[可选]，调度器创建 logger 并在 Shutdown 时关闭
	Log *logger.Config `mapstructure:"log"`
	// Tracing 链路追踪配置[可选]，不会设置全局 TracerProvider
	Tracing *tracing.Config `mapstructure:"tracing"`
	// Jobs 任务列表
	Jobs []JobFileEntry `mapstructure:"jobs"`
}

// JobFileEntry 文件中的单个任务定义.
type JobFileEntry struct {
	Name      string         `mapstructure:"name"`
	Schedule  string         `mapstructure:"schedule"`
	Timezone  string         `mapstructure:"timezone"`
	Handler   string         `mapstructure:"handler"`
	Start     bool           `mapstructure:"start"`
	RunOnInit bool           `mapstructure:"run_on_init"`
	Timeout   time.Duration  `mapstructure:"timeout"`
	Context   map[string]any `mapstructure:"context"`
}

// Validate 校验任务定义，解析失败的表达式和时区在加载阶段报告.
func (c *FileConfig) Validate() error {
	if _, err := schedule.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJobFile, err)
	}
	if c.Log != nil {
		if err := c.Log.Validate(); err != nil {
			return fmt.Errorf("%w: log: %w", ErrInvalidJobFile, err)
		}
	}

	seen := make(map[string]struct{}, len(c.Jobs))
	for i, entry := range c.Jobs {
		if entry.Name == "" {
			return fmt.Errorf("%w: jobs[%d]: %w", ErrInvalidJobFile, i, ErrJobNameEmpty)
		}
		if _, dup := seen[entry.Name]; dup {
			return fmt.Errorf("%w: %s: %w", ErrInvalidJobFile, entry.Name, ErrJobExists)
		}
		seen[entry.Name] = struct{}{}

		if strings.TrimSpace(entry.Schedule) == "" {
			return fmt.Errorf("%w: %s: %w", ErrInvalidJobFile, entry.Name, schedule.ErrEmptySchedule)
		}
		if entry.Handler == "" {
			return fmt.Errorf("%w: %s: handler is required", ErrInvalidJobFile, entry.Name)
		}
		loc, err := schedule.LoadLocation(entry.Timezone)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidJobFile, entry.Name, err)
		}
		if _, err := schedule.New(entry.Schedule, loc); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidJobFile, entry.Name, err)
		}
	}
	return nil
}

// LoadFile 从 yaml/json/toml 文件加载任务并返回调度器.
//
// handlers 按名称提供回调. 返回的调度器尚未 Start，标记了 start 的任务除外.
func LoadFile(path string, handlers map[string]TickFunc, opts ...Option) (Scheduler, error) {
	cfg, err := config.Load[FileConfig](path, config.WithEnvPrefix("CRONJOB"))
	if err != nil {
		return nil, err
	}
	s, err := fromFileConfig(cfg, handlers, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LoadBytes 从内存中的配置内容加载任务，configType 为 yaml、json 或 toml.
func LoadBytes(data []byte, configType string, handlers map[string]TickFunc, opts ...Option) (Scheduler, error) {
	cfg, err := config.LoadFromBytes[FileConfig](data, configType, config.WithoutEnv())
	if err != nil {
		return nil, err
	}
	s, err := fromFileConfig(cfg, handlers, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// fromFileConfig 按文件内容创建调度器. opts 在文件配置之后应用，优先级更高.
func fromFileConfig(cfg *FileConfig, handlers map[string]TickFunc, opts []Option) (*jobScheduler, error) {
	if err := checkHandlers(cfg, handlers); err != nil {
		return nil, err
	}

	var (
		fileOpts []Option
		closers  []func(context.Context) error
	)
	if cfg.Timezone != "" {
		loc, err := schedule.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, err
		}
		fileOpts = append(fileOpts, WithLocation(loc))
	}
	if cfg.Log != nil {
		log, err := logger.NewLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("%w: log: %w", ErrInvalidJobFile, err)
		}
		fileOpts = append(fileOpts, WithLogger(log))
		closers = append(closers, func(context.Context) error { return log.Close() })
	}
	if cfg.Tracing != nil {
		tp, err := tracing.NewTracer(cfg.Tracing, tracing.WithoutGlobal())
		if err != nil {
			_ = runClosers(context.Background(), closers)
			return nil, fmt.Errorf("%w: tracing: %w", ErrInvalidJobFile, err)
		}
		fileOpts = append(fileOpts, WithTracer(tracing.Tracer(tp)))
		closers = append(closers, tp.Shutdown)
	}

	s := newJobScheduler(append(fileOpts, opts...)...)
	s.closers = closers
	for _, entry := range cfg.Jobs {
		if _, err := s.Add(entry.jobConfig(handlers)); err != nil {
			_ = s.Shutdown(context.Background())
			return nil, fmt.Errorf("scheduler: add job %q: %w", entry.Name, err)
		}
	}
	return s, nil
}

func checkHandlers(cfg *FileConfig, handlers map[string]TickFunc) error {
	for _, entry := range cfg.Jobs {
		if handlers[entry.Handler] == nil {
			return fmt.Errorf("%w: %q (job %s)", ErrHandlerNotFound, entry.Handler, entry.Name)
		}
	}
	return nil
}

func (e JobFileEntry) jobConfig(handlers map[string]TickFunc) JobConfig {
	cfg := JobConfig{
		Name:      e.Name,
		Schedule:  e.Schedule,
		OnTick:    handlers[e.Handler],
		Start:     e.Start,
		Timezone:  e.Timezone,
		RunOnInit: e.RunOnInit,
		Timeout:   e.Timeout,
	}
	if len(e.Context) > 0 {
		cfg.Context = e.Context
	}
	return cfg
}

// WatchFile 与 LoadFile 相同，并在文件变化后按任务名增量更新任务.
//
// 新增的任务被添加，删除的任务被移除，定义变化的任务被替换. 重新加载失败
// 时保留当前任务并记录错误. timezone、log 和 tracing 只在首次加载时生效.
func WatchFile(path string, handlers map[string]TickFunc, opts ...Option) (Scheduler, error) {
	var (
		mu      sync.Mutex
		s       *jobScheduler
		current map[string]JobFileEntry
	)

	mu.Lock()
	defer mu.Unlock()

	cfg, err := config.Watch[FileConfig](path, func(next *FileConfig, err error) {
		mu.Lock()
		defer mu.Unlock()
		if s == nil {
			return
		}
		if err == nil {
			err = checkHandlers(next, handlers)
		}
		if err != nil {
			s.logErrorf("重新加载任务文件失败: %s [error:%v]", path, err)
			return
		}
		current = s.reconcile(current, next, handlers)
	}, config.WithEnvPrefix("CRONJOB"))
	if err != nil {
		return nil, err
	}

	s, err = fromFileConfig(cfg, handlers, opts)
	if err != nil {
		return nil, err
	}
	current = entriesByName(cfg.Jobs)
	return s, nil
}

// reconcile 将调度器中的任务更新为 next 描述的集合.
func (s *jobScheduler) reconcile(current map[string]JobFileEntry, next *FileConfig, handlers map[string]TickFunc) map[string]JobFileEntry {
	wanted := entriesByName(next.Jobs)

	for name := range current {
		if _, ok := wanted[name]; !ok {
			_ = s.Remove(name)
		}
	}

	for _, entry := range next.Jobs {
		old, exists := current[entry.Name]
		if exists && reflect.DeepEqual(old, entry) {
			continue
		}
		if exists {
			_ = s.Remove(entry.Name)
		}
		if _, err := s.Add(entry.jobConfig(handlers)); err != nil {
			s.logErrorf("重新加载任务失败: %s [error:%v]", entry.Name, err)
			delete(wanted, entry.Name)
			continue
		}
		s.logDebugf("任务已重新加载: %s", entry.Name)
	}
	return wanted
}

func entriesByName(entries []JobFileEntry) map[string]JobFileEntry {
	m := make(map[string]JobFileEntry, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return m
}
