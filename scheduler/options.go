package scheduler

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/cronjob/clock"
	"github.com/Tsukikage7/cronjob/logger"
	"github.com/Tsukikage7/cronjob/metrics"
	"github.com/Tsukikage7/cronjob/tracing"
)

// Option 任务和调度器的配置选项.
type Option func(*options)

// options 内部配置.
type options struct {
	clock          clock.Clock
	logger         logger.Logger
	hooks          *Hooks
	metrics        metrics.Recorder
	tracer         trace.Tracer
	defaultTimeout time.Duration
	location       *time.Location
}

// defaultOptions 返回默认配置.
func defaultOptions() *options {
	return &options{
		clock:    clock.Real(),
		metrics:  metrics.Nop{},
		location: time.Local,
	}
}

func buildOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.metrics == nil {
		o.metrics = metrics.Nop{}
	}
	if o.tracer == nil {
		o.tracer = tracing.Tracer(nil)
	}
	if o.location == nil {
		o.location = time.Local
	}
	return o
}

// WithClock 设置时钟.
//
// 测试中传入 clock.Fake 以虚拟时间驱动任务.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger 设置日志记录器，为 nil 时不输出日志.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithHooks 设置钩子.
func WithHooks(hooks *Hooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithMetrics 设置指标记录器.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithDefaultTimeout 设置回调默认超时时间.
//
// 任务未指定超时时使用此值，0 表示不限制.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		o.defaultTimeout = d
	}
}

// WithLocation 设置未指定时区的任务使用的时区.
//
// 默认: time.Local
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}
