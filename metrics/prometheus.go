package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tsukikage7/cronjob/recovery"
)

// PrometheusCollector Prometheus 指标收集器实现.
type PrometheusCollector struct {
	config *Config

	ticksTotal   *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec
	skipsTotal   *prometheus.CounterVec
	panicsTotal  *prometheus.CounterVec
	nextRun      *prometheus.GaugeVec

	// 使用独立注册表，避免与默认注册表冲突
	registry *prometheus.Registry
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus 创建 Prometheus 指标收集器.
func NewPrometheus(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "cronjob"
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	c := &PrometheusCollector{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	c.ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "ticks_total",
			Help:      "Total number of job callback executions",
		},
		[]string{"job", "result"},
	)

	c.tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "tick_duration_seconds",
			Help:      "Job callback duration in seconds",
			Buckets:   buckets,
		},
		[]string{"job"},
	)

	c.skipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "skips_total",
			Help:      "Total number of fires skipped by hooks",
		},
		[]string{"job"},
	)

	c.panicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "panics_total",
			Help:      "Total number of panics recovered from job callbacks",
		},
		[]string{"job"},
	)

	c.nextRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "next_run_timestamp_seconds",
			Help:      "Unix time of the next scheduled fire, 0 when none",
		},
		[]string{"job"},
	)

	collectors := []prometheus.Collector{
		c.ticksTotal,
		c.tickDuration,
		c.skipsTotal,
		c.panicsTotal,
		c.nextRun,
	}
	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegisterMetric, err)
		}
	}

	return c, nil
}

// RecordTick 记录一次回调执行.
func (c *PrometheusCollector) RecordTick(job string, duration time.Duration, err error) {
	c.ticksTotal.WithLabelValues(job, resultOf(err)).Inc()
	c.tickDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordSkip 记录一次被跳过的触发.
func (c *PrometheusCollector) RecordSkip(job string) {
	c.skipsTotal.WithLabelValues(job).Inc()
}

// RecordPanic 记录一次回调 panic.
func (c *PrometheusCollector) RecordPanic(job string) {
	c.panicsTotal.WithLabelValues(job).Inc()
}

// SetNextRun 设置下次触发时间.
func (c *PrometheusCollector) SetNextRun(job string, next time.Time) {
	if next.IsZero() {
		c.nextRun.WithLabelValues(job).Set(0)
		return
	}
	c.nextRun.WithLabelValues(job).Set(float64(next.UnixNano()) / 1e9)
}

// Forget 删除任务的全部指标序列.
func (c *PrometheusCollector) Forget(job string) {
	for _, result := range []string{ResultSuccess, ResultError, ResultPanic} {
		c.ticksTotal.DeleteLabelValues(job, result)
	}
	c.tickDuration.DeleteLabelValues(job)
	c.skipsTotal.DeleteLabelValues(job)
	c.panicsTotal.DeleteLabelValues(job)
	c.nextRun.DeleteLabelValues(job)
}

// Registry 返回底层注册表，可用于注册额外的指标.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 metrics 的 HTTP 处理器.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Path 返回 metrics 路径.
func (c *PrometheusCollector) Path() string {
	if c.config.Path == "" {
		return "/metrics"
	}
	return c.config.Path
}

func resultOf(err error) string {
	if err == nil {
		return ResultSuccess
	}
	var panicErr *recovery.PanicError
	if errors.As(err, &panicErr) {
		return ResultPanic
	}
	return ResultError
}
