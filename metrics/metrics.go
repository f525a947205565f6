// Package metrics 提供定时任务的 Prometheus 指标收集.
package metrics

import (
	"errors"
	"net/http"
	"time"
)

// 预定义错误.
var (
	ErrNilConfig      = errors.New("metrics: 配置为空")
	ErrRegisterMetric = errors.New("metrics: 注册指标失败")
)

// 执行结果标签值.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultPanic   = "panic"
)

// Recorder 任务执行指标记录接口.
type Recorder interface {
	// RecordTick 记录一次回调执行，err 为 nil 表示成功.
	RecordTick(job string, duration time.Duration, err error)
	// RecordSkip 记录一次被钩子跳过的触发.
	RecordSkip(job string)
	// RecordPanic 记录一次回调 panic.
	RecordPanic(job string)
	// SetNextRun 设置下次触发时间，零值表示没有下次触发.
	SetNextRun(job string, next time.Time)
	// Forget 删除任务的全部指标序列.
	Forget(job string)
}

// Collector 带 HTTP 暴露能力的指标收集器.
type Collector interface {
	Recorder

	// Handler 返回指标的 HTTP 处理器.
	Handler() http.Handler
	// Path 返回指标暴露路径.
	Path() string
}

// NewMetrics 创建指标收集器.
func NewMetrics(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	return NewPrometheus(cfg)
}

// MustNewMetrics 创建指标收集器，失败时 panic.
func MustNewMetrics(cfg *Config) *PrometheusCollector {
	c, err := NewMetrics(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Nop 不记录任何指标的 Recorder.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordTick(string, time.Duration, error) {}
func (Nop) RecordSkip(string)                       {}
func (Nop) RecordPanic(string)                      {}
func (Nop) SetNextRun(string, time.Time)            {}
func (Nop) Forget(string)                           {}
