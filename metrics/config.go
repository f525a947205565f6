package metrics

// Config 指标监控配置.
type Config struct {
	// Path 指标暴露路径，默认 /metrics
	Path string `json:"path" yaml:"path" mapstructure:"path"`
	// Namespace 指标命名空间，默认 cronjob
	Namespace string `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
	// Buckets 执行耗时直方图的桶，为空时使用 prometheus.DefBuckets
	Buckets []float64 `json:"buckets" yaml:"buckets" mapstructure:"buckets"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	return &Config{
		Path:      "/metrics",
		Namespace: "cronjob",
	}
}
