// Package config 提供基于 viper 的类型化配置加载.
//
// 任务定义文件和日志、指标、链路配置都通过 Load 系列函数读取，
// 实现了 Validatable 的配置类型在解析后自动校验.
package config

import (
	"errors"
	"path/filepath"
	"strings"
)

// 预定义错误.
var (
	// ErrFileNotFound 配置文件不存在.
	ErrFileNotFound = errors.New("config: file not found")

	// ErrInvalidType 不支持的配置文件类型.
	ErrInvalidType = errors.New("config: unsupported config type")

	// ErrReadConfig 读取配置失败.
	ErrReadConfig = errors.New("config: read failed")

	// ErrUnmarshal 解析配置失败.
	ErrUnmarshal = errors.New("config: unmarshal failed")

	// ErrValidation 配置验证失败.
	ErrValidation = errors.New("config: validation failed")
)

// Validatable 可验证的配置接口.
type Validatable interface {
	Validate() error
}

// supportedTypes viper 可以解析的配置类型.
var supportedTypes = map[string]struct{}{
	"yaml": {}, "json": {}, "toml": {}, "ini": {}, "env": {}, "properties": {},
}

// GetConfigType 根据文件扩展名获取配置类型，无法识别时返回空字符串.
func GetConfigType(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		return "yaml"
	case ".json", ".toml", ".ini", ".properties":
		return ext[1:]
	case ".env":
		return "env"
	default:
		if strings.EqualFold(filepath.Base(filename), ".env") {
			return "env"
		}
		return ""
	}
}

func isSupportedType(configType string) bool {
	_, ok := supportedTypes[strings.ToLower(configType)]
	return ok
}
