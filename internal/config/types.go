package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的缓存存储驱动。
const (
	StorageDriverDisk   = "disk"
	StorageDriverMemory = "memory"
)

// GlobalConfig 描述全局运行时行为，Worker 与 HTTP 层共享同一份参数。
type GlobalConfig struct {
	AppName          string   `mapstructure:"AppName"`
	Version          string   `mapstructure:"Version"`
	ListenPort       int      `mapstructure:"ListenPort"`
	Origin           string   `mapstructure:"Origin"`
	StoragePath      string   `mapstructure:"StoragePath"`
	StorageDriver    string   `mapstructure:"StorageDriver"`
	FallbackDocument string   `mapstructure:"FallbackDocument"`
	UpstreamTimeout  Duration `mapstructure:"UpstreamTimeout"`
	LogLevel         string   `mapstructure:"LogLevel"`
	LogFilePath      string   `mapstructure:"LogFilePath"`
	LogMaxSize       int      `mapstructure:"LogMaxSize"`
	LogMaxBackups    int      `mapstructure:"LogMaxBackups"`
	LogCompress      bool     `mapstructure:"LogCompress"`
}

// Config 是 TOML 文件映射的整体结构。Manifest/Bypass 均为部署期固定列表，
// 配置文件可整体覆盖但不会与默认值做合并。
type Config struct {
	Global   GlobalConfig `mapstructure:",squash"`
	Manifest []string     `mapstructure:"Manifest"`
	Bypass   []string     `mapstructure:"Bypass"`
}

// CacheName 返回当前版本对应的缓存桶名，格式固定为 <AppName>-v<Version>。
// 该字符串是区分当前桶与过期桶的唯一标识。
func (g GlobalConfig) CacheName() string {
	return fmt.Sprintf("%s-v%s", g.AppName, g.Version)
}

// IsMemoryDriver 表示当前是否使用内存存储（通常用于测试或一次性部署）。
func (g GlobalConfig) IsMemoryDriver() bool {
	return strings.EqualFold(g.StorageDriver, StorageDriverMemory)
}
