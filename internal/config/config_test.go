package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.CacheName() != "wedding-v1.1.0" {
		t.Fatalf("桶名拼接错误: %s", cfg.Global.CacheName())
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 30*time.Second {
		t.Fatalf("UpstreamTimeout 应该自动填充默认值")
	}
	if cfg.Global.FallbackDocument != "/index.html" {
		t.Fatalf("FallbackDocument 应该使用默认值")
	}
	if cfg.Global.StoragePath == "" {
		t.Fatalf("StoragePath 应该被保留")
	}
	if len(cfg.Manifest) != 5 {
		t.Fatalf("Manifest 应整体覆盖默认值, got %d", len(cfg.Manifest))
	}
	if cfg.Manifest[0] != "/" {
		t.Fatalf("Manifest 顺序必须保留, got %s", cfg.Manifest[0])
	}
}

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
AppName = "wedding"
Version = "1.0.0"
Origin = "http://localhost:5000"
UpstreamTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestValidateVersionShape(t *testing.T) {
	testCases := []struct {
		name      string
		version   string
		shouldErr bool
	}{
		{"release ok", "1.1.0", false},
		{"zero ok", "0.0.1", false},
		{"missing patch", "1.1", true},
		{"empty", "", true},
		{"alpha segment", "1.x.0", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Global.Version = tc.version
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for version %q", tc.version)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for version %q: %v", tc.version, err)
			}
		})
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Global.StorageDriver = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("未知存储驱动应当报错")
	}
}

func TestValidateMemoryDriverSkipsStoragePath(t *testing.T) {
	cfg := validConfig()
	cfg.Global.StorageDriver = StorageDriverMemory
	cfg.Global.StoragePath = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory 驱动不应要求 StoragePath: %v", err)
	}
}

func TestValidateManifestEntries(t *testing.T) {
	cfg := validConfig()
	cfg.Manifest = []string{"relative/path.css"}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("相对路径清单条目应当报错")
	}
	if !strings.Contains(err.Error(), "Manifest[0]") {
		t.Fatalf("错误应包含条目位置, got %v", err)
	}
}

func TestValidateBypassRequiresAbsoluteURL(t *testing.T) {
	cfg := validConfig()
	cfg.Bypass = []string{"/local/path"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("本地路径不允许出现在 Bypass 列表")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			AppName:          "wedding",
			Version:          "1.1.0",
			ListenPort:       5000,
			Origin:           "http://localhost:5000",
			StoragePath:      "./data",
			StorageDriver:    StorageDriverDisk,
			FallbackDocument: "/index.html",
			UpstreamTimeout:  Duration(time.Second),
		},
		Manifest: []string{"/", "/index.html"},
	}
}
