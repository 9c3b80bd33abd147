package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const supportedDriverList = StorageDriverDisk + "|" + StorageDriverMemory

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if strings.TrimSpace(g.AppName) == "" {
		return newFieldError("Global.AppName", "不能为空")
	}
	if strings.ContainsAny(g.AppName, " /") {
		return newFieldError("Global.AppName", "不允许包含空格或斜杠")
	}
	if err := validateVersion(g.Version); err != nil {
		return fmt.Errorf("Global.Version: %w", err)
	}
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if err := validateOrigin(g.Origin); err != nil {
		return fmt.Errorf("Global.Origin: %w", err)
	}
	switch g.StorageDriver {
	case StorageDriverDisk:
		if g.StoragePath == "" {
			return newFieldError("Global.StoragePath", "disk 驱动下不能为空")
		}
	case StorageDriverMemory:
		// 内存驱动不需要路径
	default:
		return newFieldError("Global.StorageDriver", "仅支持 "+supportedDriverList)
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if !strings.HasPrefix(g.FallbackDocument, "/") {
		return newFieldError("Global.FallbackDocument", "必须是以 / 开头的本地路径")
	}

	if len(c.Manifest) == 0 {
		return errors.New("Manifest 至少需要一个条目")
	}
	for i, entry := range c.Manifest {
		if err := validateManifestEntry(entry); err != nil {
			return fmt.Errorf("%s: %w", manifestField(i), err)
		}
	}
	for i, entry := range c.Bypass {
		if err := validateBypassEntry(entry); err != nil {
			return fmt.Errorf("%s: %w", bypassField(i), err)
		}
	}

	return nil
}

// validateVersion 校验版本号形如 1.1.0。桶名是否匹配完全依赖该字符串，
// 因此这里只做结构检查，不解析语义。
func validateVersion(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("不能为空")
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return fmt.Errorf("必须是 x.y.z 形式: %s", raw)
	}
	for _, part := range parts {
		if _, err := strconv.Atoi(part); err != nil {
			return fmt.Errorf("版本号段必须为数字: %s", raw)
		}
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("不允许包含路径: %s", raw)
	}
	return nil
}

// validateManifestEntry 接受本地路径（/ 开头）或绝对 http(s) URL。
func validateManifestEntry(entry string) error {
	if entry == "" {
		return errors.New("不能为空")
	}
	if strings.HasPrefix(entry, "/") {
		if strings.Contains(entry, " ") {
			return errors.New("路径不允许包含空格")
		}
		return nil
	}
	parsed, err := url.Parse(entry)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持本地路径或 http(s) URL: %s", entry)
	}
	if parsed.Host == "" {
		return fmt.Errorf("绝对 URL 缺少 Host: %s", entry)
	}
	return nil
}

// validateBypassEntry 只接受绝对 URL 前缀；本地路径永远走拦截逻辑。
func validateBypassEntry(entry string) error {
	if entry == "" {
		return errors.New("不能为空")
	}
	parsed, err := url.Parse(entry)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return fmt.Errorf("必须是绝对 http(s) URL 前缀: %s", entry)
	}
	return nil
}

