package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// LifecycleFields 提供缓存桶与状态字段，供 Worker 生命周期日志复用。
func LifecycleFields(bucket, state string) logrus.Fields {
	return logrus.Fields{
		"bucket": bucket,
		"state":  state,
	}
}

// InterceptFields 提供请求与命中状态字段，供拦截日志复用。
func InterceptFields(method, url string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"method":    method,
		"url":       url,
		"cache_hit": cacheHit,
	}
}
