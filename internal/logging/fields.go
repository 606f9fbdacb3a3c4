package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 workspace/user/scope 等字段，供请求日志复用。
func RequestFields(workspace, user, scope, requestID string) logrus.Fields {
	fields := logrus.Fields{
		"workspace": workspace,
		"user":      user,
		"scope":     scope,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
