package bot

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// 用户可见的错误提示
const (
	msgRateLimit    = "提问太快啦，请休息一下再问我吧"
	msgTimeout      = "我没有收到你的消息"
	msgConnection   = "我连接不到你的网络"
	msgAPIError     = "请再问我一次"
	msgTired        = "我现在有点累了，等会再来吧"
	msgImageFailed  = "画图出现问题，请休息一下再问我吧"
	msgMemoryClear  = "记忆已清除"
	msgAllClear     = "所有人记忆已清除"
	msgConfigReload = "配置已更新"
)

// 全部会话清除与配置重载命令
const (
	cmdClearAll     = "#清除所有"
	cmdReloadConfig = "#更新配置"
)

const maxRetry = 2

// errorKind 模型调用错误分类
type errorKind struct {
	message   string
	retryable bool
	delay     time.Duration
}

// classifyError 根据错误内容决定提示文案与是否重试
func classifyError(err error) errorKind {
	msg := strings.ToLower(err.Error())

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout"):
		return errorKind{message: msgTimeout, retryable: true, delay: 5 * time.Second}
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return errorKind{message: msgRateLimit, retryable: true, delay: 20 * time.Second}
	case errors.As(err, &netErr) || strings.Contains(msg, "connection"):
		return errorKind{message: msgConnection, retryable: true, delay: 5 * time.Second}
	case strings.Contains(msg, "status code: 5") || strings.Contains(msg, "status code 5"):
		return errorKind{message: msgAPIError, retryable: true, delay: 10 * time.Second}
	default:
		return errorKind{message: msgTired}
	}
}
