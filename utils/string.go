package utils

import (
	"strings"
)

// ContainsInsensitive 检查字符串 s 是否包含子串 substr（不区分大小写）
func ContainsInsensitive(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// HasPrefixInsensitive 检查字符串 s 是否以 prefix 开头（不区分大小写）
func HasPrefixInsensitive(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

// MatchPrefix 返回 content 命中的第一个前缀，空字符串前缀匹配任意内容
func MatchPrefix(content string, prefixes []string) (string, bool) {
	for _, prefix := range prefixes {
		if strings.HasPrefix(content, prefix) {
			return prefix, true
		}
	}
	return "", false
}

// ContainsAny 检查 content 是否包含任一关键词
func ContainsAny(content string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// Truncate 按字符截断，用于日志输出
func Truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
