package utils

import "testing"

func TestContainsInsensitive(t *testing.T) {
	tests := []struct {
		s, substr string
		expected  bool
	}{
		{"GPT-4o-mini", "gpt", true},
		{"deepseek-chat", "DeepSeek", true},
		{"qwen", "gpt", false},
		{"", "", true},
	}

	for _, tt := range tests {
		if result := ContainsInsensitive(tt.s, tt.substr); result != tt.expected {
			t.Errorf("ContainsInsensitive(%q, %q) = %v, 期望 %v", tt.s, tt.substr, result, tt.expected)
		}
	}
}

func TestHasPrefixInsensitive(t *testing.T) {
	if !HasPrefixInsensitive("qwen/Qwen2.5", "Qwen/") {
		t.Error("应该匹配忽略大小写的前缀")
	}
	if HasPrefixInsensitive("gpt-4o", "Qwen/") {
		t.Error("不应该匹配")
	}
}

func TestMatchPrefix(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		prefixes  []string
		expected  string
		wantMatch bool
	}{
		{"命中第一个", "bot 你好", []string{"bot", "@bot"}, "bot", true},
		{"命中第二个", "@bot 你好", []string{"bot", "@bot"}, "@bot", true},
		{"未命中", "你好", []string{"bot", "@bot"}, "", false},
		{"空前缀匹配任意内容", "你好", []string{""}, "", true},
		{"前缀列表为空", "你好", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, ok := MatchPrefix(tt.content, tt.prefixes)
			if ok != tt.wantMatch || prefix != tt.expected {
				t.Errorf("MatchPrefix() = (%q, %v), 期望 (%q, %v)", prefix, ok, tt.expected, tt.wantMatch)
			}
		})
	}
}

func TestContainsAny(t *testing.T) {
	if !ContainsAny("请问小助手在吗", []string{"小助手", "机器人"}) {
		t.Error("应该包含关键词")
	}
	if ContainsAny("大家好", []string{"小助手"}) {
		t.Error("不应该包含关键词")
	}
	if ContainsAny("大家好", nil) {
		t.Error("关键词为空时不应该命中")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("你好世界", 2); got != "你好..." {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("Truncate() = %q", got)
	}
}
