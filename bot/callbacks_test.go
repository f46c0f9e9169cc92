package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestModelCallbacks 测试模型调用日志
func TestModelCallbacks(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	mc := NewModelCallbacks(zap.New(core))

	ctx := mc.Inject(context.Background(), "gpt-4o-mini", "u1")
	if sessionFrom(ctx) != "u1" {
		t.Errorf("sessionFrom() = %q", sessionFrom(ctx))
	}

	info := &callbacks.RunInfo{Name: "gpt-4o-mini", Component: "ChatModel"}
	input := &model.CallbackInput{
		Messages: []*schema.Message{schema.SystemMessage("系统"), schema.UserMessage("你好")},
		Config:   &model.Config{MaxTokens: 100, Temperature: 0.5},
	}
	ctx = mc.onStart(ctx, info, input)
	if _, ok := ctx.Value(startTimeKey{}).(time.Time); !ok {
		t.Error("onStart 应记录开始时间")
	}

	output := &model.CallbackOutput{
		Message:    schema.AssistantMessage("你好呀", nil),
		TokenUsage: &model.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
	mc.onEnd(ctx, info, output)
	mc.onError(ctx, info, errors.New("boom"))

	if n := logs.FilterMessage("[ModelCallback] 请求模型").Len(); n != 1 {
		t.Errorf("请求日志数 = %d", n)
	}
	// system 消息不单独记录
	if n := logs.FilterMessage("[ModelCallback]   消息").Len(); n != 1 {
		t.Errorf("消息日志数 = %d, 期望 1", n)
	}
	end := logs.FilterMessage("[ModelCallback] 模型返回").All()
	if len(end) != 1 {
		t.Fatalf("返回日志数 = %d", len(end))
	}
	if end[0].ContextMap()["total_tokens"] != int64(5) {
		t.Errorf("total_tokens = %v", end[0].ContextMap()["total_tokens"])
	}
	if logs.FilterMessage("[ModelCallback] 模型出错").Len() != 1 {
		t.Error("缺少出错日志")
	}
}

// TestModelCallbacks_NilInput 测试无法转换的输入
func TestModelCallbacks_NilInput(t *testing.T) {
	mc := NewModelCallbacks(nil)
	info := &callbacks.RunInfo{Name: "m"}

	ctx := mc.onStart(context.Background(), info, nil)
	if ctx == nil {
		t.Fatal("onStart 应返回 context")
	}
	mc.onEnd(ctx, info, nil)
	if elapsed(context.Background()) != 0 {
		t.Error("没有开始时间时耗时应为 0")
	}
}
