package bot

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/weibaohui/wechaty-bot/utils"
	"go.uber.org/zap"
)

type startTimeKey struct{}

type sessionKey struct{}

// ModelCallbacks 记录模型调用的输入、耗时与 token 用量
type ModelCallbacks struct {
	logger *zap.Logger
}

// NewModelCallbacks 创建模型调用回调
func NewModelCallbacks(logger *zap.Logger) *ModelCallbacks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelCallbacks{logger: logger}
}

// Handler 返回 eino 回调处理器
func (mc *ModelCallbacks) Handler() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(mc.onStart).
		OnEndFn(mc.onEnd).
		OnErrorFn(mc.onError).
		Build()
}

// Inject 为一次模型调用初始化回调，sessionID 会出现在日志中
func (mc *ModelCallbacks) Inject(ctx context.Context, modelName, sessionID string) context.Context {
	ctx = context.WithValue(ctx, sessionKey{}, sessionID)
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      modelName,
		Type:      "OpenAI",
		Component: components.ComponentOfChatModel,
	}, mc.Handler())
}

func (mc *ModelCallbacks) onStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

	in := model.ConvCallbackInput(input)
	if in == nil {
		return ctx
	}
	fields := []zap.Field{
		zap.String("model", info.Name),
		zap.String("session_id", sessionFrom(ctx)),
		zap.Int("message_count", len(in.Messages)),
	}
	if in.Config != nil {
		fields = append(fields,
			zap.Int("max_tokens", in.Config.MaxTokens),
			zap.Float32("temperature", in.Config.Temperature),
		)
	}
	mc.logger.Debug("[ModelCallback] 请求模型", fields...)

	for _, msg := range in.Messages {
		if msg == nil || msg.Role == schema.System {
			continue
		}
		mc.logger.Debug("[ModelCallback]   消息",
			zap.String("role", string(msg.Role)),
			zap.String("content", utils.Truncate(msg.Content, 200)),
		)
	}
	return ctx
}

func (mc *ModelCallbacks) onEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	fields := []zap.Field{
		zap.String("model", info.Name),
		zap.String("session_id", sessionFrom(ctx)),
		zap.Int64("duration_ms", elapsed(ctx).Milliseconds()),
	}
	if out := model.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", out.TokenUsage.PromptTokens),
			zap.Int("completion_tokens", out.TokenUsage.CompletionTokens),
			zap.Int("total_tokens", out.TokenUsage.TotalTokens),
		)
	}
	mc.logger.Info("[ModelCallback] 模型返回", fields...)
	return ctx
}

func (mc *ModelCallbacks) onError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	mc.logger.Warn("[ModelCallback] 模型出错",
		zap.String("model", info.Name),
		zap.String("session_id", sessionFrom(ctx)),
		zap.Int64("duration_ms", elapsed(ctx).Milliseconds()),
		zap.Error(err),
	)
	return ctx
}

func sessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func elapsed(ctx context.Context) time.Duration {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}
