package bridge

import (
	"context"

	"go.uber.org/zap"
)

// Bot 根据上下文生成回复
type Bot interface {
	Reply(ctx context.Context, query string, c *Context) *Reply
}

// VoiceEngine 语音识别与语音合成
type VoiceEngine interface {
	VoiceToText(ctx context.Context, path string) *Reply
	TextToVoice(ctx context.Context, text string) *Reply
}

// Bridge 连接渠道与机器人、语音引擎
type Bridge struct {
	bot    Bot
	voice  VoiceEngine
	logger *zap.Logger
}

// NewBridge 创建 Bridge，voice 可以为 nil
func NewBridge(bot Bot, voice VoiceEngine, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		bot:    bot,
		voice:  voice,
		logger: logger,
	}
}

// FetchReplyContent 调用机器人生成回复
func (b *Bridge) FetchReplyContent(ctx context.Context, query string, c *Context) *Reply {
	if b.bot == nil {
		b.logger.Error("未配置机器人")
		return NewReply(ReplyError, "机器人未配置")
	}
	return b.bot.Reply(ctx, query, c)
}

// FetchVoiceToText 语音转文字
func (b *Bridge) FetchVoiceToText(ctx context.Context, path string) *Reply {
	if b.voice == nil {
		b.logger.Warn("未配置语音引擎，无法识别语音", zap.String("file", path))
		return NewReply(ReplyError, "语音识别未开启")
	}
	return b.voice.VoiceToText(ctx, path)
}

// FetchTextToVoice 文字转语音
func (b *Bridge) FetchTextToVoice(ctx context.Context, text string) *Reply {
	if b.voice == nil {
		b.logger.Warn("未配置语音引擎，无法合成语音")
		return NewReply(ReplyError, "语音合成未开启")
	}
	return b.voice.TextToVoice(ctx, text)
}
