package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/weibaohui/wechaty-bot/bridge"
	"github.com/weibaohui/wechaty-bot/config"
	"github.com/weibaohui/wechaty-bot/session"
	"github.com/weibaohui/wechaty-bot/utils"
	"go.uber.org/zap"
)

// imageClient go-openai 中图片生成的接口
type imageClient interface {
	CreateImage(ctx context.Context, request goopenai.ImageRequest) (goopenai.ImageResponse, error)
}

// Sentinel errors
var (
	ErrNilConfig = fmt.Errorf("配置不能为空")
	ErrNilAPIKey = fmt.Errorf("API Key 不能为空")
)

// OpenAIBot 基于 OpenAI 兼容接口的对话机器人
type OpenAIBot struct {
	store    *config.Store
	model    model.BaseChatModel
	images   imageClient
	sessions  *session.Manager
	callbacks *ModelCallbacks
	logger    *zap.Logger
	sleep     func(time.Duration)
}

// NewOpenAIBot 创建对话机器人
func NewOpenAIBot(ctx context.Context, store *config.Store, sessions *session.Manager, logger *zap.Logger) (*OpenAIBot, error) {
	if store == nil {
		return nil, ErrNilConfig
	}
	cfg := store.Get()

	provider := cfg.GetProvider(cfg.Bot.Model)
	if provider == nil || provider.APIKey == "" {
		return nil, ErrNilAPIKey
	}
	apiBase := provider.APIBase
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}

	chatModel, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		APIKey:  provider.APIKey,
		Model:   cfg.Bot.Model,
		BaseURL: apiBase,
		Timeout: time.Duration(cfg.Bot.RequestTimeoutSecond) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 ChatModel 失败: %w", err)
	}

	var images imageClient
	if imageProvider := cfg.GetProvider(cfg.Bot.ImageModel); imageProvider != nil {
		clientConfig := goopenai.DefaultConfig(imageProvider.APIKey)
		if imageProvider.APIBase != "" {
			clientConfig.BaseURL = strings.TrimSuffix(imageProvider.APIBase, "/")
		}
		images = goopenai.NewClientWithConfig(clientConfig)
	}

	return newOpenAIBot(store, chatModel, images, sessions, logger), nil
}

func newOpenAIBot(store *config.Store, chatModel model.BaseChatModel, images imageClient, sessions *session.Manager, logger *zap.Logger) *OpenAIBot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIBot{
		store:     store,
		model:     chatModel,
		images:    images,
		sessions:  sessions,
		callbacks: NewModelCallbacks(logger),
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Reply 根据上下文类型生成回复
func (b *OpenAIBot) Reply(ctx context.Context, query string, c *bridge.Context) *bridge.Reply {
	switch c.Type {
	case bridge.ContextText:
		b.logger.Info("[CHATGPT] query", zap.String("session_id", c.SessionID), zap.String("query", query))
		if reply := b.handleCommand(query, c.SessionID); reply != nil {
			return reply
		}
		return b.chat(ctx, query, c.SessionID)
	case bridge.ContextImageCreate:
		return b.createImage(ctx, query)
	default:
		return bridge.NewReply(bridge.ReplyError, fmt.Sprintf("Bot不支持处理%s类型的消息", c.Type))
	}
}

// handleCommand 处理记忆与配置命令，非命令返回 nil
func (b *OpenAIBot) handleCommand(query, sessionID string) *bridge.Reply {
	cfg := b.store.Get()

	for _, cmd := range cfg.Bot.ClearMemoryCommands {
		if query == cmd {
			b.sessions.Clear(sessionID)
			return bridge.NewReply(bridge.ReplyInfo, msgMemoryClear)
		}
	}

	switch query {
	case cmdClearAll:
		b.sessions.ClearAll()
		return bridge.NewReply(bridge.ReplyInfo, msgAllClear)
	case cmdReloadConfig:
		if err := b.store.Reload(); err != nil {
			b.logger.Error("重新加载配置失败", zap.Error(err))
			return bridge.NewReply(bridge.ReplyError, "配置更新失败: "+err.Error())
		}
		cfg = b.store.Get()
		b.sessions.SetSystemPrompt(cfg.Bot.CharacterDesc)
		b.sessions.SetMaxTokens(cfg.Bot.ConversationMaxTokens)
		return bridge.NewReply(bridge.ReplyInfo, msgConfigReload)
	}
	return nil
}

// chat 携带会话记忆请求模型
func (b *OpenAIBot) chat(ctx context.Context, query, sessionID string) *bridge.Reply {
	history := b.sessions.SessionQuery(sessionID, query)

	ctx = b.callbacks.Inject(ctx, b.store.Get().Bot.Model, sessionID)
	content, usage, err := b.replyText(ctx, toSchemaMessages(history), 0)
	if err != nil {
		return bridge.NewReply(bridge.ReplyError, content)
	}

	b.sessions.SessionReply(sessionID, content, usage)
	b.logger.Debug("[CHATGPT] reply",
		zap.String("session_id", sessionID),
		zap.String("content", utils.Truncate(content, 200)),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return bridge.NewReply(bridge.ReplyText, content)
}

// replyText 调用模型，可重试的错误最多重试 maxRetry 次
// 出错时返回的字符串为给用户的提示。
func (b *OpenAIBot) replyText(ctx context.Context, messages []*schema.Message, retry int) (string, session.TokenUsage, error) {
	cfg := b.store.Get()

	resp, err := b.model.Generate(ctx, messages,
		model.WithMaxTokens(cfg.Bot.MaxTokens),
		model.WithTemperature(float32(cfg.Bot.Temperature)),
	)
	if err != nil {
		kind := classifyError(err)
		b.logger.Warn("[CHATGPT] 请求失败",
			zap.Int("retry", retry),
			zap.Bool("retryable", kind.retryable),
			zap.Error(err),
		)
		if kind.retryable && retry < maxRetry && ctx.Err() == nil {
			b.sleep(kind.delay)
			return b.replyText(ctx, messages, retry+1)
		}
		return kind.message, session.TokenUsage{}, err
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return msgTired, session.TokenUsage{}, fmt.Errorf("模型返回空内容")
	}

	var usage session.TokenUsage
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		usage = session.TokenUsage{
			PromptTokens:     resp.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: resp.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      resp.ResponseMeta.Usage.TotalTokens,
		}
	}
	return content, usage, nil
}

// createImage 生成图片，返回图片链接
func (b *OpenAIBot) createImage(ctx context.Context, prompt string) *bridge.Reply {
	if b.images == nil {
		return bridge.NewReply(bridge.ReplyError, msgImageFailed)
	}
	cfg := b.store.Get()

	b.logger.Info("[OPEN_AI] image_query", zap.String("query", prompt))
	resp, err := b.images.CreateImage(ctx, goopenai.ImageRequest{
		Prompt:         prompt,
		Model:          cfg.Bot.ImageModel,
		N:              1,
		Size:           cfg.Bot.ImageSize,
		ResponseFormat: goopenai.CreateImageResponseFormatURL,
	})
	if err != nil {
		b.logger.Error("[OPEN_AI] 画图失败", zap.Error(err))
		return bridge.NewReply(bridge.ReplyError, msgImageFailed)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return bridge.NewReply(bridge.ReplyError, msgImageFailed)
	}

	url := resp.Data[0].URL
	b.logger.Info("[OPEN_AI] image_url", zap.String("url", url))
	return bridge.NewReply(bridge.ReplyImageURL, url)
}

func toSchemaMessages(history []session.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case session.RoleSystem:
			if m.Content != "" {
				out = append(out, schema.SystemMessage(m.Content))
			}
		case session.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}
