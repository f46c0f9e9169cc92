package channels

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/weibaohui/wechaty-bot/bridge"
	"github.com/weibaohui/wechaty-bot/bus"
	"github.com/weibaohui/wechaty-bot/config"
	"github.com/weibaohui/wechaty-bot/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNotImplemented 渠道不支持的发送操作，不会重试
var ErrNotImplemented = errors.New("渠道不支持该操作")

// 引用消息的分隔标记
const quoteMarker = "」\n- - - - - - -"

const maxSendRetry = 2

// Sender 各渠道实现的消息发送
type Sender interface {
	Send(ctx context.Context, reply *bridge.Reply, c *bridge.Context) error
}

// WavConverter 语音识别前将音频转为 wav
type WavConverter interface {
	AnyToWav(ctx context.Context, src, dst string) error
}

// ChatChannel 所有聊天渠道共用的消息处理流水线
// 负责组装上下文、按会话排队、生成回复、装饰回复以及带重试的发送。
type ChatChannel struct {
	name      string
	store     *config.Store
	bridge    *bridge.Bridge
	converter WavConverter
	sender    Sender
	queues    *bus.SessionQueues
	logger    *zap.Logger

	notSupportReplyTypes map[bridge.ReplyType]bool
	retryInterval        time.Duration

	mu       sync.RWMutex
	userID   string
	userName string
}

// NewChatChannel 创建消息处理流水线
func NewChatChannel(name string, store *config.Store, br *bridge.Bridge, converter WavConverter, logger *zap.Logger) *ChatChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := store.Get()
	interval := time.Duration(cfg.Chat.SendRetryIntervalSecond) * time.Second
	return &ChatChannel{
		name:                 name,
		store:                store,
		bridge:               br,
		converter:            converter,
		queues:               bus.NewSessionQueues(cfg.Chat.ConcurrencyInSession, logger),
		logger:               logger,
		notSupportReplyTypes: make(map[bridge.ReplyType]bool),
		retryInterval:        interval,
	}
}

// Name 返回渠道名称
func (c *ChatChannel) Name() string {
	return c.name
}

// SetSender 设置发送实现
func (c *ChatChannel) SetSender(s Sender) {
	c.sender = s
}

// SetNotSupportReplyTypes 设置渠道无法发送的回复类型
func (c *ChatChannel) SetNotSupportReplyTypes(types ...bridge.ReplyType) {
	for _, t := range types {
		c.notSupportReplyTypes[t] = true
	}
}

// SetUser 记录登录用户
func (c *ChatChannel) SetUser(id, name string) {
	c.mu.Lock()
	c.userID = id
	c.userName = name
	c.mu.Unlock()
}

// User 返回登录用户的 ID 与昵称
func (c *ChatChannel) User() (id, name string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.userName
}

// ComposeContext 将归一化的消息组装为上下文，返回 nil 表示无需回复
func (c *ChatChannel) ComposeContext(ctype bridge.ContextType, content string, msg *bridge.ChatMessage) *bridge.Context {
	return c.compose(ctype, content, msg, nil)
}

// compose 组装上下文，base 不为空时沿用其会话信息
func (c *ChatChannel) compose(ctype bridge.ContextType, content string, msg *bridge.ChatMessage, base *bridge.Context) *bridge.Context {
	cfg := c.store.Get()

	if msg == nil {
		c.logger.Warn("[chat_channel] 消息为空，无法组装上下文")
		return nil
	}

	var cc *bridge.Context
	if base != nil {
		cc = base.Derive(ctype, content)
	} else {
		cc = bridge.NewContext(ctype, content)
		cc.IsGroup = msg.IsGroup
		cc.Msg = msg
		cc.OriginType = ctype
	}
	firstIn := cc.Receiver == ""
	c.logger.Debug("[chat_channel] 组装上下文", zap.Stringer("context", cc))

	if firstIn {
		if cc.IsGroup {
			groupName := msg.OtherUserNickname
			groupID := msg.OtherUserID
			if !groupInWhiteList(groupName, cfg.Chat) {
				c.logger.Debug("群名不在白名单中，无需回复", zap.String("group_name", groupName))
				return nil
			}
			cc.SessionID = msg.ActualUserID
			if containsGroup(cfg.Chat.GroupChatInOneSession, groupName) {
				cc.SessionID = groupID
			}
			cc.Receiver = groupID
		} else {
			cc.SessionID = msg.OtherUserID
			cc.Receiver = msg.OtherUserID
		}
	}

	userID, userName := c.User()
	if msg.FromUserID != "" && msg.FromUserID == userID && !cfg.Chat.TriggerBySelf {
		c.logger.Debug("[chat_channel] 跳过自己发送的消息")
		return nil
	}

	switch cc.Type {
	case bridge.ContextText:
		if firstIn && strings.Contains(content, quoteMarker) {
			c.logger.Debug("[chat_channel] 跳过引用消息")
			return nil
		}

		if cc.IsGroup {
			flag := false
			if msg.ToUserID != msg.ActualUserID {
				if prefix, ok := utils.MatchPrefix(content, cfg.Chat.GroupChatPrefix); ok {
					flag = true
					content = strings.TrimSpace(strings.Replace(content, prefix, "", 1))
				} else if utils.ContainsAny(content, cfg.Chat.GroupChatKeyword) {
					flag = true
				}
				if msg.IsAt {
					c.logger.Info("[chat_channel] 收到群聊 @ 消息")
					if !cfg.Chat.GroupAtOff {
						flag = true
					}
					content = stripAtName(content, userName)
				}
			}
			if !flag {
				if cc.OriginType == bridge.ContextVoice {
					c.logger.Info("[chat_channel] 群聊语音未匹配前缀")
				}
				return nil
			}
		} else {
			if prefix, ok := utils.MatchPrefix(content, cfg.Chat.SingleChatPrefix); ok {
				content = strings.TrimSpace(strings.Replace(content, prefix, "", 1))
			} else if cc.OriginType != bridge.ContextVoice {
				return nil
			}
		}

		content = strings.TrimSpace(content)
		if prefix, ok := utils.MatchPrefix(content, cfg.Chat.ImageCreatePrefix); ok && prefix != "" {
			content = strings.Replace(content, prefix, "", 1)
			cc.Type = bridge.ContextImageCreate
		} else {
			cc.Type = bridge.ContextText
		}
		cc.Content = strings.TrimSpace(content)

		if cc.DesireReplyType == 0 && cfg.Voice.AlwaysReplyVoice && !c.notSupportReplyTypes[bridge.ReplyVoice] {
			cc.DesireReplyType = bridge.ReplyVoice
		}

	case bridge.ContextVoice:
		if cc.IsGroup && !cfg.Voice.GroupSpeechRecognition || !cc.IsGroup && !cfg.Voice.SpeechRecognition {
			c.logger.Debug("[chat_channel] 语音识别未开启，忽略语音消息")
			return nil
		}
		if cc.DesireReplyType == 0 && cfg.Voice.VoiceReplyVoice && !c.notSupportReplyTypes[bridge.ReplyVoice] {
			cc.DesireReplyType = bridge.ReplyVoice
		}
	}

	return cc
}

// groupInWhiteList 判断群聊是否需要回复
func groupInWhiteList(groupName string, chat config.ChatConfig) bool {
	return containsGroup(chat.GroupNameWhiteList, groupName) ||
		utils.ContainsAny(groupName, chat.GroupNameKeywordWhiteList)
}

func containsGroup(list []string, groupName string) bool {
	for _, name := range list {
		if name == config.AllGroup || name == groupName {
			return true
		}
	}
	return false
}

// stripAtName 去掉消息中 @自己 的部分，@ 后面跟 U+2005 或空格
func stripAtName(content, name string) string {
	pattern := regexp.MustCompile("@" + regexp.QuoteMeta(name) + "(\u2005| )")
	return pattern.ReplaceAllString(content, "")
}

// Produce 将上下文放入会话队列，# 开头的管理命令优先处理
func (c *ChatChannel) Produce(ctx *bridge.Context) {
	if ctx == nil {
		return
	}
	front := ctx.Type == bridge.ContextText && strings.HasPrefix(ctx.Content, "#")
	c.queues.Push(ctx, front)
}

// Consume 消费各会话队列，直到 ctx 结束
func (c *ChatChannel) Consume(ctx context.Context) error {
	workers := c.store.Get().Chat.Workers
	if workers <= 0 {
		workers = 8
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for {
		for {
			pc, release, ok := c.queues.Next()
			if !ok {
				break
			}
			g.Go(func() error {
				defer release()
				c.safeHandle(ctx, pc)
				return nil
			})
		}

		if err := c.queues.Wait(ctx, time.Second); err != nil {
			g.Wait()
			c.logger.Info("[chat_channel] 消息消费已停止", zap.String("channel", c.name))
			return nil
		}
	}
}

func (c *ChatChannel) safeHandle(ctx context.Context, pc *bridge.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("[chat_channel] 处理消息异常",
				zap.Any("panic", r),
				zap.String("session_id", pc.SessionID),
			)
		}
	}()
	c.Handle(ctx, pc)
}

// CancelSession 取消会话中尚未处理的消息
func (c *ChatChannel) CancelSession(sessionID string) int {
	return c.queues.Cancel(sessionID)
}

// CancelAllSession 取消所有会话中尚未处理的消息
func (c *ChatChannel) CancelAllSession() int {
	return c.queues.CancelAll()
}

// Handle 处理单条上下文：生成回复、装饰回复、发送
func (c *ChatChannel) Handle(ctx context.Context, pc *bridge.Context) {
	if pc == nil || pc.Content == "" {
		return
	}
	c.logger.Debug("[chat_channel] 开始处理", zap.Stringer("context", pc))

	reply := c.generateReply(ctx, pc)
	if reply == nil || (reply.Content == "" && len(reply.Data) == 0) {
		return
	}

	reply = c.decorateReply(ctx, pc, reply)
	if reply == nil || reply.Type == 0 {
		return
	}
	c.send(ctx, reply, pc)
}

// generateReply 根据上下文类型生成回复
func (c *ChatChannel) generateReply(ctx context.Context, pc *bridge.Context) *bridge.Reply {
	switch pc.Type {
	case bridge.ContextText, bridge.ContextImageCreate:
		return c.bridge.FetchReplyContent(ctx, pc.Content, pc)

	case bridge.ContextVoice:
		if pc.Msg != nil {
			if err := pc.Msg.Prepare(); err != nil {
				c.logger.Error("[chat_channel] 下载语音失败", zap.Error(err))
				return nil
			}
		}

		filePath := pc.Content
		wavPath := strings.TrimSuffix(filePath, filepath.Ext(filePath)) + ".wav"
		if c.converter == nil {
			wavPath = filePath
		} else if err := c.converter.AnyToWav(ctx, filePath, wavPath); err != nil {
			c.logger.Warn("[chat_channel] 转换 wav 失败，使用原始文件", zap.Error(err))
			wavPath = filePath
		}

		reply := c.bridge.FetchVoiceToText(ctx, wavPath)
		os.Remove(filePath)
		if wavPath != filePath {
			os.Remove(wavPath)
		}

		if reply.Type == bridge.ReplyText {
			next := c.compose(bridge.ContextText, reply.Content, pc.Msg, pc)
			if next == nil {
				return nil
			}
			return c.generateReply(ctx, next)
		}
		return reply

	case bridge.ContextImage, bridge.ContextSharing, bridge.ContextFile, bridge.ContextFunction:
		return nil

	default:
		c.logger.Warn("[chat_channel] 未知的上下文类型", zap.Stringer("type", pc.Type))
		return nil
	}
}

// decorateReply 按渠道能力与配置装饰回复
func (c *ChatChannel) decorateReply(ctx context.Context, pc *bridge.Context, reply *bridge.Reply) *bridge.Reply {
	cfg := c.store.Get()

	if c.notSupportReplyTypes[reply.Type] {
		c.logger.Error("[chat_channel] 不支持的回复类型", zap.Stringer("type", reply.Type))
		reply = bridge.NewReply(bridge.ReplyError, fmt.Sprintf("不支持发送的消息类型: %s", reply.Type))
	}

	switch reply.Type {
	case bridge.ReplyText:
		if pc.DesireReplyType == bridge.ReplyVoice && !c.notSupportReplyTypes[bridge.ReplyVoice] {
			return c.decorateReply(ctx, pc, c.bridge.FetchTextToVoice(ctx, reply.Content))
		}

		text := reply.Content
		if cfg.Chat.StripMarkdown {
			text = utils.StripMarkdown(text)
		}
		if pc.IsGroup {
			if pc.Msg != nil {
				text = "@" + pc.Msg.ActualUserNickname + "\n" + strings.TrimSpace(text)
			}
			text = cfg.Chat.GroupChatReplyPrefix + text + cfg.Chat.GroupChatReplySuffix
		} else {
			text = cfg.Chat.SingleChatReplyPrefix + text + cfg.Chat.SingleChatReplySuffix
		}
		reply = bridge.NewReply(bridge.ReplyText, text)

	case bridge.ReplyError, bridge.ReplyInfo:
		reply = bridge.NewReply(reply.Type, "["+reply.Type.String()+"]\n"+reply.Content)

	case bridge.ReplyVoice, bridge.ReplyImage, bridge.ReplyImageURL:

	default:
		c.logger.Error("[chat_channel] 未知的回复类型", zap.Stringer("type", reply.Type))
		return nil
	}

	if pc.DesireReplyType != 0 && pc.DesireReplyType != reply.Type &&
		reply.Type != bridge.ReplyError && reply.Type != bridge.ReplyInfo {
		c.logger.Warn("[chat_channel] 回复类型与期望不一致",
			zap.Stringer("desire", pc.DesireReplyType),
			zap.Stringer("actual", reply.Type),
		)
	}
	return reply
}

// send 发送回复，失败时最多重试两次，间隔逐次增加
func (c *ChatChannel) send(ctx context.Context, reply *bridge.Reply, pc *bridge.Context) {
	if c.sender == nil {
		c.logger.Error("[chat_channel] 未设置发送实现", zap.String("channel", c.name))
		return
	}

	for retry := 0; ; retry++ {
		c.logger.Debug("[chat_channel] 发送回复", zap.Stringer("reply", reply), zap.String("receiver", pc.Receiver))
		err := c.sender.Send(ctx, reply, pc)
		if err == nil {
			return
		}
		c.logger.Error("[chat_channel] 发送消息失败", zap.Int("retry", retry), zap.Error(err))
		if errors.Is(err, ErrNotImplemented) || retry >= maxSendRetry {
			return
		}

		wait := c.retryInterval + c.retryInterval*time.Duration(retry)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}
