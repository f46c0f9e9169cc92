// Package wechaty 基于 wechaty puppet 服务的微信渠道
package wechaty

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/weibaohui/wechaty-bot/bridge"
	"github.com/weibaohui/wechaty-bot/channels"
	"github.com/weibaohui/wechaty-bot/config"
	"github.com/weibaohui/wechaty-bot/voice"
	"go.uber.org/zap"
)

// TokenEnv puppet 服务 token 的环境变量
const TokenEnv = "WECHATY_PUPPET_SERVICE_TOKEN"

// AudioConverter 语音收发时的格式转换
type AudioConverter interface {
	channels.WavConverter
	AnyToSil(ctx context.Context, src, dst string) (int, error)
}

// Channel 微信渠道
type Channel struct {
	*channels.ChatChannel
	store     *config.Store
	puppet    Puppet
	converter AudioConverter
	tmpDir    string
	logger    *zap.Logger
	now       func() time.Time
}

// NewChannel 创建微信渠道
func NewChannel(store *config.Store, br *bridge.Bridge, puppet Puppet, converter AudioConverter, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Channel{
		ChatChannel: channels.NewChatChannel("wechaty", store, br, converter, logger),
		store:       store,
		puppet:      puppet,
		converter:   converter,
		tmpDir:      config.GetTmpDir(store.Get()),
		logger:      logger,
		now:         time.Now,
	}
	c.SetSender(c)
	return c
}

// Start 登录微信并处理消息，阻塞直到 ctx 结束
func (c *Channel) Start(ctx context.Context) error {
	token := c.store.Get().Wechaty.PuppetServiceToken
	if token == "" {
		c.logger.Warn("[WX] 未配置 puppetServiceToken")
	} else {
		os.Setenv(TokenEnv, token)
	}

	c.puppet.OnLogin(c.onLogin)
	c.puppet.OnMessage(func(m Message) {
		c.onMessage(m)
	})
	c.puppet.OnFriendship(func(f Friendship) {
		go func() {
			if err := c.handleFriendship(ctx, f); err != nil {
				c.logger.Error("[WX] 处理好友请求失败", zap.Error(err))
			}
		}()
	})

	if err := c.puppet.Start(); err != nil {
		return err
	}
	defer c.puppet.Stop()

	return c.Consume(ctx)
}

// Stop 断开 puppet 连接
func (c *Channel) Stop() {
	c.puppet.Stop()
}

func (c *Channel) onLogin(self Contact) {
	c.SetUser(self.ID(), self.Name())
	c.logger.Info("[WX] 登录成功",
		zap.String("user_id", self.ID()),
		zap.String("name", self.Name()),
	)
}

func (c *Channel) onMessage(m Message) {
	_, selfName := c.User()
	cmsg, err := NewWechatyMessage(m, c.tmpDir, selfName)
	if err != nil {
		if errors.Is(err, ErrUnsupportedMessage) {
			c.logger.Debug("[WX] 忽略消息", zap.String("msg_id", m.ID()), zap.Error(err))
			return
		}
		c.logger.Error("[WX] 解析消息失败", zap.String("msg_id", m.ID()), zap.Error(err))
		return
	}

	if cmsg.IsGroup {
		c.logger.Debug("[WX] 收到群聊消息", zap.Stringer("msg", cmsg))
	} else {
		c.logger.Debug("[WX] 收到私聊消息", zap.Stringer("msg", cmsg))
	}

	if pc := c.ComposeContext(cmsg.Ctype, cmsg.Content, cmsg); pc != nil {
		c.Produce(pc)
	}
}

// handleFriendship 自动通过好友请求并打招呼
func (c *Channel) handleFriendship(ctx context.Context, f Friendship) error {
	c.logger.Info("[WX] 好友事件", zap.Stringer("type", f.Type()))
	if f.Type() != FriendshipTypeReceive {
		return nil
	}

	cfg := c.store.Get().Wechaty.Friendship
	contact := f.Contact()
	if err := contact.Ready(); err != nil {
		return fmt.Errorf("加载联系人失败: %w", err)
	}
	c.logger.Info("[WX] 收到好友请求",
		zap.String("name", contact.Name()),
		zap.String("hello", f.Hello()),
	)
	if !cfg.AutoAccept {
		return nil
	}

	if err := f.Accept(); err != nil {
		return fmt.Errorf("通过好友请求失败: %w", err)
	}

	select {
	case <-time.After(time.Duration(cfg.DelaySecond) * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	if cfg.Greeting != "" {
		if err := contact.SayText(cfg.Greeting); err != nil {
			return fmt.Errorf("发送问候失败: %w", err)
		}
	}
	if cfg.ContactCard != "" {
		if err := contact.SayContact(cfg.ContactCard); err != nil {
			return fmt.Errorf("发送名片失败: %w", err)
		}
	}
	return nil
}

// Send 将回复发送给群聊或联系人
func (c *Channel) Send(ctx context.Context, reply *bridge.Reply, pc *bridge.Context) error {
	var (
		target Sayer
		err    error
	)
	if pc.IsGroup {
		target, err = c.puppet.Room(pc.Receiver)
	} else {
		target, err = c.puppet.Contact(pc.Receiver)
	}
	if err != nil {
		return fmt.Errorf("查找接收者失败: %w", err)
	}

	switch reply.Type {
	case bridge.ReplyText, bridge.ReplyError, bridge.ReplyInfo:
		if err := target.SayText(reply.Content); err != nil {
			return err
		}
		c.logger.Info("[WX] 发送文本", zap.String("receiver", pc.Receiver), zap.String("content", reply.Content))

	case bridge.ReplyVoice:
		return c.sendVoice(ctx, target, reply.Content, pc.Receiver)

	case bridge.ReplyImageURL:
		if err := target.SayFile(&File{Name: c.fileName("png"), URL: reply.Content}); err != nil {
			return err
		}
		c.logger.Info("[WX] 发送图片链接", zap.String("receiver", pc.Receiver), zap.String("url", reply.Content))

	case bridge.ReplyImage:
		if err := target.SayFile(&File{Name: c.fileName("png"), Data: reply.Data}); err != nil {
			return err
		}
		c.logger.Info("[WX] 发送图片", zap.String("receiver", pc.Receiver), zap.Int("size", len(reply.Data)))

	default:
		return fmt.Errorf("%w: %s", channels.ErrNotImplemented, reply.Type)
	}
	return nil
}

// sendVoice 转为 silk 后发送，发送成功后删除临时文件
func (c *Channel) sendVoice(ctx context.Context, target Sayer, filePath, receiver string) error {
	silFile := strings.TrimSuffix(filePath, filepath.Ext(filePath)) + ".sil"
	length, err := c.converter.AnyToSil(ctx, filePath, silFile)
	if err != nil {
		return fmt.Errorf("转换 silk 失败: %w", err)
	}
	if length >= voice.MaxVoiceMillis {
		c.logger.Info("[WX] 语音过长，截断为 60 秒", zap.Int("length", length))
		length = voice.MaxVoiceMillis
	}

	err = target.SayFile(&File{
		Name:     c.fileName("sil"),
		Path:     silFile,
		Metadata: map[string]any{"voiceLength": length},
	})
	if err != nil {
		return err
	}
	c.logger.Info("[WX] 发送语音", zap.String("receiver", receiver), zap.Int("length", length))

	os.Remove(filePath)
	if silFile != filePath {
		os.Remove(silFile)
	}
	return nil
}

func (c *Channel) fileName(ext string) string {
	return fmt.Sprintf("%d.%s", c.now().Unix(), ext)
}
