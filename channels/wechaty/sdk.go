package wechaty

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	gowechaty "github.com/wechaty/go-wechaty/wechaty"
	wp "github.com/wechaty/go-wechaty/wechaty-puppet"
	"github.com/wechaty/go-wechaty/wechaty-puppet/filebox"
	"github.com/wechaty/go-wechaty/wechaty-puppet/schemas"
	_interface "github.com/wechaty/go-wechaty/wechaty/interface"
	"github.com/wechaty/go-wechaty/wechaty/user"
	"go.uber.org/zap"
)

// ErrNotStarted puppet 尚未启动
var ErrNotStarted = errors.New("wechaty 尚未启动")

// SDKPuppet 基于 go-wechaty 的 Puppet 实现
type SDKPuppet struct {
	opt    wp.Option
	logger *zap.Logger

	mu           sync.RWMutex
	bot          *gowechaty.Wechaty
	onLogin      func(self Contact)
	onMessage    func(m Message)
	onFriendship func(f Friendship)
}

// NewSDKPuppet 创建 go-wechaty 客户端，启动前不会建立连接
func NewSDKPuppet(token, endpoint string, logger *zap.Logger) *SDKPuppet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SDKPuppet{
		opt: wp.Option{
			Token:    token,
			Endpoint: endpoint,
		},
		logger: logger,
	}
}

func (p *SDKPuppet) OnLogin(fn func(self Contact))      { p.onLogin = fn }
func (p *SDKPuppet) OnMessage(fn func(m Message))       { p.onMessage = fn }
func (p *SDKPuppet) OnFriendship(fn func(f Friendship)) { p.onFriendship = fn }

// Start 连接 puppet 服务并注册事件
func (p *SDKPuppet) Start() error {
	bot := gowechaty.NewWechaty(gowechaty.WithPuppetOption(p.opt))

	bot.OnScan(func(ctx *gowechaty.Context, qrCode string, status schemas.ScanStatus, data string) {
		p.logger.Info("请扫码登录",
			zap.Any("status", status),
			zap.String("url", "https://wechaty.js.org/qrcode/"+qrCode),
		)
	}).OnLogin(func(ctx *gowechaty.Context, self *user.ContactSelf) {
		if p.onLogin != nil {
			p.onLogin(&sdkContact{c: self, bot: bot})
		}
	}).OnLogout(func(ctx *gowechaty.Context, self *user.ContactSelf, reason string) {
		p.logger.Warn("已退出登录", zap.String("reason", reason))
	}).OnMessage(func(ctx *gowechaty.Context, m *user.Message) {
		if p.onMessage != nil {
			p.onMessage(&sdkMessage{m: m, bot: bot})
		}
	}).OnFriendship(func(ctx *gowechaty.Context, f *user.Friendship) {
		if p.onFriendship != nil {
			p.onFriendship(&sdkFriendship{f: f, bot: bot})
		}
	}).OnError(func(ctx *gowechaty.Context, err error) {
		p.logger.Error("wechaty 错误", zap.Error(err))
	})

	if err := bot.Start(); err != nil {
		return fmt.Errorf("启动 wechaty 失败: %w", err)
	}

	p.mu.Lock()
	p.bot = bot
	p.mu.Unlock()
	return nil
}

// Stop 断开连接
func (p *SDKPuppet) Stop() {
	p.mu.Lock()
	bot := p.bot
	p.bot = nil
	p.mu.Unlock()
	if bot != nil {
		bot.Stop()
	}
}

func (p *SDKPuppet) current() (*gowechaty.Wechaty, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.bot == nil {
		return nil, ErrNotStarted
	}
	return p.bot, nil
}

// Contact 按 ID 加载联系人
func (p *SDKPuppet) Contact(id string) (Contact, error) {
	bot, err := p.current()
	if err != nil {
		return nil, err
	}
	c := bot.Contact().Load(id)
	if c == nil {
		return nil, fmt.Errorf("联系人不存在: %s", id)
	}
	return &sdkContact{c: c, bot: bot}, nil
}

// Room 按 ID 加载群聊
func (p *SDKPuppet) Room(id string) (Room, error) {
	bot, err := p.current()
	if err != nil {
		return nil, err
	}
	r := bot.Room().Load(id)
	if r == nil {
		return nil, fmt.Errorf("群聊不存在: %s", id)
	}
	return &sdkRoom{r: r, bot: bot}, nil
}

// toFileBox 将待发送文件转换为 SDK 的 FileBox
func toFileBox(f *File) (*filebox.FileBox, error) {
	opts := []filebox.Option{filebox.WithName(f.Name)}
	if len(f.Metadata) > 0 {
		opts = append(opts, filebox.WithMetadata(f.Metadata))
	}
	switch {
	case f.Path != "":
		return filebox.FromFile(f.Path, opts...), nil
	case f.URL != "":
		return filebox.FromUrl(f.URL, opts...), nil
	case len(f.Data) > 0:
		return filebox.FromBase64(base64.StdEncoding.EncodeToString(f.Data), opts...), nil
	default:
		return nil, fmt.Errorf("文件 %s 没有内容", f.Name)
	}
}

// say 各 SDK 对象的 Say 方法签名不同，统一为一个函数
type sayFunc func(something interface{}) error

func sayFile(say sayFunc, f *File) error {
	fb, err := toFileBox(f)
	if err != nil {
		return err
	}
	return say(fb)
}

func sayContact(say sayFunc, bot *gowechaty.Wechaty, contactID string) error {
	card := bot.Contact().Load(contactID)
	if card == nil {
		return fmt.Errorf("联系人不存在: %s", contactID)
	}
	return say(card)
}

// wechatyContact SDK 联系人中用到的方法
type wechatyContact interface {
	ID() string
	Name() string
	Ready(forceSync bool) error
	Say(something interface{}) (_interface.IMessage, error)
}

type sdkContact struct {
	c   wechatyContact
	bot *gowechaty.Wechaty
}

func (c *sdkContact) ID() string   { return c.c.ID() }
func (c *sdkContact) Name() string { return c.c.Name() }
func (c *sdkContact) Ready() error { return c.c.Ready(false) }

func (c *sdkContact) say(something interface{}) error {
	_, err := c.c.Say(something)
	return err
}

func (c *sdkContact) SayText(text string) error         { return c.say(text) }
func (c *sdkContact) SayFile(f *File) error             { return sayFile(c.say, f) }
func (c *sdkContact) SayContact(contactID string) error { return sayContact(c.say, c.bot, contactID) }

// wechatyRoom SDK 群聊中用到的方法
type wechatyRoom interface {
	ID() string
	Topic() string
	Say(something interface{}, mentionList ..._interface.IContact) (_interface.IMessage, error)
}

type sdkRoom struct {
	r   wechatyRoom
	bot *gowechaty.Wechaty
}

func (r *sdkRoom) ID() string    { return r.r.ID() }
func (r *sdkRoom) Topic() string { return r.r.Topic() }

func (r *sdkRoom) say(something interface{}) error {
	_, err := r.r.Say(something)
	return err
}

func (r *sdkRoom) SayText(text string) error         { return r.say(text) }
func (r *sdkRoom) SayFile(f *File) error             { return sayFile(r.say, f) }
func (r *sdkRoom) SayContact(contactID string) error { return sayContact(r.say, r.bot, contactID) }

type sdkMessage struct {
	m   *user.Message
	bot *gowechaty.Wechaty
}

func (m *sdkMessage) ID() string      { return m.m.ID() }
func (m *sdkMessage) Text() string    { return m.m.Text() }
func (m *sdkMessage) Date() time.Time { return m.m.Date() }
func (m *sdkMessage) MentionSelf() bool {
	return m.m.MentionSelf()
}
func (m *sdkMessage) Self() bool { return m.m.Self() }

func (m *sdkMessage) Type() MessageType {
	switch m.m.Type() {
	case schemas.MessageTypeText:
		return MessageTypeText
	case schemas.MessageTypeAudio:
		return MessageTypeAudio
	case schemas.MessageTypeImage:
		return MessageTypeImage
	case schemas.MessageTypeUnknown:
		return MessageTypeUnknown
	default:
		return MessageTypeOther
	}
}

func (m *sdkMessage) Talker() Contact {
	c := m.m.Talker()
	if c == nil {
		return nil
	}
	return &sdkContact{c: c, bot: m.bot}
}

func (m *sdkMessage) Listener() Contact {
	c := m.m.Listener()
	if c == nil {
		return nil
	}
	return &sdkContact{c: c, bot: m.bot}
}

func (m *sdkMessage) Room() Room {
	r := m.m.Room()
	if r == nil {
		return nil
	}
	return &sdkRoom{r: r, bot: m.bot}
}

func (m *sdkMessage) FileBox() (FileBox, error) {
	fb, err := m.m.ToFileBox()
	if err != nil {
		return nil, err
	}
	return &sdkFileBox{fb: fb}, nil
}

type sdkFileBox struct {
	fb *filebox.FileBox
}

func (f *sdkFileBox) Name() string { return f.fb.Name }

func (f *sdkFileBox) ToFile(path string) error {
	return f.fb.ToFile(path, true)
}

type sdkFriendship struct {
	f   *user.Friendship
	bot *gowechaty.Wechaty
}

func (f *sdkFriendship) Type() FriendshipType {
	switch f.f.Type() {
	case schemas.FriendshipTypeConfirm:
		return FriendshipTypeConfirm
	case schemas.FriendshipTypeReceive:
		return FriendshipTypeReceive
	case schemas.FriendshipTypeVerify:
		return FriendshipTypeVerify
	default:
		return FriendshipTypeUnknown
	}
}

func (f *sdkFriendship) Contact() Contact {
	return &sdkContact{c: f.f.Contact(), bot: f.bot}
}

func (f *sdkFriendship) Hello() string { return f.f.Hello() }
func (f *sdkFriendship) Accept() error { return f.f.Accept() }
