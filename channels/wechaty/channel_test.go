package wechaty

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/weibaohui/wechaty-bot/bridge"
	"github.com/weibaohui/wechaty-bot/channels"
	"github.com/weibaohui/wechaty-bot/config"
)

type echoBot struct{}

func (echoBot) Reply(ctx context.Context, query string, c *bridge.Context) *bridge.Reply {
	return bridge.NewReply(bridge.ReplyText, "回复:"+query)
}

type fakeConverter struct {
	length int
	err    error
}

func (f *fakeConverter) AnyToWav(ctx context.Context, src, dst string) error {
	return os.WriteFile(dst, []byte("wav"), 0644)
}

func (f *fakeConverter) AnyToSil(ctx context.Context, src, dst string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.length, os.WriteFile(dst, []byte("#!SILK_V3"), 0644)
}

func newTestChannel(t *testing.T, modify func(cfg *config.Config)) (*Channel, *fakePuppet, *fakeConverter) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Voice.TmpDir = t.TempDir()
	cfg.Wechaty.Friendship.DelaySecond = 0
	if modify != nil {
		modify(cfg)
	}
	puppet := newFakePuppet()
	conv := &fakeConverter{length: 1500}
	ch := NewChannel(config.NewStore(cfg, ""), bridge.NewBridge(echoBot{}, nil, nil), puppet, conv, nil)
	ch.now = func() time.Time { return time.Unix(1700000000, 0) }
	return ch, puppet, conv
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("等待超时")
}

// TestChannel_Start 测试登录、收消息到回复的完整流程
func TestChannel_Start(t *testing.T) {
	t.Setenv(TokenEnv, "")
	ch, puppet, _ := newTestChannel(t, func(cfg *config.Config) {
		cfg.Wechaty.PuppetServiceToken = "puppet_token"
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Start(ctx) }()

	select {
	case <-puppet.startedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("puppet 未启动")
	}
	if got := os.Getenv(TokenEnv); got != "puppet_token" {
		t.Errorf("%s = %q", TokenEnv, got)
	}

	puppet.onLogin(selfContact)
	if id, name := ch.User(); id != "wxid_self" || name != "小助手" {
		t.Errorf("User() = %s/%s", id, name)
	}

	friend := puppet.contacts["wxid_friend"]
	puppet.onMessage(&fakeMessage{id: "1", typ: MessageTypeText, text: "bot 你好", talker: friend, listener: selfContact})
	puppet.onMessage(&fakeMessage{id: "2", typ: MessageTypeImage, talker: friend, listener: selfContact})

	room := puppet.rooms["room@chatroom"]
	puppet.onMessage(&fakeMessage{id: "3", typ: MessageTypeText, text: "@小助手 在吗", talker: friend, room: room, mentionSelf: true})

	waitFor(t, func() bool {
		friend.mu.Lock()
		defer friend.mu.Unlock()
		return len(friend.said.texts) == 1
	})
	waitFor(t, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		return len(room.said.texts) == 1
	})

	if got := friend.said.texts[0]; got != "[bot] 回复:你好" {
		t.Errorf("私聊回复 = %q", got)
	}
	if got := room.said.texts[0]; got != "@张三\n回复:在吗" {
		t.Errorf("群聊回复 = %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() 返回错误: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start 未退出")
	}
	if !puppet.stopped {
		t.Error("puppet 未停止")
	}
}

// TestChannel_StartError 测试 puppet 启动失败
func TestChannel_StartError(t *testing.T) {
	ch, puppet, _ := newTestChannel(t, nil)
	puppet.startErr = errors.New("token invalid")

	if err := ch.Start(context.Background()); err == nil {
		t.Error("Start() 应返回错误")
	}
}

// TestChannel_Send 测试各类回复的发送
func TestChannel_Send(t *testing.T) {
	ch, puppet, _ := newTestChannel(t, nil)
	ctx := context.Background()
	friend := puppet.contacts["wxid_friend"]
	room := puppet.rooms["room@chatroom"]

	private := bridge.NewContext(bridge.ContextText, "")
	private.Receiver = "wxid_friend"
	group := bridge.NewContext(bridge.ContextText, "")
	group.Receiver = "room@chatroom"
	group.IsGroup = true

	if err := ch.Send(ctx, bridge.NewReply(bridge.ReplyText, "你好"), private); err != nil {
		t.Fatalf("发送文本失败: %v", err)
	}
	if err := ch.Send(ctx, bridge.NewReply(bridge.ReplyError, "[ERROR]\n出错"), group); err != nil {
		t.Fatalf("发送错误提示失败: %v", err)
	}
	if len(friend.said.texts) != 1 || friend.said.texts[0] != "你好" {
		t.Errorf("私聊文本 = %v", friend.said.texts)
	}
	if len(room.said.texts) != 1 || room.said.texts[0] != "[ERROR]\n出错" {
		t.Errorf("群聊文本 = %v", room.said.texts)
	}

	if err := ch.Send(ctx, bridge.NewReply(bridge.ReplyImageURL, "https://example.com/a.png"), private); err != nil {
		t.Fatalf("发送图片链接失败: %v", err)
	}
	if err := ch.Send(ctx, bridge.NewImageReply([]byte{0x89, 0x50}), private); err != nil {
		t.Fatalf("发送图片失败: %v", err)
	}
	if len(friend.said.files) != 2 {
		t.Fatalf("发送文件数 = %d, 期望 2", len(friend.said.files))
	}
	if f := friend.said.files[0]; f.Name != "1700000000.png" || f.URL != "https://example.com/a.png" {
		t.Errorf("图片链接文件 = %+v", f)
	}
	if f := friend.said.files[1]; f.Name != "1700000000.png" || len(f.Data) != 2 {
		t.Errorf("图片文件 = %+v", f)
	}

	err := ch.Send(ctx, bridge.NewReply(bridge.ReplyText, "你好"), &bridge.Context{Receiver: "unknown"})
	if err == nil {
		t.Error("接收者不存在时应返回错误")
	}

	err = ch.Send(ctx, &bridge.Reply{Type: bridge.ReplyType(99)}, private)
	if !errors.Is(err, channels.ErrNotImplemented) {
		t.Errorf("未知类型 err = %v", err)
	}
}

// TestChannel_SendVoice 测试语音转换与时长上限
func TestChannel_SendVoice(t *testing.T) {
	tests := []struct {
		name       string
		length     int
		wantLength int
	}{
		{"普通语音", 1500, 1500},
		{"超过 60 秒", 75000, 60000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, puppet, conv := newTestChannel(t, nil)
			conv.length = tt.length
			friend := puppet.contacts["wxid_friend"]

			mp3 := filepath.Join(t.TempDir(), "reply.mp3")
			if err := os.WriteFile(mp3, []byte("mp3"), 0644); err != nil {
				t.Fatal(err)
			}
			pc := bridge.NewContext(bridge.ContextText, "")
			pc.Receiver = "wxid_friend"

			if err := ch.Send(context.Background(), bridge.NewReply(bridge.ReplyVoice, mp3), pc); err != nil {
				t.Fatalf("Send() 返回错误: %v", err)
			}
			if len(friend.said.files) != 1 {
				t.Fatalf("发送文件数 = %d", len(friend.said.files))
			}
			f := friend.said.files[0]
			if f.Name != "1700000000.sil" || filepath.Ext(f.Path) != ".sil" {
				t.Errorf("语音文件 = %+v", f)
			}
			if f.Metadata["voiceLength"] != tt.wantLength {
				t.Errorf("voiceLength = %v, 期望 %d", f.Metadata["voiceLength"], tt.wantLength)
			}
			for _, p := range []string{mp3, f.Path} {
				if _, err := os.Stat(p); !os.IsNotExist(err) {
					t.Errorf("临时文件 %s 未删除", p)
				}
			}
		})
	}

	ch, _, conv := newTestChannel(t, nil)
	conv.err = errors.New("ffmpeg not found")
	pc := bridge.NewContext(bridge.ContextText, "")
	pc.Receiver = "wxid_friend"
	if err := ch.Send(context.Background(), bridge.NewReply(bridge.ReplyVoice, "/tmp/none.mp3"), pc); err == nil {
		t.Error("转换失败时应返回错误")
	}
}

// TestChannel_Friendship 测试好友请求处理
func TestChannel_Friendship(t *testing.T) {
	tests := []struct {
		name         string
		typ          FriendshipType
		modify       func(cfg *config.Config)
		wantAccepted bool
		wantTexts    int
		wantCards    int
	}{
		{"自动通过并打招呼", FriendshipTypeReceive, nil, true, 1, 0},
		{
			"推送名片",
			FriendshipTypeReceive,
			func(cfg *config.Config) { cfg.Wechaty.Friendship.ContactCard = "wxid_card" },
			true, 1, 1,
		},
		{
			"关闭自动通过",
			FriendshipTypeReceive,
			func(cfg *config.Config) { cfg.Wechaty.Friendship.AutoAccept = false },
			false, 0, 0,
		},
		{"确认事件不处理", FriendshipTypeConfirm, nil, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, _, _ := newTestChannel(t, tt.modify)
			contact := &fakeContact{id: "wxid_new", name: "李四"}
			f := &fakeFriendship{typ: tt.typ, contact: contact}

			if err := ch.handleFriendship(context.Background(), f); err != nil {
				t.Fatalf("handleFriendship() 返回错误: %v", err)
			}
			if f.accepted != tt.wantAccepted {
				t.Errorf("accepted = %v, 期望 %v", f.accepted, tt.wantAccepted)
			}
			if len(contact.said.texts) != tt.wantTexts {
				t.Errorf("问候数 = %d, 期望 %d", len(contact.said.texts), tt.wantTexts)
			}
			if len(contact.said.contacts) != tt.wantCards {
				t.Errorf("名片数 = %d, 期望 %d", len(contact.said.contacts), tt.wantCards)
			}
		})
	}
}
