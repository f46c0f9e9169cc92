package wechaty

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/weibaohui/wechaty-bot/bridge"
)

// ErrUnsupportedMessage 暂不处理的消息类型
var ErrUnsupportedMessage = errors.New("不支持的消息类型")

// NewWechatyMessage 将 wechaty 消息归一化为 ChatMessage
// 语音消息的 Content 为临时目录下的文件路径，文件在 Prepare 时才下载。
func NewWechatyMessage(m Message, tmpDir, selfName string) (*bridge.ChatMessage, error) {
	room := m.Room()
	cmsg := &bridge.ChatMessage{
		MsgID:      m.ID(),
		CreateTime: m.Date(),
		IsGroup:    room != nil,
		Raw:        m,
	}

	switch m.Type() {
	case MessageTypeText:
		cmsg.Ctype = bridge.ContextText
		cmsg.Content = m.Text()
	case MessageTypeAudio:
		fb, err := m.FileBox()
		if err != nil {
			return nil, fmt.Errorf("获取语音文件失败: %w", err)
		}
		cmsg.Ctype = bridge.ContextVoice
		cmsg.Content = filepath.Join(tmpDir, filepath.Base(fb.Name()))
		path := cmsg.Content
		cmsg.SetPrepare(func() error {
			return fb.ToFile(path)
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMessage, m.Type())
	}

	if talker := m.Talker(); talker != nil {
		cmsg.FromUserID = talker.ID()
		cmsg.FromUserNickname = talker.Name()
	}

	// 群聊中 from 为实际发言人，to 为所在群
	if cmsg.IsGroup {
		cmsg.ToUserID = room.ID()
		cmsg.ToUserNickname = room.Topic()
	} else if listener := m.Listener(); listener != nil {
		cmsg.ToUserID = listener.ID()
		cmsg.ToUserNickname = listener.Name()
	}

	// 群消息的 other 为群；自己发出的私聊消息 other 为对方
	if cmsg.IsGroup || m.Self() {
		cmsg.OtherUserID = cmsg.ToUserID
		cmsg.OtherUserNickname = cmsg.ToUserNickname
	} else {
		cmsg.OtherUserID = cmsg.FromUserID
		cmsg.OtherUserNickname = cmsg.FromUserNickname
	}

	if cmsg.IsGroup {
		cmsg.IsAt = m.MentionSelf()
		// 复制粘贴的 @ 不算提及，按内容兼容一下
		if !cmsg.IsAt && selfName != "" && containsAt(cmsg.Content, selfName) {
			cmsg.IsAt = true
		}
		cmsg.ActualUserID = cmsg.FromUserID
		cmsg.ActualUserNickname = cmsg.FromUserNickname
	}

	return cmsg, nil
}

func containsAt(content, name string) bool {
	pattern := regexp.MustCompile("@" + regexp.QuoteMeta(name) + "(\u2005| )")
	return pattern.MatchString(content)
}
