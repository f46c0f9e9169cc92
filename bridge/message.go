package bridge

import (
	"fmt"
	"sync"
	"time"
)

// ChatMessage 各渠道消息归一化后的结构
//
// 群聊中 OtherUser 为群本身，ActualUser 为实际发言人；
// 私聊中 OtherUser 为对方，自己发出的私聊消息 OtherUser 为接收方。
type ChatMessage struct {
	MsgID      string
	CreateTime time.Time
	Ctype      ContextType
	Content    string

	FromUserID       string
	FromUserNickname string
	ToUserID         string
	ToUserNickname   string

	OtherUserID       string
	OtherUserNickname string

	IsGroup bool
	IsAt    bool

	ActualUserID       string
	ActualUserNickname string

	// Raw 渠道原始消息
	Raw any

	prepareFn   func() error
	prepareOnce sync.Once
	prepareErr  error
}

// SetPrepare 设置延迟准备函数，例如下载语音文件
func (m *ChatMessage) SetPrepare(fn func() error) {
	m.prepareFn = fn
}

// Prepare 执行准备函数，只会执行一次
func (m *ChatMessage) Prepare() error {
	m.prepareOnce.Do(func() {
		if m.prepareFn != nil {
			m.prepareErr = m.prepareFn()
		}
	})
	return m.prepareErr
}

func (m *ChatMessage) String() string {
	return fmt.Sprintf("ChatMessage: id=%s, create_time=%s, ctype=%s, content=%s, from_user_id=%s, from_user_nickname=%s, to_user_id=%s, to_user_nickname=%s, other_user_id=%s, other_user_nickname=%s, is_group=%v, is_at=%v, actual_user_id=%s, actual_user_nickname=%s",
		m.MsgID, m.CreateTime.Format(time.DateTime), m.Ctype, m.Content,
		m.FromUserID, m.FromUserNickname, m.ToUserID, m.ToUserNickname,
		m.OtherUserID, m.OtherUserNickname, m.IsGroup, m.IsAt,
		m.ActualUserID, m.ActualUserNickname)
}
