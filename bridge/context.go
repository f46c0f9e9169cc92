package bridge

import "fmt"

// ContextType 上下文类型
type ContextType int

const (
	ContextText        ContextType = iota + 1 // 文本消息
	ContextVoice                              // 音频消息
	ContextImage                              // 图片消息
	ContextImageCreate                        // 创建图片命令
	ContextSharing                            // 分享信息
	ContextFile                               // 文件
	ContextFunction                           // 函数调用
)

func (t ContextType) String() string {
	switch t {
	case ContextText:
		return "TEXT"
	case ContextVoice:
		return "VOICE"
	case ContextImage:
		return "IMAGE"
	case ContextImageCreate:
		return "IMAGE_CREATE"
	case ContextSharing:
		return "SHARING"
	case ContextFile:
		return "FILE"
	case ContextFunction:
		return "FUNCTION"
	default:
		return fmt.Sprintf("ContextType(%d)", int(t))
	}
}

// Context 渠道无关的消息上下文，贯穿整个回复流水线
type Context struct {
	Type    ContextType
	Content string

	IsGroup         bool
	Receiver        string
	SessionID       string
	OriginType      ContextType
	DesireReplyType ReplyType // 0 表示未指定
	Msg             *ChatMessage

	extra map[string]any
}

// NewContext 创建上下文
func NewContext(t ContextType, content string) *Context {
	return &Context{
		Type:    t,
		Content: content,
		extra:   make(map[string]any),
	}
}

// Get 读取扩展属性
func (c *Context) Get(key string) (any, bool) {
	if c.extra == nil {
		return nil, false
	}
	v, ok := c.extra[key]
	return v, ok
}

// Set 写入扩展属性
func (c *Context) Set(key string, value any) {
	if c.extra == nil {
		c.extra = make(map[string]any)
	}
	c.extra[key] = value
}

// Derive 基于当前上下文的属性创建一个新上下文，用于语音识别后的二次组装
func (c *Context) Derive(t ContextType, content string) *Context {
	n := NewContext(t, content)
	n.IsGroup = c.IsGroup
	n.Receiver = c.Receiver
	n.SessionID = c.SessionID
	n.OriginType = c.OriginType
	n.DesireReplyType = c.DesireReplyType
	n.Msg = c.Msg
	for k, v := range c.extra {
		n.extra[k] = v
	}
	return n
}

func (c *Context) String() string {
	return fmt.Sprintf("Context(type=%s, content=%s, session=%s, receiver=%s, group=%v)",
		c.Type, c.Content, c.SessionID, c.Receiver, c.IsGroup)
}
