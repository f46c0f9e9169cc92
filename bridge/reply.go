package bridge

import "fmt"

// ReplyType 回复类型
type ReplyType int

const (
	ReplyText     ReplyType = iota + 1 // 文本
	ReplyVoice                         // 音频文件路径
	ReplyImage                         // 图片数据
	ReplyImageURL                      // 图片 URL
	ReplyInfo
	ReplyError
)

func (t ReplyType) String() string {
	switch t {
	case ReplyText:
		return "TEXT"
	case ReplyVoice:
		return "VOICE"
	case ReplyImage:
		return "IMAGE"
	case ReplyImageURL:
		return "IMAGE_URL"
	case ReplyInfo:
		return "INFO"
	case ReplyError:
		return "ERROR"
	default:
		return fmt.Sprintf("ReplyType(%d)", int(t))
	}
}

// Reply 回复
// Content 对文本类为消息内容，对 VOICE 为本地文件路径，对 IMAGE_URL 为链接；
// IMAGE 的图片字节存放在 Data 中。
type Reply struct {
	Type    ReplyType
	Content string
	Data    []byte
}

// NewReply 创建回复
func NewReply(t ReplyType, content string) *Reply {
	return &Reply{Type: t, Content: content}
}

// NewImageReply 创建图片数据回复
func NewImageReply(data []byte) *Reply {
	return &Reply{Type: ReplyImage, Data: data}
}

func (r *Reply) String() string {
	if r.Type == ReplyImage {
		return fmt.Sprintf("Reply(type=%s, size=%d)", r.Type, len(r.Data))
	}
	return fmt.Sprintf("Reply(type=%s, content=%s)", r.Type, r.Content)
}
