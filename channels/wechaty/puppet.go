package wechaty

import (
	"fmt"
	"time"
)

// MessageType 微信消息类型
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeText
	MessageTypeAudio
	MessageTypeImage
	MessageTypeOther
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "Text"
	case MessageTypeAudio:
		return "Audio"
	case MessageTypeImage:
		return "Image"
	case MessageTypeOther:
		return "Other"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// FriendshipType 好友请求事件类型
type FriendshipType int

const (
	FriendshipTypeUnknown FriendshipType = iota
	FriendshipTypeConfirm
	FriendshipTypeReceive
	FriendshipTypeVerify
)

func (t FriendshipType) String() string {
	switch t {
	case FriendshipTypeConfirm:
		return "Confirm"
	case FriendshipTypeReceive:
		return "Receive"
	case FriendshipTypeVerify:
		return "Verify"
	default:
		return "Unknown"
	}
}

// File 待发送的文件，Path、URL、Data 三者取其一
type File struct {
	Name     string
	Path     string
	URL      string
	Data     []byte
	Metadata map[string]any
}

// Sayer 可以接收消息的对象
type Sayer interface {
	SayText(text string) error
	SayFile(f *File) error
	SayContact(contactID string) error
}

// Contact 联系人
type Contact interface {
	Sayer
	ID() string
	Name() string
	Ready() error
}

// Room 群聊
type Room interface {
	Sayer
	ID() string
	Topic() string
}

// FileBox 消息附带的文件
type FileBox interface {
	Name() string
	ToFile(path string) error
}

// Message 收到的消息
type Message interface {
	ID() string
	Type() MessageType
	Text() string
	Date() time.Time
	Talker() Contact
	Listener() Contact
	// Room 非群消息返回 nil
	Room() Room
	MentionSelf() bool
	Self() bool
	FileBox() (FileBox, error)
}

// Friendship 好友请求
type Friendship interface {
	Type() FriendshipType
	Contact() Contact
	Hello() string
	Accept() error
}

// Puppet 微信协议客户端
type Puppet interface {
	OnLogin(fn func(self Contact))
	OnMessage(fn func(m Message))
	OnFriendship(fn func(f Friendship))
	Start() error
	Stop()
	Contact(id string) (Contact, error)
	Room(id string) (Room, error)
}
