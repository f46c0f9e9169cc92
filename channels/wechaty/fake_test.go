package wechaty

import (
	"errors"
	"os"
	"sync"
	"time"
)

// said 记录发送给某个对象的内容
type said struct {
	texts    []string
	files    []*File
	contacts []string
}

type fakeSayer struct {
	mu   sync.Mutex
	said said
	err  error
}

func (s *fakeSayer) SayText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.said.texts = append(s.said.texts, text)
	return nil
}

func (s *fakeSayer) SayFile(f *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.said.files = append(s.said.files, f)
	return nil
}

func (s *fakeSayer) SayContact(contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said.contacts = append(s.said.contacts, contactID)
	return nil
}

type fakeContact struct {
	fakeSayer
	id, name string
	ready    bool
}

func (c *fakeContact) ID() string   { return c.id }
func (c *fakeContact) Name() string { return c.name }
func (c *fakeContact) Ready() error {
	c.ready = true
	return nil
}

type fakeRoom struct {
	fakeSayer
	id, topic string
}

func (r *fakeRoom) ID() string    { return r.id }
func (r *fakeRoom) Topic() string { return r.topic }

type fakeFileBox struct {
	name    string
	content []byte
}

func (f *fakeFileBox) Name() string { return f.name }
func (f *fakeFileBox) ToFile(path string) error {
	return os.WriteFile(path, f.content, 0644)
}

type fakeMessage struct {
	id          string
	typ         MessageType
	text        string
	talker      *fakeContact
	listener    *fakeContact
	room        *fakeRoom
	mentionSelf bool
	self        bool
	fileBox     *fakeFileBox
}

func (m *fakeMessage) ID() string        { return m.id }
func (m *fakeMessage) Type() MessageType { return m.typ }
func (m *fakeMessage) Text() string      { return m.text }
func (m *fakeMessage) Date() time.Time   { return time.Unix(1700000000, 0) }
func (m *fakeMessage) MentionSelf() bool { return m.mentionSelf }
func (m *fakeMessage) Self() bool        { return m.self }

func (m *fakeMessage) Talker() Contact {
	if m.talker == nil {
		return nil
	}
	return m.talker
}

func (m *fakeMessage) Listener() Contact {
	if m.listener == nil {
		return nil
	}
	return m.listener
}

func (m *fakeMessage) Room() Room {
	if m.room == nil {
		return nil
	}
	return m.room
}

func (m *fakeMessage) FileBox() (FileBox, error) {
	if m.fileBox == nil {
		return nil, errors.New("没有文件")
	}
	return m.fileBox, nil
}

type fakeFriendship struct {
	typ      FriendshipType
	contact  *fakeContact
	accepted bool
}

func (f *fakeFriendship) Type() FriendshipType { return f.typ }
func (f *fakeFriendship) Contact() Contact     { return f.contact }
func (f *fakeFriendship) Hello() string        { return "我是张三" }
func (f *fakeFriendship) Accept() error {
	f.accepted = true
	return nil
}

// fakePuppet 内存中的 puppet，Start 后立即返回
type fakePuppet struct {
	contacts     map[string]*fakeContact
	rooms        map[string]*fakeRoom
	onLogin      func(self Contact)
	onMessage    func(m Message)
	onFriendship func(f Friendship)
	startedCh    chan struct{}
	stopped      bool
	startErr     error
}

func newFakePuppet() *fakePuppet {
	return &fakePuppet{
		contacts: map[string]*fakeContact{
			"wxid_friend": {id: "wxid_friend", name: "张三"},
		},
		rooms: map[string]*fakeRoom{
			"room@chatroom": {id: "room@chatroom", topic: "ChatGPT测试群"},
		},
		startedCh: make(chan struct{}),
	}
}

func (p *fakePuppet) OnLogin(fn func(self Contact))      { p.onLogin = fn }
func (p *fakePuppet) OnMessage(fn func(m Message))       { p.onMessage = fn }
func (p *fakePuppet) OnFriendship(fn func(f Friendship)) { p.onFriendship = fn }

func (p *fakePuppet) Start() error {
	close(p.startedCh)
	return p.startErr
}

func (p *fakePuppet) Stop() { p.stopped = true }

func (p *fakePuppet) Contact(id string) (Contact, error) {
	c, ok := p.contacts[id]
	if !ok {
		return nil, errors.New("联系人不存在")
	}
	return c, nil
}

func (p *fakePuppet) Room(id string) (Room, error) {
	r, ok := p.rooms[id]
	if !ok {
		return nil, errors.New("群聊不存在")
	}
	return r, nil
}
