package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TokenUsage Token 用量统计
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add 将另一个 TokenUsage 累加到当前用量
func (t *TokenUsage) Add(other TokenUsage) {
	t.PromptTokens += other.PromptTokens
	t.CompletionTokens += other.CompletionTokens
	t.TotalTokens += other.TotalTokens
}

// Message 会话消息
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session 一个会话的对话记忆，Messages[0] 始终是 system 提示
type Session struct {
	Key        string     `json:"key"`
	Messages   []Message  `json:"messages"`
	TokenUsage TokenUsage `json:"token_usage"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func newSession(key, systemPrompt string) *Session {
	s := &Session{
		Key:       key,
		CreatedAt: time.Now(),
	}
	s.Reset(systemPrompt)
	return s
}

// Reset 清空对话，只保留 system 提示
func (s *Session) Reset(systemPrompt string) {
	s.Messages = []Message{{Role: RoleSystem, Content: systemPrompt, Timestamp: time.Now()}}
	s.TokenUsage = TokenUsage{}
	s.UpdatedAt = time.Now()
}

// AddMessage 添加消息到会话
func (s *Session) AddMessage(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	s.UpdatedAt = time.Now()
}

// EstimateTokens 估算会话的 token 数，按字符计
func (s *Session) EstimateTokens() int {
	total := 0
	for _, m := range s.Messages {
		total += len([]rune(m.Content))
	}
	return total
}

// DiscardExceeding 从最早的对话开始丢弃，直到 token 数不超过 maxTokens
// system 提示和最新一条用户提问不会被丢弃，返回丢弃后的 token 数。
func (s *Session) DiscardExceeding(maxTokens int) int {
	cur := s.EstimateTokens()
	if maxTokens <= 0 {
		return cur
	}
	for cur > maxTokens {
		if len(s.Messages) > 2 {
			s.Messages = append(s.Messages[:1], s.Messages[2:]...)
		} else if len(s.Messages) == 2 && s.Messages[1].Role == RoleAssistant {
			s.Messages = s.Messages[:1]
		} else {
			break
		}
		cur = s.EstimateTokens()
	}
	return cur
}

// History 返回会话消息副本
func (s *Session) History() []Message {
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Options 会话管理器配置
type Options struct {
	Dir          string        // 持久化目录，为空时只保存在内存中
	SystemPrompt string
	MaxTokens    int
	ExpiresIn    time.Duration // 为 0 时不过期
}

// Manager 会话管理器
type Manager struct {
	opts   Options
	cache  map[string]*Session
	mu     sync.Mutex
	cron   *cron.Cron
	logger *zap.Logger
}

// NewManager 创建会话管理器
func NewManager(opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Dir != "" {
		os.MkdirAll(opts.Dir, 0755)
	}
	return &Manager{
		opts:   opts,
		cache:  make(map[string]*Session),
		logger: logger,
	}
}

// SetSystemPrompt 更新新建会话使用的 system 提示
func (m *Manager) SetSystemPrompt(prompt string) {
	m.mu.Lock()
	m.opts.SystemPrompt = prompt
	m.mu.Unlock()
}

// SetMaxTokens 更新会话 token 上限
func (m *Manager) SetMaxTokens(maxTokens int) {
	m.mu.Lock()
	m.opts.MaxTokens = maxTokens
	m.mu.Unlock()
}

// getOrCreate 获取或创建会话，调用方需持有锁
func (m *Manager) getOrCreate(key string) *Session {
	if s, ok := m.cache[key]; ok && !m.expired(s) {
		return s
	}

	s := m.load(key)
	if s == nil || m.expired(s) {
		s = newSession(key, m.opts.SystemPrompt)
	}
	m.cache[key] = s
	return s
}

// SessionQuery 记录用户提问并裁剪超长历史，返回用于请求模型的消息
func (m *Manager) SessionQuery(key, query string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getOrCreate(key)
	s.AddMessage(RoleUser, query)
	tokens := s.DiscardExceeding(m.opts.MaxTokens)
	m.logger.Debug("会话提问",
		zap.String("session_id", key),
		zap.Int("messages", len(s.Messages)),
		zap.Int("tokens", tokens),
	)
	return s.History()
}

// SessionReply 记录模型回复
func (m *Manager) SessionReply(key, reply string, usage TokenUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getOrCreate(key)
	s.AddMessage(RoleAssistant, reply)
	s.TokenUsage.Add(usage)
	s.DiscardExceeding(m.opts.MaxTokens)

	if err := m.save(s); err != nil {
		m.logger.Warn("保存会话失败", zap.String("session_id", key), zap.Error(err))
	}
}

// Get 返回会话副本，不存在时返回 nil
func (m *Manager) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.cache[key]
	if !ok {
		s = m.load(key)
	}
	if s == nil || m.expired(s) {
		return nil
	}
	cp := *s
	cp.Messages = s.History()
	return &cp
}

// Clear 清除单个会话的记忆
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, key)
	if m.opts.Dir != "" {
		os.Remove(m.sessionPath(key))
	}
}

// ClearAll 清除所有会话的记忆
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache = make(map[string]*Session)
	if m.opts.Dir == "" {
		return
	}
	files, err := os.ReadDir(m.opts.Dir)
	if err != nil {
		return
	}
	for _, f := range files {
		if strings.HasSuffix(f.Name(), ".json") {
			os.Remove(filepath.Join(m.opts.Dir, f.Name()))
		}
	}
}

// Len 返回内存中的会话数量
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// StartSweeper 定时清理过期会话
func (m *Manager) StartSweeper(spec string) error {
	if m.opts.ExpiresIn <= 0 {
		return nil
	}
	if spec == "" {
		spec = "@every 1m"
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { m.SweepExpired() }); err != nil {
		return err
	}
	c.Start()

	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	return nil
}

// Stop 停止定时清理
func (m *Manager) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// SweepExpired 清理过期会话，返回清理数量
func (m *Manager) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, s := range m.cache {
		if m.expired(s) {
			delete(m.cache, key)
			if m.opts.Dir != "" {
				os.Remove(m.sessionPath(key))
			}
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("已清理过期会话", zap.Int("count", removed))
	}
	return removed
}

func (m *Manager) expired(s *Session) bool {
	return m.opts.ExpiresIn > 0 && time.Since(s.UpdatedAt) > m.opts.ExpiresIn
}

// load 从磁盘加载会话
func (m *Manager) load(key string) *Session {
	if m.opts.Dir == "" {
		return nil
	}
	data, err := os.ReadFile(m.sessionPath(key))
	if err != nil {
		return nil
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil
	}
	if len(session.Messages) == 0 || session.Messages[0].Role != RoleSystem {
		return nil
	}
	return &session
}

// save 保存会话到磁盘
func (m *Manager) save(s *Session) error {
	if m.opts.Dir == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.sessionPath(s.Key), data, 0644)
}

// sessionPath 获取会话文件路径
func (m *Manager) sessionPath(key string) string {
	return filepath.Join(m.opts.Dir, safeFilename(key)+".json")
}

// safeFilename 转换为安全文件名
func safeFilename(name string) string {
	unsafe := "<>:\"/\\|?*@"
	for _, char := range unsafe {
		name = strings.ReplaceAll(name, string(char), "_")
	}
	return strings.TrimSpace(name)
}
