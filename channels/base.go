package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Channel 渠道接口
// Start 阻塞运行，直到 ctx 结束或出现无法恢复的错误。
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}

// Factory 根据渠道类型创建渠道
type Factory func() (Channel, error)

// Manager 渠道管理器
type Manager struct {
	mu        sync.RWMutex
	channels  map[string]Channel
	factories map[string]Factory
	logger    *zap.Logger
}

// NewManager 创建渠道管理器
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		channels:  make(map[string]Channel),
		factories: make(map[string]Factory),
		logger:    logger,
	}
}

// RegisterFactory 注册渠道类型
func (m *Manager) RegisterFactory(channelType string, f Factory) {
	m.mu.Lock()
	m.factories[channelType] = f
	m.mu.Unlock()
}

// Create 按类型创建渠道并注册
func (m *Manager) Create(channelType string) (Channel, error) {
	m.mu.RLock()
	f, ok := m.factories[channelType]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("不支持的渠道类型: %s", channelType)
	}

	ch, err := f()
	if err != nil {
		return nil, fmt.Errorf("创建渠道 %s 失败: %w", channelType, err)
	}
	m.Register(ch)
	return ch, nil
}

// Register 注册渠道
func (m *Manager) Register(channel Channel) {
	m.mu.Lock()
	m.channels[channel.Name()] = channel
	m.mu.Unlock()
}

// Get 获取渠道
func (m *Manager) Get(name string) Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}

// StartAll 启动所有渠道并阻塞，任一渠道出错时返回该错误
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	channels := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range channels {
		ch := ch
		g.Go(func() error {
			m.logger.Info("启动渠道", zap.String("channel", ch.Name()))
			if err := ch.Start(gctx); err != nil {
				return fmt.Errorf("渠道 %s: %w", ch.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StopAll 停止所有渠道
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.channels {
		ch.Stop()
	}
}

// List 列出所有渠道名称
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
