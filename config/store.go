package config

import (
	"sync/atomic"
)

// Store 持有当前生效的配置，支持运行时重新加载
type Store struct {
	path    string
	current atomic.Pointer[Config]
}

// NewStore 创建配置存储，path 为空时只能持有内存中的配置
func NewStore(cfg *Config, path string) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Store{path: path}
	s.current.Store(cfg)
	return s
}

// Get 返回当前配置
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Path 返回配置文件路径
func (s *Store) Path() string {
	return s.path
}

// Reload 从磁盘重新读取配置并替换当前配置
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := LoadConfig(s.path)
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}
