package config

import (
	"os"
	"path/filepath"
)

// GetConfigPath 获取默认配置文件路径
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wechaty-bot", "config.json")
}

// GetWorkspacePath 获取工作区路径
func GetWorkspacePath(workspace string) string {
	if workspace != "" {
		path := expandPath(workspace)
		os.MkdirAll(path, 0755)
		return path
	}
	home, _ := os.UserHomeDir()
	path := filepath.Join(home, ".wechaty-bot")
	os.MkdirAll(path, 0755)
	return path
}

// GetSessionsPath 获取会话存储目录
func GetSessionsPath(workspace string) string {
	dir := filepath.Join(GetWorkspacePath(workspace), "sessions")
	os.MkdirAll(dir, 0755)
	return dir
}

// GetTmpDir 获取语音、图片等临时文件目录
func GetTmpDir(cfg *Config) string {
	dir := cfg.Voice.TmpDir
	if dir == "" {
		dir = filepath.Join(GetWorkspacePath(cfg.Workspace), "tmp")
	} else {
		dir = expandPath(dir)
	}
	os.MkdirAll(dir, 0755)
	return dir
}

// FindConfigPath 按顺序查找可用的配置文件
func FindConfigPath(workspace string) string {
	candidates := []string{
		filepath.Join(workspace, "config.json"),
		filepath.Join(workspace, "config.yaml"),
		filepath.Join(workspace, "config.yml"),
	}
	if home, _ := os.UserHomeDir(); home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".wechaty-bot", "config.json"),
			filepath.Join(home, ".wechaty-bot", "config.yaml"),
		)
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
