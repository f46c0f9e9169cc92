package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/weibaohui/wechaty-bot/utils"
	"gopkg.in/yaml.v3"
)

// AllGroup 群白名单中表示全部群聊的特殊值
const AllGroup = "ALL_GROUP"

type Config struct {
	ChannelType string          `json:"channelType" yaml:"channelType"` // wechaty / terminal
	Workspace   string          `json:"workspace" yaml:"workspace"`     // 数据目录
	Wechaty     WechatyConfig   `json:"wechaty" yaml:"wechaty"`
	Chat        ChatConfig      `json:"chat" yaml:"chat"`
	Bot         BotConfig       `json:"bot" yaml:"bot"`
	Voice       VoiceConfig     `json:"voice" yaml:"voice"`
	Providers   ProvidersConfig `json:"providers" yaml:"providers"`
}

type WechatyConfig struct {
	PuppetServiceToken string           `json:"puppetServiceToken" yaml:"puppetServiceToken"`
	Endpoint           string           `json:"endpoint,omitempty" yaml:"endpoint,omitempty"` // 可选，直连 puppet 服务地址
	Friendship         FriendshipConfig `json:"friendship" yaml:"friendship"`
}

type FriendshipConfig struct {
	AutoAccept  bool   `json:"autoAccept" yaml:"autoAccept"`
	DelaySecond int    `json:"delaySecond" yaml:"delaySecond"` // 通过好友后等待多久再打招呼
	Greeting    string `json:"greeting" yaml:"greeting"`
	ContactCard string `json:"contactCard,omitempty" yaml:"contactCard,omitempty"` // 打招呼后推送的名片联系人 ID
}

type ChatConfig struct {
	SingleChatPrefix          []string `json:"singleChatPrefix" yaml:"singleChatPrefix"`
	SingleChatReplyPrefix     string   `json:"singleChatReplyPrefix" yaml:"singleChatReplyPrefix"`
	SingleChatReplySuffix     string   `json:"singleChatReplySuffix" yaml:"singleChatReplySuffix"`
	GroupChatPrefix           []string `json:"groupChatPrefix" yaml:"groupChatPrefix"`
	GroupChatKeyword          []string `json:"groupChatKeyword" yaml:"groupChatKeyword"`
	GroupChatReplyPrefix      string   `json:"groupChatReplyPrefix" yaml:"groupChatReplyPrefix"`
	GroupChatReplySuffix      string   `json:"groupChatReplySuffix" yaml:"groupChatReplySuffix"`
	GroupAtOff                bool     `json:"groupAtOff" yaml:"groupAtOff"`
	GroupNameWhiteList        []string `json:"groupNameWhiteList" yaml:"groupNameWhiteList"`
	GroupNameKeywordWhiteList []string `json:"groupNameKeywordWhiteList" yaml:"groupNameKeywordWhiteList"`
	GroupChatInOneSession     []string `json:"groupChatInOneSession" yaml:"groupChatInOneSession"`
	ImageCreatePrefix         []string `json:"imageCreatePrefix" yaml:"imageCreatePrefix"`
	TriggerBySelf             bool     `json:"triggerBySelf" yaml:"triggerBySelf"`
	StripMarkdown             bool     `json:"stripMarkdown" yaml:"stripMarkdown"`
	ConcurrencyInSession      int      `json:"concurrencyInSession" yaml:"concurrencyInSession"`
	Workers                   int      `json:"workers" yaml:"workers"`
	SendRetryIntervalSecond   int      `json:"sendRetryIntervalSecond" yaml:"sendRetryIntervalSecond"`
}

type BotConfig struct {
	Model                 string   `json:"model" yaml:"model"`
	CharacterDesc         string   `json:"characterDesc" yaml:"characterDesc"`
	ConversationMaxTokens int      `json:"conversationMaxTokens" yaml:"conversationMaxTokens"`
	MaxTokens             int      `json:"maxTokens" yaml:"maxTokens"`
	Temperature           float64  `json:"temperature" yaml:"temperature"`
	ExpiresInSeconds      int      `json:"expiresInSeconds" yaml:"expiresInSeconds"`
	ClearMemoryCommands   []string `json:"clearMemoryCommands" yaml:"clearMemoryCommands"`
	ImageModel            string   `json:"imageModel" yaml:"imageModel"`
	ImageSize             string   `json:"imageSize" yaml:"imageSize"`
	RequestTimeoutSecond  int      `json:"requestTimeoutSecond" yaml:"requestTimeoutSecond"`
}

type VoiceConfig struct {
	SpeechRecognition      bool   `json:"speechRecognition" yaml:"speechRecognition"`
	GroupSpeechRecognition bool   `json:"groupSpeechRecognition" yaml:"groupSpeechRecognition"`
	VoiceReplyVoice        bool   `json:"voiceReplyVoice" yaml:"voiceReplyVoice"`
	AlwaysReplyVoice       bool   `json:"alwaysReplyVoice" yaml:"alwaysReplyVoice"`
	Engine                 string `json:"engine" yaml:"engine"` // openai
	SpeechToTextModel      string `json:"speechToTextModel" yaml:"speechToTextModel"`
	TextToSpeechModel      string `json:"textToSpeechModel" yaml:"textToSpeechModel"`
	TextToSpeechVoice      string `json:"textToSpeechVoice" yaml:"textToSpeechVoice"`
	FFmpegPath             string `json:"ffmpegPath" yaml:"ffmpegPath"`
	TmpDir                 string `json:"tmpDir" yaml:"tmpDir"`
}

type ProvidersConfig struct {
	OpenAI      ProviderConfig `json:"openai" yaml:"openai"`
	SiliconFlow ProviderConfig `json:"siliconflow" yaml:"siliconflow"`
	DeepSeek    ProviderConfig `json:"deepseek" yaml:"deepseek"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey" yaml:"apiKey"`
	APIBase string `json:"apiBase" yaml:"apiBase"`
}

func DefaultConfig() *Config {
	return &Config{
		ChannelType: "wechaty",
		Workspace:   "~/.wechaty-bot",
		Wechaty: WechatyConfig{
			Friendship: FriendshipConfig{
				AutoAccept:  true,
				DelaySecond: 3,
				Greeting:    "你好呀～我是你的智能助理，有什么问题都可以直接问我哦！",
			},
		},
		Chat: ChatConfig{
			SingleChatPrefix:        []string{"bot", "@bot"},
			SingleChatReplyPrefix:   "[bot] ",
			GroupChatPrefix:         []string{"@bot"},
			GroupNameWhiteList:      []string{"ChatGPT测试群", "ChatGPT测试群2"},
			ImageCreatePrefix:       []string{"画", "看", "找"},
			ConcurrencyInSession:    1,
			Workers:                 8,
			SendRetryIntervalSecond: 3,
		},
		Bot: BotConfig{
			Model:                 "gpt-4o-mini",
			CharacterDesc:         "你是一个乐于助人的 AI 助手，回答要简洁准确。",
			ConversationMaxTokens: 1000,
			MaxTokens:             1024,
			Temperature:           0.9,
			ExpiresInSeconds:      3600,
			ClearMemoryCommands:   []string{"#清除记忆"},
			ImageModel:            "dall-e-3",
			ImageSize:             "1024x1024",
			RequestTimeoutSecond:  120,
		},
		Voice: VoiceConfig{
			Engine:            "openai",
			SpeechToTextModel: "whisper-1",
			TextToSpeechModel: "tts-1",
			TextToSpeechVoice: "alloy",
			FFmpegPath:        "ffmpeg",
		},
	}
}

// LoadConfig 加载配置文件，支持 JSON 与 YAML
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			config.applyEnv()
			return config, nil
		}
		return nil, err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, err
	}

	config.applyEnv()
	return config, nil
}

// SaveConfig 保存配置文件
func SaveConfig(config *Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	os.MkdirAll(filepath.Dir(path), 0755)
	return os.WriteFile(path, data, 0644)
}

// applyEnv 环境变量覆盖密钥类配置
func (c *Config) applyEnv() {
	if v := os.Getenv("WECHATY_PUPPET_SERVICE_TOKEN"); v != "" && c.Wechaty.PuppetServiceToken == "" {
		c.Wechaty.PuppetServiceToken = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_BASE"); v != "" && c.Providers.OpenAI.APIBase == "" {
		c.Providers.OpenAI.APIBase = v
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// GetWorkspacePath 获取工作区路径
func (c *Config) GetWorkspacePath() string {
	return GetWorkspacePath(c.Workspace)
}

// GetProvider 获取匹配的提供商配置
func (c *Config) GetProvider(model string) *ProviderConfig {
	if model == "" {
		model = c.Bot.Model
	}

	// 按关键词匹配（优先级从高到低）
	providers := []struct {
		name     string
		keywords []string
		config   ProviderConfig
	}{
		{"siliconflow", []string{"siliconflow"}, c.Providers.SiliconFlow},
		{"deepseek", []string{"deepseek-chat", "deepseek-reasoner"}, c.Providers.DeepSeek},
		{"openai", []string{"openai", "gpt", "dall-e", "whisper", "tts"}, c.Providers.OpenAI},
	}

	for _, p := range providers {
		for _, kw := range p.keywords {
			if utils.ContainsInsensitive(model, kw) && p.config.APIKey != "" {
				return &p.config
			}
		}
	}

	// 模型格式为 "Org/Model" 时，优先 SiliconFlow
	if c.Providers.SiliconFlow.APIKey != "" {
		siliconflowPrefixes := []string{"Qwen/", "deepseek-ai/", "THUDM/", "meta-llama/"}
		for _, prefix := range siliconflowPrefixes {
			if utils.HasPrefixInsensitive(model, prefix) {
				return &c.Providers.SiliconFlow
			}
		}
	}

	fallbackOrder := []ProviderConfig{
		c.Providers.OpenAI,
		c.Providers.SiliconFlow,
		c.Providers.DeepSeek,
	}
	for _, cfg := range fallbackOrder {
		if cfg.APIKey != "" {
			return &cfg
		}
	}

	return nil
}
