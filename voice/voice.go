// Package voice 提供语音识别、语音合成以及音频格式转换
package voice

import (
	"fmt"

	"github.com/weibaohui/wechaty-bot/bridge"
	"github.com/weibaohui/wechaty-bot/config"
	"go.uber.org/zap"
)

// NewEngine 根据配置创建语音引擎，未开启任何语音功能时返回 nil
func NewEngine(cfg *config.Config, logger *zap.Logger) (bridge.VoiceEngine, error) {
	v := cfg.Voice
	if !v.SpeechRecognition && !v.GroupSpeechRecognition && !v.VoiceReplyVoice && !v.AlwaysReplyVoice {
		return nil, nil
	}

	switch v.Engine {
	case "", "openai":
		provider := cfg.GetProvider(v.SpeechToTextModel)
		if provider == nil || provider.APIKey == "" {
			return nil, fmt.Errorf("语音引擎 openai 缺少 API Key")
		}
		return NewOpenAIEngine(&OpenAIConfig{
			APIKey:            provider.APIKey,
			APIBase:           provider.APIBase,
			SpeechToTextModel: v.SpeechToTextModel,
			TextToSpeechModel: v.TextToSpeechModel,
			TextToSpeechVoice: v.TextToSpeechVoice,
			TmpDir:            config.GetTmpDir(cfg),
		}, logger), nil
	default:
		return nil, fmt.Errorf("不支持的语音引擎: %s", v.Engine)
	}
}
