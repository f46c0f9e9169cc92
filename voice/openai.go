package voice

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/weibaohui/wechaty-bot/bridge"
	"go.uber.org/zap"
)

const (
	voiceToTextFailed = "我暂时还无法听清您的语音，请稍后再试吧~"
	textToVoiceFailed = "遇到了一点小问题，请稍后再问我吧"
)

// audioClient go-openai 中语音相关的接口
type audioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAIConfig OpenAI 语音引擎配置
type OpenAIConfig struct {
	APIKey            string
	APIBase           string
	SpeechToTextModel string
	TextToSpeechModel string
	TextToSpeechVoice string
	TmpDir            string
}

// OpenAIEngine 使用 Whisper 识别语音、TTS 合成语音
type OpenAIEngine struct {
	client audioClient
	config *OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIEngine 创建 OpenAI 语音引擎
func NewOpenAIEngine(cfg *OpenAIConfig, logger *zap.Logger) *OpenAIEngine {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.APIBase, "/")
	}
	return newOpenAIEngine(openai.NewClientWithConfig(clientConfig), cfg, logger)
}

func newOpenAIEngine(client audioClient, cfg *OpenAIConfig, logger *zap.Logger) *OpenAIEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SpeechToTextModel == "" {
		cfg.SpeechToTextModel = openai.Whisper1
	}
	if cfg.TextToSpeechModel == "" {
		cfg.TextToSpeechModel = string(openai.TTSModel1)
	}
	if cfg.TextToSpeechVoice == "" {
		cfg.TextToSpeechVoice = string(openai.VoiceAlloy)
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = os.TempDir()
	}
	return &OpenAIEngine{
		client: client,
		config: cfg,
		logger: logger,
	}
}

// VoiceToText 语音识别
func (e *OpenAIEngine) VoiceToText(ctx context.Context, path string) *bridge.Reply {
	e.logger.Debug("[Openai] 开始语音识别", zap.String("file", path))

	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.config.SpeechToTextModel,
		FilePath: path,
	})
	if err != nil {
		e.logger.Error("[Openai] 语音识别失败", zap.String("file", path), zap.Error(err))
		return bridge.NewReply(bridge.ReplyError, voiceToTextFailed)
	}

	text := strings.TrimSpace(resp.Text)
	e.logger.Info("[Openai] 语音识别完成", zap.String("text", text))
	if text == "" {
		return bridge.NewReply(bridge.ReplyError, voiceToTextFailed)
	}
	return bridge.NewReply(bridge.ReplyText, text)
}

// TextToVoice 语音合成，返回 mp3 文件路径
func (e *OpenAIEngine) TextToVoice(ctx context.Context, text string) *bridge.Reply {
	resp, err := e.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(e.config.TextToSpeechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(e.config.TextToSpeechVoice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		e.logger.Error("[Openai] 语音合成失败", zap.Error(err))
		return bridge.NewReply(bridge.ReplyError, textToVoiceFailed)
	}
	defer resp.Close()

	path := filepath.Join(e.config.TmpDir, fmt.Sprintf("reply-%d-%s.mp3", time.Now().Unix(), uuid.NewString()[:8]))
	if err := writeStream(path, resp); err != nil {
		e.logger.Error("[Openai] 保存合成语音失败", zap.String("file", path), zap.Error(err))
		return bridge.NewReply(bridge.ReplyError, textToVoiceFailed)
	}

	e.logger.Info("[Openai] 语音合成完成", zap.String("file", path))
	return bridge.NewReply(bridge.ReplyVoice, path)
}

func writeStream(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
