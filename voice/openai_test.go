package voice

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/weibaohui/wechaty-bot/bridge"
)

type fakeAudioClient struct {
	text    string
	err     error
	speech  string
	lastReq openai.AudioRequest
	lastTTS openai.CreateSpeechRequest
}

func (f *fakeAudioClient) CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return openai.AudioResponse{}, f.err
	}
	return openai.AudioResponse{Text: f.text}, nil
}

func (f *fakeAudioClient) CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error) {
	f.lastTTS = req
	if f.err != nil {
		return openai.RawResponse{}, f.err
	}
	return openai.RawResponse{ReadCloser: io.NopCloser(strings.NewReader(f.speech))}, nil
}

func TestOpenAIEngine_VoiceToText(t *testing.T) {
	tests := []struct {
		name     string
		client   *fakeAudioClient
		wantType bridge.ReplyType
		wantText string
	}{
		{"识别成功", &fakeAudioClient{text: " 今天天气怎么样 "}, bridge.ReplyText, "今天天气怎么样"},
		{"识别失败", &fakeAudioClient{err: errors.New("timeout")}, bridge.ReplyError, voiceToTextFailed},
		{"识别为空", &fakeAudioClient{text: "  "}, bridge.ReplyError, voiceToTextFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newOpenAIEngine(tt.client, &OpenAIConfig{TmpDir: t.TempDir()}, nil)
			reply := e.VoiceToText(context.Background(), "/tmp/voice.wav")
			if reply.Type != tt.wantType || reply.Content != tt.wantText {
				t.Errorf("reply = %v, 期望 %v %q", reply, tt.wantType, tt.wantText)
			}
			if tt.client.lastReq.Model != openai.Whisper1 {
				t.Errorf("Model = %q, 期望 whisper-1", tt.client.lastReq.Model)
			}
		})
	}
}

func TestOpenAIEngine_TextToVoice(t *testing.T) {
	client := &fakeAudioClient{speech: "mp3-bytes"}
	e := newOpenAIEngine(client, &OpenAIConfig{TmpDir: t.TempDir(), TextToSpeechVoice: "nova"}, nil)

	reply := e.TextToVoice(context.Background(), "你好")
	if reply.Type != bridge.ReplyVoice {
		t.Fatalf("reply = %v, 期望 VOICE", reply)
	}
	data, err := os.ReadFile(reply.Content)
	if err != nil {
		t.Fatalf("读取合成文件失败: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("文件内容 = %q", data)
	}
	if client.lastTTS.Voice != "nova" || client.lastTTS.Input != "你好" {
		t.Errorf("请求参数错误: %+v", client.lastTTS)
	}

	failing := newOpenAIEngine(&fakeAudioClient{err: errors.New("quota")}, &OpenAIConfig{TmpDir: t.TempDir()}, nil)
	if r := failing.TextToVoice(context.Background(), "你好"); r.Type != bridge.ReplyError {
		t.Errorf("合成失败应返回 ERROR, 实际 %v", r)
	}
}
