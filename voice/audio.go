package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	silk "github.com/wdvxdr1123/go-silk"
	"go.uber.org/zap"
)

const (
	// SampleRate 微信语音使用的采样率
	SampleRate = 24000
	// MaxVoiceMillis 微信单条语音最长 60 秒
	MaxVoiceMillis = 60000
)

var silkHeader = []byte("#!SILK_V3")

// ErrEmptyAudio 音频解码后为空
var ErrEmptyAudio = errors.New("音频内容为空")

// Converter 音频格式转换
// silk 使用 go-silk 编解码，其他格式通过 ffmpeg 转为单声道 16bit PCM。
type Converter struct {
	ffmpeg string
	logger *zap.Logger
}

// NewConverter 创建音频转换器，ffmpegPath 为空时使用 PATH 中的 ffmpeg
func NewConverter(ffmpegPath string, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{ffmpeg: ffmpegPath, logger: logger}
}

// AnyToSil 将任意音频转换为 silk 文件，返回音频时长（毫秒）
func (c *Converter) AnyToSil(ctx context.Context, src, dst string) (int, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("读取音频失败: %w", err)
	}

	if IsSilk(data) {
		pcm, err := silk.DecodeSilkBuffToPcm(data, SampleRate)
		if err != nil {
			return 0, fmt.Errorf("解码 silk 失败: %w", err)
		}
		if src != dst {
			if err := os.WriteFile(dst, data, 0644); err != nil {
				return 0, err
			}
		}
		return PCMDurationMillis(len(pcm), SampleRate), nil
	}

	pcm, err := c.toPCM(ctx, src)
	if err != nil {
		return 0, err
	}
	out, err := silk.EncodePcmBuffToSilk(pcm, SampleRate, SampleRate, true)
	if err != nil {
		return 0, fmt.Errorf("编码 silk 失败: %w", err)
	}
	if err := os.WriteFile(dst, out, 0644); err != nil {
		return 0, fmt.Errorf("写入 silk 失败: %w", err)
	}
	return PCMDurationMillis(len(pcm), SampleRate), nil
}

// AnyToWav 将任意音频转换为 wav 文件
func (c *Converter) AnyToWav(ctx context.Context, src, dst string) error {
	if strings.EqualFold(filepath.Ext(src), ".wav") {
		if src == dst {
			return nil
		}
		return copyFile(src, dst)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("读取音频失败: %w", err)
	}

	var pcm []byte
	if IsSilk(data) {
		pcm, err = silk.DecodeSilkBuffToPcm(data, SampleRate)
		if err != nil {
			return fmt.Errorf("解码 silk 失败: %w", err)
		}
	} else {
		pcm, err = c.toPCM(ctx, src)
		if err != nil {
			return err
		}
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWav(f, pcm, SampleRate, 1)
}

// toPCM 调用 ffmpeg 转为 s16le 单声道 PCM
func (c *Converter) toPCM(ctx context.Context, src string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.ffmpeg,
		"-y", "-i", src,
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(SampleRate), "-ac", "1",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		c.logger.Error("ffmpeg 转换失败",
			zap.String("src", src),
			zap.String("stderr", stderr.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("ffmpeg 转换失败: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, ErrEmptyAudio
	}
	return stdout.Bytes(), nil
}

// IsSilk 判断数据是否为 silk 编码，兼容微信在文件头前加的 0x02
func IsSilk(data []byte) bool {
	if bytes.HasPrefix(data, silkHeader) {
		return true
	}
	return len(data) > 0 && data[0] == 0x02 && bytes.HasPrefix(data[1:], silkHeader)
}

// PCMDurationMillis 计算 16bit 单声道 PCM 的时长
func PCMDurationMillis(size, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return int(int64(size) * 1000 / int64(sampleRate*2))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
