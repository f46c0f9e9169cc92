package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/weibaohui/wechaty-bot/bridge"
	"github.com/weibaohui/wechaty-bot/config"
	"go.uber.org/zap"
)

const (
	terminalUserID = "User"
	terminalBotID  = "Chatgpt"
)

// TerminalChannel 命令行渠道，用于本地调试回复流水线
type TerminalChannel struct {
	*ChatChannel
	in       io.Reader
	out      io.Writer
	outMu    sync.Mutex
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewTerminalChannel 创建命令行渠道，in/out 为空时使用标准输入输出
func NewTerminalChannel(store *config.Store, br *bridge.Bridge, in io.Reader, out io.Writer, logger *zap.Logger) *TerminalChannel {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	c := &TerminalChannel{
		ChatChannel: NewChatChannel("terminal", store, br, nil, logger),
		in:          in,
		out:         out,
		stopChan:    make(chan struct{}),
	}
	c.SetSender(c)
	c.SetNotSupportReplyTypes(bridge.ReplyVoice)
	c.SetUser(terminalBotID, terminalBotID)
	return c
}

// Start 启动命令行渠道，阻塞直到输入结束或 ctx 结束
func (c *TerminalChannel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx) }()

	c.logger.Info("命令行渠道已启动")
	c.print("\n请输入你的问题:\nUser: ")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.inputLoop(ctx, lines)
	cancel()
	return <-done
}

// Stop 停止命令行渠道
func (c *TerminalChannel) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.logger.Info("命令行渠道已停止")
	})
}

// inputLoop 输入循环
func (c *TerminalChannel) inputLoop(ctx context.Context, lines <-chan string) {
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case line, ok = <-lines:
			if !ok {
				c.waitIdle(ctx)
				return
			}
		}

		text := strings.TrimSpace(line)
		if text == "" {
			c.print("User: ")
			continue
		}
		if strings.HasPrefix(text, "/") {
			if c.handleCommand(text) {
				return
			}
			c.print("User: ")
			continue
		}

		if pc := c.composeInput(text); pc != nil {
			c.Produce(pc)
		}
	}
}

// composeInput 补全单聊前缀后组装上下文
func (c *TerminalChannel) composeInput(text string) *bridge.Context {
	prefixes := c.store.Get().Chat.SingleChatPrefix
	if len(prefixes) > 0 {
		matched := false
		for _, p := range prefixes {
			if strings.HasPrefix(text, p) {
				matched = true
				break
			}
		}
		if !matched {
			text = prefixes[0] + text
		}
	}

	msg := &bridge.ChatMessage{
		MsgID:             uuid.NewString(),
		CreateTime:        time.Now(),
		Ctype:             bridge.ContextText,
		Content:           text,
		FromUserID:        terminalUserID,
		FromUserNickname:  terminalUserID,
		ToUserID:          terminalBotID,
		ToUserNickname:    terminalBotID,
		OtherUserID:       terminalUserID,
		OtherUserNickname: terminalUserID,
	}
	return c.ComposeContext(bridge.ContextText, text, msg)
}

// waitIdle 输入结束后等待已排队的消息处理完成
func (c *TerminalChannel) waitIdle(ctx context.Context) {
	for c.queues.SessionCount() > 0 {
		if err := c.queues.Wait(ctx, 100*time.Millisecond); err != nil {
			return
		}
	}
}

// handleCommand 处理命令，返回 true 表示退出
func (c *TerminalChannel) handleCommand(cmd string) bool {
	switch cmd {
	case "/exit", "/quit":
		c.print("再见!\n")
		return true
	case "/help":
		c.print(`可用命令:
  /help    显示帮助
  /exit    退出程序
  /cancel  取消排队中的消息
`)
	case "/cancel":
		n := c.CancelAllSession()
		c.print(fmt.Sprintf("已取消 %d 条消息\n", n))
	default:
		c.print(fmt.Sprintf("未知命令: %s\n", cmd))
	}
	return false
}

// Send 将回复输出到终端
func (c *TerminalChannel) Send(ctx context.Context, reply *bridge.Reply, pc *bridge.Context) error {
	var body string
	switch reply.Type {
	case bridge.ReplyImage:
		body = fmt.Sprintf("[图片] %d 字节", len(reply.Data))
	case bridge.ReplyImageURL:
		body = "[图片] " + reply.Content
	default:
		body = reply.Content
	}
	c.print("\nBot:\n" + body + "\n\nUser: ")
	return nil
}

func (c *TerminalChannel) print(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprint(c.out, s)
}
