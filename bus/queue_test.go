package bus

import (
	"context"
	"testing"
	"time"

	"github.com/weibaohui/wechaty-bot/bridge"
	"go.uber.org/zap"
)

func newTestContext(sessionID, content string) *bridge.Context {
	c := bridge.NewContext(bridge.ContextText, content)
	c.SessionID = sessionID
	return c
}

// TestNewSessionQueues 测试创建会话队列
func TestNewSessionQueues(t *testing.T) {
	t.Run("使用nil logger", func(t *testing.T) {
		q := NewSessionQueues(1, nil)
		if q.logger == nil {
			t.Error("logger 不应该为 nil")
		}
	})

	t.Run("并发数非法时使用1", func(t *testing.T) {
		q := NewSessionQueues(0, zap.NewNop())
		if q.concurrency != 1 {
			t.Errorf("concurrency = %d, 期望 1", q.concurrency)
		}
	})
}

// TestSessionQueues_Order 测试同一会话按顺序出队，插队消息优先
func TestSessionQueues_Order(t *testing.T) {
	q := NewSessionQueues(1, nil)

	q.Push(newTestContext("s1", "第一条"), false)
	q.Push(newTestContext("s1", "第二条"), false)
	q.Push(newTestContext("s1", "#清除记忆"), true)

	expected := []string{"#清除记忆", "第一条", "第二条"}
	for _, want := range expected {
		c, release, ok := q.Next()
		if !ok {
			t.Fatalf("期望取出 %q, 但队列为空", want)
		}
		if c.Content != want {
			t.Errorf("Content = %q, 期望 %q", c.Content, want)
		}
		release()
	}
}

// TestSessionQueues_Concurrency 测试会话内并发限制
func TestSessionQueues_Concurrency(t *testing.T) {
	q := NewSessionQueues(1, nil)
	q.Push(newTestContext("s1", "a"), false)
	q.Push(newTestContext("s1", "b"), false)

	_, release, ok := q.Next()
	if !ok {
		t.Fatal("应该取出第一条")
	}

	if _, _, ok := q.Next(); ok {
		t.Error("会话并发为1时，上一条未完成前不应取出下一条")
	}

	release()
	// 重复释放不应该多释放名额
	release()

	c, release2, ok := q.Next()
	if !ok || c.Content != "b" {
		t.Fatalf("释放后应取出 b, 实际 %v %v", c, ok)
	}
	if _, _, ok := q.Next(); ok {
		t.Error("重复释放导致并发名额泄漏")
	}
	release2()
}

// TestSessionQueues_MultiSession 测试不同会话互不阻塞
func TestSessionQueues_MultiSession(t *testing.T) {
	q := NewSessionQueues(1, nil)
	q.Push(newTestContext("s1", "a"), false)
	q.Push(newTestContext("s2", "b"), false)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		c, _, ok := q.Next()
		if !ok {
			t.Fatalf("第 %d 次应取出消息", i+1)
		}
		got[c.SessionID] = true
	}
	if !got["s1"] || !got["s2"] {
		t.Errorf("两个会话都应被取出: %v", got)
	}
}

// TestSessionQueues_CleanupIdle 测试空闲会话被清理
func TestSessionQueues_CleanupIdle(t *testing.T) {
	q := NewSessionQueues(2, nil)
	q.Push(newTestContext("s1", "a"), false)

	_, release, _ := q.Next()
	// 仍有任务在处理，不应被清理
	q.Next()
	if q.SessionCount() != 1 {
		t.Errorf("SessionCount = %d, 期望 1", q.SessionCount())
	}

	release()
	q.Next()
	if q.SessionCount() != 0 {
		t.Errorf("SessionCount = %d, 期望 0", q.SessionCount())
	}
}

// TestSessionQueues_Cancel 测试取消会话
func TestSessionQueues_Cancel(t *testing.T) {
	q := NewSessionQueues(1, nil)
	q.Push(newTestContext("s1", "a"), false)
	q.Push(newTestContext("s1", "b"), false)
	q.Push(newTestContext("s2", "c"), false)

	if n := q.Cancel("s1"); n != 2 {
		t.Errorf("Cancel 返回 %d, 期望 2", n)
	}
	if q.PendingSize("s1") != 0 {
		t.Errorf("PendingSize(s1) = %d", q.PendingSize("s1"))
	}
	if q.Cancel("missing") != 0 {
		t.Error("取消不存在的会话应返回 0")
	}

	if n := q.CancelAll(); n != 1 {
		t.Errorf("CancelAll 返回 %d, 期望 1", n)
	}
}

// TestSessionQueues_Wait 测试等待被唤醒
func TestSessionQueues_Wait(t *testing.T) {
	q := NewSessionQueues(1, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(newTestContext("s1", "a"), false)
	}()

	start := time.Now()
	if err := q.Wait(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Wait 返回错误: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Push 之后应立即唤醒")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// 通知已被消费，取消的上下文应返回错误
	if err := q.Wait(ctx, time.Second); err == nil {
		t.Error("上下文取消后 Wait 应返回错误")
	}
}
