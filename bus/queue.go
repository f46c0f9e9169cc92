package bus

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/weibaohui/wechaty-bot/bridge"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ReleaseFunc 任务处理完成后释放会话并发名额
type ReleaseFunc func()

// sessionQueue 单个会话的待处理队列
type sessionQueue struct {
	pending *list.List
	sem     *semaphore.Weighted
	running int
}

// SessionQueues 按会话划分的消息队列
// 同一会话内按顺序处理，并发数不超过 concurrency；不同会话之间互不阻塞。
type SessionQueues struct {
	mu          sync.Mutex
	sessions    map[string]*sessionQueue
	concurrency int64
	notify      chan struct{}
	logger      *zap.Logger
}

// NewSessionQueues 创建会话队列
func NewSessionQueues(concurrency int, logger *zap.Logger) *SessionQueues {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SessionQueues{
		sessions:    make(map[string]*sessionQueue),
		concurrency: int64(concurrency),
		notify:      make(chan struct{}, 1),
		logger:      logger,
	}
}

// Push 将上下文放入所属会话的队列，front 为 true 时插队到队首
func (q *SessionQueues) Push(c *bridge.Context, front bool) {
	q.mu.Lock()
	s, ok := q.sessions[c.SessionID]
	if !ok {
		s = &sessionQueue{
			pending: list.New(),
			sem:     semaphore.NewWeighted(q.concurrency),
		}
		q.sessions[c.SessionID] = s
	}
	if front {
		s.pending.PushFront(c)
	} else {
		s.pending.PushBack(c)
	}
	q.mu.Unlock()

	q.wake()
}

// Next 取出一个可以立即处理的上下文
// 返回的 ReleaseFunc 必须在处理结束后调用。没有可处理任务时 ok 为 false。
func (q *SessionQueues) Next() (c *bridge.Context, release ReleaseFunc, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, s := range q.sessions {
		if !s.sem.TryAcquire(1) {
			continue
		}
		front := s.pending.Front()
		if front == nil {
			s.sem.Release(1)
			// 队列为空且没有在处理的任务，清理会话
			if s.running == 0 {
				delete(q.sessions, id)
			}
			continue
		}

		s.pending.Remove(front)
		s.running++
		return front.Value.(*bridge.Context), q.releaser(s), true
	}
	return nil, nil, false
}

func (q *SessionQueues) releaser(s *sessionQueue) ReleaseFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			s.running--
			q.mu.Unlock()
			s.sem.Release(1)
			q.wake()
		})
	}
}

// Wait 阻塞直到有新的任务、有任务完成，或者超时
func (q *SessionQueues) Wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.notify:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SessionQueues) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Cancel 清空会话中尚未处理的消息，返回被丢弃的数量
func (q *SessionQueues) Cancel(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.sessions[sessionID]
	if !ok {
		return 0
	}
	n := s.pending.Len()
	s.pending.Init()
	if n > 0 {
		q.logger.Info("已取消会话中的待处理消息",
			zap.String("session_id", sessionID),
			zap.Int("count", n),
		)
	}
	return n
}

// CancelAll 清空所有会话中尚未处理的消息
func (q *SessionQueues) CancelAll() int {
	q.mu.Lock()
	ids := make([]string, 0, len(q.sessions))
	for id := range q.sessions {
		ids = append(ids, id)
	}
	q.mu.Unlock()

	total := 0
	for _, id := range ids {
		total += q.Cancel(id)
	}
	return total
}

// PendingSize 返回会话中待处理的消息数量
func (q *SessionQueues) PendingSize(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if s, ok := q.sessions[sessionID]; ok {
		return s.pending.Len()
	}
	return 0
}

// SessionCount 返回当前存在的会话数量
func (q *SessionQueues) SessionCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sessions)
}
