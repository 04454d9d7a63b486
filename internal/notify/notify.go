package notify

import (
	"sync"
	"time"

	"github.com/Kylemerian/real-time-web-chat/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Job 是一条离线通知任务，收件人以外部 Telegram chat id 定位。
type Job struct {
	TgChatID   int64
	ChatID     uint
	MessageID  uint
	Content    string
	SentAt     time.Time
	SenderNick string
}

// Enqueuer 是中继侧看到的全部能力：投递即返回，不关心结果。
type Enqueuer interface {
	Enqueue(job Job)
}

// Sender 执行一次实际投递，失败由调用方记录，不做重试。
type Sender interface {
	Send(job Job) error
}

// Queue 是进程内的单消费者任务队列。Enqueue 永不阻塞：
// 队列满时任务被丢弃，这是尽力而为的通知通道而非可靠投递。
type Queue struct {
	jobs   chan Job
	sender Sender
	wg     sync.WaitGroup
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewQueue(sender Sender, size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{jobs: make(chan Job, size), sender: sender}
}

// Start 启动后台 worker。
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for job := range q.jobs {
		if err := q.sender.Send(job); err != nil {
			log.Warn().Err(err).Int64("tg_chat_id", job.TgChatID).Msg("offline notify failed")
		}
	}
}

func (q *Queue) Enqueue(job Job) {
	// 读锁挡住 Close 并发关闭通道，停机期间迟到的任务按丢弃处理。
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.OfflineJobsDropped.Inc()
		return
	}
	select {
	case q.jobs <- job:
		metrics.OfflineJobsEnqueued.Inc()
	default:
		metrics.OfflineJobsDropped.Inc()
		log.Warn().Int64("tg_chat_id", job.TgChatID).Msg("offline notify queue full, job dropped")
	}
}

// Close 停止接收并等待已入队任务发完。
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.jobs)
	})
	q.wg.Wait()
}

// LogSender 在未配置 bot token 时替代真实投递，只落一条日志。
type LogSender struct{}

func (LogSender) Send(job Job) error {
	log.Info().
		Int64("tg_chat_id", job.TgChatID).
		Str("sender", job.SenderNick).
		Msg("offline notification (telegram disabled)")
	return nil
}
