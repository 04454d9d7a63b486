package notify

import (
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	jobs []Job
}

func (s *recordingSender) Send(job Job) error {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func TestQueue_DeliversJobs(t *testing.T) {
	sender := &recordingSender{}
	q := NewQueue(sender, 8)
	q.Start()

	for i := 0; i < 3; i++ {
		q.Enqueue(Job{TgChatID: int64(i), Content: "msg", SenderNick: "alice"})
	}
	q.Close()

	if got := sender.count(); got != 3 {
		t.Errorf("delivered jobs = %d, want 3", got)
	}
}

func TestQueue_EnqueueNeverBlocks(t *testing.T) {
	// worker 未启动，队列容量 1：第二次入队必须立刻丢弃而非阻塞。
	q := NewQueue(&recordingSender{}, 1)

	done := make(chan struct{})
	go func() {
		q.Enqueue(Job{TgChatID: 1})
		q.Enqueue(Job{TgChatID: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	if len(q.jobs) != 1 {
		t.Errorf("queued jobs = %d, want 1 (overflow dropped)", len(q.jobs))
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	sender := &recordingSender{}
	q := NewQueue(sender, 8)
	for i := 0; i < 5; i++ {
		q.Enqueue(Job{TgChatID: int64(i)})
	}
	q.Start()
	q.Close()

	if got := sender.count(); got != 5 {
		t.Errorf("jobs delivered before Close returned = %d, want 5", got)
	}
}

func TestFormatJob(t *testing.T) {
	job := Job{
		Content:    "hello there",
		SenderNick: "bob",
		SentAt:     time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC),
	}
	want := "Sender: bob\nMessage: hello there\nDate: 09-03-2024 14:05"
	if got := formatJob(job); got != want {
		t.Errorf("formatJob() = %q, want %q", got, want)
	}
}
