package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kylemerian/real-time-web-chat/internal/cache"
	"github.com/Kylemerian/real-time-web-chat/internal/models"
	"github.com/Kylemerian/real-time-web-chat/internal/notify"
)

type fakeStore struct {
	nextID    uint
	appended  []models.Message
	appendErr error
	members   map[uint][]uint
	users     map[uint]*models.User
}

func (f *fakeStore) Append(_ context.Context, chatID, senderID uint, text string, now time.Time) (*models.Message, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.nextID++
	msg := models.Message{ID: f.nextID, ChatID: chatID, SenderID: senderID, Text: text, Time: now}
	f.appended = append(f.appended, msg)
	return &msg, nil
}

func (f *fakeStore) MemberIDs(_ context.Context, chatID uint) ([]uint, error) {
	ids, ok := f.members[chatID]
	if !ok {
		return nil, nil
	}
	return ids, nil
}

func (f *fakeStore) ByID(_ context.Context, userID uint) (*models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

// fakePusher delivers to a configurable set of "online" users.
type fakePusher struct {
	online map[uint]bool
	sent   map[uint][]Envelope
}

func newFakePusher(online ...uint) *fakePusher {
	p := &fakePusher{online: make(map[uint]bool), sent: make(map[uint][]Envelope)}
	for _, uid := range online {
		p.online[uid] = true
	}
	return p
}

func (p *fakePusher) Send(userID uint, payload interface{}) bool {
	if !p.online[userID] {
		return false
	}
	p.sent[userID] = append(p.sent[userID], payload.(Envelope))
	return true
}

type recordingQueue struct {
	jobs []notify.Job
}

func (q *recordingQueue) Enqueue(job notify.Job) { q.jobs = append(q.jobs, job) }

func tgID(v int64) *int64 { return &v }

func newTestRelay(store *fakeStore, pusher *fakePusher, queue *recordingQueue) (*Relay, *cache.Cache) {
	c := cache.New(cache.NewMemory())
	return New(store, store, store, pusher, c, queue), c
}

func twoUserStore() *fakeStore {
	return &fakeStore{
		members: map[uint][]uint{7: {1, 2}},
		users: map[uint]*models.User{
			1: {ID: 1, Nickname: "alice"},
			2: {ID: 2, Nickname: "bob"},
		},
	}
}

func TestHandleInbound_FanOutBothOnline(t *testing.T) {
	store := twoUserStore()
	pusher := newFakePusher(1, 2)
	queue := &recordingQueue{}
	rel, _ := newTestRelay(store, pusher, queue)

	sender := store.users[1]
	if err := rel.HandleInbound(context.Background(), sender, Inbound{ChatID: 7, Content: "hi"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	// 每个成员恰好一封，发送者也收到自己的回显。
	if len(pusher.sent[1]) != 1 || len(pusher.sent[2]) != 1 {
		t.Fatalf("fan-out incomplete: sender=%d recipient=%d, want 1/1", len(pusher.sent[1]), len(pusher.sent[2]))
	}
	own, theirs := pusher.sent[1][0], pusher.sent[2][0]
	if own.MessageID != theirs.MessageID || own.ChatID != theirs.ChatID {
		t.Errorf("envelopes disagree: %+v vs %+v", own, theirs)
	}
	if !own.IsMyMessage {
		t.Error("sender's envelope has isMyMessage = false, want true")
	}
	if theirs.IsMyMessage {
		t.Error("recipient's envelope has isMyMessage = true, want false")
	}
	if theirs.SenderID != 1 || theirs.Content != "hi" {
		t.Errorf("recipient envelope = %+v", theirs)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("offline jobs = %d, want 0", len(queue.jobs))
	}
}

func TestHandleInbound_PersistFailureNoFanOut(t *testing.T) {
	store := twoUserStore()
	store.appendErr = errors.New("db down")
	pusher := newFakePusher(1, 2)
	queue := &recordingQueue{}
	rel, _ := newTestRelay(store, pusher, queue)

	err := rel.HandleInbound(context.Background(), store.users[1], Inbound{ChatID: 7, Content: "hi"})
	if err == nil {
		t.Fatal("HandleInbound() error = nil, want persistence error")
	}
	if len(pusher.sent[1])+len(pusher.sent[2]) != 0 {
		t.Error("message fanned out despite failed persistence")
	}
	if len(queue.jobs) != 0 {
		t.Error("offline job enqueued despite failed persistence")
	}
}

func TestHandleInbound_OfflineRecipientWithTelegram(t *testing.T) {
	store := twoUserStore()
	store.users[2].TgID = tgID(555)
	pusher := newFakePusher(1) // user 2 offline
	queue := &recordingQueue{}
	rel, _ := newTestRelay(store, pusher, queue)

	if err := rel.HandleInbound(context.Background(), store.users[1], Inbound{ChatID: 7, Content: "ping"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("offline jobs = %d, want 1", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.TgChatID != 555 || job.Content != "ping" || job.SenderNick != "alice" {
		t.Errorf("job = %+v", job)
	}
	if len(pusher.sent[1]) != 1 {
		t.Error("online sender did not receive its echo")
	}
}

// Scenario: recipient offline with no external address bound.
func TestHandleInbound_OfflineRecipientWithoutTelegram(t *testing.T) {
	store := twoUserStore()
	pusher := newFakePusher(1)
	queue := &recordingQueue{}
	rel, c := newTestRelay(store, pusher, queue)

	// 预热历史缓存，验证写路径会将其失效。
	ctx := context.Background()
	c.SetJSON(ctx, cache.ChatHistoryKey(7), map[string]string{"stale": "view"})

	if err := rel.HandleInbound(ctx, store.users[1], Inbound{ChatID: 7, Content: "hi"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	if len(store.appended) != 1 {
		t.Fatalf("persisted messages = %d, want 1", len(store.appended))
	}
	if len(pusher.sent[1]) != 1 {
		t.Error("sender did not receive its echo")
	}
	if len(queue.jobs) != 0 {
		t.Error("offline job enqueued for a user with no telegram binding")
	}
	var stale map[string]string
	if c.GetJSON(ctx, cache.ChatHistoryKey(7), &stale) {
		t.Error("chat history cache not invalidated after append")
	}
}

func TestHandleInbound_PushFailureFallsBackToOffline(t *testing.T) {
	store := twoUserStore()
	store.users[2].TgID = tgID(999)
	pusher := newFakePusher(1, 2)
	// user 2 的连接在写入时失败。
	failing := &flakyPusher{fakePusher: pusher, failFor: 2}
	queue := &recordingQueue{}
	c := cache.New(cache.NewMemory())
	rel := New(store, store, store, failing, c, queue)

	if err := rel.HandleInbound(context.Background(), store.users[1], Inbound{ChatID: 7, Content: "yo"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("offline jobs = %d, want 1 after push failure", len(queue.jobs))
	}
	if queue.jobs[0].TgChatID != 999 {
		t.Errorf("job routed to %d, want 999", queue.jobs[0].TgChatID)
	}
}

type flakyPusher struct {
	*fakePusher
	failFor uint
}

func (p *flakyPusher) Send(userID uint, payload interface{}) bool {
	if userID == p.failFor {
		return false
	}
	return p.fakePusher.Send(userID, payload)
}

func TestHandleInbound_RejectsInvalidShape(t *testing.T) {
	store := twoUserStore()
	pusher := newFakePusher(1, 2)
	queue := &recordingQueue{}
	rel, _ := newTestRelay(store, pusher, queue)
	sender := store.users[1]

	tests := []struct {
		name string
		in   Inbound
	}{
		{"missing chat id", Inbound{Content: "hi"}},
		{"empty content", Inbound{ChatID: 7}},
		{"blank content", Inbound{ChatID: 7, Content: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rel.HandleInbound(context.Background(), sender, tt.in)
			if !errors.Is(err, ErrInvalidInbound) {
				t.Errorf("HandleInbound() error = %v, want ErrInvalidInbound", err)
			}
		})
	}
	if len(store.appended) != 0 {
		t.Error("invalid inbound was persisted")
	}
}

func TestHandleInbound_EnvelopeTimeIsUTC(t *testing.T) {
	store := twoUserStore()
	pusher := newFakePusher(1, 2)
	rel, _ := newTestRelay(store, pusher, &recordingQueue{})

	if err := rel.HandleInbound(context.Background(), store.users[1], Inbound{ChatID: 7, Content: "x"}); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	env := pusher.sent[2][0]
	ts, err := time.Parse(time.RFC3339, env.Time)
	if err != nil {
		t.Fatalf("envelope time %q is not RFC3339: %v", env.Time, err)
	}
	if ts.Location() != time.UTC {
		t.Errorf("envelope time zone = %v, want UTC", ts.Location())
	}
}
