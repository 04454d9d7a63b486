package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Kylemerian/real-time-web-chat/internal/cache"
	"github.com/Kylemerian/real-time-web-chat/internal/metrics"
	"github.com/Kylemerian/real-time-web-chat/internal/models"
	"github.com/Kylemerian/real-time-web-chat/internal/notify"
	"github.com/rs/zerolog/log"
)

// ErrInvalidInbound 表示入站消息缺少 chat id 或正文。
var ErrInvalidInbound = errors.New("inbound message must carry chat_id and content")

// Inbound 是客户端经实时连接发来的消息。
type Inbound struct {
	ChatID  uint   `json:"chat_id"`
	Content string `json:"content"`
}

// Envelope 是扇出给每个成员的出站信封，发送者也会收到自己的回显，
// IsMyMessage 供客户端区分两侧渲染。
type Envelope struct {
	ChatID      uint   `json:"chat_id"`
	Content     string `json:"content"`
	IsMyMessage bool   `json:"isMyMessage"`
	MessageID   uint   `json:"message_id"`
	SenderID    uint   `json:"sender_id"`
	Time        string `json:"time"`
}

// MessageStore / MemberStore / UserStore 是中继对存储层的全部依赖，
// service 层的具体类型满足这些接口。
type MessageStore interface {
	Append(ctx context.Context, chatID, senderID uint, text string, now time.Time) (*models.Message, error)
}

type MemberStore interface {
	MemberIDs(ctx context.Context, chatID uint) ([]uint, error)
}

type UserStore interface {
	ByID(ctx context.Context, userID uint) (*models.User, error)
}

// Pusher 是对连接注册表的投递视角。
type Pusher interface {
	Send(userID uint, payload interface{}) bool
}

// Relay 编排一条入站消息的完整处理：落库、缓存失效、逐成员投递，
// 在线走注册表推送，离线回退到通知队列。
type Relay struct {
	msgs    MessageStore
	members MemberStore
	users   UserStore
	pusher  Pusher
	cache   *cache.Cache
	queue   notify.Enqueuer
}

func New(msgs MessageStore, members MemberStore, users UserStore, pusher Pusher, c *cache.Cache, queue notify.Enqueuer) *Relay {
	return &Relay{msgs: msgs, members: members, users: users, pusher: pusher, cache: c, queue: queue}
}

// HandleInbound 处理一条入站消息。持久化失败立即返回，绝不扇出
// 未落库的消息；单个收件人的投递失败只记日志，不影响其余收件人。
func (r *Relay) HandleInbound(ctx context.Context, sender *models.User, in Inbound) error {
	if in.ChatID == 0 || strings.TrimSpace(in.Content) == "" {
		return ErrInvalidInbound
	}

	msg, err := r.msgs.Append(ctx, in.ChatID, sender.ID, in.Content, time.Now().UTC())
	if err != nil {
		return err
	}
	r.cache.InvalidateChatHistory(ctx, in.ChatID)

	memberIDs, err := r.members.MemberIDs(ctx, in.ChatID)
	if err != nil {
		log.Error().Err(err).Uint("chat_id", in.ChatID).Msg("relay: membership lookup failed, message persisted but not delivered")
		return err
	}

	for _, uid := range memberIDs {
		env := Envelope{
			ChatID:      msg.ChatID,
			Content:     msg.Text,
			IsMyMessage: uid == sender.ID,
			MessageID:   msg.ID,
			SenderID:    sender.ID,
			Time:        msg.Time.UTC().Format(time.RFC3339),
		}
		if r.pusher.Send(uid, env) {
			continue
		}
		// 推送失败与离线同路：查外部地址，未绑定则静默丢弃。
		r.notifyOffline(ctx, uid, sender, msg)
	}
	metrics.MessagesRelayed.Inc()
	return nil
}

func (r *Relay) notifyOffline(ctx context.Context, userID uint, sender *models.User, msg *models.Message) {
	user, err := r.users.ByID(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Msg("relay: recipient lookup failed")
		return
	}
	if user.TgID == nil {
		return
	}
	r.queue.Enqueue(notify.Job{
		TgChatID:   *user.TgID,
		ChatID:     msg.ChatID,
		MessageID:  msg.ID,
		Content:    msg.Text,
		SentAt:     msg.Time,
		SenderNick: sender.Nickname,
	})
}
