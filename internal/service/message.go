package service

import (
	"context"
	"time"

	"github.com/Kylemerian/real-time-web-chat/internal/cache"
	"github.com/Kylemerian/real-time-web-chat/internal/models"
	"gorm.io/gorm"
)

// MessageService 封装消息落库与历史查询。
type MessageService struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewMessageService(db *gorm.DB, c *cache.Cache) *MessageService {
	return &MessageService{db: db, cache: c}
}

// MessageDTO 是对外输出的消息数据，字段名与实时信封保持一致。
type MessageDTO struct {
	MessageID uint      `json:"message_id"`
	ChatID    uint      `json:"chat_id"`
	SenderID  uint      `json:"sender_id"`
	Content   string    `json:"content"`
	Time      time.Time `json:"time"`
}

// HistoryView 是 chat_history 键下的缓存值。成员 id 一并缓存，
// 对端 uid 因查看者而异，由 handler 基于 MemberIDs 现场推导，
// 同一份缓存可服务会话双方。
type HistoryView struct {
	Messages  []MessageDTO `json:"messages"`
	MemberIDs []uint       `json:"member_ids"`
}

// Append 持久化一条消息，发送者必须是会话成员。
func (s *MessageService) Append(ctx context.Context, chatID, senderID uint, text string, now time.Time) (*models.Message, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, senderID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotAMember
	}
	msg := models.Message{ChatID: chatID, SenderID: senderID, Text: text, Time: now.UTC()}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// History 读取会话历史，时间升序、同刻按 id 升序。
// 非成员得到空视图而非错误，且不回填缓存以免污染成员读取。
func (s *MessageService) History(ctx context.Context, chatID, viewerID uint) (*HistoryView, error) {
	var isMember int64
	if err := s.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, viewerID).
		Count(&isMember).Error; err != nil {
		return nil, err
	}
	if isMember == 0 {
		return &HistoryView{Messages: []MessageDTO{}}, nil
	}

	key := cache.ChatHistoryKey(chatID)
	var cached HistoryView
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	var memberIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ?", chatID).
		Order("user_id").
		Pluck("user_id", &memberIDs).Error; err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("time asc, id asc").
		Find(&msgs).Error; err != nil {
		return nil, err
	}

	view := HistoryView{Messages: make([]MessageDTO, 0, len(msgs)), MemberIDs: memberIDs}
	for _, m := range msgs {
		view.Messages = append(view.Messages, MessageDTO{
			MessageID: m.ID,
			ChatID:    m.ChatID,
			SenderID:  m.SenderID,
			Content:   m.Text,
			Time:      m.Time,
		})
	}
	s.cache.SetJSON(ctx, key, view)
	return &view, nil
}
