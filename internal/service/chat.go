package service

import (
	"context"
	"time"

	"github.com/Kylemerian/real-time-web-chat/internal/cache"
	"github.com/Kylemerian/real-time-web-chat/internal/models"
	"gorm.io/gorm"
)

// ChatService 封装两人会话的创建与列表查询。
type ChatService struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewChatService(db *gorm.DB, c *cache.Cache) *ChatService {
	return &ChatService{db: db, cache: c}
}

// ChatSummary 是会话列表里的一项，带对端信息与最后一条消息预览。
// Online 字段不参与缓存，由 handler 每次按注册表现场填充。
type ChatSummary struct {
	ChatID        uint       `json:"chat_id"`
	ChatName      string     `json:"chat_name"`
	CompanionID   uint       `json:"companion_id"`
	CompanionNick string     `json:"companion_nick"`
	LastMessage   string     `json:"last_message"`
	LastTime      *time.Time `json:"last_time"`
	Online        bool       `json:"online"`
}

// Create 为两个用户建立会话；若二人已有会话则幂等返回既有 chat id。
// 新建成功后仅使创建者的会话列表缓存失效。
func (s *ChatService) Create(ctx context.Context, creatorID, userID1, userID2 uint) (uint, error) {
	// 两人必须不同：自连接会让 findExisting 的 JOIN 匹配该用户的任意会话。
	if userID1 == userID2 {
		return 0, ErrSameUser
	}
	for _, uid := range []uint{userID1, userID2} {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Count(&count).Error; err != nil {
			return 0, err
		}
		if count == 0 {
			return 0, ErrUserNotFound
		}
	}

	if chatID, err := s.findExisting(ctx, userID1, userID2); err != nil {
		return 0, err
	} else if chatID != 0 {
		return chatID, nil
	}

	var chat models.Chat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat = models.Chat{HostID: creatorID}
		if err := tx.Create(&chat).Error; err != nil {
			return err
		}
		members := []models.ChatMember{
			{ChatID: chat.ID, UserID: userID1},
			{ChatID: chat.ID, UserID: userID2},
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return 0, err
	}
	s.cache.InvalidateUserChats(ctx, creatorID)
	return chat.ID, nil
}

// findExisting 查找二人已共享的会话，没有则返回 0。
func (s *ChatService) findExisting(ctx context.Context, userID1, userID2 uint) (uint, error) {
	var chatIDs []uint
	err := s.db.WithContext(ctx).
		Table("chat_members AS a").
		Select("a.chat_id").
		Joins("JOIN chat_members AS b ON a.chat_id = b.chat_id").
		Where("a.user_id = ? AND b.user_id = ?", userID1, userID2).
		Limit(1).
		Scan(&chatIDs).Error
	if err != nil {
		return 0, err
	}
	if len(chatIDs) == 0 {
		return 0, nil
	}
	return chatIDs[0], nil
}

// MemberIDs 返回会话的全部成员 id。
func (s *ChatService) MemberIDs(ctx context.Context, chatID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ?", chatID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *ChatService) IsMember(ctx context.Context, chatID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

// ListForUser 读取用户的会话列表，走 cache-aside：命中直接返回，
// miss 时查库并以 TTL 回填。
func (s *ChatService) ListForUser(ctx context.Context, userID uint) ([]ChatSummary, error) {
	key := cache.UserChatsKey(userID)
	var cached []ChatSummary
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	var chatIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("user_id = ?", userID).
		Pluck("chat_id", &chatIDs).Error; err != nil {
		return nil, err
	}
	if len(chatIDs) == 0 {
		out := []ChatSummary{}
		s.cache.SetJSON(ctx, key, out)
		return out, nil
	}

	var chats []models.Chat
	if err := s.db.WithContext(ctx).Where("id IN ?", chatIDs).Find(&chats).Error; err != nil {
		return nil, err
	}
	var members []models.ChatMember
	if err := s.db.WithContext(ctx).Where("chat_id IN ?", chatIDs).Find(&members).Error; err != nil {
		return nil, err
	}

	companionByChat := make(map[uint]uint, len(chatIDs))
	companionIDs := make([]uint, 0, len(chatIDs))
	for _, m := range members {
		if m.UserID == userID {
			continue
		}
		companionByChat[m.ChatID] = m.UserID
		companionIDs = append(companionIDs, m.UserID)
	}
	nicknames := make(map[uint]string, len(companionIDs))
	if len(companionIDs) > 0 {
		var users []models.User
		if err := s.db.WithContext(ctx).Select("id", "nickname").Where("id IN ?", companionIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			nicknames[u.ID] = u.Nickname
		}
	}

	out := make([]ChatSummary, 0, len(chats))
	for _, ch := range chats {
		sum := ChatSummary{
			ChatID:        ch.ID,
			ChatName:      ch.ChatName,
			CompanionID:   companionByChat[ch.ID],
			CompanionNick: nicknames[companionByChat[ch.ID]],
		}
		var last []models.Message
		if err := s.db.WithContext(ctx).Where("chat_id = ?", ch.ID).
			Order("id desc").Limit(1).Find(&last).Error; err != nil {
			return nil, err
		}
		if len(last) > 0 {
			t := last[0].Time
			sum.LastMessage = last[0].Text
			sum.LastTime = &t
		}
		out = append(out, sum)
	}
	s.cache.SetJSON(ctx, key, out)
	return out, nil
}
