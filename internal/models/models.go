package models

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Nickname     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	// TgID 是绑定的 Telegram chat id，未绑定时为空，离线通知走这里。
	TgID      *int64 `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Chat struct {
	ID        uint   `gorm:"primaryKey"`
	ChatName  string `gorm:"size:128"`
	HostID    uint   `gorm:"not null"`
	CreatedAt time.Time
}

// ChatMember 是 chat 与 user 的多对多关联，两人会话固定两行。
type ChatMember struct {
	ID     uint `gorm:"primaryKey"`
	ChatID uint `gorm:"index:idx_member_chat;uniqueIndex:idx_chat_user;not null"`
	UserID uint `gorm:"index;uniqueIndex:idx_chat_user;not null"`
}

type Message struct {
	ID       uint      `gorm:"primaryKey"`
	ChatID   uint      `gorm:"index:idx_msg_chat;not null"`
	SenderID uint      `gorm:"index;not null"`
	Text     string    `gorm:"type:text;not null"`
	Time     time.Time `gorm:"index;not null"`
}
