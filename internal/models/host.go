package models

import "time"

type Host struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Username       string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	PasswordHash   string    `gorm:"size:255;not null" json:"-"`
	TelegramChatID int64     `gorm:"default:0" json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
