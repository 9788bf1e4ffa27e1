package models

import (
	"time"

	"gorm.io/gorm"
)

type Participant struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SessionID   uint           `gorm:"not null;index" json:"session_id"`
	DisplayName string         `gorm:"size:100;not null" json:"display_name"`
	JoinedAt    time.Time      `json:"joined_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
