package models

import (
	"time"

	"gorm.io/gorm"
)

type Discussion struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	SessionID     uint                `gorm:"not null;uniqueIndex:idx_discussion_participant" json:"session_id"`
	ParticipantID uint                `gorm:"not null;uniqueIndex:idx_discussion_participant" json:"participant_id"`
	AgentType     string              `gorm:"size:20;not null" json:"agent_type"`
	Status        string              `gorm:"size:20;not null;default:'open'" json:"status"`
	Messages      []DiscussionMessage `gorm:"foreignKey:DiscussionID" json:"messages,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	DeletedAt     gorm.DeletedAt      `gorm:"index" json:"-"`
}

type DiscussionMessage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DiscussionID uint      `gorm:"not null;index" json:"discussion_id"`
	Role         string    `gorm:"size:20;not null" json:"role"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	AgentTypeNugget    = "nugget"
	AgentTypeLightbulb = "lightbulb"

	DiscussionStatusOpen      = "open"
	DiscussionStatusCompleted = "completed"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)
