package models

import "time"

type Session struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	HostID       uint          `gorm:"not null;index" json:"host_id"`
	Host         Host          `gorm:"foreignKey:HostID;constraint:OnDelete:CASCADE" json:"-"`
	Title        string        `gorm:"size:255;not null" json:"title"`
	Code         string        `gorm:"size:6;index" json:"code"`
	Status       string        `gorm:"size:20;not null;default:'draft';index" json:"status"`
	VoteSettings VoteSettings  `gorm:"embedded;embeddedPrefix:vote_" json:"vote_settings"`
	Participants []Participant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`

	StartedAt             *time.Time `json:"started_at,omitempty"`
	EndedAt               *time.Time `json:"ended_at,omitempty"`
	TallyFinalizedAt      *time.Time `json:"tally_finalized_at,omitempty"`
	AIDiscussionStartedAt *time.Time `gorm:"column:ai_discussion_started_at" json:"ai_discussion_started_at,omitempty"`
	ArchivedAt            *time.Time `json:"archived_at,omitempty"`

	AnalysisStatus   string `gorm:"size:20;not null;default:''" json:"analysis_status"`
	AnalysisType     string `gorm:"size:20;not null;default:''" json:"analysis_type,omitempty"`
	AnalysisProgress int    `gorm:"not null;default:0" json:"analysis_progress"`
	AnalysisRunID    string `gorm:"size:36;not null;default:''" json:"analysis_run_id,omitempty"`
	AnalysisError    string `gorm:"type:text" json:"analysis_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type VoteSettings struct {
	MaxVotesPerParticipant int  `gorm:"not null;default:3" json:"max_votes_per_participant"`
	RequireReason          bool `gorm:"not null;default:false" json:"require_reason"`
	VotingDurationSeconds  int  `gorm:"not null;default:1200" json:"voting_duration_seconds"`
	TopVotedCount          int  `gorm:"not null;default:3" json:"top_voted_count"`
}

const (
	SessionStatusDraft        = "draft"
	SessionStatusActive       = "active"
	SessionStatusEnded        = "ended"
	SessionStatusAIDiscussion = "ai_discussion"
	SessionStatusArchived     = "archived"
)

// SessionStatusOrder returns the position of status in the lifecycle, or -1.
func SessionStatusOrder(status string) int {
	switch status {
	case SessionStatusDraft:
		return 0
	case SessionStatusActive:
		return 1
	case SessionStatusEnded:
		return 2
	case SessionStatusAIDiscussion:
		return 3
	case SessionStatusArchived:
		return 4
	default:
		return -1
	}
}

// VotingDeadline is startedAt + votingDurationSeconds, or the zero time when
// voting never started.
func (s *Session) VotingDeadline() time.Time {
	if s.StartedAt == nil {
		return time.Time{}
	}
	return s.StartedAt.Add(time.Duration(s.VoteSettings.VotingDurationSeconds) * time.Second)
}
