package models

import "time"

type Vote struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	SessionID             uint      `gorm:"not null;uniqueIndex:idx_vote_unique;index:idx_vote_voter" json:"session_id"`
	VoterParticipantID    uint      `gorm:"not null;uniqueIndex:idx_vote_unique;index:idx_vote_voter" json:"voter_participant_id"`
	VotedForParticipantID uint      `gorm:"not null;uniqueIndex:idx_vote_unique" json:"voted_for_participant_id"`
	Reason                string    `gorm:"type:text" json:"reason,omitempty"`
	CastAt                time.Time `gorm:"not null" json:"cast_at"`
}

// TallyEntry is the ranked result for one participant, written once when the
// tally is finalized.
type TallyEntry struct {
	ID            uint       `gorm:"primaryKey" json:"-"`
	SessionID     uint       `gorm:"not null;uniqueIndex:idx_tally_participant" json:"session_id"`
	ParticipantID uint       `gorm:"not null;uniqueIndex:idx_tally_participant" json:"participant_id"`
	DisplayName   string     `gorm:"size:100" json:"display_name"`
	VoteCount     int        `gorm:"not null;default:0" json:"vote_count"`
	FirstVoteAt   *time.Time `json:"first_vote_at,omitempty"`
	Rank          int        `gorm:"not null" json:"rank"`
	Label         string     `gorm:"size:20;not null" json:"label"`
}

const (
	LabelNugget    = "nugget"
	LabelLightbulb = "lightbulb"
)
