package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxReasonLength = 2000

type VoteService struct {
	db    *gorm.DB
	tally *TallyService
}

func NewVoteService(db *gorm.DB, tally *TallyService) *VoteService {
	return &VoteService{db: db, tally: tally}
}

// CastVote records a vote from sc.ParticipantID for targetID.
func (s *VoteService) CastVote(ctx context.Context, sc SessionContext, targetID uint, reason string) (*models.Vote, error) {
	now := sc.now()
	reason = strings.TrimSpace(reason)

	if targetID == 0 {
		return nil, apperr.New(apperr.CodeValidation, "target participant is required")
	}
	if sc.ParticipantID == targetID {
		return nil, apperr.New(apperr.CodeValidation, "you cannot vote for yourself")
	}
	if len(reason) > maxReasonLength {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("reason must be at most %d characters", maxReasonLength))
	}

	var vote models.Vote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.First(&session, sc.SessionID).Error; err != nil {
			return lookupErr(err, "session not found")
		}
		if session.Status != models.SessionStatusActive || !now.Before(session.VotingDeadline()) {
			return notActive(&session)
		}

		// On postgres the voter row lock serializes concurrent votes by the same
		// voter so the limit check below cannot be raced. SQLite transactions
		// are already serialized.
		voterQuery := tx
		if tx.Dialector.Name() == "postgres" {
			voterQuery = voterQuery.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var voter models.Participant
		if err := voterQuery.Where("id = ? AND session_id = ?", sc.ParticipantID, session.ID).
			First(&voter).Error; err != nil {
			return lookupErr(err, "participant not found in session")
		}

		var target models.Participant
		if err := tx.Where("id = ? AND session_id = ?", targetID, session.ID).
			First(&target).Error; err != nil {
			return lookupErr(err, "target participant not found in session")
		}

		var existing int64
		if err := tx.Model(&models.Vote{}).
			Where("session_id = ? AND voter_participant_id = ? AND voted_for_participant_id = ?",
				session.ID, voter.ID, target.ID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check duplicate vote: %w", err)
		}
		if existing > 0 {
			return apperr.New(apperr.CodeDuplicateVote, "you already voted for this participant")
		}

		var cast int64
		if err := tx.Model(&models.Vote{}).
			Where("session_id = ? AND voter_participant_id = ?", session.ID, voter.ID).
			Count(&cast).Error; err != nil {
			return fmt.Errorf("count votes: %w", err)
		}
		if int(cast) >= session.VoteSettings.MaxVotesPerParticipant {
			return apperr.WithMetadata(
				apperr.CodeVoteLimitExceeded,
				fmt.Sprintf("you have used all %d votes", session.VoteSettings.MaxVotesPerParticipant),
				map[string]string{"max_votes": fmt.Sprint(session.VoteSettings.MaxVotesPerParticipant)},
			)
		}

		if session.VoteSettings.RequireReason && reason == "" {
			return apperr.New(apperr.CodeReasonRequired, "a reason is required for each vote")
		}

		vote = models.Vote{
			SessionID:             session.ID,
			VoterParticipantID:    voter.ID,
			VotedForParticipantID: target.ID,
			Reason:                reason,
			CastAt:                now,
		}
		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.New(apperr.CodeDuplicateVote, "you already voted for this participant")
			}
			return fmt.Errorf("insert vote: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

type VoterSummary struct {
	Votes          []models.Vote `json:"votes"`
	MaxVotes       int           `json:"max_votes"`
	RemainingVotes int           `json:"remaining_votes"`
	RequireReason  bool          `json:"require_reason"`
}

// MyVotes lists the votes cast by sc.ParticipantID and what is left.
func (s *VoteService) MyVotes(ctx context.Context, sc SessionContext) (*VoterSummary, error) {
	db := s.db.WithContext(ctx)

	var session models.Session
	if err := db.First(&session, sc.SessionID).Error; err != nil {
		return nil, lookupErr(err, "session not found")
	}

	var votes []models.Vote
	if err := db.Where("session_id = ? AND voter_participant_id = ?", session.ID, sc.ParticipantID).
		Order("cast_at ASC, id ASC").
		Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}

	remaining := session.VoteSettings.MaxVotesPerParticipant - len(votes)
	if remaining < 0 {
		remaining = 0
	}
	return &VoterSummary{
		Votes:          votes,
		MaxVotes:       session.VoteSettings.MaxVotesPerParticipant,
		RemainingVotes: remaining,
		RequireReason:  session.VoteSettings.RequireReason,
	}, nil
}

// LiveTally recomputes the ranking from the current vote rows.
func (s *VoteService) LiveTally(ctx context.Context, sessionID uint) ([]models.TallyEntry, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).First(&session, sessionID).Error; err != nil {
		return nil, lookupErr(err, "session not found")
	}
	return s.computeTally(s.db.WithContext(ctx), &session)
}

// FinalTally returns the snapshot written by FinalizeTally.
func (s *VoteService) FinalTally(ctx context.Context, sessionID uint) ([]models.TallyEntry, error) {
	var entries []models.TallyEntry
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("rank ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load tally: %w", err)
	}
	return entries, nil
}

// Tally returns the final tally once it exists, otherwise the live one.
func (s *VoteService) Tally(ctx context.Context, session *models.Session) ([]models.TallyEntry, bool, error) {
	if session.TallyFinalizedAt != nil {
		entries, err := s.FinalTally(ctx, session.ID)
		return entries, true, err
	}
	entries, err := s.computeTally(s.db.WithContext(ctx), session)
	return entries, false, err
}

// FinalizeTally ranks the session's votes and persists the nugget/lightbulb
// partition. It must run inside the endVoting transaction.
func (s *VoteService) FinalizeTally(tx *gorm.DB, session *models.Session, now time.Time) ([]models.TallyEntry, error) {
	entries, err := s.computeTally(tx, session)
	if err != nil {
		return nil, err
	}

	if err := tx.Where("session_id = ?", session.ID).Delete(&models.TallyEntry{}).Error; err != nil {
		return nil, fmt.Errorf("clear tally: %w", err)
	}
	if len(entries) > 0 {
		if err := tx.Create(&entries).Error; err != nil {
			return nil, fmt.Errorf("store tally: %w", err)
		}
	}
	if err := tx.Model(&models.Session{}).Where("id = ?", session.ID).
		Update("tally_finalized_at", now).Error; err != nil {
		return nil, fmt.Errorf("stamp tally: %w", err)
	}
	session.TallyFinalizedAt = &now
	return entries, nil
}

// LabelFor returns the finalized label of a participant.
func (s *VoteService) LabelFor(ctx context.Context, sessionID, participantID uint) (string, error) {
	var entry models.TallyEntry
	if err := s.db.WithContext(ctx).
		Where("session_id = ? AND participant_id = ?", sessionID, participantID).
		First(&entry).Error; err != nil {
		return "", lookupErr(err, "participant has no tally entry")
	}
	return entry.Label, nil
}

func (s *VoteService) computeTally(db *gorm.DB, session *models.Session) ([]models.TallyEntry, error) {
	// Soft-deleted participants keep their received votes in the tally.
	var participants []models.Participant
	if err := db.Unscoped().Where("session_id = ?", session.ID).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	var votes []models.Vote
	if err := db.Where("session_id = ?", session.ID).
		Order("id ASC").
		Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}

	return s.tally.Rank(session.ID, participants, votes, session.VoteSettings.TopVotedCount), nil
}
