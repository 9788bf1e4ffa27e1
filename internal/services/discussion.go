package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"

	"gorm.io/gorm"
)

const (
	maxMessageLength = 4000
	maxTurns         = 40
)

// DiscussionService runs the post-vote conversations between participants
// and the nugget or lightbulb agent.
type DiscussionService struct {
	db        *gorm.DB
	completer Completer
	model     ModelConfig

	// OnAllCompleted is called after the last open discussion of a session
	// is completed.
	OnAllCompleted func(sessionID uint)
}

func NewDiscussionService(db *gorm.DB, completer Completer, model ModelConfig) *DiscussionService {
	return &DiscussionService{db: db, completer: completer, model: model}
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

// StartDiscussion opens the participant's conversation, or returns the one
// already open. The agent type follows the participant's finalized label.
func (s *DiscussionService) StartDiscussion(ctx context.Context, sc SessionContext) (*models.Discussion, error) {
	var discussion models.Discussion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.conversationSession(tx, sc.SessionID)
		if err != nil {
			return err
		}

		err = tx.Where("session_id = ? AND participant_id = ?", session.ID, sc.ParticipantID).
			Preload("Messages", orderedMessages).
			First(&discussion).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load discussion: %w", err)
		}

		var participant models.Participant
		if err := tx.Where("id = ? AND session_id = ?", sc.ParticipantID, session.ID).
			First(&participant).Error; err != nil {
			return lookupErr(err, "participant not found in session")
		}

		var entry models.TallyEntry
		if err := tx.Where("session_id = ? AND participant_id = ?", session.ID, participant.ID).
			First(&entry).Error; err != nil {
			return lookupErr(err, "participant has no tally entry")
		}

		discussion = models.Discussion{
			SessionID:     session.ID,
			ParticipantID: participant.ID,
			AgentType:     entry.Label,
			Status:        models.DiscussionStatusOpen,
		}
		if err := tx.Create(&discussion).Error; err != nil {
			return fmt.Errorf("create discussion: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &discussion, nil
}

// GetDiscussion returns the participant's discussion with its messages.
func (s *DiscussionService) GetDiscussion(ctx context.Context, sc SessionContext) (*models.Discussion, error) {
	var discussion models.Discussion
	if err := s.db.WithContext(ctx).
		Where("session_id = ? AND participant_id = ?", sc.SessionID, sc.ParticipantID).
		Preload("Messages", orderedMessages).
		First(&discussion).Error; err != nil {
		return nil, lookupErr(err, "discussion not found")
	}
	return &discussion, nil
}

type DiscussionReply struct {
	Message models.DiscussionMessage `json:"message"`
	Reply   models.DiscussionMessage `json:"reply"`
}

// SendMessage appends the participant's message, asks the agent for the
// next turn and appends its reply. The participant message is kept when the
// completion fails so the participant can retry without retyping.
func (s *DiscussionService) SendMessage(ctx context.Context, sc SessionContext, content string) (*DiscussionReply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.New(apperr.CodeValidation, "message content is required")
	}
	if len(content) > maxMessageLength {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}

	db := s.db.WithContext(ctx)
	var (
		discussion  models.Discussion
		participant models.Participant
		entry       models.TallyEntry
		userMsg     models.DiscussionMessage
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.conversationSession(tx, sc.SessionID); err != nil {
			return err
		}
		if err := tx.Where("session_id = ? AND participant_id = ?", sc.SessionID, sc.ParticipantID).
			Preload("Messages", orderedMessages).
			First(&discussion).Error; err != nil {
			return lookupErr(err, "discussion not found")
		}
		if discussion.Status != models.DiscussionStatusOpen {
			return apperr.New(apperr.CodeInvalidState, "discussion is already completed")
		}
		if len(discussion.Messages) >= maxTurns*2 {
			return apperr.New(apperr.CodeInvalidState, "discussion has reached its message limit")
		}
		if err := tx.Unscoped().First(&participant, discussion.ParticipantID).Error; err != nil {
			return lookupErr(err, "participant not found")
		}
		if err := tx.Where("session_id = ? AND participant_id = ?", sc.SessionID, participant.ID).
			Limit(1).Find(&entry).Error; err != nil {
			return fmt.Errorf("load tally entry: %w", err)
		}

		userMsg = models.DiscussionMessage{
			DiscussionID: discussion.ID,
			Role:         models.RoleUser,
			Content:      content,
		}
		return tx.Create(&userMsg).Error
	})
	if err != nil {
		return nil, err
	}

	history := make([]ChatMessage, 0, len(discussion.Messages)+1)
	for _, m := range discussion.Messages {
		history = append(history, ChatMessage{Role: m.Role, Content: m.Content})
	}
	history = append(history, ChatMessage{Role: models.RoleUser, Content: content})

	text, err := s.completer.Complete(ctx, Prompt{
		System:   agentSystemPrompt(discussion.AgentType, participant.DisplayName, entry.VoteCount),
		Messages: history,
	}, s.model)
	if err != nil {
		log.Printf("discussion %d: completion failed: %v", discussion.ID, err)
		return nil, err
	}

	reply := models.DiscussionMessage{
		DiscussionID: discussion.ID,
		Role:         models.RoleAssistant,
		Content:      text,
	}
	if err := db.Create(&reply).Error; err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}
	return &DiscussionReply{Message: userMsg, Reply: reply}, nil
}

// CompleteDiscussion closes the participant's discussion. Completing an
// already completed discussion is a no-op.
func (s *DiscussionService) CompleteDiscussion(ctx context.Context, sc SessionContext) (*models.Discussion, error) {
	now := sc.now()
	db := s.db.WithContext(ctx)

	var discussion models.Discussion
	changed := false
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.conversationSession(tx, sc.SessionID); err != nil {
			return err
		}
		if err := tx.Where("session_id = ? AND participant_id = ?", sc.SessionID, sc.ParticipantID).
			First(&discussion).Error; err != nil {
			return lookupErr(err, "discussion not found")
		}
		res := tx.Model(&models.Discussion{}).
			Where("id = ? AND status = ?", discussion.ID, models.DiscussionStatusOpen).
			Updates(map[string]any{"status": models.DiscussionStatusCompleted, "completed_at": now})
		if res.Error != nil {
			return fmt.Errorf("complete discussion: %w", res.Error)
		}
		changed = res.RowsAffected > 0
		return tx.Preload("Messages", orderedMessages).First(&discussion, discussion.ID).Error
	})
	if err != nil {
		return nil, err
	}

	if changed && s.OnAllCompleted != nil {
		var open int64
		if err := db.Model(&models.Discussion{}).
			Where("session_id = ? AND status = ?", sc.SessionID, models.DiscussionStatusOpen).
			Count(&open).Error; err != nil {
			log.Printf("discussion %d: count open discussions: %v", discussion.ID, err)
		} else if open == 0 {
			s.OnAllCompleted(sc.SessionID)
		}
	}
	return &discussion, nil
}

type DiscussionSummary struct {
	ID            uint       `json:"id"`
	ParticipantID uint       `json:"participant_id"`
	DisplayName   string     `json:"display_name"`
	AgentType     string     `json:"agent_type"`
	Status        string     `json:"status"`
	MessageCount  int        `json:"message_count"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ListDiscussions summarizes every discussion of a host's session.
func (s *DiscussionService) ListDiscussions(ctx context.Context, sc SessionContext) ([]DiscussionSummary, error) {
	db := s.db.WithContext(ctx)
	var session models.Session
	if err := db.Where("id = ? AND host_id = ?", sc.SessionID, sc.HostID).First(&session).Error; err != nil {
		return nil, lookupErr(err, "session not found")
	}

	var discussions []models.Discussion
	if err := db.Where("session_id = ?", session.ID).
		Preload("Messages", orderedMessages).
		Order("created_at ASC, id ASC").
		Find(&discussions).Error; err != nil {
		return nil, fmt.Errorf("list discussions: %w", err)
	}
	names, err := displayNames(db, session.ID)
	if err != nil {
		return nil, err
	}

	result := make([]DiscussionSummary, len(discussions))
	for i, d := range discussions {
		result[i] = DiscussionSummary{
			ID:            d.ID,
			ParticipantID: d.ParticipantID,
			DisplayName:   names[d.ParticipantID],
			AgentType:     d.AgentType,
			Status:        d.Status,
			MessageCount:  len(d.Messages),
			CreatedAt:     d.CreatedAt,
			CompletedAt:   d.CompletedAt,
		}
	}
	return result, nil
}

func (s *DiscussionService) conversationSession(tx *gorm.DB, sessionID uint) (*models.Session, error) {
	var session models.Session
	if err := tx.First(&session, sessionID).Error; err != nil {
		return nil, lookupErr(err, "session not found")
	}
	if session.Status != models.SessionStatusAIDiscussion {
		return nil, apperr.WithMetadata(apperr.CodeInvalidState,
			"discussions are not open for this session",
			map[string]string{"status": session.Status})
	}
	return &session, nil
}

// displayNames maps participant IDs to names, soft-deleted ones included.
func displayNames(db *gorm.DB, sessionID uint) (map[uint]string, error) {
	var participants []models.Participant
	if err := db.Unscoped().Where("session_id = ?", sessionID).Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	names := make(map[uint]string, len(participants))
	for _, p := range participants {
		names[p.ID] = p.DisplayName
	}
	return names, nil
}
