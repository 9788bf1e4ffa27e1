package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"

	"gorm.io/gorm"
)

var DefaultVoteSettings = models.VoteSettings{
	MaxVotesPerParticipant: 3,
	RequireReason:          false,
	VotingDurationSeconds:  1200,
	TopVotedCount:          3,
}

const (
	maxVotesLimit        = 100
	maxVotingDuration    = 24 * 60 * 60
	maxTopVotedCount     = 1000
	maxDisplayNameLength = 100
	maxTitleLength       = 255
)

type SessionService struct {
	db       *gorm.DB
	votes    *VoteService
	notifier progress.Notifier
}

func NewSessionService(db *gorm.DB, votes *VoteService, notifier progress.Notifier) *SessionService {
	if notifier == nil {
		notifier = progress.Discard{}
	}
	return &SessionService{db: db, votes: votes, notifier: notifier}
}

// VoteSettingsInput is the startVoting payload. Nil fields fall back to
// DefaultVoteSettings.
type VoteSettingsInput struct {
	MaxVotesPerParticipant *int  `json:"max_votes_per_participant" example:"3"`
	RequireReason          *bool `json:"require_reason" example:"false"`
	VotingDurationSeconds  *int  `json:"voting_duration_seconds" example:"1200"`
	TopVotedCount          *int  `json:"top_voted_count" example:"3"`
}

// Resolve validates the input and fills in defaults.
func (in *VoteSettingsInput) Resolve() (models.VoteSettings, error) {
	settings := DefaultVoteSettings
	if in == nil {
		return settings, nil
	}

	var problems []string
	if in.MaxVotesPerParticipant != nil {
		if v := *in.MaxVotesPerParticipant; v < 1 || v > maxVotesLimit {
			problems = append(problems, fmt.Sprintf("max_votes_per_participant must be between 1 and %d", maxVotesLimit))
		} else {
			settings.MaxVotesPerParticipant = v
		}
	}
	if in.RequireReason != nil {
		settings.RequireReason = *in.RequireReason
	}
	if in.VotingDurationSeconds != nil {
		if v := *in.VotingDurationSeconds; v < 1 || v > maxVotingDuration {
			problems = append(problems, fmt.Sprintf("voting_duration_seconds must be between 1 and %d", maxVotingDuration))
		} else {
			settings.VotingDurationSeconds = v
		}
	}
	if in.TopVotedCount != nil {
		if v := *in.TopVotedCount; v < 1 || v > maxTopVotedCount {
			problems = append(problems, fmt.Sprintf("top_voted_count must be between 1 and %d", maxTopVotedCount))
		} else {
			settings.TopVotedCount = v
		}
	}

	if len(problems) > 0 {
		return models.VoteSettings{}, apperr.New(apperr.CodeValidation, "invalid vote settings: "+strings.Join(problems, "; "))
	}
	return settings, nil
}

func (s *SessionService) CreateSession(ctx context.Context, hostID uint, title string) (*models.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTitleLength {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("title must be between 1 and %d characters", maxTitleLength))
	}

	db := s.db.WithContext(ctx)
	code, err := s.generateUniqueCode(db)
	if err != nil {
		return nil, err
	}

	session := models.Session{
		HostID:       hostID,
		Title:        title,
		Code:         code,
		Status:       models.SessionStatusDraft,
		VoteSettings: DefaultVoteSettings,
	}
	if err := db.Create(&session).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

type JoinResult struct {
	Session     models.Session     `json:"session"`
	Participant models.Participant `json:"participant"`
}

// JoinSession adds a participant to the draft or active session with code.
func (s *SessionService) JoinSession(ctx context.Context, code, displayName string) (*JoinResult, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len(displayName) > maxDisplayNameLength {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("display name must be between 1 and %d characters", maxDisplayNameLength))
	}

	db := s.db.WithContext(ctx)
	var session models.Session
	if err := db.Where("code = ? AND status != ?", strings.TrimSpace(code), models.SessionStatusArchived).
		Order("created_at DESC").
		First(&session).Error; err != nil {
		return nil, lookupErr(err, "session not found")
	}

	if session.Status != models.SessionStatusDraft && session.Status != models.SessionStatusActive {
		return nil, apperr.WithMetadata(apperr.CodeInvalidState,
			"session is not accepting new participants",
			map[string]string{"status": session.Status})
	}

	participant := models.Participant{
		SessionID:   session.ID,
		DisplayName: displayName,
		JoinedAt:    time.Now().UTC(),
	}
	if err := db.Create(&participant).Error; err != nil {
		return nil, fmt.Errorf("join session: %w", err)
	}

	return &JoinResult{Session: session, Participant: participant}, nil
}

// LeaveSession soft-deletes the participant while the session still accepts
// participants. Votes already cast stay in the tally.
func (s *SessionService) LeaveSession(ctx context.Context, sc SessionContext) error {
	db := s.db.WithContext(ctx)
	var session models.Session
	if err := db.First(&session, sc.SessionID).Error; err != nil {
		return lookupErr(err, "session not found")
	}
	if session.Status != models.SessionStatusDraft && session.Status != models.SessionStatusActive {
		return apperr.New(apperr.CodeInvalidState, "participants can only leave before voting ends")
	}

	res := db.Where("id = ? AND session_id = ?", sc.ParticipantID, sc.SessionID).Delete(&models.Participant{})
	if res.Error != nil {
		return fmt.Errorf("leave session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "participant not found in session")
	}
	return nil
}

type SessionState struct {
	models.Session
	ParticipantCount int        `json:"participant_count"`
	VoteCount        int        `json:"vote_count"`
	VotingDeadline   *time.Time `json:"voting_deadline,omitempty"`
	SecondsRemaining int        `json:"seconds_remaining"`
}

func (s *SessionService) GetSession(ctx context.Context, sessionID uint) (*SessionState, error) {
	db := s.db.WithContext(ctx)
	var session models.Session
	if err := db.First(&session, sessionID).Error; err != nil {
		return nil, lookupErr(err, "session not found")
	}
	return s.stateOf(db, &session)
}

// GetHostSession loads a session owned by sc.HostID.
func (s *SessionService) GetHostSession(ctx context.Context, sc SessionContext) (*SessionState, error) {
	db := s.db.WithContext(ctx)
	var session models.Session
	if err := db.Where("id = ? AND host_id = ?", sc.SessionID, sc.HostID).First(&session).Error; err != nil {
		return nil, lookupErr(err, "session not found")
	}
	return s.stateOf(db, &session)
}

func (s *SessionService) stateOf(db *gorm.DB, session *models.Session) (*SessionState, error) {
	var participantCount, voteCount int64
	if err := db.Model(&models.Participant{}).Where("session_id = ?", session.ID).Count(&participantCount).Error; err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	if err := db.Model(&models.Vote{}).Where("session_id = ?", session.ID).Count(&voteCount).Error; err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}

	state := &SessionState{
		Session:          *session,
		ParticipantCount: int(participantCount),
		VoteCount:        int(voteCount),
	}
	if session.StartedAt != nil {
		deadline := session.VotingDeadline()
		state.VotingDeadline = &deadline
		if session.Status == models.SessionStatusActive {
			if remaining := time.Until(deadline); remaining > 0 {
				state.SecondsRemaining = int(remaining.Seconds())
			}
		}
	}
	return state, nil
}

type SessionSummary struct {
	ID               uint      `json:"id"`
	Title            string    `json:"title"`
	Code             string    `json:"code"`
	Status           string    `json:"status"`
	AnalysisStatus   string    `json:"analysis_status"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
}

func (s *SessionService) ListSessions(ctx context.Context, hostID uint) ([]SessionSummary, error) {
	db := s.db.WithContext(ctx)
	var sessions []models.Session
	if err := db.Where("host_id = ?", hostID).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	result := make([]SessionSummary, len(sessions))
	for i, sess := range sessions {
		var participantCount int64
		if err := db.Model(&models.Participant{}).Where("session_id = ?", sess.ID).Count(&participantCount).Error; err != nil {
			return nil, fmt.Errorf("count participants: %w", err)
		}

		result[i] = SessionSummary{
			ID:               sess.ID,
			Title:            sess.Title,
			Code:             sess.Code,
			Status:           sess.Status,
			AnalysisStatus:   sess.AnalysisStatus,
			ParticipantCount: int(participantCount),
			CreatedAt:        sess.CreatedAt,
		}
	}
	return result, nil
}

func (s *SessionService) ListParticipants(ctx context.Context, sessionID uint) ([]models.Participant, error) {
	var participants []models.Participant
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

// transition describes one edge of draft → active → ended → ai_discussion → archived.
type transition struct {
	action     string
	from       string
	to         string
	stamp      string
	idempotent bool
	updates    map[string]any
	check      func(session *models.Session) error
	after      func(tx *gorm.DB, session *models.Session, now time.Time) error
}

// StartVoting opens voting with the given settings (defaults for nil fields).
func (s *SessionService) StartVoting(ctx context.Context, sc SessionContext, input *VoteSettingsInput) (*models.Session, error) {
	settings, err := input.Resolve()
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, sc, transition{
		action: "start voting",
		from:   models.SessionStatusDraft,
		to:     models.SessionStatusActive,
		stamp:  "started_at",
		updates: map[string]any{
			"vote_max_votes_per_participant": settings.MaxVotesPerParticipant,
			"vote_require_reason":            settings.RequireReason,
			"vote_voting_duration_seconds":   settings.VotingDurationSeconds,
			"vote_top_voted_count":           settings.TopVotedCount,
		},
	})
}

// EndVoting closes voting and finalizes the tally in the same transaction.
// Calling it on an already ended session is a no-op, which settles the race
// between the deadline timer and the host's manual end.
func (s *SessionService) EndVoting(ctx context.Context, sc SessionContext) (*models.Session, error) {
	return s.apply(ctx, sc, transition{
		action:     "end voting",
		from:       models.SessionStatusActive,
		to:         models.SessionStatusEnded,
		stamp:      "ended_at",
		idempotent: true,
		after: func(tx *gorm.DB, session *models.Session, now time.Time) error {
			_, err := s.votes.FinalizeTally(tx, session, now)
			return err
		},
	})
}

func (s *SessionService) StartAIDiscussion(ctx context.Context, sc SessionContext) (*models.Session, error) {
	return s.apply(ctx, sc, transition{
		action:     "start AI discussion",
		from:       models.SessionStatusEnded,
		to:         models.SessionStatusAIDiscussion,
		stamp:      "ai_discussion_started_at",
		idempotent: true,
		check: func(session *models.Session) error {
			if session.TallyFinalizedAt == nil {
				return apperr.New(apperr.CodeInvalidState, "vote tally has not been finalized")
			}
			return nil
		},
	})
}

// Archive is terminal: later writes to the session and its analyses are rejected.
func (s *SessionService) Archive(ctx context.Context, sc SessionContext) (*models.Session, error) {
	return s.apply(ctx, sc, transition{
		action:     "archive",
		from:       models.SessionStatusAIDiscussion,
		to:         models.SessionStatusArchived,
		stamp:      "archived_at",
		idempotent: true,
	})
}

func (s *SessionService) apply(ctx context.Context, sc SessionContext, t transition) (*models.Session, error) {
	now := sc.now()
	var session models.Session
	changed := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("id = ?", sc.SessionID)
		if !sc.System {
			q = q.Where("host_id = ?", sc.HostID)
		}
		if err := q.First(&session).Error; err != nil {
			return lookupErr(err, "session not found")
		}

		if session.Status != t.from {
			if t.idempotent && session.Status == t.to {
				return nil
			}
			return invalidTransition(t.action, session.Status, t.from)
		}
		if t.check != nil {
			if err := t.check(&session); err != nil {
				return err
			}
		}

		updates := map[string]any{"status": t.to, t.stamp: now}
		for k, v := range t.updates {
			updates[k] = v
		}
		res := tx.Model(&models.Session{}).
			Where("id = ? AND status = ?", session.ID, t.from).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("%s: %w", t.action, res.Error)
		}
		if res.RowsAffected == 0 {
			var current models.Session
			if err := tx.First(&current, session.ID).Error; err != nil {
				return lookupErr(err, "session not found")
			}
			if t.idempotent && current.Status == t.to {
				session = current
				return nil
			}
			return apperr.WithMetadata(apperr.CodeConcurrencyConflict,
				fmt.Sprintf("cannot %s: session changed to %s concurrently", t.action, current.Status),
				map[string]string{"action": t.action, "status": current.Status})
		}
		changed = true

		if t.after != nil {
			if err := t.after(tx, &session, now); err != nil {
				return err
			}
		}
		return tx.First(&session, session.ID).Error
	})
	if err != nil {
		return nil, err
	}

	if changed {
		log.Printf("session %d: %s -> %s", session.ID, t.from, t.to)
		s.notify(ctx, &session)
	}
	return &session, nil
}

func (s *SessionService) notify(ctx context.Context, session *models.Session) {
	err := s.notifier.Notify(ctx, progress.Update{
		SessionID:     session.ID,
		Kind:          progress.KindSessionStatus,
		SessionStatus: session.Status,
		At:            time.Now().UTC(),
	})
	if err != nil {
		log.Printf("session %d: notify status %s: %v", session.ID, session.Status, err)
	}
}

// ExpireDue ends voting for every active session whose deadline is at or
// before now and returns how many of them are ended afterwards.
func (s *SessionService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	var active []models.Session
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.SessionStatusActive).
		Find(&active).Error; err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	ended := 0
	var errs []error
	for i := range active {
		if now.Before(active[i].VotingDeadline()) {
			continue
		}
		session, err := s.EndVoting(ctx, SystemContext(active[i].ID, now))
		if err != nil {
			errs = append(errs, fmt.Errorf("session %d: %w", active[i].ID, err))
			continue
		}
		if session.Status == models.SessionStatusEnded {
			ended++
		}
	}
	return ended, errors.Join(errs...)
}

func (s *SessionService) generateUniqueCode(db *gorm.DB) (string, error) {
	for attempt := 0; attempt < 50; attempt++ {
		code := fmt.Sprintf("%06d", rand.Intn(1000000))
		var count int64
		if err := db.Model(&models.Session{}).
			Where("code = ? AND status != ?", code, models.SessionStatusArchived).
			Count(&count).Error; err != nil {
			return "", fmt.Errorf("check join code: %w", err)
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique join code")
}
