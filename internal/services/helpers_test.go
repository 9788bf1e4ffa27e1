package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/database"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// recorder is a progress.Notifier that keeps every update.
type recorder struct {
	mu      sync.Mutex
	updates []progress.Update
}

func (r *recorder) Notify(_ context.Context, u progress.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *recorder) all() []progress.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Update(nil), r.updates...)
}

// fakeCompleter answers prompts with respond, or with a fixed JSON document.
type fakeCompleter struct {
	mu      sync.Mutex
	prompts []Prompt
	respond func(p Prompt) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, p Prompt, _ ModelConfig) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		return respond(p)
	}
	return `{"summary":"ok"}`, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type testEnv struct {
	db          *gorm.DB
	notes       *recorder
	completer   *fakeCompleter
	votes       *VoteService
	sessions    *SessionService
	discussions *DiscussionService
	analysis    *AnalysisService
	host        models.Host
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	notes := &recorder{}
	completer := &fakeCompleter{}
	votes := NewVoteService(db, NewTallyService())

	host := models.Host{Username: "host", PasswordHash: "x"}
	if err := db.Create(&host).Error; err != nil {
		t.Fatalf("create host: %v", err)
	}

	return &testEnv{
		db:          db,
		notes:       notes,
		completer:   completer,
		votes:       votes,
		sessions:    NewSessionService(db, votes, notes),
		discussions: NewDiscussionService(db, completer, ModelConfig{}),
		analysis:    NewAnalysisService(db, completer, notes, 1, ModelConfig{}),
		host:        host,
	}
}

func (e *testEnv) hostCtx(sessionID uint) SessionContext {
	return HostContext(sessionID, e.host.ID)
}

// newSession creates a draft session and joins one participant per name.
func (e *testEnv) newSession(t *testing.T, names ...string) (*models.Session, []models.Participant) {
	t.Helper()
	ctx := context.Background()
	session, err := e.sessions.CreateSession(ctx, e.host.ID, "Offsite")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	participants := make([]models.Participant, 0, len(names))
	for _, name := range names {
		res, err := e.sessions.JoinSession(ctx, session.Code, name)
		if err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		participants = append(participants, res.Participant)
	}
	return session, participants
}

func (e *testEnv) startVoting(t *testing.T, sessionID uint, maxVotes, topVoted int) {
	t.Helper()
	_, err := e.sessions.StartVoting(context.Background(), e.hostCtx(sessionID), &VoteSettingsInput{
		MaxVotesPerParticipant: &maxVotes,
		TopVotedCount:          &topVoted,
	})
	if err != nil {
		t.Fatalf("start voting: %v", err)
	}
}

func (e *testEnv) vote(t *testing.T, sessionID, voter, target uint) {
	t.Helper()
	if _, err := e.votes.CastVote(context.Background(), ParticipantContext(sessionID, voter), target, ""); err != nil {
		t.Fatalf("vote %d -> %d: %v", voter, target, err)
	}
}

// toDiscussionPhase ends voting and opens the AI discussion phase.
func (e *testEnv) toDiscussionPhase(t *testing.T, sessionID uint) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.sessions.EndVoting(ctx, e.hostCtx(sessionID)); err != nil {
		t.Fatalf("end voting: %v", err)
	}
	if _, err := e.sessions.StartAIDiscussion(ctx, e.hostCtx(sessionID)); err != nil {
		t.Fatalf("start discussion: %v", err)
	}
}

// seedDiscussion stores a discussion with n alternating messages directly.
func (e *testEnv) seedDiscussion(t *testing.T, sessionID, participantID uint, agentType string, n int) models.Discussion {
	t.Helper()
	d := models.Discussion{
		SessionID:     sessionID,
		ParticipantID: participantID,
		AgentType:     agentType,
		Status:        models.DiscussionStatusCompleted,
	}
	if err := e.db.Create(&d).Error; err != nil {
		t.Fatalf("create discussion: %v", err)
	}
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msg := models.DiscussionMessage{
			DiscussionID: d.ID,
			Role:         role,
			Content:      fmt.Sprintf("message %d of participant %d", i, participantID),
			CreatedAt:    time.Now().Add(time.Duration(i) * time.Millisecond),
		}
		if err := e.db.Create(&msg).Error; err != nil {
			t.Fatalf("create message: %v", err)
		}
	}
	return d
}

func (e *testEnv) reloadSession(t *testing.T, id uint) models.Session {
	t.Helper()
	var s models.Session
	if err := e.db.First(&s, id).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	return s
}

func promptMentions(p Prompt, needle string) bool {
	for _, m := range p.Messages {
		if strings.Contains(m.Content, needle) {
			return true
		}
	}
	return false
}
