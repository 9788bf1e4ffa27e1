package telegram

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/database"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

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

func seedSession(t *testing.T, db *gorm.DB, chatID int64) models.Session {
	t.Helper()
	host := models.Host{Username: "host", PasswordHash: "x", TelegramChatID: chatID}
	if err := db.Create(&host).Error; err != nil {
		t.Fatalf("create host: %v", err)
	}
	session := models.Session{HostID: host.ID, Title: "Offsite <2025>", Code: "123456", Status: models.SessionStatusDraft}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestNotifierSkipsRepeatsAndIntermediateProgress(t *testing.T) {
	n := NewNotifier(nil, &fakeSender{})

	status := progress.Update{SessionID: 1, Kind: progress.KindSessionStatus, SessionStatus: models.SessionStatusActive}
	if !n.interesting(status) {
		t.Fatal("first status change should be sent")
	}
	if n.interesting(status) {
		t.Fatal("repeated status change should be skipped")
	}

	processing := progress.Update{SessionID: 1, Kind: progress.KindAnalysis, AnalysisStatus: models.AnalysisStatusProcessing, AnalysisProgress: 50, RunID: "r1"}
	if n.interesting(processing) {
		t.Fatal("intermediate progress should be skipped")
	}

	done := progress.Update{SessionID: 1, Kind: progress.KindAnalysis, AnalysisStatus: models.AnalysisStatusCompleted, RunID: "r1"}
	if !n.interesting(done) {
		t.Fatal("completed analysis should be sent")
	}
}

func TestNotifierDeliversToHostChat(t *testing.T) {
	db := openTestDB(t)
	session := seedSession(t, db, 4242)
	sender := &fakeSender{}
	n := NewNotifier(db, sender)
	n.Start()

	err := n.Notify(context.Background(), progress.Update{
		SessionID:     session.ID,
		Kind:          progress.KindSessionStatus,
		SessionStatus: models.SessionStatusEnded,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	n.Stop()

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ChatID != 4242 {
		t.Errorf("expected chat 4242, got %d", msgs[0].ChatID)
	}
	if !strings.Contains(msgs[0].Text, "Offsite &lt;2025&gt;") {
		t.Errorf("expected escaped title in %q", msgs[0].Text)
	}
	if msgs[0].ParseMode != tgbotapi.ModeHTML {
		t.Errorf("expected HTML parse mode, got %q", msgs[0].ParseMode)
	}
}

func TestNotifierIgnoresHostsWithoutChat(t *testing.T) {
	db := openTestDB(t)
	session := seedSession(t, db, 0)
	sender := &fakeSender{}
	n := NewNotifier(db, sender)

	err := n.deliver(context.Background(), progress.Update{
		SessionID:     session.ID,
		Kind:          progress.KindSessionStatus,
		SessionStatus: models.SessionStatusActive,
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatal("expected no message for a host without a chat")
	}
}

func TestFormatFailedAnalysis(t *testing.T) {
	text := FormatUpdate("Demo", progress.Update{
		Kind:           progress.KindAnalysis,
		AnalysisStatus: models.AnalysisStatusFailed,
		AnalysisType:   models.AnalysisTypeNuggets,
		Error:          "no individual analyses found",
	})
	if !strings.Contains(text, "nuggets analysis failed") || !strings.Contains(text, "no individual analyses found") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestListenerRepliesWithChatID(t *testing.T) {
	sender := &fakeSender{}
	l := NewListener(nil, sender)

	l.Handle(tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/start",
		Chat:     &tgbotapi.Chat{ID: 777},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}})
	l.Handle(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 777}}})

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "777") {
		t.Fatalf("expected chat id in reply, got %q", msgs[0].Text)
	}
}

func TestNotifierForgetsArchivedSessions(t *testing.T) {
	n := NewNotifier(nil, &fakeSender{})

	for _, status := range []string{models.SessionStatusActive, models.SessionStatusEnded, models.SessionStatusArchived} {
		if !n.interesting(progress.Update{SessionID: 7, Kind: progress.KindSessionStatus, SessionStatus: status}) {
			t.Fatalf("%s should be sent", status)
		}
	}
	if len(n.last) != 0 {
		t.Fatalf("expected the archived session to be forgotten, still tracking %d", len(n.last))
	}

	// A run that ends after the archive is still reported.
	failed := progress.Update{
		SessionID:      7,
		Kind:           progress.KindAnalysis,
		SessionStatus:  models.SessionStatusArchived,
		AnalysisStatus: models.AnalysisStatusFailed,
		RunID:          "r1",
	}
	if !n.interesting(failed) {
		t.Fatal("the final outcome of a run should be sent")
	}
	if len(n.last) != 0 {
		t.Fatalf("expected nothing tracked after the final outcome, got %d", len(n.last))
	}
}
