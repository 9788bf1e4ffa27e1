// Package telegram posts session progress to the host's Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"sync"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"
)

const queueSize = 256

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type target struct {
	chatID int64
	title  string
}

// Notifier is a progress.Notifier that sends session status changes and
// finished analyses to the host's linked chat. Sending happens on a worker
// goroutine so request paths never wait for Telegram.
type Notifier struct {
	db     *gorm.DB
	sender Sender

	mu   sync.Mutex
	last map[uint]string

	queue chan progress.Update
	done  chan struct{}
	once  sync.Once
}

func NewNotifier(db *gorm.DB, sender Sender) *Notifier {
	return &Notifier{
		db:     db,
		sender: sender,
		last:   make(map[uint]string),
		queue:  make(chan progress.Update, queueSize),
		done:   make(chan struct{}),
	}
}

func (n *Notifier) Start() {
	go n.loop()
	log.Println("[TelegramNotifier] started")
}

// Stop delivers what is queued and returns.
func (n *Notifier) Stop() {
	n.once.Do(func() {
		close(n.queue)
		<-n.done
		log.Println("[TelegramNotifier] stopped")
	})
}

// Notify queues u when it is worth a chat message. A full queue drops the
// update; the dashboard still has it.
func (n *Notifier) Notify(_ context.Context, u progress.Update) error {
	if !n.interesting(u) {
		return nil
	}
	select {
	case n.queue <- u:
		return nil
	default:
		return errors.New("telegram notifier queue is full")
	}
}

func (n *Notifier) interesting(u progress.Update) bool {
	var key string
	switch u.Kind {
	case progress.KindSessionStatus:
		key = "status:" + u.SessionStatus
	case progress.KindAnalysis:
		if u.AnalysisStatus != models.AnalysisStatusCompleted && u.AnalysisStatus != models.AnalysisStatusFailed {
			return false
		}
		key = "analysis:" + u.RunID + ":" + u.AnalysisStatus
	default:
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last[u.SessionID] == key {
		return false
	}
	if u.SessionStatus == models.SessionStatusArchived {
		// Nothing but a run's final outcome can follow.
		delete(n.last, u.SessionID)
		return true
	}
	n.last[u.SessionID] = key
	return true
}

func (n *Notifier) loop() {
	defer close(n.done)
	for u := range n.queue {
		if err := n.deliver(context.Background(), u); err != nil {
			log.Printf("[TelegramNotifier] session %d: %v", u.SessionID, err)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, u progress.Update) error {
	t, err := n.resolve(ctx, u.SessionID)
	if err != nil {
		return err
	}
	if t.chatID == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatUpdate(t.title, u))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (n *Notifier) resolve(ctx context.Context, sessionID uint) (target, error) {
	var row struct {
		Title          string
		TelegramChatID int64
	}
	err := n.db.WithContext(ctx).Table("sessions").
		Select("sessions.title, hosts.telegram_chat_id").
		Joins("JOIN hosts ON hosts.id = sessions.host_id").
		Where("sessions.id = ?", sessionID).
		Take(&row).Error
	if err != nil {
		return target{}, fmt.Errorf("resolve chat: %w", err)
	}
	return target{chatID: row.TelegramChatID, title: row.Title}, nil
}

// FormatUpdate renders u as an HTML chat message.
func FormatUpdate(title string, u progress.Update) string {
	header := fmt.Sprintf("<b>%s</b>\n", html.EscapeString(title))

	if u.Kind == progress.KindAnalysis {
		if u.AnalysisStatus == models.AnalysisStatusCompleted {
			return header + fmt.Sprintf("✅ The %s analysis is ready.", u.AnalysisType)
		}
		return header + fmt.Sprintf("⚠️ The %s analysis failed: %s", u.AnalysisType, html.EscapeString(u.Error))
	}

	switch u.SessionStatus {
	case models.SessionStatusActive:
		return header + "🗳 Voting is open."
	case models.SessionStatusEnded:
		return header + "⏱ Voting has ended and the tally is final."
	case models.SessionStatusAIDiscussion:
		return header + "💬 AI discussions have started."
	case models.SessionStatusArchived:
		return header + "📦 The session was archived."
	default:
		return header + "Session is now " + html.EscapeString(u.SessionStatus) + "."
	}
}
