package telegram

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateSource is the long-polling part of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Listener answers /start with the chat ID a host pastes into their settings
// to receive session notifications.
type Listener struct {
	source UpdateSource
	sender Sender
	done   chan struct{}
}

func NewListener(source UpdateSource, sender Sender) *Listener {
	return &Listener{source: source, sender: sender, done: make(chan struct{})}
}

func (l *Listener) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := l.source.GetUpdatesChan(u)
	go func() {
		defer close(l.done)
		for upd := range updates {
			l.Handle(upd)
		}
	}()
	log.Println("[TelegramListener] started")
}

func (l *Listener) Stop() {
	l.source.StopReceivingUpdates()
	<-l.done
	log.Println("[TelegramListener] stopped")
}

func (l *Listener) Handle(upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || !msg.IsCommand() {
		return
	}

	var text string
	switch msg.Command() {
	case "start", "chatid":
		text = fmt.Sprintf("Your chat ID is %d.\nPaste it into the Telegram field of your host settings to get session updates here.", msg.Chat.ID)
	default:
		text = "Send /start to get your chat ID."
	}
	if _, err := l.sender.Send(tgbotapi.NewMessage(msg.Chat.ID, text)); err != nil {
		log.Printf("[TelegramListener] reply to chat %d: %v", msg.Chat.ID, err)
	}
}
