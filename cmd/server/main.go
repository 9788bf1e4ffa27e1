package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/config"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/database"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/handlers"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/scheduler"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/telegram"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// @title           Session Insights API
// @version         1.0
// @description     Voting sessions, AI follow-up discussions and insight analysis
// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	loader := progress.StoreLoader(db)
	poller := progress.NewPoller(loader)
	notifiers := progress.Fanout{poller, progress.NewPusher(hub, loader)}

	var (
		tgNotifier *telegram.Notifier
		tgListener *telegram.Listener
	)
	if cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Printf("telegram disabled: %v", err)
		} else {
			log.Printf("telegram bot @%s connected", bot.Self.UserName)
			tgNotifier = telegram.NewNotifier(db, bot)
			tgNotifier.Start()
			tgListener = telegram.NewListener(bot, bot)
			tgListener.Start()
			notifiers = append(notifiers, tgNotifier)
		}
	} else {
		log.Println("TELEGRAM_BOT_TOKEN not set, telegram notifications disabled")
	}

	model := services.ModelConfig{Model: cfg.LLMModel, Temperature: cfg.LLMTemperature}
	completer := services.NewCompletionService(cfg.LLMAPIKey, cfg.LLMAPIURL, model, cfg.LLMTimeout)
	if !completer.IsAvailable() {
		log.Println("LLM_API_KEY not set, discussions and analysis will fail until configured")
	}

	authService := services.NewAuthService(db, cfg.JWTSecret)
	voteService := services.NewVoteService(db, services.NewTallyService())
	sessionService := services.NewSessionService(db, voteService, notifiers)
	discussionService := services.NewDiscussionService(db, completer, model)
	analysisService := services.NewAnalysisService(db, completer, notifiers, cfg.AnalysisConcurrency, model)

	if n, err := analysisService.FailInterrupted(ctx); err != nil {
		log.Printf("analysis: recover interrupted runs: %v", err)
	} else if n > 0 {
		log.Printf("analysis: marked %d interrupted run(s) as failed", n)
	}
	if cfg.AutoAnalyze {
		discussionService.OnAllCompleted = func(sessionID uint) {
			analysisService.StartSequence(sessionID, models.AnalysisTypeNuggets, models.AnalysisTypeLightbulbs)
		}
	}

	timer := scheduler.NewVotingTimer(sessionService, cfg.TimerInterval)
	timer.Start()

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	handlers.RegisterRoutes(r, handlers.Deps{
		DB:                db,
		Hub:               hub,
		Poller:            poller,
		AuthService:       authService,
		SessionService:    sessionService,
		VoteService:       voteService,
		DiscussionService: discussionService,
		AnalysisService:   analysisService,
		TelegramEnabled:   tgNotifier != nil,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("server starting on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	timer.Stop()
	analysisService.Wait()
	if tgListener != nil {
		tgListener.Stop()
	}
	if tgNotifier != nil {
		tgNotifier.Stop()
	}
	log.Println("server stopped")
}
