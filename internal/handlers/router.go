package handlers

import (
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/middleware"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	DB                *gorm.DB
	Hub               *ws.Hub
	Poller            *progress.Poller
	AuthService       *services.AuthService
	SessionService    *services.SessionService
	VoteService       *services.VoteService
	DiscussionService *services.DiscussionService
	AnalysisService   *services.AnalysisService
	TelegramEnabled   bool
}

// RegisterRoutes mounts the websocket endpoint and the /api/v1 API on r.
func RegisterRoutes(r *gin.Engine, d Deps) {
	authHandler := NewAuthHandler(d.AuthService, d.DB)
	settingsHandler := NewSettingsHandler(d.DB, d.TelegramEnabled)
	sessionHandler := NewSessionHandler(d.SessionService, d.VoteService, d.Hub)
	participantHandler := NewParticipantHandler(d.AuthService, d.SessionService, d.VoteService, d.Hub, d.DB)
	discussionHandler := NewDiscussionHandler(d.DiscussionService)
	analysisHandler := NewAnalysisHandler(d.AnalysisService, d.SessionService, d.Poller)
	wsHandler := NewWSHandler(d.Hub, d.SessionService, d.Poller)

	hostAuth := middleware.JWTAuth(d.AuthService)
	participantAuth := middleware.ParticipantAuth(d.AuthService)
	flexAuth := middleware.FlexAuth(d.AuthService)

	r.GET("/ws/session/:id", flexAuth, wsHandler.HandleWebSocket)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", hostAuth, authHandler.Me)
		}

		settings := api.Group("/settings")
		settings.Use(hostAuth)
		{
			settings.GET("", settingsHandler.GetSettings)
			settings.PUT("", settingsHandler.UpdateSettings)
		}

		sessions := api.Group("/sessions")
		{
			sessions.GET("", hostAuth, sessionHandler.ListSessions)
			sessions.POST("", hostAuth, sessionHandler.CreateSession)
			sessions.GET("/:id", hostAuth, sessionHandler.GetSession)
			sessions.POST("/:id/start-voting", hostAuth, sessionHandler.StartVoting)
			sessions.POST("/:id/end-voting", hostAuth, sessionHandler.EndVoting)
			sessions.POST("/:id/start-discussion", hostAuth, sessionHandler.StartDiscussion)
			sessions.POST("/:id/archive", hostAuth, sessionHandler.Archive)
			sessions.GET("/:id/tally", hostAuth, sessionHandler.GetTally)
			sessions.GET("/:id/participants", hostAuth, sessionHandler.ListParticipants)
			sessions.GET("/:id/discussions", hostAuth, discussionHandler.ListDiscussions)
			sessions.POST("/:id/analysis", hostAuth, analysisHandler.StartAnalysis)
			sessions.GET("/:id/analysis/runs", hostAuth, analysisHandler.ListRuns)
			sessions.GET("/:id/analysis/:type", hostAuth, analysisHandler.GetResults)
			sessions.GET("/:id/progress", flexAuth, analysisHandler.GetProgress)
		}

		api.POST("/play/join", participantHandler.JoinSession)
		play := api.Group("/play")
		play.Use(participantAuth)
		{
			play.GET("/state", participantHandler.GetState)
			play.POST("/leave", participantHandler.Leave)
			play.GET("/participants", participantHandler.ListVoteTargets)
			play.GET("/votes", participantHandler.MyVotes)
			play.POST("/votes", participantHandler.CastVote)
			play.GET("/discussion", discussionHandler.GetMyDiscussion)
			play.POST("/discussion", discussionHandler.StartDiscussion)
			play.POST("/discussion/messages", discussionHandler.SendMessage)
			play.POST("/discussion/complete", discussionHandler.CompleteDiscussion)
		}
	}
}
