package handlers

import (
	"net/http"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ParticipantHandler serves the participant-facing /play endpoints.
type ParticipantHandler struct {
	authService    *services.AuthService
	sessionService *services.SessionService
	voteService    *services.VoteService
	hub            *ws.Hub
	db             *gorm.DB
}

func NewParticipantHandler(
	authService *services.AuthService,
	sessionService *services.SessionService,
	voteService *services.VoteService,
	hub *ws.Hub,
	db *gorm.DB,
) *ParticipantHandler {
	return &ParticipantHandler{
		authService:    authService,
		sessionService: sessionService,
		voteService:    voteService,
		hub:            hub,
		db:             db,
	}
}

type JoinSessionRequest struct {
	Code        string `json:"code" binding:"required,len=6" example:"123456"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=100" example:"Alice"`
}

type JoinSessionResponse struct {
	Token       string             `json:"token"`
	Session     models.Session     `json:"session"`
	Participant models.Participant `json:"participant"`
}

type CastVoteRequest struct {
	TargetParticipantID uint   `json:"target_participant_id" binding:"required" example:"2"`
	Reason              string `json:"reason" example:"Great story about onboarding"`
}

type PlayStateResponse struct {
	Session     *services.SessionState `json:"session"`
	Participant models.Participant     `json:"participant"`
	Label       string                 `json:"label,omitempty"`
}

// JoinSession godoc
// @Summary      Join a session
// @Description  Join a draft or active session by code and receive a participant token
// @Tags         play
// @Accept       json
// @Produce      json
// @Param        request body JoinSessionRequest true "Join data"
// @Success      200 {object} JoinSessionResponse
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/play/join [post]
func (h *ParticipantHandler) JoinSession(c *gin.Context) {
	var req JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.sessionService.JoinSession(c.Request.Context(), req.Code, req.DisplayName)
	if err != nil {
		writeError(c, err)
		return
	}

	token, err := h.authService.GenerateParticipantToken(result.Session.ID, result.Participant.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	h.hub.Broadcast(result.Session.ID, ws.WSMessage{
		Type: "participant_joined",
		Data: result.Participant,
	})

	c.JSON(http.StatusOK, JoinSessionResponse{
		Token:       token,
		Session:     result.Session,
		Participant: result.Participant,
	})
}

// GetState godoc
// @Summary      Get my session state
// @Description  Session phase, deadline and, once the tally is final, the participant's label
// @Tags         play
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} PlayStateResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/play/state [get]
func (h *ParticipantHandler) GetState(c *gin.Context) {
	sc := participantContext(c)
	ctx := c.Request.Context()

	state, err := h.sessionService.GetSession(ctx, sc.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	var participant models.Participant
	if err := h.db.WithContext(ctx).Where("id = ? AND session_id = ?", sc.ParticipantID, sc.SessionID).
		First(&participant).Error; err != nil {
		writeError(c, apperr.New(apperr.CodeNotFound, "participant not found"))
		return
	}

	resp := PlayStateResponse{Session: state, Participant: participant}
	if state.TallyFinalizedAt != nil {
		if label, err := h.voteService.LabelFor(ctx, sc.SessionID, sc.ParticipantID); err == nil {
			resp.Label = label
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Leave godoc
// @Summary      Leave a session
// @Description  Leave before voting ends. Votes already cast are kept.
// @Tags         play
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} MessageResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/play/leave [post]
func (h *ParticipantHandler) Leave(c *gin.Context) {
	sc := participantContext(c)
	if err := h.sessionService.LeaveSession(c.Request.Context(), sc); err != nil {
		writeError(c, err)
		return
	}

	h.hub.Broadcast(sc.SessionID, ws.WSMessage{
		Type: "participant_left",
		Data: gin.H{"participant_id": sc.ParticipantID},
	})
	c.JSON(http.StatusOK, MessageResponse{Message: "left session"})
}

// ListVoteTargets godoc
// @Summary      List vote targets
// @Description  Other participants of the session
// @Tags         play
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} models.Participant
// @Router       /api/v1/play/participants [get]
func (h *ParticipantHandler) ListVoteTargets(c *gin.Context) {
	sc := participantContext(c)
	participants, err := h.sessionService.ListParticipants(c.Request.Context(), sc.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	targets := make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		if p.ID != sc.ParticipantID {
			targets = append(targets, p)
		}
	}
	c.JSON(http.StatusOK, targets)
}

// MyVotes godoc
// @Summary      Get my votes
// @Description  Votes cast by the participant and the votes left
// @Tags         play
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} services.VoterSummary
// @Router       /api/v1/play/votes [get]
func (h *ParticipantHandler) MyVotes(c *gin.Context) {
	summary, err := h.voteService.MyVotes(c.Request.Context(), participantContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// CastVote godoc
// @Summary      Cast a vote
// @Description  Vote for another participant while voting is open
// @Tags         play
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CastVoteRequest true "Vote"
// @Success      201 {object} models.Vote
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/play/votes [post]
func (h *ParticipantHandler) CastVote(c *gin.Context) {
	var req CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	sc := participantContext(c)
	vote, err := h.voteService.CastVote(c.Request.Context(), sc, req.TargetParticipantID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	if state, err := h.sessionService.GetSession(c.Request.Context(), sc.SessionID); err == nil {
		h.hub.Broadcast(sc.SessionID, ws.WSMessage{
			Type: "vote_cast",
			Data: gin.H{"vote_count": state.VoteCount},
		})
	}
	c.JSON(http.StatusCreated, vote)
}
