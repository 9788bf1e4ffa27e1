package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/middleware"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/ws"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessionService *services.SessionService
	voteService    *services.VoteService
	hub            *ws.Hub
}

func NewSessionHandler(sessionService *services.SessionService, voteService *services.VoteService, hub *ws.Hub) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, voteService: voteService, hub: hub}
}

type CreateSessionRequest struct {
	Title string `json:"title" binding:"required,max=255" example:"Leadership offsite"`
}

type TallyResponse struct {
	Final   bool                `json:"final"`
	Entries []models.TallyEntry `json:"entries"`
}

// CreateSession godoc
// @Summary      Create a session
// @Description  Create a draft session and generate its join code
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CreateSessionRequest true "Session data"
// @Success      201 {object} services.SessionState
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	hostID := c.GetUint(middleware.KeyHostID)

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.sessionService.CreateSession(c.Request.Context(), hostID, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}

	state, err := h.sessionService.GetHostSession(c.Request.Context(), services.HostContext(session.ID, hostID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, state)
}

// ListSessions godoc
// @Summary      List host sessions
// @Description  Get all sessions for the authenticated host
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} services.SessionSummary
// @Router       /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessionService.ListSessions(c.Request.Context(), c.GetUint(middleware.KeyHostID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetSession godoc
// @Summary      Get session state
// @Description  Get a session with counts and the voting deadline
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} services.SessionState
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}

	state, err := h.sessionService.GetHostSession(c.Request.Context(), sc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// StartVoting godoc
// @Summary      Open voting
// @Description  Move a draft session to active with the given vote settings. Omitted fields use defaults.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body services.VoteSettingsInput false "Vote settings"
// @Success      200 {object} models.Session
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/start-voting [post]
func (h *SessionHandler) StartVoting(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}

	var input *services.VoteSettingsInput
	if c.Request.ContentLength != 0 {
		input = &services.VoteSettingsInput{}
		if err := c.ShouldBindJSON(input); err != nil && !errors.Is(err, io.EOF) {
			bindError(c, err)
			return
		}
	}

	session, err := h.sessionService.StartVoting(c.Request.Context(), sc, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// EndVoting godoc
// @Summary      Close voting
// @Description  End voting and finalize the tally. Ending an already ended session is a no-op.
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} models.Session
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/end-voting [post]
func (h *SessionHandler) EndVoting(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}

	session, err := h.sessionService.EndVoting(c.Request.Context(), sc)
	if err != nil {
		writeError(c, err)
		return
	}

	if entries, final, err := h.voteService.Tally(c.Request.Context(), session); err == nil && final {
		h.hub.Broadcast(session.ID, ws.WSMessage{
			Type: "tally_finalized",
			Data: TallyResponse{Final: true, Entries: entries},
		})
	}
	c.JSON(http.StatusOK, session)
}

// StartDiscussion godoc
// @Summary      Open AI discussions
// @Description  Move an ended session with a finalized tally to the AI discussion phase
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} models.Session
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/start-discussion [post]
func (h *SessionHandler) StartDiscussion(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}

	session, err := h.sessionService.StartAIDiscussion(c.Request.Context(), sc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Archive godoc
// @Summary      Archive a session
// @Description  Terminal transition; no further changes are accepted
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} models.Session
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/archive [post]
func (h *SessionHandler) Archive(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Archive(c.Request.Context(), sc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GetTally godoc
// @Summary      Get the vote tally
// @Description  Live ranking while voting, the finalized nugget/lightbulb partition afterwards
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} TallyResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/tally [get]
func (h *SessionHandler) GetTally(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}

	state, err := h.sessionService.GetHostSession(c.Request.Context(), sc)
	if err != nil {
		writeError(c, err)
		return
	}
	entries, final, err := h.voteService.Tally(c.Request.Context(), &state.Session)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TallyResponse{Final: final, Entries: entries})
}

// ListParticipants godoc
// @Summary      List participants
// @Description  Participants currently in the session in join order
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {array} models.Participant
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/participants [get]
func (h *SessionHandler) ListParticipants(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}

	if _, err := h.sessionService.GetHostSession(c.Request.Context(), sc); err != nil {
		writeError(c, err)
		return
	}
	participants, err := h.sessionService.ListParticipants(c.Request.Context(), sc.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, participants)
}
