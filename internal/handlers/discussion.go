package handlers

import (
	"net/http"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"

	"github.com/gin-gonic/gin"
)

type DiscussionHandler struct {
	discussionService *services.DiscussionService
}

func NewDiscussionHandler(discussionService *services.DiscussionService) *DiscussionHandler {
	return &DiscussionHandler{discussionService: discussionService}
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required" example:"We cut onboarding time in half by pairing new hires."`
}

// ListDiscussions godoc
// @Summary      List discussions
// @Description  Summaries of every participant's AI discussion in a session
// @Tags         discussions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {array} services.DiscussionSummary
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/discussions [get]
func (h *DiscussionHandler) ListDiscussions(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}

	discussions, err := h.discussionService.ListDiscussions(c.Request.Context(), sc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, discussions)
}

// GetMyDiscussion godoc
// @Summary      Get my discussion
// @Description  The participant's discussion with all messages
// @Tags         play
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} models.Discussion
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/play/discussion [get]
func (h *DiscussionHandler) GetMyDiscussion(c *gin.Context) {
	discussion, err := h.discussionService.GetDiscussion(c.Request.Context(), participantContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, discussion)
}

// StartDiscussion godoc
// @Summary      Start my discussion
// @Description  Open the conversation with the agent matching the participant's label
// @Tags         play
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} models.Discussion
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/play/discussion [post]
func (h *DiscussionHandler) StartDiscussion(c *gin.Context) {
	discussion, err := h.discussionService.StartDiscussion(c.Request.Context(), participantContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, discussion)
}

// SendMessage godoc
// @Summary      Send a discussion message
// @Description  Append a message and get the agent's reply
// @Tags         play
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body SendMessageRequest true "Message"
// @Success      200 {object} services.DiscussionReply
// @Failure      409 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /api/v1/play/discussion/messages [post]
func (h *DiscussionHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	reply, err := h.discussionService.SendMessage(c.Request.Context(), participantContext(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// CompleteDiscussion godoc
// @Summary      Complete my discussion
// @Description  Close the conversation; no more messages are accepted
// @Tags         play
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} models.Discussion
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/play/discussion/complete [post]
func (h *DiscussionHandler) CompleteDiscussion(c *gin.Context) {
	discussion, err := h.discussionService.CompleteDiscussion(c.Request.Context(), participantContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, discussion)
}
