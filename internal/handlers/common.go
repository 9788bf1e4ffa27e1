package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/middleware"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error     string            `json:"error" example:"something went wrong"`
	Code      string            `json:"code,omitempty" example:"INVALID_STATE"`
	Retryable bool              `json:"retryable,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message" example:"operation successful"`
}

// Type aliases so swag can resolve models in annotations.
type Session = models.Session
type Participant = models.Participant
type Vote = models.Vote
type TallyEntry = models.TallyEntry
type Discussion = models.Discussion
type AnalysisRun = models.AnalysisRun

// writeError renders err with the status of its apperr code. Uncoded errors
// are logged and hidden behind a generic message.
func writeError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: string(apperr.CodeInternal)})
		return
	}

	status := appErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, ErrorResponse{
		Error:     appErr.Message,
		Code:      string(appErr.Code),
		Retryable: appErr.Retryable,
		Details:   appErr.Metadata,
	})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: string(apperr.CodeValidation)})
}

func sessionIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session id", Code: string(apperr.CodeValidation)})
		return 0, false
	}
	return uint(id), true
}

func hostContext(c *gin.Context) (services.SessionContext, bool) {
	id, ok := sessionIDParam(c)
	if !ok {
		return services.SessionContext{}, false
	}
	return services.HostContext(id, c.GetUint(middleware.KeyHostID)), true
}

func participantContext(c *gin.Context) services.SessionContext {
	return services.ParticipantContext(c.GetUint(middleware.KeySessionID), c.GetUint(middleware.KeyParticipantID))
}

// authorizeSession lets a host through when they own the session and a
// participant when their token was issued for it.
func authorizeSession(c *gin.Context, sessions *services.SessionService, sessionID uint) bool {
	if hostID := c.GetUint(middleware.KeyHostID); hostID != 0 {
		if _, err := sessions.GetHostSession(c.Request.Context(), services.HostContext(sessionID, hostID)); err != nil {
			writeError(c, err)
			return false
		}
		return true
	}
	if c.GetUint(middleware.KeySessionID) == sessionID {
		return true
	}
	writeError(c, apperr.New(apperr.CodeNotFound, "session not found"))
	return false
}
