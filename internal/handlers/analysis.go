package handlers

import (
	"net/http"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"

	"github.com/gin-gonic/gin"
)

type AnalysisHandler struct {
	analysisService *services.AnalysisService
	sessionService  *services.SessionService
	poller          *progress.Poller
}

func NewAnalysisHandler(analysisService *services.AnalysisService, sessionService *services.SessionService, poller *progress.Poller) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService, sessionService: sessionService, poller: poller}
}

type StartAnalysisRequest struct {
	AnalysisType string `json:"analysis_type" binding:"required,oneof=nuggets lightbulbs overall" example:"nuggets"`
}

// StartAnalysis godoc
// @Summary      Start an analysis run
// @Description  Queue the two-phase analysis for one type and run it in the background. Only one run per session at a time.
// @Tags         analysis
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body StartAnalysisRequest true "Analysis type"
// @Success      202 {object} models.AnalysisRun
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/analysis [post]
func (h *AnalysisHandler) StartAnalysis(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}

	var req StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	run, err := h.analysisService.Start(c.Request.Context(), sc, req.AnalysisType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

// ListRuns godoc
// @Summary      List analysis runs
// @Description  Job records of every analysis run of the session, newest first
// @Tags         analysis
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {array} models.AnalysisRun
// @Router       /api/v1/sessions/{id}/analysis/runs [get]
func (h *AnalysisHandler) ListRuns(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}
	if _, err := h.sessionService.GetHostSession(c.Request.Context(), sc); err != nil {
		writeError(c, err)
		return
	}

	runs, err := h.analysisService.ListRuns(c.Request.Context(), sc.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetResults godoc
// @Summary      Get analysis results
// @Description  Current individual analyses and the synthesis for one type
// @Tags         analysis
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        type path string true "nuggets, lightbulbs or overall"
// @Success      200 {object} services.AnalysisResults
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/analysis/{type} [get]
func (h *AnalysisHandler) GetResults(c *gin.Context) {
	sc, ok := hostContext(c)
	if !ok {
		return
	}
	if _, err := h.sessionService.GetHostSession(c.Request.Context(), sc); err != nil {
		writeError(c, err)
		return
	}

	results, err := h.analysisService.Results(c.Request.Context(), sc.SessionID, c.Param("type"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetProgress godoc
// @Summary      Poll session progress
// @Description  Session status and analysis progress. Host or participant token.
// @Tags         analysis
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} progress.Snapshot
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/progress [get]
func (h *AnalysisHandler) GetProgress(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	if !authorizeSession(c, h.sessionService, sessionID) {
		return
	}

	snap, err := h.poller.Current(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
