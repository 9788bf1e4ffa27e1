package handlers

import (
	"net/http"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/middleware"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthHandler serves host accounts. Participants never register; they get a
// token from /play/join.
type AuthHandler struct {
	authService *services.AuthService
	db          *gorm.DB
}

func NewAuthHandler(authService *services.AuthService, db *gorm.DB) *AuthHandler {
	return &AuthHandler{authService: authService, db: db}
}

type CredentialsRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100" example:"host1"`
	Password string `json:"password" binding:"required,min=6" example:"password123"`
}

type AuthResponse struct {
	Token string `json:"token" example:"eyJhbGciOiJIUzI1NiIs..."`
}

type HostResponse struct {
	ID           uint   `json:"id"`
	Username     string `json:"username"`
	SessionCount int    `json:"session_count"`
}

// Register godoc
// @Summary      Register a host
// @Description  Create a host account and return a host token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body CredentialsRequest true "Credentials"
// @Success      201 {object} AuthResponse
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	token, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}

// Login godoc
// @Summary      Log in as host
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body CredentialsRequest true "Credentials"
// @Success      200 {object} AuthResponse
// @Failure      401 {object} ErrorResponse
// @Router       /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		// Unknown user and wrong password look the same to the caller.
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials", Code: string(apperr.CodeValidation)})
		return
	}
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// Me godoc
// @Summary      Current host
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} HostResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	hostID := c.GetUint(middleware.KeyHostID)
	db := h.db.WithContext(c.Request.Context())

	var host models.Host
	if err := db.First(&host, hostID).Error; err != nil {
		writeError(c, apperr.New(apperr.CodeNotFound, "host not found"))
		return
	}
	var sessions int64
	if err := db.Model(&models.Session{}).Where("host_id = ?", host.ID).Count(&sessions).Error; err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, HostResponse{ID: host.ID, Username: host.Username, SessionCount: int(sessions)})
}
