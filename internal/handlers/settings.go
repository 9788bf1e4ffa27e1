package handlers

import (
	"net/http"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/middleware"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SettingsHandler struct {
	db              *gorm.DB
	telegramEnabled bool
}

func NewSettingsHandler(db *gorm.DB, telegramEnabled bool) *SettingsHandler {
	return &SettingsHandler{db: db, telegramEnabled: telegramEnabled}
}

type SettingsResponse struct {
	Username        string `json:"username"`
	TelegramChatID  int64  `json:"telegram_chat_id"`
	TelegramEnabled bool   `json:"telegram_enabled"`
}

type UpdateSettingsRequest struct {
	// Zero unlinks the chat.
	TelegramChatID int64 `json:"telegram_chat_id" example:"123456789"`
}

// GetSettings godoc
// @Summary      Get host settings
// @Description  Get the linked Telegram chat for session notifications
// @Tags         settings
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} SettingsResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/settings [get]
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	hostID := c.GetUint(middleware.KeyHostID)

	var host models.Host
	if err := h.db.WithContext(c.Request.Context()).First(&host, hostID).Error; err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "host not found"})
		return
	}

	c.JSON(http.StatusOK, SettingsResponse{
		Username:        host.Username,
		TelegramChatID:  host.TelegramChatID,
		TelegramEnabled: h.telegramEnabled,
	})
}

// UpdateSettings godoc
// @Summary      Update host settings
// @Description  Link or unlink the Telegram chat that receives session notifications
// @Tags         settings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateSettingsRequest true "Settings data"
// @Success      200 {object} SettingsResponse
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/settings [put]
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	hostID := c.GetUint(middleware.KeyHostID)

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	db := h.db.WithContext(c.Request.Context())
	if err := db.Model(&models.Host{}).Where("id = ?", hostID).
		Update("telegram_chat_id", req.TelegramChatID).Error; err != nil {
		writeError(c, err)
		return
	}

	var host models.Host
	if err := db.First(&host, hostID).Error; err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "host not found"})
		return
	}

	c.JSON(http.StatusOK, SettingsResponse{
		Username:        host.Username,
		TelegramChatID:  host.TelegramChatID,
		TelegramEnabled: h.telegramEnabled,
	})
}
