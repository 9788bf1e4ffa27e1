package middleware

import (
	"net/http"
	"strings"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"

	"github.com/gin-gonic/gin"
)

// Context keys set by the middlewares below.
const (
	KeyHostID        = "host_id"
	KeySessionID     = "session_id"
	KeyParticipantID = "participant_id"
)

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		// Browsers cannot set headers on websocket upgrades.
		if t := c.Query("token"); t != "" {
			return t, true
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
		return "", false
	}
	return parts[1], true
}

func JWTAuth(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		hostID, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(KeyHostID, hostID)
		c.Next()
	}
}

func ParticipantAuth(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		sessionID, participantID, err := authService.ValidateParticipantToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired participant token"})
			return
		}

		c.Set(KeySessionID, sessionID)
		c.Set(KeyParticipantID, participantID)
		c.Next()
	}
}

// FlexAuth accepts either a host or a participant token.
func FlexAuth(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		if hostID, err := authService.ValidateToken(token); err == nil {
			c.Set(KeyHostID, hostID)
			c.Next()
			return
		}
		if sessionID, participantID, err := authService.ValidateParticipantToken(token); err == nil {
			c.Set(KeySessionID, sessionID)
			c.Set(KeyParticipantID, participantID)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
	}
}
