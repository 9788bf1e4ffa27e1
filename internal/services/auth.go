package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	hostTokenTTL        = 24 * time.Hour
	participantTokenTTL = 12 * time.Hour
)

var errInvalidCredentials = apperr.New(apperr.CodeValidation, "invalid credentials")

type AuthService struct {
	db        *gorm.DB
	jwtSecret []byte
}

func NewAuthService(db *gorm.DB, jwtSecret string) *AuthService {
	return &AuthService{db: db, jwtSecret: []byte(jwtSecret)}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.Host{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return "", err
	}
	if count > 0 {
		return "", apperr.New(apperr.CodeValidation, "username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	host := models.Host{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := db.Create(&host).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", apperr.New(apperr.CodeValidation, "username already taken")
		}
		return "", err
	}

	return s.GenerateToken(host.ID)
}

func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	var host models.Host
	if err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&host).Error; err != nil {
		return "", errInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(host.PasswordHash), []byte(password)); err != nil {
		return "", errInvalidCredentials
	}

	return s.GenerateToken(host.ID)
}

func (s *AuthService) GenerateToken(hostID uint) (string, error) {
	claims := jwt.MapClaims{
		"host_id": hostID,
		"exp":     time.Now().Add(hostTokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) ValidateToken(tokenString string) (uint, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return 0, err
	}

	hostIDFloat, ok := claims["host_id"].(float64)
	if !ok {
		return 0, errors.New("invalid host_id in token")
	}

	return uint(hostIDFloat), nil
}

// GenerateParticipantToken issues the token a participant uses for the rest
// of the session.
func (s *AuthService) GenerateParticipantToken(sessionID, participantID uint) (string, error) {
	claims := jwt.MapClaims{
		"participant_id": participantID,
		"session_id":     sessionID,
		"exp":            time.Now().Add(participantTokenTTL).Unix(),
		"iat":            time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateParticipantToken returns the session and participant a token was
// issued for.
func (s *AuthService) ValidateParticipantToken(tokenString string) (sessionID, participantID uint, err error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return 0, 0, err
	}

	pid, ok := claims["participant_id"].(float64)
	if !ok {
		return 0, 0, errors.New("invalid participant_id in token")
	}
	sid, ok := claims["session_id"].(float64)
	if !ok {
		return 0, 0, errors.New("invalid session_id in token")
	}
	return uint(sid), uint(pid), nil
}

func (s *AuthService) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}
