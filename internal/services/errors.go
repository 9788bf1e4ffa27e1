package services

import (
	"errors"
	"fmt"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"

	"gorm.io/gorm"
)

// lookupErr turns a failed First into NOT_FOUND, wrapping anything else.
func lookupErr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.CodeNotFound, message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

func invalidTransition(action, from, to string) error {
	return apperr.WithMetadata(
		apperr.CodeInvalidState,
		fmt.Sprintf("cannot %s: session is %s, expected %s", action, from, to),
		map[string]string{"action": action, "from_status": from, "expected_status": to},
	)
}

func notActive(session *models.Session) error {
	return apperr.WithMetadata(
		apperr.CodeSessionNotActive,
		"voting is not open for this session",
		map[string]string{"status": session.Status},
	)
}
