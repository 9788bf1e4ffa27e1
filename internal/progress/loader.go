package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"

	"gorm.io/gorm"
)

// Loader reads the persisted state of a session. Poller and Pusher use it the
// first time they see a session so a restart does not lose what is stored.
type Loader func(ctx context.Context, sessionID uint) (Snapshot, error)

// StoreLoader builds the snapshot from the session row. An archived session
// keeps the analysis fields it had when it was archived, so the outcome of a
// run that was still in flight is taken from the run record.
func StoreLoader(db *gorm.DB) Loader {
	return func(ctx context.Context, sessionID uint) (Snapshot, error) {
		db := db.WithContext(ctx)

		var session models.Session
		if err := db.First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Snapshot{}, apperr.New(apperr.CodeNotFound, "session not found")
			}
			return Snapshot{}, fmt.Errorf("load session: %w", err)
		}
		snap := SnapshotOf(&session)
		if session.AnalysisRunID == "" || !inFlight(session.AnalysisStatus) {
			return snap, nil
		}

		var run models.AnalysisRun
		err := db.First(&run, "id = ?", session.AnalysisRunID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return snap, nil
		case err != nil:
			return Snapshot{}, fmt.Errorf("load analysis run: %w", err)
		}
		if analysisStatusRank(run.Status) > analysisStatusRank(snap.AnalysisStatus) {
			snap.AnalysisStatus = run.Status
			snap.AnalysisProgress = run.Progress
			snap.Error = run.Error
		}
		return snap, nil
	}
}
