// Package progress delivers session status and analysis progress to
// observers. Producers depend only on Notifier; polling, websocket and chat
// delivery are interchangeable implementations of it.
//
// Delivery is at-least-once. Within a session an implementation never lets an
// observer see a status regress or a run's progress go backwards.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
)

const (
	KindSessionStatus = "session_status"
	KindAnalysis      = "analysis"
)

// Update is one change reported by the state machine or the orchestrator.
type Update struct {
	SessionID        uint      `json:"session_id"`
	Kind             string    `json:"kind"`
	SessionStatus    string    `json:"session_status,omitempty"`
	AnalysisStatus   string    `json:"analysis_status,omitempty"`
	AnalysisType     string    `json:"analysis_type,omitempty"`
	AnalysisProgress int       `json:"analysis_progress"`
	RunID            string    `json:"run_id,omitempty"`
	Error            string    `json:"error,omitempty"`
	At               time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, u Update) error
}

// Snapshot is the merged state an observer converges to.
type Snapshot struct {
	SessionID        uint      `json:"session_id"`
	SessionStatus    string    `json:"session_status"`
	AnalysisStatus   string    `json:"analysis_status"`
	AnalysisType     string    `json:"analysis_type,omitempty"`
	AnalysisProgress int       `json:"analysis_progress"`
	RunID            string    `json:"run_id,omitempty"`
	Error            string    `json:"error,omitempty"`
	Seq              uint64    `json:"seq"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SnapshotOf builds the snapshot persisted on a session row.
func SnapshotOf(s *models.Session) Snapshot {
	return Snapshot{
		SessionID:        s.ID,
		SessionStatus:    s.Status,
		AnalysisStatus:   s.AnalysisStatus,
		AnalysisType:     s.AnalysisType,
		AnalysisProgress: s.AnalysisProgress,
		RunID:            s.AnalysisRunID,
		Error:            s.AnalysisError,
		UpdatedAt:        s.UpdatedAt,
	}
}

// Fanout delivers each update to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, u Update) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every update.
type Discard struct{}

func (Discard) Notify(context.Context, Update) error { return nil }
