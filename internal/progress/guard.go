package progress

import (
	"context"
	"log"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
)

// guard merges updates into per-session snapshots and rejects stale ones.
// Callers hold their own lock.
type guard struct {
	sessions map[uint]*guardState
	load     Loader
}

type guardState struct {
	snap    Snapshot
	retired map[string]bool
}

func newGuard(load Loader) *guard {
	return &guard{sessions: make(map[uint]*guardState), load: load}
}

func analysisStatusRank(status string) int {
	switch status {
	case models.AnalysisStatusQueued:
		return 1
	case models.AnalysisStatusProcessing:
		return 2
	case models.AnalysisStatusCompleted, models.AnalysisStatusFailed:
		return 3
	default:
		return 0
	}
}

func inFlight(status string) bool {
	return status == models.AnalysisStatusQueued || status == models.AnalysisStatusProcessing
}

// settled reports whether no further update can change s.
func settled(s Snapshot) bool {
	return s.SessionStatus == models.SessionStatusArchived && !inFlight(s.AnalysisStatus)
}

// state returns the tracked state of a session, starting from the stored
// snapshot the first time the session is seen.
func (g *guard) state(ctx context.Context, sessionID uint) *guardState {
	st, ok := g.sessions[sessionID]
	if ok {
		return st
	}
	st = &guardState{
		snap:    Snapshot{SessionID: sessionID},
		retired: make(map[string]bool),
	}
	if g.load != nil {
		snap, err := g.load(ctx, sessionID)
		if err != nil {
			log.Printf("progress: session %d: load snapshot: %v", sessionID, err)
		} else {
			st.snap = snap
		}
	}
	g.sessions[sessionID] = st
	return st
}

// release forgets a settled session. A late update loads it again.
func (g *guard) release(sessionID uint) {
	if st, ok := g.sessions[sessionID]; ok && settled(st.snap) {
		delete(g.sessions, sessionID)
	}
}

// accept applies u and returns the new snapshot, or false when u is stale.
func (g *guard) accept(ctx context.Context, u Update) (Snapshot, bool) {
	st := g.state(ctx, u.SessionID)
	snap, ok := st.apply(u)
	g.release(u.SessionID)
	return snap, ok
}

func (st *guardState) apply(u Update) (Snapshot, bool) {
	cur := &st.snap

	switch u.Kind {
	case KindSessionStatus:
		if models.SessionStatusOrder(u.SessionStatus) < models.SessionStatusOrder(cur.SessionStatus) {
			return *cur, false
		}
		cur.SessionStatus = u.SessionStatus

	case KindAnalysis:
		if u.RunID != "" && st.retired[u.RunID] {
			return *cur, false
		}
		if u.RunID == cur.RunID {
			if analysisStatusRank(u.AnalysisStatus) < analysisStatusRank(cur.AnalysisStatus) {
				return *cur, false
			}
			if u.AnalysisProgress < cur.AnalysisProgress {
				return *cur, false
			}
		} else if cur.RunID != "" {
			st.retired[cur.RunID] = true
		}
		cur.RunID = u.RunID
		cur.AnalysisStatus = u.AnalysisStatus
		cur.AnalysisType = u.AnalysisType
		cur.AnalysisProgress = u.AnalysisProgress
		cur.Error = u.Error
		if u.SessionStatus != "" && models.SessionStatusOrder(u.SessionStatus) >= models.SessionStatusOrder(cur.SessionStatus) {
			cur.SessionStatus = u.SessionStatus
		}

	default:
		return *cur, false
	}

	cur.Seq++
	cur.UpdatedAt = u.At
	return *cur, true
}

// seed installs s when nothing is known about the session yet.
func (g *guard) seed(s Snapshot) Snapshot {
	if st, ok := g.sessions[s.SessionID]; ok {
		if st.snap.SessionStatus == "" {
			st.snap.SessionStatus = s.SessionStatus
		}
		return st.snap
	}
	if settled(s) {
		return s
	}
	g.sessions[s.SessionID] = &guardState{snap: s, retired: make(map[string]bool)}
	return s
}

func (g *guard) get(sessionID uint) (Snapshot, bool) {
	st, ok := g.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return st.snap, true
}
