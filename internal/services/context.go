package services

import "time"

// SessionContext identifies the session an operation targets and who is
// acting on it. Handlers build one per request; the timer builds a system one.
type SessionContext struct {
	SessionID     uint
	HostID        uint
	ParticipantID uint
	System        bool
	Now           time.Time
}

func HostContext(sessionID, hostID uint) SessionContext {
	return SessionContext{SessionID: sessionID, HostID: hostID}
}

func ParticipantContext(sessionID, participantID uint) SessionContext {
	return SessionContext{SessionID: sessionID, ParticipantID: participantID}
}

// SystemContext is used for timer-driven transitions that bypass the host check.
func SystemContext(sessionID uint, now time.Time) SessionContext {
	return SessionContext{SessionID: sessionID, System: true, Now: now}
}

func (sc SessionContext) now() time.Time {
	if sc.Now.IsZero() {
		return time.Now().UTC()
	}
	return sc.Now.UTC()
}
