package session

import "errors"

var (
	// ErrNoActiveSession is returned by live-view operations when no session is open.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionActive is returned when starting a session while one is open.
	ErrSessionActive = errors.New("session already active")
)
