package usecase

import (
	"errors"
	"sync/atomic"
	"time"

	"PerpScope/internal/domain/models"
)

// ErrRefreshInProgress is returned when a refresh is requested while another
// one is still running. The caller gets an immediate rejection, never a queue.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// ErrNoSnapshot is returned by read paths before the first successful refresh.
var ErrNoSnapshot = errors.New("no snapshot available")

// SessionState reports whether the published snapshot reflects a completed
// refresh in this process.
type SessionState string

const (
	SessionStale   SessionState = "stale"
	SessionCurrent SessionState = "current"
)

// Session holds the atomically published snapshot and the refresh guard.
// Readers always see either the prior complete snapshot or the new complete
// one, never a partial state; a failed refresh leaves the prior snapshot
// untouched.
type Session struct {
	current    atomic.Pointer[models.Snapshot]
	refreshing atomic.Bool
}

func NewSession() *Session {
	return &Session{}
}

// Snapshot returns the currently published snapshot, or ErrNoSnapshot before
// the first successful refresh.
func (s *Session) Snapshot() (*models.Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// State reports Stale until the first successful refresh, Current after.
func (s *Session) State() SessionState {
	if s.current.Load() == nil {
		return SessionStale
	}
	return SessionCurrent
}

// LastRefreshed returns the publish time of the current snapshot, zero if
// none exists yet.
func (s *Session) LastRefreshed() time.Time {
	if snap := s.current.Load(); snap != nil {
		return snap.TakenAt()
	}
	return time.Time{}
}

// Refreshing reports whether a refresh cycle is currently running.
func (s *Session) Refreshing() bool {
	return s.refreshing.Load()
}

// beginRefresh claims the refresh guard. Exactly one caller wins; losers get
// ErrRefreshInProgress.
func (s *Session) beginRefresh() error {
	if !s.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	return nil
}

func (s *Session) endRefresh() {
	s.refreshing.Store(false)
}

// publish atomically replaces the current snapshot.
func (s *Session) publish(snap *models.Snapshot) {
	s.current.Store(snap)
}
