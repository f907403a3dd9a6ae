package session

import (
	"sort"
	"time"
)

// Session is one active login of a user. It is created at login, touched on
// every refresh and deleted on eviction or logout.
type Session struct {
	ID           string
	UserID       int64
	RefreshToken string
	LastUsedAt   time.Time
	CreatedAt    time.Time
}

// Clone returns a copy of s that shares no memory with it.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// lessRecentlyUsed orders a before b when a is the better eviction victim:
// oldest LastUsedAt first, lowest ID on ties.
func lessRecentlyUsed(a, b *Session) bool {
	if !a.LastUsedAt.Equal(b.LastUsedAt) {
		return a.LastUsedAt.Before(b.LastUsedAt)
	}
	return a.ID < b.ID
}

// SelectVictims returns the sessions that must be removed so that one more
// session fits under limit. The result is in eviction order and empty when
// len(sessions) < limit.
func SelectVictims(sessions []*Session, limit int) []*Session {
	if limit < 1 {
		limit = 1
	}
	excess := len(sessions) - limit + 1
	if excess <= 0 {
		return nil
	}

	ordered := make([]*Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return lessRecentlyUsed(ordered[i], ordered[j])
	})
	return ordered[:excess]
}

// SortMostRecentFirst orders sessions by LastUsedAt descending, in place.
func SortMostRecentFirst(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return lessRecentlyUsed(sessions[j], sessions[i])
	})
}
