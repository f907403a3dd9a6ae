package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-process [Store] for tests and single-node demos. It does
// not implement [AtomicCreator], so the [Manager] serializes creation itself.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*Session
	byRefresh map[string]string
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Session),
		byRefresh: make(map[string]string),
	}
}

func (s *MemoryStore) Insert(_ context.Context, sess *Session) (*Session, error) {
	out, err := prepareInsert(sess)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byRefresh[out.RefreshToken]; ok {
		return nil, ErrRefreshTokenInUse
	}
	s.byID[out.ID] = out.Clone()
	s.byRefresh[out.RefreshToken] = out.ID
	return out, nil
}

func (s *MemoryStore) FindByUser(_ context.Context, userID int64) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Session{}
	for _, sess := range s.byID {
		if sess.UserID == userID {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) FindByRefreshToken(_ context.Context, refreshToken string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRefresh[refreshToken]
	if !ok {
		return nil, ErrNotFound
	}
	sess, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, sessionID)
	delete(s.byRefresh, sess.RefreshToken)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[sess.ID]
	if !ok {
		return ErrNotFound
	}
	cur.LastUsedAt = sess.LastUsedAt
	return nil
}

// Len returns the number of stored sessions across all users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// PurgeIdleBefore deletes sessions not used since cutoff.
func (s *MemoryStore) PurgeIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.byID {
		if sess.LastUsedAt.Before(cutoff) {
			delete(s.byID, id)
			delete(s.byRefresh, sess.RefreshToken)
			n++
		}
	}
	return n, nil
}

// IdlePurger is implemented by stores without native expiry. Callers run it
// periodically with the refresh-token lifetime.
type IdlePurger interface {
	PurgeIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ IdlePurger = (*MemoryStore)(nil)
	_ IdlePurger = (*PostgresStore)(nil)
)
