package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no session matches the lookup key.
	ErrNotFound = errors.New("session not found")

	// ErrStorageUnavailable wraps every backend failure.
	ErrStorageUnavailable = errors.New("session storage unavailable")

	// ErrRefreshTokenInUse is returned when an insert reuses a refresh token that
	// already belongs to a live session.
	ErrRefreshTokenInUse = errors.New("refresh token already bound to a session")
)

// Store persists session records. Implementations must be safe for concurrent use.
//
// Insert assigns the session ID. FindByUser returns sessions in no particular
// order. Delete and Update report [ErrNotFound] for absent sessions.
type Store interface {
	Insert(ctx context.Context, sess *Session) (*Session, error)
	FindByUser(ctx context.Context, userID int64) ([]*Session, error)
	FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
	Update(ctx context.Context, sess *Session) error
}

// AtomicCreator is implemented by stores that can evict and insert for one user
// as a single backend operation. The returned evicted sessions are already gone.
type AtomicCreator interface {
	CreateWithEviction(ctx context.Context, sess *Session, limit int) (*Session, []*Session, error)
}

// NewID returns a fresh time-ordered session ID. The string form of a UUIDv7
// sorts lexically in creation order, which keeps eviction tie-breaks stable.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
