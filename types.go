package sessioncap

import (
	"context"
	"time"

	"github.com/MrEthical07/sessioncap/permission"
)

// User is the identity view the engine needs. Password material never leaves
// the identity collaborator.
type User struct {
	ID    int64
	Email string
	Name  string
	Roles []string
}

// Principal is the authenticated caller of a request, derived from a verified
// access token and the current user record.
type Principal struct {
	UserID int64
	Email  string
	Roles  []string
	Mask   permission.Mask64
	// ExpiresAt is the access token's expiry.
	ExpiresAt time.Time
}

// LoginResult is returned by Login and Refresh. On Refresh the refresh token
// is the one that was presented.
type LoginResult struct {
	UserID       int64
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// SignUpRequest carries the fields needed to create an account.
type SignUpRequest struct {
	Email    string
	Password string
	Name     string
	Roles    []string
}

// SessionInfo is the public view of one live session. The refresh token is
// never exposed.
type SessionInfo struct {
	SessionID  string
	UserID     int64
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// CredentialVerifier checks an email/password pair. Implementations return
// [ErrInvalidCredentials] for both an unknown email and a wrong password.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (User, error)
}

// UserStore loads users by ID and returns [ErrUserNotFound] when absent.
type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (User, error)
}

// PostStore resolves the author of a post and returns [ErrResourceNotFound]
// when the post does not exist.
type PostStore interface {
	GetAuthorID(ctx context.Context, postID int64) (int64, error)
}

// Registrar creates accounts and returns [ErrAccountExists] on a duplicate email.
type Registrar interface {
	Register(ctx context.Context, req SignUpRequest) (User, error)
}
