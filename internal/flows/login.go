package flows

import (
	"context"
	"strings"

	"github.com/MrEthical07/sessioncap/jwt"
	"github.com/MrEthical07/sessioncap/session"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureEmptyCredentials
	LoginFailureInvalidCredentials
	LoginFailureCredentialBackend
	LoginFailureIssueToken
	LoginFailureCreateSession
	LoginFailureRateLimited
)

// LoginResult carries either the issued token pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	UserID       int64
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// LoginSessions is the slice of the session manager the login flow needs.
type LoginSessions interface {
	CreateSession(ctx context.Context, userID int64, refreshToken string) (*session.Session, error)
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	// VerifyCredentials returns the user ID on success.
	VerifyCredentials func(ctx context.Context, email, password string) (int64, error)
	// IsInvalidCredentials reports whether a VerifyCredentials error means
	// "unknown email or wrong password" rather than a backend failure.
	IsInvalidCredentials func(error) bool
	IssueToken           func(subjectID int64, class jwt.Class) (string, error)
	Sessions             LoginSessions

	// Throttle is optional. When set, it is consulted before credentials are
	// checked and told about every failed attempt.
	Throttle LoginThrottle
}

// LoginThrottle limits repeated failed logins for one email.
type LoginThrottle interface {
	Check(ctx context.Context, email string) error
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// RunLogin verifies credentials, issues an access and a refresh token and
// records the session. No session is created on any failure before the last step.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	if strings.TrimSpace(email) == "" || password == "" {
		return LoginResult{Failure: LoginFailureEmptyCredentials}
	}

	if deps.Throttle != nil {
		if err := deps.Throttle.Check(ctx, email); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	userID, err := deps.VerifyCredentials(ctx, email, password)
	if err != nil {
		if deps.IsInvalidCredentials == nil || deps.IsInvalidCredentials(err) {
			if deps.Throttle != nil {
				if terr := deps.Throttle.RecordFailure(ctx, email); terr != nil {
					return LoginResult{Failure: LoginFailureRateLimited, Err: terr}
				}
			}
			return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err}
		}
		return LoginResult{Failure: LoginFailureCredentialBackend, Err: err}
	}
	if deps.Throttle != nil {
		_ = deps.Throttle.Reset(ctx, email)
	}

	access, err := deps.IssueToken(userID, jwt.ClassAccess)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueToken, Err: err, UserID: userID}
	}
	refresh, err := deps.IssueToken(userID, jwt.ClassRefresh)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueToken, Err: err, UserID: userID}
	}

	sess, err := deps.Sessions.CreateSession(ctx, userID, refresh)
	if err != nil {
		return LoginResult{Failure: LoginFailureCreateSession, Err: err, UserID: userID}
	}

	return LoginResult{
		Failure:      LoginFailureNone,
		UserID:       userID,
		SessionID:    sess.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
