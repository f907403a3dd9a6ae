package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessioncap/jwt"
	"github.com/MrEthical07/sessioncap/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalidToken
	RefreshFailureExpiredToken
	RefreshFailureWrongClass
	RefreshFailureSessionNotFound
	RefreshFailureSubjectMismatch
	RefreshFailureStorage
	RefreshFailureUserNotFound
	RefreshFailureUserLookup
	RefreshFailureIssueAccess
)

// RefreshResult carries either the new access token or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	UserID       int64
	SessionID    string
	Session      *session.Session
	AccessToken  string
	RefreshToken string
}

// RefreshSessions is the slice of the session manager the refresh flow needs.
type RefreshSessions interface {
	ValidateAndTouch(ctx context.Context, refreshToken string) (*session.Session, error)
	RevokeByID(ctx context.Context, sessionID string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Decode func(string) (*jwt.Claims, error)
	// UserExists returns an error matching IsUserNotFound when the account is gone.
	UserExists     func(ctx context.Context, userID int64) error
	IsUserNotFound func(error) bool
	IssueAccess    func(subjectID int64) (string, error)
	Warn           func(string, ...any)
	Sessions       RefreshSessions
}

// RunRefresh exchanges a refresh token for a new access token. The refresh
// token itself is returned unchanged.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Decode(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return RefreshResult{Failure: RefreshFailureExpiredToken, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureInvalidToken, Err: err}
	}
	if claims.Class != jwt.ClassRefresh {
		return RefreshResult{Failure: RefreshFailureWrongClass, UserID: claims.SubjectID}
	}

	sess, err := deps.Sessions.ValidateAndTouch(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, UserID: claims.SubjectID}
		}
		return RefreshResult{Failure: RefreshFailureStorage, Err: err, UserID: claims.SubjectID}
	}
	if sess.UserID != claims.SubjectID {
		return RefreshResult{
			Failure:   RefreshFailureSubjectMismatch,
			UserID:    claims.SubjectID,
			SessionID: sess.ID,
			Session:   sess,
		}
	}

	if deps.UserExists != nil {
		if err := deps.UserExists(ctx, sess.UserID); err != nil {
			if deps.IsUserNotFound != nil && deps.IsUserNotFound(err) {
				if revokeErr := deps.Sessions.RevokeByID(ctx, sess.ID); revokeErr != nil &&
					!errors.Is(revokeErr, session.ErrNotFound) && deps.Warn != nil {
					deps.Warn("sessioncap: orphan session cleanup failed", "session_id", sess.ID, "error", revokeErr)
				}
				return RefreshResult{
					Failure:   RefreshFailureUserNotFound,
					Err:       err,
					UserID:    sess.UserID,
					SessionID: sess.ID,
					Session:   sess,
				}
			}
			return RefreshResult{
				Failure:   RefreshFailureUserLookup,
				Err:       err,
				UserID:    sess.UserID,
				SessionID: sess.ID,
				Session:   sess,
			}
		}
	}

	access, err := deps.IssueAccess(sess.UserID)
	if err != nil {
		return RefreshResult{
			Failure:   RefreshFailureIssueAccess,
			Err:       err,
			UserID:    sess.UserID,
			SessionID: sess.ID,
			Session:   sess,
		}
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		UserID:       sess.UserID,
		SessionID:    sess.ID,
		Session:      sess,
		AccessToken:  access,
		RefreshToken: refreshToken,
	}
}
