package flows

import (
	"context"

	"github.com/MrEthical07/sessioncap/session"
)

type LogoutSessions interface {
	Revoke(ctx context.Context, refreshToken string) (*session.Session, error)
	RevokeAll(ctx context.Context, userID int64) (int, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Sessions LogoutSessions
}

type LogoutResult struct {
	UserID    int64
	SessionID string
	Err       error
}

func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	sess, err := deps.Sessions.Revoke(ctx, refreshToken)
	if err != nil {
		return LogoutResult{Err: err}
	}
	return LogoutResult{UserID: sess.UserID, SessionID: sess.ID}
}

func RunLogoutAll(ctx context.Context, userID int64, deps LogoutDeps) (int, error) {
	return deps.Sessions.RevokeAll(ctx, userID)
}
