package flows

import (
	"context"

	"github.com/MrEthical07/sessioncap/session"
)

type IntrospectionSessions interface {
	ListSessions(ctx context.Context, userID int64) ([]*session.Session, error)
}

type IntrospectionDeps struct {
	Sessions          IntrospectionSessions
	EngineNotReadyErr error
}

func RunListSessions(ctx context.Context, userID int64, deps IntrospectionDeps) ([]*session.Session, error) {
	if deps.Sessions == nil {
		return nil, deps.EngineNotReadyErr
	}
	return deps.Sessions.ListSessions(ctx, userID)
}

func RunActiveSessionCount(ctx context.Context, userID int64, deps IntrospectionDeps) (int, error) {
	sessions, err := RunListSessions(ctx, userID, deps)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}
