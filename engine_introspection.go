package sessioncap

import (
	"context"
)

// ListSessions returns the live sessions of userID, most recently used first.
func (e *Engine) ListSessions(ctx context.Context, userID int64) ([]SessionInfo, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	sessions, err := e.flows.ListSessions(ctx, userID)
	if err != nil {
		return nil, mapSessionError(err)
	}
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			SessionID:  s.ID,
			UserID:     s.UserID,
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt,
		})
	}
	return out, nil
}

// ActiveSessionCount returns how many sessions userID currently holds. It is
// never greater than SessionLimit.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID int64) (int, error) {
	if e == nil || !e.flows.Initialized() {
		return 0, ErrEngineNotReady
	}
	n, err := e.flows.ActiveSessionCount(ctx, userID)
	if err != nil {
		return 0, mapSessionError(err)
	}
	return n, nil
}
