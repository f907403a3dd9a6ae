package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultLimit is the number of concurrent sessions a user may hold.
const DefaultLimit = 2

// ManagerConfig tunes a [Manager].
type ManagerConfig struct {
	// Limit caps live sessions per user. Zero means DefaultLimit.
	Limit int

	// Now overrides the clock.
	Now func() time.Time

	Logger *slog.Logger

	// OnEvict observes each session removed to make room for a new one.
	OnEvict func(ctx context.Context, evicted *Session)
}

// Manager owns the session lifecycle: creation with least-recently-used
// eviction, validation with touch, and revocation. It is the only writer of
// session records.
type Manager struct {
	store   Store
	atomic  AtomicCreator
	limit   int
	now     func() time.Time
	logger  *slog.Logger
	onEvict func(context.Context, *Session)
	locks   *userLocks
}

// NewManager wraps store. When store also implements [AtomicCreator] creation
// is delegated to it; otherwise creation is serialized per user in process.
func NewManager(store Store, cfg ManagerConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: nil store")
	}
	if cfg.Limit < 0 {
		return nil, errors.New("session: limit must be >= 0")
	}
	limit := cfg.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := &Manager{
		store:   store,
		limit:   limit,
		now:     now,
		logger:  logger,
		onEvict: cfg.OnEvict,
		locks:   newUserLocks(),
	}
	if ac, ok := store.(AtomicCreator); ok {
		m.atomic = ac
	}
	return m, nil
}

// Limit returns the configured per-user cap.
func (m *Manager) Limit() int {
	return m.limit
}

// Backend names the underlying store for diagnostics.
func (m *Manager) Backend() string {
	switch m.store.(type) {
	case *RedisStore:
		return "redis"
	case *PostgresStore:
		return "postgres"
	case *MemoryStore:
		return "memory"
	default:
		return "custom"
	}
}

func (m *Manager) stamp() time.Time {
	return m.now().Truncate(time.Millisecond)
}

// CreateSession records a new login for userID bound to refreshToken. If the
// user already holds Limit sessions, the least recently used one is deleted
// first, so the count never exceeds Limit.
func (m *Manager) CreateSession(ctx context.Context, userID int64, refreshToken string) (*Session, error) {
	now := m.stamp()
	sess := &Session{
		UserID:       userID,
		RefreshToken: refreshToken,
		LastUsedAt:   now,
		CreatedAt:    now,
	}

	if m.atomic != nil {
		created, evicted, err := m.atomic.CreateWithEviction(ctx, sess, m.limit)
		if err != nil {
			return nil, err
		}
		m.notifyEvicted(ctx, evicted)
		return created, nil
	}

	unlock := m.locks.lock(userID)
	defer unlock()

	existing, err := m.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	victims := SelectVictims(existing, m.limit)
	evicted := make([]*Session, 0, len(victims))
	for _, victim := range victims {
		err := m.store.Delete(ctx, victim.ID)
		switch {
		case err == nil:
			evicted = append(evicted, victim)
		case errors.Is(err, ErrNotFound):
			m.logger.Warn("evicted session already absent",
				slog.Int64("user_id", userID),
				slog.String("session_id", victim.ID),
			)
		default:
			return nil, err
		}
	}

	created, err := m.store.Insert(ctx, sess)
	if err != nil {
		return nil, err
	}
	m.notifyEvicted(ctx, evicted)
	return created, nil
}

func (m *Manager) notifyEvicted(ctx context.Context, evicted []*Session) {
	for _, sess := range evicted {
		m.logger.Info("session evicted",
			slog.Int64("user_id", sess.UserID),
			slog.String("session_id", sess.ID),
		)
		if m.onEvict != nil {
			m.onEvict(ctx, sess)
		}
	}
}

// ValidateAndTouch looks up the session bound to refreshToken and marks it as
// used now. It returns [ErrNotFound] once the session was evicted or revoked.
func (m *Manager) ValidateAndTouch(ctx context.Context, refreshToken string) (*Session, error) {
	sess, err := m.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	sess.LastUsedAt = m.stamp()
	if err := m.store.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Revoke deletes the session bound to refreshToken.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) (*Session, error) {
	sess, err := m.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := m.store.Delete(ctx, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

// RevokeAll deletes every session of userID and returns how many were removed.
func (m *Manager) RevokeAll(ctx context.Context, userID int64) (int, error) {
	unlock := m.locks.lock(userID)
	defer unlock()

	sessions, err := m.store.FindByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, sess := range sessions {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RevokeByID deletes one session by ID.
func (m *Manager) RevokeByID(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}

// ListSessions returns the sessions of userID, most recently used first.
func (m *Manager) ListSessions(ctx context.Context, userID int64) ([]*Session, error) {
	sessions, err := m.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	SortMostRecentFirst(sessions)
	return sessions, nil
}

// userLocks hands out one mutex per user ID and drops it when no goroutine holds
// or waits on it.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
