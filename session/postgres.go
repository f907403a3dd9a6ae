package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps sessions in a single table:
//
//	sessions(id TEXT PK, user_id BIGINT, refresh_token TEXT UNIQUE,
//	         last_used_at TIMESTAMPTZ, created_at TIMESTAMPTZ)
//
// The pool is owned by the caller and is never closed here. CreateWithEviction
// serializes per user with a transaction-scoped advisory lock.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// PostgresOption configures a [PostgresStore].
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema places the sessions table in schema (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier %q", schema)
		}
		s.table = pgx.Identifier{schema, "sessions"}.Sanitize()
		return nil
	}
}

// NewPostgresStore constructs a [PostgresStore].
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:  pool,
		table: pgx.Identifier{"public", "sessions"}.Sanitize(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("session: nil pool")
	}
	return st, nil
}

// Insert stores sess under a fresh ID.
func (s *PostgresStore) Insert(ctx context.Context, sess *Session) (*Session, error) {
	out, err := prepareInsert(sess)
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, s.pool, out); err != nil {
		return nil, err
	}
	return out, nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) insert(ctx context.Context, db pgExecer, sess *Session) error {
	_, err := db.Exec(ctx,
		`INSERT INTO `+s.table+` (id, user_id, refresh_token, last_used_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.RefreshToken, sess.LastUsedAt.UTC(), sess.CreatedAt.UTC(),
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return ErrRefreshTokenInUse
		}
		return unavailable(err)
	}
	return nil
}

// CreateWithEviction implements [AtomicCreator].
func (s *PostgresStore) CreateWithEviction(ctx context.Context, sess *Session, limit int) (*Session, []*Session, error) {
	out, err := prepareInsert(sess)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, nil, unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, out.UserID); err != nil {
		return nil, nil, unavailable(err)
	}

	existing, err := s.findByUser(ctx, tx, out.UserID)
	if err != nil {
		return nil, nil, err
	}

	victims := SelectVictims(existing, limit)
	if len(victims) > 0 {
		ids := make([]string, len(victims))
		for i, v := range victims {
			ids[i] = v.ID
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+s.table+` WHERE id = ANY($1)`, ids); err != nil {
			return nil, nil, unavailable(err)
		}
	}

	if err := s.insert(ctx, tx, out); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, unavailable(err)
	}
	return out, victims, nil
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// FindByUser returns every session of userID.
func (s *PostgresStore) FindByUser(ctx context.Context, userID int64) ([]*Session, error) {
	return s.findByUser(ctx, s.pool, userID)
}

func (s *PostgresStore) findByUser(ctx context.Context, db pgQuerier, userID int64) ([]*Session, error) {
	rows, err := db.Query(ctx,
		`SELECT id, user_id, refresh_token, last_used_at, created_at
		   FROM `+s.table+`
		  WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.RefreshToken, &sess.LastUsedAt, &sess.CreatedAt); err != nil {
			return nil, unavailable(err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return sessions, nil
}

// FindByRefreshToken loads the session bound to refreshToken.
func (s *PostgresStore) FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, refresh_token, last_used_at, created_at
		   FROM `+s.table+`
		  WHERE refresh_token = $1`,
		refreshToken,
	).Scan(&sess.ID, &sess.UserID, &sess.RefreshToken, &sess.LastUsedAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &sess, nil
}

// Delete removes one session by ID.
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE id = $1`, sessionID)
	if err != nil {
		return unavailable(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Update persists LastUsedAt.
func (s *PostgresStore) Update(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.table+` SET last_used_at = $1 WHERE id = $2`,
		sess.LastUsedAt.UTC(), sess.ID,
	)
	if err != nil {
		return unavailable(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeIdleBefore deletes sessions not used since cutoff and returns how many
// were removed. Callers run it periodically with the refresh-token lifetime.
func (s *PostgresStore) PurgeIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE last_used_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	return ct.RowsAffected(), nil
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
