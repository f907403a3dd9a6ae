package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/sessioncap"
	"github.com/MrEthical07/sessioncap/password"
)

// PostgresDirectory implements the user directory over the users and
// user_roles tables created by the embedded migrations. The pool is owned by
// the caller and is never closed here.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	hasher password.Hasher
	schema string
	dummy  dummyHash
}

// PostgresOption configures the Postgres-backed stores of this package.
type PostgresOption func(*string) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the tables (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *string) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		*s = schema
		return nil
	}
}

func applySchema(opts []PostgresOption) (string, error) {
	schema := "public"
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&schema); err != nil {
			return "", err
		}
	}
	return schema, nil
}

// NewPostgresDirectory constructs a [PostgresDirectory].
func NewPostgresDirectory(pool *pgxpool.Pool, h password.Hasher, opts ...PostgresOption) (*PostgresDirectory, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	if h == nil {
		return nil, errors.New("identity: nil hasher")
	}
	schema, err := applySchema(opts)
	if err != nil {
		return nil, err
	}
	return &PostgresDirectory{pool: pool, hasher: h, schema: schema}, nil
}

func (d *PostgresDirectory) table(name string) string {
	return pgx.Identifier{d.schema, name}.Sanitize()
}

func (d *PostgresDirectory) selectUser(where string) string {
	return `SELECT u.id, u.email, u.name, u.password_hash,
	               COALESCE(array_agg(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}')
	          FROM ` + d.table("users") + ` u
	          LEFT JOIN ` + d.table("user_roles") + ` r ON r.user_id = u.id
	         WHERE ` + where + `
	         GROUP BY u.id`
}

type userRow struct {
	user sessioncap.User
	hash string
}

func (d *PostgresDirectory) queryUser(ctx context.Context, where string, arg any) (userRow, error) {
	var row userRow
	err := d.pool.QueryRow(ctx, d.selectUser(where), arg).Scan(
		&row.user.ID, &row.user.Email, &row.user.Name, &row.hash, &row.user.Roles,
	)
	if len(row.user.Roles) == 0 {
		row.user.Roles = nil
	}
	return row, err
}

// Register creates the user and its role rows in one transaction.
func (d *PostgresDirectory) Register(ctx context.Context, req sessioncap.SignUpRequest) (sessioncap.User, error) {
	const op = "identity.Register"

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return sessioncap.User{}, fmt.Errorf("%s: email is required", op)
	}
	hash, err := d.hasher.Hash(req.Password)
	if err != nil {
		return sessioncap.User{}, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return sessioncap.User{}, storageErr(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u := sessioncap.User{
		Email: NormalizeEmail(email),
		Name:  strings.TrimSpace(req.Name),
		Roles: cloneRoles(req.Roles),
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO `+d.table("users")+` (email, email_norm, name, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		email, u.Email, u.Name, hash,
	).Scan(&u.ID)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return sessioncap.User{}, sessioncap.ErrAccountExists
		}
		return sessioncap.User{}, storageErr(op, err)
	}

	for _, role := range u.Roles {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+d.table("user_roles")+` (user_id, role) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			u.ID, role,
		); err != nil {
			return sessioncap.User{}, storageErr(op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return sessioncap.User{}, storageErr(op, err)
	}
	return u, nil
}

// VerifyCredentials checks pw against the stored hash of email. Hashes that
// need an upgrade are rewritten on a best-effort basis.
func (d *PostgresDirectory) VerifyCredentials(ctx context.Context, email, pw string) (sessioncap.User, error) {
	const op = "identity.VerifyCredentials"

	row, err := d.queryUser(ctx, "u.email_norm = $1", NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			d.dummy.verify(d.hasher, pw)
			return sessioncap.User{}, sessioncap.ErrInvalidCredentials
		}
		return sessioncap.User{}, storageErr(op, err)
	}
	match, err := d.hasher.Verify(pw, row.hash)
	if err != nil || !match {
		return sessioncap.User{}, sessioncap.ErrInvalidCredentials
	}

	if upgrade, _ := d.hasher.NeedsUpgrade(row.hash); upgrade {
		if fresh, err := d.hasher.Hash(pw); err == nil {
			_, _ = d.pool.Exec(ctx,
				`UPDATE `+d.table("users")+` SET password_hash = $1 WHERE id = $2 AND password_hash = $3`,
				fresh, row.user.ID, row.hash,
			)
		}
	}
	return row.user, nil
}

// GetUserByID returns [sessioncap.ErrUserNotFound] when no row matches.
func (d *PostgresDirectory) GetUserByID(ctx context.Context, id int64) (sessioncap.User, error) {
	row, err := d.queryUser(ctx, "u.id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sessioncap.User{}, sessioncap.ErrUserNotFound
		}
		return sessioncap.User{}, storageErr("identity.GetUserByID", err)
	}
	return row.user, nil
}

// Delete removes a user. Role rows and posts cascade.
func (d *PostgresDirectory) Delete(ctx context.Context, id int64) error {
	ct, err := d.pool.Exec(ctx, `DELETE FROM `+d.table("users")+` WHERE id = $1`, id)
	if err != nil {
		return storageErr("identity.Delete", err)
	}
	if ct.RowsAffected() == 0 {
		return sessioncap.ErrUserNotFound
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", sessioncap.ErrStorage, op, err)
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
