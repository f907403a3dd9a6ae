package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrEthical07/sessioncap"
	"github.com/MrEthical07/sessioncap/password"
)

type memoryUser struct {
	user sessioncap.User
	hash string
}

// MemoryDirectory is an in-process user directory. It is safe for concurrent
// use and loses its contents when the process exits.
type MemoryDirectory struct {
	hasher password.Hasher
	dummy  dummyHash

	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*memoryUser
	byEmail map[string]int64
}

// NewMemoryDirectory returns an empty directory hashing with h.
func NewMemoryDirectory(h password.Hasher) (*MemoryDirectory, error) {
	if h == nil {
		return nil, errors.New("identity: nil hasher")
	}
	return &MemoryDirectory{
		hasher:  h,
		byID:    make(map[int64]*memoryUser),
		byEmail: make(map[string]int64),
	}, nil
}

// Register creates an account. IDs are assigned sequentially from 1.
func (d *MemoryDirectory) Register(ctx context.Context, req sessioncap.SignUpRequest) (sessioncap.User, error) {
	if err := ctx.Err(); err != nil {
		return sessioncap.User{}, err
	}
	email := NormalizeEmail(req.Email)
	if email == "" {
		return sessioncap.User{}, errors.New("identity: email is required")
	}
	hash, err := d.hasher.Hash(req.Password)
	if err != nil {
		return sessioncap.User{}, fmt.Errorf("identity: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byEmail[email]; exists {
		return sessioncap.User{}, sessioncap.ErrAccountExists
	}
	d.nextID++
	u := sessioncap.User{
		ID:    d.nextID,
		Email: email,
		Name:  strings.TrimSpace(req.Name),
		Roles: cloneRoles(req.Roles),
	}
	d.byID[u.ID] = &memoryUser{user: u, hash: hash}
	d.byEmail[email] = u.ID
	return copyUser(u), nil
}

// VerifyCredentials returns the user when password matches the stored hash.
// A hash written by an older scheme is re-encoded with the current one.
func (d *MemoryDirectory) VerifyCredentials(ctx context.Context, email, pw string) (sessioncap.User, error) {
	if err := ctx.Err(); err != nil {
		return sessioncap.User{}, err
	}
	email = NormalizeEmail(email)

	d.mu.RLock()
	var rec memoryUser
	id, ok := d.byEmail[email]
	if ok {
		rec = *d.byID[id]
	}
	d.mu.RUnlock()

	if !ok {
		d.dummy.verify(d.hasher, pw)
		return sessioncap.User{}, sessioncap.ErrInvalidCredentials
	}
	match, err := d.hasher.Verify(pw, rec.hash)
	if err != nil || !match {
		return sessioncap.User{}, sessioncap.ErrInvalidCredentials
	}

	if upgrade, _ := d.hasher.NeedsUpgrade(rec.hash); upgrade {
		if fresh, err := d.hasher.Hash(pw); err == nil {
			d.mu.Lock()
			if cur, ok := d.byID[id]; ok && cur.hash == rec.hash {
				cur.hash = fresh
			}
			d.mu.Unlock()
		}
	}
	return copyUser(rec.user), nil
}

// GetUserByID returns [sessioncap.ErrUserNotFound] when id is unknown.
func (d *MemoryDirectory) GetUserByID(ctx context.Context, id int64) (sessioncap.User, error) {
	if err := ctx.Err(); err != nil {
		return sessioncap.User{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.byID[id]
	if !ok {
		return sessioncap.User{}, sessioncap.ErrUserNotFound
	}
	return copyUser(rec.user), nil
}

// SetPasswordHash replaces the stored hash of a user. Operators use it when
// importing accounts hashed elsewhere.
func (d *MemoryDirectory) SetPasswordHash(id int64, encoded string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.byID[id]
	if !ok {
		return sessioncap.ErrUserNotFound
	}
	rec.hash = encoded
	return nil
}

// Remove deletes a user. Sessions of the user become orphans and are revoked
// on their next refresh.
func (d *MemoryDirectory) Remove(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.byID[id]
	if !ok {
		return false
	}
	delete(d.byEmail, rec.user.Email)
	delete(d.byID, id)
	return true
}

func (d *MemoryDirectory) passwordHash(id int64) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if rec, ok := d.byID[id]; ok {
		return rec.hash
	}
	return ""
}

func copyUser(u sessioncap.User) sessioncap.User {
	u.Roles = cloneRoles(u.Roles)
	return u
}
