package password

import (
	"errors"
	"strings"
)

var (
	// ErrTooShort is returned when a password is shorter than MinLength bytes.
	ErrTooShort = errors.New("password too short")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// MinLength is the minimum accepted password length in bytes. Passwords are
// processed exactly as provided, without Unicode normalization.
const MinLength = 10

// Hasher produces and checks encoded password hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Auto hashes with Primary and verifies any hash whose format one of the known
// schemes recognizes, so records written by an older scheme keep working and
// report NeedsUpgrade.
type Auto struct {
	Primary Hasher
	Argon2  *Argon2
	Bcrypt  *Bcrypt
}

func (a Auto) Hash(password string) (string, error) {
	return a.Primary.Hash(password)
}

func (a Auto) Verify(password, encodedHash string) (bool, error) {
	h, err := a.schemeFor(encodedHash)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encodedHash)
}

func (a Auto) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := a.schemeFor(encodedHash)
	if err != nil {
		return false, err
	}
	if h != a.Primary {
		return true, nil
	}
	return h.NeedsUpgrade(encodedHash)
}

func (a Auto) schemeFor(encodedHash string) (Hasher, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+argon2ID+"$") && a.Argon2 != nil:
		return a.Argon2, nil
	case isBcryptHash(encodedHash) && a.Bcrypt != nil:
		return a.Bcrypt, nil
	default:
		return nil, ErrMalformedHash
	}
}
