package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm used by a [Manager].
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret. This is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with the public key.
	MethodEd25519 SigningMethod = "ed25519"
)

// Class distinguishes access tokens from refresh tokens.
type Class string

const (
	// ClassAccess marks a short-lived token presented on every request.
	ClassAccess Class = "access"
	// ClassRefresh marks a long-lived token used only to obtain new access tokens.
	ClassRefresh Class = "refresh"
)

// Valid reports whether c is a known token class.
func (c Class) Valid() bool {
	return c == ClassAccess || c == ClassRefresh
}

var (
	// ErrInvalidToken is returned for malformed, forged or tampered tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the signature verifies but the expiry has passed.
	ErrExpiredToken = errors.New("token expired")
)

const minHS256SecretSize = 32

// Config holds the signing material and verification policy of a [Manager].
//
// The signing secret is read once at construction; the Manager keeps its own copy
// and never mutates it afterwards.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the clock. Tests use it to cross expiry boundaries.
	Now func() time.Time
}

// Claims is the decoded view of a verified token.
type Claims struct {
	ID        string
	SubjectID int64
	Class     Class
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	Class Class `json:"typ"`
	jwt.RegisteredClaims
}

// Manager issues and verifies signed, time-bounded tokens. It is stateless apart
// from its immutable configuration and safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a ready [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	cfg.PrivateKey = cloneBytes(cfg.PrivateKey)
	cfg.PublicKey = cloneBytes(cfg.PublicKey)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHS256SecretSize {
			return nil, fmt.Errorf("hs256 requires a secret of at least %d bytes", minHS256SecretSize)
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{config: cfg, now: now}, nil
}

// Issue signs a token for subjectID of the given class, valid for ttl from now.
// Timestamps are whole seconds since the epoch.
func (m *Manager) Issue(subjectID int64, class Class, ttl time.Duration) (string, error) {
	if !class.Valid() {
		return "", fmt.Errorf("unknown token class %q", class)
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be > 0")
	}
	if m.config.SigningMethod == MethodEd25519 && len(m.config.PrivateKey) == 0 {
		return "", errors.New("manager has no signing key")
	}

	now := m.now()
	claims := wireClaims{
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(subjectID, 10),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(m.getMethod(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signKey, err := m.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

// Decode verifies tokenStr and returns its claims. It fails with [ErrInvalidToken]
// when the token is malformed or its signature does not verify, and with
// [ErrExpiredToken] when the token is authentic but past its expiry.
func (m *Manager) Decode(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &wireClaims{}, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	wc, ok := token.Claims.(*wireClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !wc.Class.Valid() {
		return nil, fmt.Errorf("%w: unknown class %q", ErrInvalidToken, wc.Class)
	}
	subjectID, err := strconv.ParseInt(wc.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}

	claims := &Claims{
		ID:        wc.ID,
		SubjectID: subjectID,
		Class:     wc.Class,
	}
	if wc.IssuedAt != nil {
		claims.IssuedAt = wc.IssuedAt.Time
	}
	if wc.ExpiresAt != nil {
		claims.ExpiresAt = wc.ExpiresAt.Time
	}
	return claims, nil
}

// DecodeClass is Decode plus a class check; a token of any other class is
// reported as [ErrInvalidToken].
func (m *Manager) DecodeClass(tokenStr string, want Class) (*Claims, error) {
	claims, err := m.Decode(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Class != want {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, want)
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != m.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(m.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := m.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return m.keyBytesToVerifyKey(key)
	}

	if m.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != m.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return m.getVerifyKey()
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (m *Manager) getSignKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(m.config.PrivateKey)
	default:
		return m.config.PrivateKey, nil
	}
}

func (m *Manager) getVerifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(m.config.PublicKey)
	default:
		return m.config.PrivateKey, nil
	}
}

func (m *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(key)
	default:
		return key, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
