package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	cfg := Config{PrivateKey: []byte(testSecret), Issuer: "sessioncap"}
	if clock != nil {
		cfg.Now = clock.Now
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	for _, class := range []Class{ClassAccess, ClassRefresh} {
		tok, err := m.Issue(7, class, 10*time.Minute)
		if err != nil {
			t.Fatalf("issue %s: %v", class, err)
		}
		claims, err := m.Decode(tok)
		if err != nil {
			t.Fatalf("decode %s: %v", class, err)
		}
		if claims.SubjectID != 7 || claims.Class != class {
			t.Fatalf("unexpected claims: %+v", claims)
		}
		if !claims.ExpiresAt.Equal(time.Unix(1_700_000_600, 0)) {
			t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
		}
		if claims.ID == "" {
			t.Fatal("expected token id")
		}
	}
}

func TestIssueTruncatesToWholeSeconds(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 900_000_000)}
	m := newHSManager(t, clock)

	tok, err := m.Issue(1, ClassAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Decode(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.IssuedAt.Nanosecond() != 0 || claims.ExpiresAt.Nanosecond() != 0 {
		t.Fatalf("expected whole seconds, got iat=%v exp=%v", claims.IssuedAt, claims.ExpiresAt)
	}
}

func TestTokensIssuedInSameSecondDiffer(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	a, err := m.Issue(3, ClassRefresh, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := m.Issue(3, ClassRefresh, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens for the same subject and second")
	}
}

func TestDecodeExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	tok, err := m.Issue(1, ClassAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.now = clock.now.Add(59 * time.Second)
	if _, err := m.Decode(tok); err != nil {
		t.Fatalf("expected token to be valid before expiry: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Second)
	if _, err := m.Decode(tok); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestDecodeRejectsTamperedSignature(t *testing.T) {
	m := newHSManager(t, nil)
	tok, err := m.Issue(1, ClassAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Flip a character in the middle of the signature segment so every bit of it
	// lands in the decoded bytes.
	i := strings.LastIndex(tok, ".") + 10
	replacement := byte('A')
	if tok[i] == 'A' {
		replacement = 'B'
	}
	tampered := tok[:i] + string(replacement) + tok[i+1:]

	if _, err := m.Decode(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestDecodeRejectsForeignSecret(t *testing.T) {
	m := newHSManager(t, nil)
	other, err := NewManager(Config{PrivateKey: []byte(strings.Repeat("z", 32)), Issuer: "sessioncap"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, err := other.Issue(1, ClassAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Decode(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	m := newHSManager(t, nil)
	for _, in := range []string{"", "abc", "a.b.c", "eyJhbGciOiJub25lIn0.eyJzdWIiOiIxIn0."} {
		if _, err := m.Decode(in); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("input %q: expected ErrInvalidToken, got %v", in, err)
		}
	}
}

func TestDecodeRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := wireClaims{Class: ClassAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestDecodeRejectsNonNumericSubject(t *testing.T) {
	claims := wireClaims{Class: ClassAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "sessioncap",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	m := newHSManager(t, nil)
	if _, err := m.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestDecodeClass(t *testing.T) {
	m := newHSManager(t, nil)
	access, err := m.Issue(4, ClassAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.DecodeClass(access, ClassRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected access token to be refused as refresh, got %v", err)
	}
	if _, err := m.DecodeClass(access, ClassAccess); err != nil {
		t.Fatalf("decode access: %v", err)
	}
}

func TestEd25519WithKeyRotation(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)

	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1, "k2": pub2},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, err := m.Issue(9, ClassRefresh, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Decode(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.SubjectID != 9 {
		t.Fatalf("unexpected subject %d", claims.SubjectID)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: MethodEd25519}); err == nil {
		t.Fatal("expected ed25519 without keys to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: "rs512", PrivateKey: []byte(testSecret)}); err == nil {
		t.Fatal("expected unknown method to be rejected")
	}
}

func TestIssueValidation(t *testing.T) {
	m := newHSManager(t, nil)
	if _, err := m.Issue(1, "other", time.Minute); err == nil {
		t.Fatal("expected unknown class to be rejected")
	}
	if _, err := m.Issue(1, ClassAccess, 0); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
}

func TestSecretCopiedAtConstruction(t *testing.T) {
	secret := []byte(testSecret)
	m, err := NewManager(Config{PrivateKey: secret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, err := m.Issue(1, ClassAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	secret[0] ^= 0xFF
	if _, err := m.Decode(tok); err != nil {
		t.Fatalf("mutating caller secret must not affect manager: %v", err)
	}
}
