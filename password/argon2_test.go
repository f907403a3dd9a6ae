package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = hasher.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("expected wrong password to fail, ok=%v err=%v", ok, err)
	}
}

func TestArgon2RejectsShortPassword(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	if _, err := hasher.Hash("short"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestArgon2MalformedHashes(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	for _, in := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
	} {
		if _, err := hasher.Verify("whatever-password", in); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("input %q: expected ErrMalformedHash, got %v", in, err)
		}
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	strongCfg := fastConfig()
	strongCfg.Time = 2
	strong, err := NewArgon2(strongCfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := weak.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if up, err := strong.NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("expected upgrade, up=%v err=%v", up, err)
	}
	if up, err := weak.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("expected no upgrade, up=%v err=%v", up, err)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := fastConfig()
	bad.Memory = 1024
	if _, err := NewArgon2(bad); err == nil {
		t.Fatal("expected low memory to be rejected")
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
