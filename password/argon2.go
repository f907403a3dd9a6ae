package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2ID              = "argon2id"
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes passwords with Argon2id and encodes them in PHC format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
type Argon2 struct {
	config Config
}

type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < MinLength {
		return "", ErrTooShort
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))
	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker parameters
// than the current configuration.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return a.config.Memory > parsed.memory ||
		a.config.Time > parsed.time ||
		a.config.Parallelism > parsed.parallelism ||
		a.config.KeyLength != uint32(len(parsed.hash)), nil
}

func parsePHC(encodedHash string) (*phcHash, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2ID {
		return nil, ErrMalformedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, fmt.Errorf("%w: bad version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	out := &phcHash{}
	if err := parseParams(parts[3], out); err != nil {
		return nil, err
	}

	out.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	out.hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(out.hash) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return out, nil
}

func parseParams(part string, out *phcHash) error {
	seen := 0
	for _, pair := range strings.Split(part, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return fmt.Errorf("%w: bad memory", ErrMalformedHash)
			}
			out.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minTimeCost) {
				return fmt.Errorf("%w: bad time", ErrMalformedHash)
			}
			out.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < uint64(minParallelism) {
				return fmt.Errorf("%w: bad parallelism", ErrMalformedHash)
			}
			out.parallelism = uint8(n)
		default:
			return fmt.Errorf("%w: unsupported parameter %q", ErrMalformedHash, k)
		}
		seen++
	}
	if seen != 3 {
		return fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return nil
}

// Validate checks the parameters against the accepted minimums.
func (cfg Config) Validate() error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	}
	return nil
}
