package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/sessioncap"
	"github.com/MrEthical07/sessioncap/password"
	"github.com/MrEthical07/sessioncap/permission"
	"github.com/MrEthical07/sessioncap/session"
)

func fastArgon2(t *testing.T) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func newTestDirectory(t *testing.T) *MemoryDirectory {
	t.Helper()
	d, err := NewMemoryDirectory(fastArgon2(t))
	if err != nil {
		t.Fatalf("NewMemoryDirectory: %v", err)
	}
	return d
}

func TestMemoryDirectoryRegisterAndVerify(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	u, err := d.Register(ctx, sessioncap.SignUpRequest{
		Email:    "  Alice@Example.com ",
		Password: "correct-password-123",
		Name:     "Alice",
		Roles:    []string{permission.RoleUser},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID != 1 || u.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}
	if h := d.passwordHash(u.ID); !strings.HasPrefix(h, "$argon2id$") {
		t.Fatalf("password stored as %q", h)
	}

	got, err := d.VerifyCredentials(ctx, "ALICE@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if got.ID != u.ID || len(got.Roles) != 1 || got.Roles[0] != permission.RoleUser {
		t.Fatalf("unexpected verified user %+v", got)
	}

	byID, err := d.GetUserByID(ctx, u.ID)
	if err != nil || byID.Name != "Alice" {
		t.Fatalf("GetUserByID = %+v, %v", byID, err)
	}
}

func TestMemoryDirectoryFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)
	if _, err := d.Register(ctx, sessioncap.SignUpRequest{Email: "bob@example.com", Password: "bob-password-123"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, wrongPw := d.VerifyCredentials(ctx, "bob@example.com", "not-the-password")
	_, unknown := d.VerifyCredentials(ctx, "nobody@example.com", "bob-password-123")
	if !errors.Is(wrongPw, sessioncap.ErrInvalidCredentials) || !errors.Is(unknown, sessioncap.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", wrongPw, unknown)
	}
	if wrongPw.Error() != unknown.Error() {
		t.Fatalf("failure messages differ: %q vs %q", wrongPw, unknown)
	}
}

func TestMemoryDirectoryDuplicateAndShortPassword(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)
	req := sessioncap.SignUpRequest{Email: "dup@example.com", Password: "long-enough-pw"}
	if _, err := d.Register(ctx, req); err != nil {
		t.Fatalf("Register: %v", err)
	}
	req.Email = "DUP@example.com"
	if _, err := d.Register(ctx, req); !errors.Is(err, sessioncap.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, err := d.Register(ctx, sessioncap.SignUpRequest{Email: "x@example.com", Password: "short"}); !errors.Is(err, password.ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestMemoryDirectoryUnknownAndRemovedUser(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)
	if _, err := d.GetUserByID(ctx, 99); !errors.Is(err, sessioncap.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	u, err := d.Register(ctx, sessioncap.SignUpRequest{Email: "gone@example.com", Password: "gone-password-1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !d.Remove(u.ID) {
		t.Fatal("Remove returned false")
	}
	if d.Remove(u.ID) {
		t.Fatal("second Remove returned true")
	}
	if _, err := d.GetUserByID(ctx, u.ID); !errors.Is(err, sessioncap.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := d.VerifyCredentials(ctx, "gone@example.com", "gone-password-1"); !errors.Is(err, sessioncap.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestMemoryDirectoryUpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	argon := fastArgon2(t)
	bc, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	d, err := NewMemoryDirectory(password.Auto{Primary: argon, Argon2: argon, Bcrypt: bc})
	if err != nil {
		t.Fatalf("NewMemoryDirectory: %v", err)
	}
	u, err := d.Register(ctx, sessioncap.SignUpRequest{Email: "legacy@example.com", Password: "legacy-password"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	legacy, err := bc.Hash("legacy-password")
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}
	if err := d.SetPasswordHash(u.ID, legacy); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}

	if _, err := d.VerifyCredentials(ctx, "legacy@example.com", "legacy-password"); err != nil {
		t.Fatalf("VerifyCredentials with bcrypt hash: %v", err)
	}
	if h := d.passwordHash(u.ID); !strings.HasPrefix(h, "$argon2id$") {
		t.Fatalf("hash not upgraded: %q", h)
	}
	if _, err := d.VerifyCredentials(ctx, "legacy@example.com", "legacy-password"); err != nil {
		t.Fatalf("VerifyCredentials after upgrade: %v", err)
	}
}

func TestMemoryDirectoryConcurrentRegister(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Register(ctx, sessioncap.SignUpRequest{Email: "race@example.com", Password: "race-password-1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, sessioncap.ErrAccountExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one account, got %d", created)
	}
}

func TestMemoryPosts(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPosts()
	p.Put(Post{ID: 7, AuthorID: 3, Title: "seeded"})

	author, err := p.GetAuthorID(ctx, 7)
	if err != nil || author != 3 {
		t.Fatalf("GetAuthorID(7) = %d, %v", author, err)
	}
	if _, err := p.GetAuthorID(ctx, 8); !errors.Is(err, sessioncap.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}

	post, err := p.Create(ctx, 3, "  next ", "body")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if post.ID != 8 || post.Title != "next" || post.CreatedAt.IsZero() {
		t.Fatalf("unexpected post %+v", post)
	}
	if _, err := p.Create(ctx, 3, " ", ""); err == nil {
		t.Fatal("expected error for empty title")
	}
}

// The directory and post store plug straight into the engine builder.
func TestMemoryDirectoryWithEngine(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)
	posts := NewMemoryPosts()

	cfg := sessioncap.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("identity-test-secret-0123456789abcdef")
	engine, err := sessioncap.New().
		WithConfig(cfg).
		WithSessionStore(session.NewMemoryStore()).
		WithDirectory(d).
		WithPosts(posts).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	u, err := engine.SignUp(ctx, sessioncap.SignUpRequest{Email: "dana@example.com", Password: "dana-password-1"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if len(u.Roles) != 1 || u.Roles[0] != permission.RoleUser {
		t.Fatalf("expected default USER role, got %v", u.Roles)
	}

	res, err := engine.Login(ctx, "dana@example.com", "dana-password-1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	p, err := engine.Authenticate(ctx, res.AccessToken)
	if err != nil || p.UserID != u.ID {
		t.Fatalf("Authenticate = %+v, %v", p, err)
	}

	post, err := posts.Create(ctx, u.ID, "mine", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	owner, err := engine.IsOwner(ctx, post.ID, u.ID)
	if err != nil || !owner {
		t.Fatalf("IsOwner = %v, %v", owner, err)
	}
	if _, err := engine.Login(ctx, "dana@example.com", "wrong-password"); !errors.Is(err, sessioncap.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
