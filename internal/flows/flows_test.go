package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/sessioncap/jwt"
	"github.com/MrEthical07/sessioncap/session"
)

var errNoUser = errors.New("no such user")

func newCodec(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{PrivateKey: []byte("flows-test-secret-flows-test-secret")})
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}
	return m
}

func newSessions(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager(session.NewMemoryStore(), session.ManagerConfig{Limit: 2})
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	return m
}

func loginDeps(codec *jwt.Manager, sessions *session.Manager) LoginDeps {
	return LoginDeps{
		VerifyCredentials: func(_ context.Context, email, password string) (int64, error) {
			if email == "a@example.com" && password == "pw" {
				return 1, nil
			}
			return 0, errNoUser
		},
		IsInvalidCredentials: func(err error) bool { return errors.Is(err, errNoUser) },
		IssueToken: func(id int64, class jwt.Class) (string, error) {
			return codec.Issue(id, class, time.Hour)
		},
		Sessions: sessions,
	}
}

func refreshDeps(codec *jwt.Manager, sessions *session.Manager, users map[int64]bool) RefreshDeps {
	return RefreshDeps{
		Decode: codec.Decode,
		UserExists: func(_ context.Context, id int64) error {
			if users[id] {
				return nil
			}
			return errNoUser
		},
		IsUserNotFound: func(err error) bool { return errors.Is(err, errNoUser) },
		IssueAccess: func(id int64) (string, error) {
			return codec.Issue(id, jwt.ClassAccess, time.Minute)
		},
		Sessions: sessions,
	}
}

func TestRunLoginFailureKinds(t *testing.T) {
	deps := loginDeps(newCodec(t), newSessions(t))
	ctx := context.Background()

	if res := RunLogin(ctx, "", "pw", deps); res.Failure != LoginFailureEmptyCredentials {
		t.Fatalf("expected empty credentials failure, got %v", res.Failure)
	}
	if res := RunLogin(ctx, "a@example.com", "nope", deps); res.Failure != LoginFailureInvalidCredentials {
		t.Fatalf("expected invalid credentials failure, got %v", res.Failure)
	}

	deps.IsInvalidCredentials = func(error) bool { return false }
	if res := RunLogin(ctx, "a@example.com", "nope", deps); res.Failure != LoginFailureCredentialBackend {
		t.Fatalf("expected backend failure, got %v", res.Failure)
	}
}

func TestRunLoginSuccess(t *testing.T) {
	sessions := newSessions(t)
	deps := loginDeps(newCodec(t), sessions)

	res := RunLogin(context.Background(), "a@example.com", "pw", deps)
	if res.Failure != LoginFailureNone {
		t.Fatalf("login failed: %v %v", res.Failure, res.Err)
	}
	if res.UserID != 1 || res.AccessToken == "" || res.RefreshToken == "" || res.SessionID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.AccessToken == res.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
}

func TestRunRefreshReturnsSameRefreshToken(t *testing.T) {
	codec := newCodec(t)
	sessions := newSessions(t)
	ctx := context.Background()

	login := RunLogin(ctx, "a@example.com", "pw", loginDeps(codec, sessions))
	res := RunRefresh(ctx, login.RefreshToken, refreshDeps(codec, sessions, map[int64]bool{1: true}))
	if res.Failure != RefreshFailureNone {
		t.Fatalf("refresh failed: %v %v", res.Failure, res.Err)
	}
	if res.RefreshToken != login.RefreshToken {
		t.Fatal("refresh token must be returned unchanged")
	}
	claims, err := codec.Decode(res.AccessToken)
	if err != nil || claims.Class != jwt.ClassAccess || claims.SubjectID != 1 {
		t.Fatalf("bad access token: %+v %v", claims, err)
	}
}

func TestRunRefreshRejectsAccessToken(t *testing.T) {
	codec := newCodec(t)
	sessions := newSessions(t)
	ctx := context.Background()

	login := RunLogin(ctx, "a@example.com", "pw", loginDeps(codec, sessions))
	res := RunRefresh(ctx, login.AccessToken, refreshDeps(codec, sessions, map[int64]bool{1: true}))
	if res.Failure != RefreshFailureWrongClass {
		t.Fatalf("expected wrong class, got %v", res.Failure)
	}
}

func TestRunRefreshUnknownSession(t *testing.T) {
	codec := newCodec(t)
	tok, err := codec.Issue(1, jwt.ClassRefresh, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	res := RunRefresh(context.Background(), tok, refreshDeps(codec, newSessions(t), map[int64]bool{1: true}))
	if res.Failure != RefreshFailureSessionNotFound {
		t.Fatalf("expected session not found, got %v", res.Failure)
	}
}

func TestRunRefreshRevokesOrphanSession(t *testing.T) {
	codec := newCodec(t)
	sessions := newSessions(t)
	ctx := context.Background()

	login := RunLogin(ctx, "a@example.com", "pw", loginDeps(codec, sessions))
	res := RunRefresh(ctx, login.RefreshToken, refreshDeps(codec, sessions, map[int64]bool{}))
	if res.Failure != RefreshFailureUserNotFound {
		t.Fatalf("expected user not found, got %v", res.Failure)
	}
	if _, err := sessions.ValidateAndTouch(ctx, login.RefreshToken); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected orphan session to be revoked, got %v", err)
	}
}

func TestRunRefreshGarbage(t *testing.T) {
	codec := newCodec(t)
	res := RunRefresh(context.Background(), "garbage", refreshDeps(codec, newSessions(t), nil))
	if res.Failure != RefreshFailureInvalidToken {
		t.Fatalf("expected invalid token, got %v", res.Failure)
	}
}

func TestRunValidate(t *testing.T) {
	codec := newCodec(t)
	deps := ValidateDeps{Decode: codec.Decode}

	access, _ := codec.Issue(3, jwt.ClassAccess, time.Minute)
	refresh, _ := codec.Issue(3, jwt.ClassRefresh, time.Minute)

	if res := RunValidate(access, deps); res.Failure != ValidateFailureNone || res.Claims.SubjectID != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res := RunValidate(refresh, deps); res.Failure != ValidateFailureWrongClass {
		t.Fatalf("expected wrong class, got %v", res.Failure)
	}
	if res := RunValidate("x.y.z", deps); res.Failure != ValidateFailureInvalidToken {
		t.Fatalf("expected invalid token, got %v", res.Failure)
	}
}

func TestRunLogoutAndCount(t *testing.T) {
	codec := newCodec(t)
	sessions := newSessions(t)
	ctx := context.Background()

	login := RunLogin(ctx, "a@example.com", "pw", loginDeps(codec, sessions))
	introspect := IntrospectionDeps{Sessions: sessions}
	if n, err := RunActiveSessionCount(ctx, 1, introspect); err != nil || n != 1 {
		t.Fatalf("expected 1 active session, got %d %v", n, err)
	}

	out := RunLogout(ctx, login.RefreshToken, LogoutDeps{Sessions: sessions})
	if out.Err != nil || out.UserID != 1 {
		t.Fatalf("logout: %+v", out)
	}
	if n, err := RunActiveSessionCount(ctx, 1, introspect); err != nil || n != 0 {
		t.Fatalf("expected 0 active sessions, got %d %v", n, err)
	}

	notReady := errors.New("not ready")
	if _, err := RunListSessions(ctx, 1, IntrospectionDeps{EngineNotReadyErr: notReady}); !errors.Is(err, notReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

var errThrottled = errors.New("throttled")

type countingThrottle struct {
	max      int
	failures map[string]int
}

func (c *countingThrottle) Check(_ context.Context, email string) error {
	if c.failures[email] >= c.max {
		return errThrottled
	}
	return nil
}

func (c *countingThrottle) RecordFailure(_ context.Context, email string) error {
	c.failures[email]++
	return nil
}

func (c *countingThrottle) Reset(_ context.Context, email string) error {
	delete(c.failures, email)
	return nil
}

func TestRunLoginThrottle(t *testing.T) {
	sessions := newSessions(t)
	deps := loginDeps(newCodec(t), sessions)
	throttle := &countingThrottle{max: 2, failures: map[string]int{}}
	deps.Throttle = throttle
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res := RunLogin(ctx, "a@example.com", "nope", deps); res.Failure != LoginFailureInvalidCredentials {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, res.Failure)
		}
	}
	res := RunLogin(ctx, "a@example.com", "pw", deps)
	if res.Failure != LoginFailureRateLimited || !errors.Is(res.Err, errThrottled) {
		t.Fatalf("expected rate limited even with the right password, got %v %v", res.Failure, res.Err)
	}
	if list, _ := sessions.ListSessions(ctx, 1); len(list) != 0 {
		t.Fatalf("throttled login must not create a session, got %d", len(list))
	}

	delete(throttle.failures, "a@example.com")
	if res := RunLogin(ctx, "a@example.com", "pw", deps); res.Failure != LoginFailureNone {
		t.Fatalf("expected success after window reset, got %v", res.Failure)
	}
}
