package sessioncap

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/sessioncap/permission"
	"github.com/MrEthical07/sessioncap/session"
)

const testSecret = "sessioncap-test-secret-0123456789abcdef"

type fakeAccount struct {
	user     User
	password string
}

// fakeDirectory is an in-memory identity backend with plaintext passwords.
type fakeDirectory struct {
	mu      sync.Mutex
	nextID  int64
	byEmail map[string]*fakeAccount
	byID    map[int64]*fakeAccount
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		nextID:  1,
		byEmail: map[string]*fakeAccount{},
		byID:    map[int64]*fakeAccount{},
	}
}

func (d *fakeDirectory) add(email, password string, roles ...string) User {
	u, _ := d.Register(context.Background(), SignUpRequest{Email: email, Password: password, Roles: roles})
	return u
}

func (d *fakeDirectory) remove(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if acc, ok := d.byID[id]; ok {
		delete(d.byEmail, acc.user.Email)
		delete(d.byID, id)
	}
}

func (d *fakeDirectory) VerifyCredentials(_ context.Context, email, password string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.byEmail[email]
	if !ok || acc.password != password {
		return User{}, ErrInvalidCredentials
	}
	return acc.user, nil
}

func (d *fakeDirectory) GetUserByID(_ context.Context, id int64) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return acc.user, nil
}

func (d *fakeDirectory) Register(_ context.Context, req SignUpRequest) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[req.Email]; ok {
		return User{}, ErrAccountExists
	}
	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{permission.RoleUser}
	}
	acc := &fakeAccount{
		user:     User{ID: d.nextID, Email: req.Email, Name: req.Name, Roles: roles},
		password: req.Password,
	}
	d.nextID++
	d.byEmail[req.Email] = acc
	d.byID[acc.user.ID] = acc
	return acc.user, nil
}

type fakePosts map[int64]int64

func (p fakePosts) GetAuthorID(_ context.Context, postID int64) (int64, error) {
	author, ok := p[postID]
	if !ok {
		return 0, ErrResourceNotFound
	}
	return author, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte(testSecret)
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type engineFixture struct {
	engine *Engine
	dir    *fakeDirectory
	mr     *miniredis.Miniredis
}

// newRedisEngine builds an engine over miniredis with alice (USER) and
// carol (CREATOR) registered.
func newRedisEngine(t *testing.T, cfg Config, sink AuditSink) engineFixture {
	t.Helper()
	mr, rdb := newTestRedis(t)
	dir := newFakeDirectory()
	dir.add("alice@example.com", "correct-password-123")
	dir.add("carol@example.com", "creator-password-123", permission.RoleCreator)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithPosts(fakePosts{7: 3}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engineFixture{engine: engine, dir: dir, mr: mr}
}

func newMemoryEngine(t *testing.T, cfg Config) engineFixture {
	t.Helper()
	dir := newFakeDirectory()
	dir.add("alice@example.com", "correct-password-123")

	engine, err := New().
		WithConfig(cfg).
		WithSessionStore(session.NewMemoryStore()).
		WithDirectory(dir).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engineFixture{engine: engine, dir: dir}
}

func eachBackend(t *testing.T, fn func(t *testing.T, f engineFixture)) {
	t.Run("redis", func(t *testing.T) { fn(t, newRedisEngine(t, testConfig(), nil)) })
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryEngine(t, testConfig())) })
}
