package sessioncap

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/sessioncap/internal/flows"
	"github.com/MrEthical07/sessioncap/internal/rate"
	"github.com/MrEthical07/sessioncap/jwt"
	"github.com/MrEthical07/sessioncap/permission"
	"github.com/MrEthical07/sessioncap/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be used for exactly one Build.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	pgPool   *pgxpool.Pool
	store    session.Store
	logger   *slog.Logger
	perms    []string
	roles    map[string][]string
	sink     AuditSink
	creds    CredentialVerifier
	users    UserStore
	posts    PostStore
	registry Registrar

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores sessions in Redis and enables login throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres stores sessions in the sessions table of the configured schema.
// Ignored when WithSessionStore is also used.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.pgPool = pool
	return b
}

// WithSessionStore overrides the session backend. It takes precedence over
// WithRedis and WithPostgres for session storage; a Redis client passed to
// WithRedis is still used for throttling.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithPermissions replaces the built-in permission list.
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.perms = perms
	return b
}

// WithRoles replaces the built-in USER/CREATOR/ADMIN role table.
func (b *Builder) WithRoles(roles map[string][]string) *Builder {
	b.roles = roles
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithCredentials(v CredentialVerifier) *Builder {
	b.creds = v
	return b
}

func (b *Builder) WithUsers(u UserStore) *Builder {
	b.users = u
	return b
}

func (b *Builder) WithPosts(p PostStore) *Builder {
	b.posts = p
	return b
}

func (b *Builder) WithRegistrar(r Registrar) *Builder {
	b.registry = r
	return b
}

// Directory is satisfied by identity backends that do all three jobs.
type Directory interface {
	CredentialVerifier
	UserStore
	Registrar
}

// WithDirectory is shorthand for WithCredentials, WithUsers and WithRegistrar.
func (b *Builder) WithDirectory(d Directory) *Builder {
	b.creds = d
	b.users = d
	b.registry = d
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.creds == nil {
		return nil, errors.New("credential verifier required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- SESSION STORE --------
	store := b.store
	switch {
	case store != nil:
	case b.redis != nil:
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.JWT.RefreshTTL)
	case b.pgPool != nil:
		pg, err := session.NewPostgresStore(b.pgPool, session.WithSchema(cfg.Session.PostgresSchema))
		if err != nil {
			return nil, err
		}
		store = pg
	default:
		return nil, errors.New("session store required: use WithRedis, WithPostgres or WithSessionStore")
	}

	// -------- PERMISSIONS --------
	perms, roles := b.perms, b.roles
	if len(perms) == 0 {
		perms = permission.AllPermissions
	}
	if len(roles) == 0 {
		roles = permission.DefaultRoles
	}
	registry, roleManager, err := permission.New(perms, roles)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		logger:   logger,
		registry: registry,
		roles:    roleManager,
		creds:    b.creds,
		users:    b.users,
		posts:    b.posts,
		signup:   b.registry,
		metrics:  NewMetrics(cfg.Metrics),
		audit:    newAuditDispatcher(cfg.Audit, b.sink),
	}

	sessions, err := session.NewManager(store, session.ManagerConfig{
		Limit:   cfg.Session.Limit,
		Logger:  logger,
		OnEvict: engine.onSessionEvicted,
	})
	if err != nil {
		return nil, err
	}
	engine.sessions = sessions

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	if b.redis != nil && cfg.Security.EnableLoginThrottle {
		engine.throttle = &loginThrottle{limiter: rate.New(b.redis, rate.Config{
			Prefix:           cfg.Session.RedisPrefix + ":rl",
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxAttempts:      cfg.Security.MaxLoginAttempts,
			Window:           cfg.Security.LoginCooldownDuration,
		})}
	}

	engine.flows = flows.New(engine.buildFlowDeps())

	b.built = true
	return engine, nil
}
