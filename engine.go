package sessioncap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/sessioncap/internal/audit"
	"github.com/MrEthical07/sessioncap/internal/flows"
	"github.com/MrEthical07/sessioncap/internal/rate"
	"github.com/MrEthical07/sessioncap/jwt"
	"github.com/MrEthical07/sessioncap/permission"
	"github.com/MrEthical07/sessioncap/session"
)

// Engine runs login, refresh and logout against a capped session store. It is
// safe for concurrent use once built.
type Engine struct {
	config     Config
	logger     *slog.Logger
	registry   *permission.Registry
	roles      *permission.RoleManager
	sessions   *session.Manager
	jwtManager *jwt.Manager
	throttle   *loginThrottle
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	flows      flows.Service

	creds  CredentialVerifier
	users  UserStore
	posts  PostStore
	signup Registrar
}

// Close flushes pending audit events. The session backend is owned by the
// caller and is not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return NewMetrics(MetricsConfig{}).Snapshot()
	}
	return e.metrics.Snapshot()
}

// SessionLimit returns the per-user cap on concurrent sessions.
func (e *Engine) SessionLimit() int {
	return e.sessions.Limit()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) buildFlowDeps() flows.Deps {
	deps := flows.Deps{
		Login: flows.LoginDeps{
			VerifyCredentials: func(ctx context.Context, email, password string) (int64, error) {
				u, err := e.creds.VerifyCredentials(ctx, email, password)
				if err != nil {
					return 0, err
				}
				return u.ID, nil
			},
			IsInvalidCredentials: func(err error) bool {
				return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrUserNotFound)
			},
			IssueToken: e.issue,
			Sessions:   e.sessions,
		},
		Refresh: flows.RefreshDeps{
			Decode: e.jwtManager.Decode,
			UserExists: func(ctx context.Context, userID int64) error {
				_, err := e.users.GetUserByID(ctx, userID)
				return err
			},
			IsUserNotFound: func(err error) bool { return errors.Is(err, ErrUserNotFound) },
			IssueAccess: func(subjectID int64) (string, error) {
				return e.issue(subjectID, jwt.ClassAccess)
			},
			Warn:     e.logger.Warn,
			Sessions: e.sessions,
		},
		Validate: flows.ValidateDeps{
			Decode: e.jwtManager.Decode,
		},
		Logout: flows.LogoutDeps{
			Sessions: e.sessions,
		},
		Introspection: flows.IntrospectionDeps{
			Sessions:          e.sessions,
			EngineNotReadyErr: ErrEngineNotReady,
		},
	}
	if e.throttle != nil {
		deps.Login.Throttle = e.throttle
	}
	return deps
}

func (e *Engine) issue(subjectID int64, class jwt.Class) (string, error) {
	ttl := e.config.JWT.AccessTTL
	if class == jwt.ClassRefresh {
		ttl = e.config.JWT.RefreshTTL
	}
	return e.jwtManager.Issue(subjectID, class, ttl)
}

// Login verifies credentials, issues a token pair and records a new session,
// evicting the user's least recently used session when the cap is reached.
// Unknown emails and wrong passwords both yield [ErrInvalidCredentials] and
// leave no session behind.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, email, password)
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.UserID, res.SessionID, nil, nil)
		return &LoginResult{
			UserID:       res.UserID,
			SessionID:    res.SessionID,
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		}, nil
	case flows.LoginFailureEmptyCredentials, flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, 0, "", ErrInvalidCredentials, emailMeta(email))
		return nil, ErrInvalidCredentials
	case flows.LoginFailureRateLimited:
		if errors.Is(res.Err, rate.ErrRedisUnavailable) {
			e.emitAudit(ctx, auditEventLoginFailure, false, 0, "", ErrStorage, emailMeta(email))
			return nil, fmt.Errorf("%w: %v", ErrStorage, res.Err)
		}
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, 0, "", ErrLoginRateLimited, emailMeta(email))
		return nil, ErrLoginRateLimited
	case flows.LoginFailureCreateSession:
		e.metricInc(MetricLoginFailure)
		err := mapSessionError(res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.UserID, "", err, nil)
		return nil, err
	default:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.UserID, "", res.Err, nil)
		return nil, fmt.Errorf("sessioncap: login: %w", res.Err)
	}
}

// Refresh exchanges a refresh token for a new access token. The session's
// LastUsedAt is advanced and the same refresh token is returned.
//
// Expired and forged tokens fail before any storage access. A token whose
// session was evicted or revoked fails with [ErrSessionNotFound]; so does one
// whose user no longer exists, in which case the orphan session is removed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	var err error
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.SessionID, nil, nil)
		return &LoginResult{
			UserID:       res.UserID,
			SessionID:    res.SessionID,
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		}, nil
	case flows.RefreshFailureExpiredToken:
		err = ErrExpiredToken
	case flows.RefreshFailureInvalidToken, flows.RefreshFailureWrongClass, flows.RefreshFailureSubjectMismatch:
		err = ErrInvalidToken
	case flows.RefreshFailureSessionNotFound:
		err = ErrSessionNotFound
	case flows.RefreshFailureUserNotFound:
		e.metricInc(MetricSessionInvalidated)
		err = ErrSessionNotFound
	case flows.RefreshFailureStorage:
		err = mapSessionError(res.Err)
	default:
		err = fmt.Errorf("sessioncap: refresh: %w", res.Err)
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.SessionID, err, nil)
	return nil, err
}

// Logout revokes the session bound to refreshToken.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	res := e.flows.Logout(ctx, refreshToken)
	if res.Err != nil {
		err := mapSessionError(res.Err)
		e.emitAudit(ctx, auditEventLogoutSession, false, 0, "", err, nil)
		return err
	}
	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.UserID, res.SessionID, nil, nil)
	return nil
}

// LogoutAll revokes every session of userID and returns how many were removed.
func (e *Engine) LogoutAll(ctx context.Context, userID int64) (int, error) {
	if e == nil || !e.flows.Initialized() {
		return 0, ErrEngineNotReady
	}
	n, err := e.flows.LogoutAll(ctx, userID)
	if err != nil {
		err = mapSessionError(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", err, nil)
		return n, err
	}
	e.metricInc(MetricLogoutAll)
	e.metrics.Add(MetricSessionInvalidated, uint64(n))
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

// Authenticate verifies an access token and loads the caller's current roles.
// No session state is consulted: an access token stays valid until it
// expires even if its session has been evicted.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := e.flows.Validate(accessToken)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureExpiredToken:
		return nil, ErrExpiredToken
	default:
		return nil, ErrInvalidToken
	}

	u, err := e.users.GetUserByID(ctx, res.Claims.SubjectID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("sessioncap: load user: %w", err)
	}

	return &Principal{
		UserID:    u.ID,
		Email:     u.Email,
		Roles:     append([]string(nil), u.Roles...),
		Mask:      e.roles.MaskFor(u.Roles),
		ExpiresAt: res.Claims.ExpiresAt,
	}, nil
}

// Authorize returns [ErrPermissionDenied] unless one of p's roles grants perm.
func (e *Engine) Authorize(ctx context.Context, p *Principal, perm string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if p != nil {
		if bit, ok := e.registry.Bit(perm); ok && p.Mask.Has(bit) {
			return nil
		}
	}

	e.metricInc(MetricAuthorizationDenied)
	var userID int64
	if p != nil {
		userID = p.UserID
	}
	e.emitAudit(ctx, auditEventAuthorizationDenied, false, userID, "", ErrPermissionDenied, func() map[string]string {
		return map[string]string{"permission": perm}
	})
	return ErrPermissionDenied
}

// HasAnyRole reports whether p holds at least one of roles.
func (e *Engine) HasAnyRole(p *Principal, roles ...string) bool {
	if p == nil {
		return false
	}
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsOwner reports whether userID authored postID. A missing post yields
// [ErrResourceNotFound].
func (e *Engine) IsOwner(ctx context.Context, postID, userID int64) (bool, error) {
	if e == nil || e.posts == nil {
		return false, ErrEngineNotReady
	}
	authorID, err := e.posts.GetAuthorID(ctx, postID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return false, ErrResourceNotFound
		}
		return false, fmt.Errorf("sessioncap: post lookup: %w", err)
	}
	return authorID == userID, nil
}

// SignUp creates an account through the configured [Registrar]. Requests
// without roles get the USER role; every requested role must exist.
func (e *Engine) SignUp(ctx context.Context, req SignUpRequest) (User, error) {
	if e == nil {
		return User{}, ErrEngineNotReady
	}
	if e.signup == nil {
		return User{}, ErrSignUpUnavailable
	}

	req.Email = strings.TrimSpace(req.Email)
	if !strings.Contains(req.Email, "@") || req.Password == "" {
		return User{}, fmt.Errorf("%w: email and password are required", ErrInvalidSignUp)
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{permission.RoleUser}
	}
	for _, role := range req.Roles {
		if _, ok := e.roles.GetMask(role); !ok {
			return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidSignUp, role)
		}
	}

	u, err := e.signup.Register(ctx, req)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountCreationDuplicate)
			e.emitAudit(ctx, auditEventAccountCreationDuplicate, false, 0, "", ErrAccountExists, emailMeta(req.Email))
			return User{}, ErrAccountExists
		}
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, 0, "", err, emailMeta(req.Email))
		return User{}, err
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditEventAccountCreationSuccess, true, u.ID, "", nil, nil)
	return u, nil
}

func (e *Engine) onSessionEvicted(ctx context.Context, sess *session.Session) {
	e.metricInc(MetricSessionEvicted)
	e.emitAudit(ctx, auditEventSessionEvicted, true, sess.UserID, sess.ID, nil, nil)
	e.logger.DebugContext(ctx, "session evicted", "user_id", sess.UserID, "session_id", sess.ID)
}

func mapSessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrStorageUnavailable):
		return fmt.Errorf("%w: %v", ErrStorage, err)
	default:
		return fmt.Errorf("sessioncap: session: %w", err)
	}
}

func emailMeta(email string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"email": strings.ToLower(strings.TrimSpace(email))}
	}
}

// loginThrottle adapts the Redis limiter to the login flow, taking the client
// IP from the request context.
type loginThrottle struct {
	limiter *rate.Limiter
}

func (t *loginThrottle) Check(ctx context.Context, email string) error {
	return t.limiter.Check(ctx, email, clientIPFromContext(ctx))
}

func (t *loginThrottle) RecordFailure(ctx context.Context, email string) error {
	return t.limiter.RecordFailure(ctx, email, clientIPFromContext(ctx))
}

func (t *loginThrottle) Reset(ctx context.Context, email string) error {
	return t.limiter.Reset(ctx, email)
}
