package sessioncap

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers malformed, forged and wrong-class tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for an authentic token past its expiry.
	ErrExpiredToken = errors.New("token expired")
	// ErrSessionNotFound means the refresh token's session was evicted,
	// revoked or never existed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStorage wraps session backend failures.
	ErrStorage = errors.New("session storage unavailable")
	ErrUserNotFound = errors.New("user not found")
	// ErrResourceNotFound is returned by ownership checks on a missing resource.
	ErrResourceNotFound = errors.New("resource not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrEngineNotReady   = errors.New("engine not initialized")
	ErrAccountExists    = errors.New("account already exists")
	// ErrLoginRateLimited is returned once an email or client IP has used up
	// its failed-login budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrSignUpUnavailable is returned by SignUp when no Registrar is configured.
	ErrSignUpUnavailable = errors.New("sign-up not configured")
	// ErrInvalidSignUp is returned for a sign-up request with a missing email
	// or password or an unknown role.
	ErrInvalidSignUp = errors.New("invalid sign-up request")
)
