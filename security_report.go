package sessioncap

import "time"

// SecurityReport summarizes the security-relevant settings of a built engine.
// It never includes key material.
type SecurityReport struct {
	SigningAlgorithm     string
	KeyID                string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	SessionLimit         int
	SessionBackend       string
	PasswordScheme       string
	Argon2               PasswordConfigReport
	LoginThrottleActive  bool
	IPThrottleActive     bool
	AuditEnabled         bool
	StatelessAccessCheck bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return SecurityReport{
		SigningAlgorithm: e.config.JWT.SigningMethod,
		KeyID:            e.config.JWT.KeyID,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		SessionLimit:     e.sessions.Limit(),
		SessionBackend:   e.sessions.Backend(),
		PasswordScheme:   e.config.Password.Scheme,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LoginThrottleActive:  e.throttle != nil,
		IPThrottleActive:     e.throttle != nil && e.config.Security.EnableIPThrottle,
		AuditEnabled:         e.audit != nil,
		StatelessAccessCheck: true,
	}
}
