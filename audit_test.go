package sessioncap

import (
	"context"
	"testing"
	"time"
)

func collect(t *testing.T, sink *ChannelSink, n int) []AuditEvent {
	t.Helper()
	out := make([]AuditEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestAuditEventsForLoginEvictionAndRefresh(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(64)
	f := newRedisEngine(t, cfg, sink)
	ctx := WithClientIP(context.Background(), "192.0.2.10")

	var first *LoginResult
	for i := 0; i < 3; i++ {
		res, err := f.engine.Login(ctx, "alice@example.com", "correct-password-123")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if first == nil {
			first = res
		}
	}
	_, _ = f.engine.Refresh(ctx, first.RefreshToken)
	_, _ = f.engine.Login(ctx, "alice@example.com", "bad")

	// 3 logins, 1 eviction, 1 failed refresh, 1 failed login
	events := collect(t, sink, 6)
	count := map[string]int{}
	var evicted, refresh AuditEvent
	for _, ev := range events {
		count[ev.Type]++
		switch ev.Type {
		case auditEventSessionEvicted:
			evicted = ev
		case auditEventRefreshInvalid:
			refresh = ev
		}
		if ev.IP != "192.0.2.10" {
			t.Fatalf("expected client IP on %s, got %q", ev.Type, ev.IP)
		}
	}
	if count[auditEventLoginSuccess] != 3 || count[auditEventSessionEvicted] != 1 ||
		count[auditEventRefreshInvalid] != 1 || count[auditEventLoginFailure] != 1 {
		t.Fatalf("unexpected event counts %v", count)
	}
	if evicted.SessionID != first.SessionID || evicted.UserID != first.UserID {
		t.Fatalf("eviction event should name the first session, got %+v", evicted)
	}
	if refresh.Reason != string(auditErrSessionNotFound) {
		t.Fatalf("unexpected refresh reason %q", refresh.Reason)
	}
}

func TestAuditErrorCodes(t *testing.T) {
	cases := map[error]AuditErrorCode{
		nil:                   "",
		ErrInvalidCredentials: auditErrInvalidCredentials,
		ErrExpiredToken:       auditErrExpiredToken,
		ErrInvalidToken:       auditErrInvalidToken,
		ErrSessionNotFound:    auditErrSessionNotFound,
		ErrStorage:            auditErrUnavailable,
		ErrAccountExists:      auditErrDuplicate,
		context.Canceled:      auditErrInternal,
	}
	for err, want := range cases {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestAuditDisabledByDefault(t *testing.T) {
	f := newMemoryEngine(t, testConfig())
	if f.engine.audit != nil {
		t.Fatal("audit dispatcher should be nil when disabled")
	}
	if f.engine.AuditDropped() != 0 {
		t.Fatal("expected zero drops")
	}
}
