package veriauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginSuccessCreatesSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientKey(context.Background(), "10.0.0.1")
	notifier := &recordingNotifier{}
	mgr := newTestManager(t, rdb, testConfig(), notifier)

	registeredVerifiedUser(t, mgr, notifier, "alice", "correct-horse")

	result, err := mgr.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected non-empty session token")
	}
	if result.Session.Username != "alice" {
		t.Fatalf("expected session for alice, got %q", result.Session.Username)
	}
	if !result.Session.ExpiresAt.After(result.Session.CreatedAt) {
		t.Fatal("expected session expiry after creation time")
	}

	info, err := mgr.Session(ctx, result.Token)
	if err != nil {
		t.Fatalf("Session lookup failed: %v", err)
	}
	if info.Username != "alice" {
		t.Fatalf("expected session username alice, got %q", info.Username)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientKey(context.Background(), "10.0.0.1")
	notifier := &recordingNotifier{}
	mgr := newTestManager(t, rdb, testConfig(), notifier)

	registeredVerifiedUser(t, mgr, notifier, "alice", "correct-horse")

	_, err := mgr.Login(ctx, "alice", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownUserSameError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientKey(context.Background(), "10.0.0.1")
	notifier := &recordingNotifier{}
	mgr := newTestManager(t, rdb, testConfig(), notifier)

	registeredVerifiedUser(t, mgr, notifier, "alice", "correct-horse")

	wrongPass := mustLoginErr(t, mgr, ctx, "alice", "wrong-password")
	unknownUser := mustLoginErr(t, mgr, ctx, "nobody", "wrong-password")
	malformed := mustLoginErr(t, mgr, ctx, "bad name!", "wrong-password")

	for _, err := range []error{wrongPass, unknownUser, malformed} {
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected uniform ErrInvalidCredentials, got %v", err)
		}
	}
}

func mustLoginErr(t *testing.T, mgr *Manager, ctx context.Context, username, pass string) error {
	t.Helper()

	_, err := mgr.Login(ctx, username, pass)
	if err == nil {
		t.Fatalf("expected Login(%q) to fail", username)
	}
	return err
}

func TestLoginUnverifiedAccount(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientKey(context.Background(), "10.0.0.1")
	notifier := &recordingNotifier{}
	mgr := newTestManager(t, rdb, testConfig(), notifier)

	// Registered but never verified: no credential record exists, so login
	// must fail exactly like an unknown username.
	mustRegister(t, mgr, "alice", "correct-horse", "alice@example.com")

	_, err := mgr.Login(ctx, "alice", "correct-horse")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unverified user, got %v", err)
	}
}

func TestLoginRateLimitWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientKey(context.Background(), "10.0.0.7")
	notifier := &recordingNotifier{}
	cfg := testConfig()
	cfg.RateLimit.EnableGlobal = false
	mgr := newTestManager(t, rdb, cfg, notifier)

	registeredVerifiedUser(t, mgr, notifier, "alice", "correct-horse")

	for i := 0; i < cfg.RateLimit.LoginMaxAttempts; i++ {
		if _, err := mgr.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	// Attempt six lands outside the budget even with the right password.
	_, err := mgr.Login(ctx, "alice", "correct-horse")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on attempt %d, got %v", cfg.RateLimit.LoginMaxAttempts+1, err)
	}

	le, ok := AsRateLimited(err)
	if !ok {
		t.Fatalf("expected RetryAfter detail on %v", err)
	}
	if le.RetryAfter <= 0 || le.RetryAfter > cfg.RateLimit.LoginWindow {
		t.Fatalf("RetryAfter %v outside (0, %v]", le.RetryAfter, cfg.RateLimit.LoginWindow)
	}

	// A different client key is unaffected.
	other := WithClientKey(context.Background(), "10.0.0.8")
	if _, err := mgr.Login(other, "alice", "correct-horse"); err != nil {
		t.Fatalf("expected independent budget per client key, got %v", err)
	}

	// The window resets once the key expires.
	advanceClock(t, mr, cfg.RateLimit.LoginWindow+time.Second)
	if _, err := mgr.Login(ctx, "alice", "correct-horse"); err != nil {
		t.Fatalf("expected login after window reset, got %v", err)
	}
}

func TestLoginFailuresCountTowardLimit(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientKey(context.Background(), "10.0.0.7")
	notifier := &recordingNotifier{}
	cfg := testConfig()
	cfg.RateLimit.LoginMaxAttempts = 2
	cfg.RateLimit.EnableGlobal = false
	mgr := newTestManager(t, rdb, cfg, notifier)

	registeredVerifiedUser(t, mgr, notifier, "alice", "correct-horse")

	mustLoginErr(t, mgr, ctx, "alice", "wrong-password")
	mustLoginErr(t, mgr, ctx, "alice", "wrong-password")

	_, err := mgr.Login(ctx, "alice", "correct-horse")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected failures to consume the budget, got %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientKey(context.Background(), "10.0.0.1")
	notifier := &recordingNotifier{}
	mgr := newTestManager(t, rdb, testConfig(), notifier)

	registeredVerifiedUser(t, mgr, notifier, "alice", "correct-horse")

	result, err := mgr.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := mgr.Logout(ctx, result.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := mgr.Session(ctx, result.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}

	// Logout is idempotent; repeating it and logging out garbage both
	// succeed quietly.
	if err := mgr.Logout(ctx, result.Token); err != nil {
		t.Fatalf("repeated Logout failed: %v", err)
	}
	if err := mgr.Logout(ctx, "not-a-real-token"); err != nil {
		t.Fatalf("Logout of unknown token failed: %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientKey(context.Background(), "10.0.0.1")
	notifier := &recordingNotifier{}
	cfg := testConfig()
	cfg.Session.TTL = time.Minute
	mgr := newTestManager(t, rdb, cfg, notifier)

	registeredVerifiedUser(t, mgr, notifier, "alice", "correct-horse")

	result, err := mgr.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	advanceClock(t, mr, 2*time.Minute)

	if _, err := mgr.Session(ctx, result.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after TTL, got %v", err)
	}
}

func TestLoginMetrics(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientKey(context.Background(), "10.0.0.1")
	notifier := &recordingNotifier{}
	mgr := newTestManager(t, rdb, testConfig(), notifier)

	registeredVerifiedUser(t, mgr, notifier, "alice", "correct-horse")

	if _, err := mgr.Login(ctx, "alice", "correct-horse"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	mustLoginErr(t, mgr, ctx, "alice", "wrong-password")

	m := mgr.Metrics()
	if got := m.Value(MetricLoginSuccess); got != 1 {
		t.Fatalf("expected MetricLoginSuccess=1, got %d", got)
	}
	if got := m.Value(MetricLoginFailure); got != 1 {
		t.Fatalf("expected MetricLoginFailure=1, got %d", got)
	}
	if got := m.Value(MetricSessionCreated); got != 1 {
		t.Fatalf("expected MetricSessionCreated=1, got %d", got)
	}
}
