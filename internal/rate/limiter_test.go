package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, New(client, cfg)
}

func TestAdmitLoginWithinBudget(t *testing.T) {
	_, limiter := newTestLimiter(t, Config{
		LoginMaxAttempts: 3,
		LoginWindow:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.AdmitLogin(ctx, "client-a"); err != nil {
			t.Fatalf("attempt %d should be admitted: %v", i, err)
		}
	}
}

func TestAdmitLoginOverBudget(t *testing.T) {
	_, limiter := newTestLimiter(t, Config{
		LoginMaxAttempts: 2,
		LoginWindow:      time.Minute,
	})
	ctx := context.Background()

	_ = limiter.AdmitLogin(ctx, "client-a")
	_ = limiter.AdmitLogin(ctx, "client-a")

	err := limiter.AdmitLogin(ctx, "client-a")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var limited *LimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected LimitedError, got %T", err)
	}
	if limited.RetryAfter <= 0 || limited.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter %v outside window", limited.RetryAfter)
	}

	// Other keys keep their own budget.
	if err := limiter.AdmitLogin(ctx, "client-b"); err != nil {
		t.Fatalf("independent key should be admitted: %v", err)
	}
}

func TestRejectedAttemptsStillSpend(t *testing.T) {
	_, limiter := newTestLimiter(t, Config{
		LoginMaxAttempts: 1,
		LoginWindow:      time.Minute,
	})
	ctx := context.Background()

	if err := limiter.AdmitLogin(ctx, "client-a"); err != nil {
		t.Fatalf("first attempt should be admitted: %v", err)
	}

	// Hammering while limited keeps the counter growing.
	for i := 0; i < 3; i++ {
		if err := limiter.AdmitLogin(ctx, "client-a"); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
	}

	count, err := limiter.Attempts(ctx, "client-a")
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 spent attempts, got %d", count)
	}
}

func TestWindowExpiryResetsBudget(t *testing.T) {
	mr, limiter := newTestLimiter(t, Config{
		LoginMaxAttempts: 1,
		LoginWindow:      time.Minute,
	})
	ctx := context.Background()

	_ = limiter.AdmitLogin(ctx, "client-a")
	if err := limiter.AdmitLogin(ctx, "client-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited before reset, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)

	if err := limiter.AdmitLogin(ctx, "client-a"); err != nil {
		t.Fatalf("expected fresh window after expiry, got %v", err)
	}
}

func TestGlobalBudgets(t *testing.T) {
	_, limiter := newTestLimiter(t, Config{
		LoginMaxAttempts: 100,
		LoginWindow:      time.Minute,
		EnableGlobal:     true,
		GlobalHourly:     2,
		GlobalDaily:      10,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.AdmitGlobal(ctx, "client-a"); err != nil {
			t.Fatalf("global attempt %d should be admitted: %v", i, err)
		}
	}

	if err := limiter.AdmitGlobal(ctx, "client-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected hourly budget rejection, got %v", err)
	}
}

func TestGlobalDisabled(t *testing.T) {
	_, limiter := newTestLimiter(t, Config{
		LoginMaxAttempts: 1,
		LoginWindow:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := limiter.AdmitGlobal(ctx, "client-a"); err != nil {
			t.Fatalf("disabled global limiter must admit everything, got %v", err)
		}
	}
}

func TestLoginSpendsGlobalBudget(t *testing.T) {
	_, limiter := newTestLimiter(t, Config{
		LoginMaxAttempts: 100,
		LoginWindow:      time.Minute,
		EnableGlobal:     true,
		GlobalHourly:     3,
		GlobalDaily:      10,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.AdmitLogin(ctx, "client-a"); err != nil {
			t.Fatalf("login %d should be admitted: %v", i, err)
		}
	}

	if err := limiter.AdmitLogin(ctx, "client-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected global budget to apply to logins, got %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, limiter := newTestLimiter(t, Config{
		LoginMaxAttempts: 1,
		LoginWindow:      time.Minute,
	})
	mr.Close()

	err := limiter.AdmitLogin(context.Background(), "client-a")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
