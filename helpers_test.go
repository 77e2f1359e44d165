package veriauth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/veriauth/veriauth/password"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()

	h, err := password.NewHasher(testPasswordConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

// testPasswordConfig uses the cheapest parameters Validate accepts so the
// suite stays fast.
func testPasswordConfig() password.Config {
	return password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

func newTestManager(t *testing.T, rdb *redis.Client, cfg Config, n Notifier) *Manager {
	t.Helper()

	if n == nil {
		n = &recordingNotifier{}
	}

	mgr, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(n).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(mgr.Close)

	return mgr
}

// recordingNotifier captures every delivery so tests can read the emailed
// verification code back out of the message body.
type recordingNotifier struct {
	mu    sync.Mutex
	sends []recordedSend
	fail  error
}

type recordedSend struct {
	Destination string
	Subject     string
	Body        string
}

func (n *recordingNotifier) Send(_ context.Context, destination, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fail != nil {
		return n.fail
	}
	n.sends = append(n.sends, recordedSend{
		Destination: destination,
		Subject:     subject,
		Body:        body,
	})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sends)
}

func (n *recordingNotifier) last(t *testing.T) recordedSend {
	t.Helper()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sends) == 0 {
		t.Fatal("expected at least one delivered message")
	}
	return n.sends[len(n.sends)-1]
}

// lastCode extracts the verification code from the most recent email, which
// carries it as the final path segment of the embedded link.
func (n *recordingNotifier) lastCode(t *testing.T) string {
	t.Helper()

	body := n.last(t).Body
	idx := strings.LastIndexByte(body, '/')
	if idx < 0 || idx == len(body)-1 {
		t.Fatalf("no verification link in body %q", body)
	}
	return body[idx+1:]
}

func mustRegister(t *testing.T, mgr *Manager, username, pass, email string) {
	t.Helper()

	if err := mgr.Register(context.Background(), RegisterRequest{
		Username: username,
		Password: pass,
		Email:    email,
	}); err != nil {
		t.Fatalf("Register(%q) failed: %v", username, err)
	}
}

func mustVerify(t *testing.T, mgr *Manager, n *recordingNotifier, username string) {
	t.Helper()

	if err := mgr.VerifyEmail(context.Background(), username, n.lastCode(t)); err != nil {
		t.Fatalf("VerifyEmail(%q) failed: %v", username, err)
	}
}

func registeredVerifiedUser(t *testing.T, mgr *Manager, n *recordingNotifier, username, pass string) {
	t.Helper()

	mustRegister(t, mgr, username, pass, username+"@example.com")
	mustVerify(t, mgr, n, username)
}

func advanceClock(t *testing.T, mr *miniredis.Miniredis, d time.Duration) {
	t.Helper()
	mr.FastForward(d)
}
