package boxumco

import (
	"context"
	"encoding/base32"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const (
	testEmail    = "a@x.com"
	testPassword = "pw12345678"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = testSecret
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureMailer struct {
	mu   sync.Mutex
	sent []Email
}

func (m *captureMailer) Send(_ context.Context, msg Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

func (m *captureMailer) Last(t testing.TB) Email {
	t.Helper()
	sent := m.Sent()
	if len(sent) == 0 {
		t.Fatal("expected an email to be sent")
	}
	return sent[len(sent)-1]
}

type failingMailer struct{}

func (failingMailer) Send(context.Context, Email) error {
	return errors.New("smtp: connection refused")
}

type memQueue struct {
	mu   sync.Mutex
	msgs []Email
	err  error
}

func (q *memQueue) Enqueue(_ context.Context, msg Email) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *memQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

type testEnv struct {
	engine *Engine
	store  *MemoryStore
	mailer *captureMailer
	clock  *fakeClock
	config Config
}

func newTestEnv(t testing.TB, mutate ...func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	env := &testEnv{
		store:  NewMemoryStore(),
		mailer: &captureMailer{},
		clock:  newFakeClock(),
		config: cfg,
	}
	engine, err := New().
		WithConfig(cfg).
		WithCredentialStore(env.store).
		WithDeviceStore(env.store).
		WithMailer(env.mailer).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func clientProfile() ClientProfile {
	return ClientProfile{
		Contact: Contact{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Number:    "07700900000",
			Postcode:  "SW1A 1AA",
		},
	}
}

func supplierProfile() SupplierProfile {
	return SupplierProfile{
		Contact: Contact{FirstName: "Grace", LastName: "Hopper"},
		Company: Company{
			Name:          "Hopper Removals",
			Type:          "ltd",
			Subcategories: []string{"removals", "storage"},
		},
	}
}

// verificationParams extracts uid and token from the link in a verification email.
func verificationParams(t testing.TB, msg Email) (string, string) {
	t.Helper()
	for _, line := range strings.Split(msg.Body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "http") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil {
			t.Fatalf("parse link: %v", err)
		}
		return u.Query().Get("uid"), u.Query().Get("token")
	}
	t.Fatalf("no link in email body %q", msg.Body)
	return "", ""
}

// registerActive registers a client and confirms its email.
func (env *testEnv) registerActive(t testing.TB, email, password string) string {
	t.Helper()
	ctx := context.Background()

	res, err := env.engine.Register(ctx, RegisterRequest{
		Email:    email,
		Password: password,
		Profile:  clientProfile(),
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	uid, token := verificationParams(t, env.mailer.Last(t))
	if err := env.engine.ConfirmEmail(ctx, uid, token); err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
	return res.UserID
}

// enroll runs enrollment to completion and returns the base32 secret.
func (env *testEnv) enroll(t *testing.T, userID string) string {
	t.Helper()
	ctx := context.Background()

	enrollment, err := env.engine.BeginEnrollment(ctx, userID)
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	code := codeAt(t, enrollment.Secret, env.config.TOTP, env.clock.Now())
	if err := env.engine.ConfirmEnrollment(ctx, userID, code); err != nil {
		t.Fatalf("ConfirmEnrollment failed: %v", err)
	}
	return enrollment.Secret
}

func codeAt(t *testing.T, secret string, cfg TOTPConfig, at time.Time) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		t.Fatalf("decode secret failed: %v", err)
	}
	code, err := hotpCode(key, at.Unix()/int64(cfg.Period), cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

// wrongCode returns a well-formed code that differs from every code in the
// skew window around at.
func wrongCode(t *testing.T, secret string, cfg TOTPConfig, at time.Time) string {
	t.Helper()
	valid := map[string]bool{}
	for step := -cfg.Skew; step <= cfg.Skew; step++ {
		valid[codeAt(t, secret, cfg, at.Add(time.Duration(step*cfg.Period)*time.Second))] = true
	}
	for _, candidate := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[candidate] {
			return candidate
		}
	}
	t.Fatal("could not find an invalid code")
	return ""
}
