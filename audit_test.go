package boxumco

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *captureSink) collect(t *testing.T, n int) []AuditEvent {
	t.Helper()
	events := make([]AuditEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev := <-s.events:
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func buildAuditTestEngine(t *testing.T, sink AuditSink) (*Engine, *MemoryStore, *captureMailer) {
	t.Helper()

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false

	store := NewMemoryStore()
	mailer := &captureMailer{}
	engine, err := New().
		WithConfig(cfg).
		WithCredentialStore(store).
		WithDeviceStore(store).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store, mailer
}

func TestAuditDisabledBuildsNoDispatcher(t *testing.T) {
	env := newTestEnv(t)
	if env.engine.audit != nil {
		t.Fatal("expected no dispatcher when audit is disabled")
	}
	if _, err := env.engine.Login(context.Background(), testEmail, "whatever-pass"); err == nil {
		t.Fatal("expected login failure")
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatal("expected no drops")
	}
}

func TestAuditLoginFailureCarriesRequestMetadata(t *testing.T) {
	sink := newCaptureSink(8)
	engine, _, _ := buildAuditTestEngine(t, sink)

	ctx := WithRequestOrigin(context.Background(), RequestOrigin{IP: "198.51.100.33", UserAgent: "curl/8.5"})
	_, _ = engine.Login(ctx, "Ghost@X.com", "super-secret-password")

	events := sink.collect(t, 1)
	if len(events) != 1 {
		t.Fatal("expected audit event to be received")
	}
	ev := events[0]
	if ev.EventType != auditEventLoginFailure || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.IP != "198.51.100.33" || ev.UserAgent != "curl/8.5" {
		t.Fatalf("missing request metadata: %+v", ev)
	}
	if ev.Email != "ghost@x.com" {
		t.Fatalf("expected normalised email for unknown user, got %q", ev.Email)
	}
	if ev.Error != "invalid_credentials" {
		t.Fatalf("expected error code, got %q", ev.Error)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := newCaptureSink(32)
	engine, store, mailer := buildAuditTestEngine(t, sink)
	ctx := context.Background()

	res, err := engine.Register(ctx, RegisterRequest{Email: testEmail, Password: testPassword, Profile: clientProfile()})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	uid, token := verificationParams(t, mailer.Last(t))
	if err := engine.ConfirmEmail(ctx, uid, token); err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
	login, err := engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, login.Tokens.Refresh); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	u, _ := store.FindByID(ctx, res.UserID)
	needles := []string{testPassword, token, login.Tokens.Access, login.Tokens.Refresh, u.PasswordHash}

	// registration_success, verification_email_sent, email_confirmed,
	// login_success, refresh_success
	events := sink.collect(t, 5)
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field of %s", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata of %s", ev.EventType)
				}
			}
		}
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   auditEventLoginSuccess,
		UserID:      "u1",
		AccountType: "supplier",
		IP:          "127.0.0.1",
		Success:     true,
	})

	if !buf.Contains("login_success") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"user_id":"u1"`) || !buf.Contains(`"account_type":"supplier"`) {
		t.Fatalf("unexpected line %q", buf.String())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Contains(v string) bool {
	return strings.Contains(b.String(), v)
}
