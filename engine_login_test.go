package boxumco

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestFullAuthenticationScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.Register(ctx, RegisterRequest{
		Email:    testEmail,
		Password: testPassword,
		Profile:  clientProfile(),
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.AccountType != AccountClient || res.VerificationQueued {
		t.Fatalf("unexpected register result %+v", res)
	}

	if _, err := env.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive before confirmation, got %v", err)
	}

	uid, token := verificationParams(t, env.mailer.Last(t))
	if uid != res.UserID {
		t.Fatalf("link uid %q, want %q", uid, res.UserID)
	}
	if err := env.engine.ConfirmEmail(ctx, uid, token); err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}

	login, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.MFARequired || login.Tokens == nil || login.Tokens.Access == "" || login.Tokens.Refresh == "" {
		t.Fatalf("expected tokens without MFA, got %+v", login)
	}

	secret := env.enroll(t, res.UserID)

	login, err = env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login with MFA failed: %v", err)
	}
	if !login.MFARequired || login.ChallengeToken == "" || login.Tokens != nil {
		t.Fatalf("expected challenge only, got %+v", login)
	}

	env.clock.Advance(time.Minute)
	code := codeAt(t, secret, env.config.TOTP, env.clock.Now())
	done, err := env.engine.CompleteMFA(ctx, login.ChallengeToken, code)
	if err != nil {
		t.Fatalf("CompleteMFA failed: %v", err)
	}
	if done.Tokens == nil || done.UserID != res.UserID {
		t.Fatalf("expected session tokens, got %+v", done)
	}

	if err := env.engine.DisableSecondFactor(ctx, res.UserID); err != nil {
		t.Fatalf("DisableSecondFactor failed: %v", err)
	}
	login, err = env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login after disable failed: %v", err)
	}
	if login.MFARequired || login.Tokens == nil {
		t.Fatalf("expected direct tokens after disable, got %+v", login)
	}
}

func TestLoginUnknownAndWrongPasswordLookAlike(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, testEmail, testPassword)
	ctx := context.Background()

	_, unknownErr := env.engine.Login(ctx, "nobody@x.com", testPassword)
	_, wrongErr := env.engine.Login(ctx, testEmail, "not-the-password")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error messages differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestLoginInactiveCheckedBeforePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, RegisterRequest{
		Email:    testEmail,
		Password: testPassword,
		Profile:  clientProfile(),
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := env.engine.Login(ctx, testEmail, "wrong-password"); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestLoginNormalisesEmail(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, testEmail, testPassword)

	if _, err := env.engine.Login(context.Background(), "  A@X.COM ", testPassword); err != nil {
		t.Fatalf("expected case-insensitive login, got %v", err)
	}
}

func TestCompleteMFAChallengeExpiresAfterFiveMinutes(t *testing.T) {
	env := newTestEnv(t)
	uid := env.registerActive(t, testEmail, testPassword)
	secret := env.enroll(t, uid)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	env.clock.Advance(301 * time.Second)
	code := codeAt(t, secret, env.config.TOTP, env.clock.Now())
	if _, err := env.engine.CompleteMFA(ctx, login.ChallengeToken, code); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	has, err := env.engine.HasSecondFactor(ctx, uid)
	if err != nil || !has {
		t.Fatalf("expected device to stay confirmed, has=%v err=%v", has, err)
	}
}

func TestCompleteMFAChallengeValidAtBoundary(t *testing.T) {
	env := newTestEnv(t)
	uid := env.registerActive(t, testEmail, testPassword)
	secret := env.enroll(t, uid)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	env.clock.Advance(300 * time.Second)
	code := codeAt(t, secret, env.config.TOTP, env.clock.Now())
	if _, err := env.engine.CompleteMFA(ctx, login.ChallengeToken, code); err != nil {
		t.Fatalf("expected challenge valid at exactly 300s, got %v", err)
	}
}

func TestCompleteMFAWrongCodeKeepsDevice(t *testing.T) {
	env := newTestEnv(t)
	uid := env.registerActive(t, testEmail, testPassword)
	secret := env.enroll(t, uid)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	bad := wrongCode(t, secret, env.config.TOTP, env.clock.Now())
	if _, err := env.engine.CompleteMFA(ctx, login.ChallengeToken, bad); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	// The same challenge is still usable with a valid code.
	good := codeAt(t, secret, env.config.TOTP, env.clock.Now())
	if _, err := env.engine.CompleteMFA(ctx, login.ChallengeToken, good); err != nil {
		t.Fatalf("expected retry with valid code to succeed, got %v", err)
	}
}

func TestCompleteMFARejectsForeignTokens(t *testing.T) {
	env := newTestEnv(t)
	uid := env.registerActive(t, testEmail, testPassword)
	env.enroll(t, uid)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	session, err := env.engine.issueSession(User{ID: uid, Email: testEmail, Profile: clientProfile()})
	if err != nil {
		t.Fatalf("issueSession failed: %v", err)
	}
	verification, err := env.engine.verifications.Sign(uid)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	for name, token := range map[string]string{
		"access token":       session.Access,
		"verification token": verification,
		"tampered":           login.ChallengeToken + "x",
		"garbage":            "not-a-token",
	} {
		if _, err := env.engine.CompleteMFA(ctx, token, "123456"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestCompleteMFADeletedUser(t *testing.T) {
	env := newTestEnv(t)
	uid := env.registerActive(t, testEmail, testPassword)
	secret := env.enroll(t, uid)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := env.engine.DeleteAccount(ctx, uid); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	code := codeAt(t, secret, env.config.TOTP, env.clock.Now())
	if _, err := env.engine.CompleteMFA(ctx, login.ChallengeToken, code); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for deleted user, got %v", err)
	}
}

func TestUnconfirmedDeviceDoesNotGateLogin(t *testing.T) {
	env := newTestEnv(t)
	uid := env.registerActive(t, testEmail, testPassword)
	ctx := context.Background()

	if _, err := env.engine.BeginEnrollment(ctx, uid); err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}
	login, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.MFARequired {
		t.Fatal("unconfirmed device must not require MFA")
	}
}

func TestLoginRehashesLegacyBcryptHash(t *testing.T) {
	env := newTestEnv(t)
	uid := env.registerActive(t, testEmail, testPassword)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	if err := env.store.UpdatePasswordHash(ctx, uid, string(legacy)); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}

	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Login with legacy hash failed: %v", err)
	}
	u, err := env.store.FindByID(ctx, uid)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if !strings.HasPrefix(u.PasswordHash, "$argon2id$") {
		t.Fatalf("expected hash upgraded to argon2id, got %q", u.PasswordHash)
	}
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Login after rehash failed: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordRehashed]; got != 1 {
		t.Fatalf("expected one rehash, got %d", got)
	}
}
