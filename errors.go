package boxumco

import "errors"

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned by Login for an existing account whose email is not yet verified.
	ErrAccountInactive = errors.New("account inactive: please verify your email address")
	// ErrDuplicateEmail is returned when an account with the same email already exists.
	ErrDuplicateEmail = errors.New("a user with that email already exists")
	// ErrInvalidCode is returned when a TOTP code does not match.
	ErrInvalidCode = errors.New("invalid code")
	// ErrExpired is returned for a challenge, verification or session token past its validity window.
	ErrExpired = errors.New("token expired")
	// ErrInvalidToken is returned for a token with a bad signature, wrong purpose or malformed payload.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongPassword is returned by ChangePassword when the current password does not match.
	ErrWrongPassword = errors.New("current password is incorrect")
	// ErrNoActiveDevice is returned by DisableSecondFactor when no confirmed device exists.
	ErrNoActiveDevice = errors.New("no active second-factor device")

	ErrInvalidEmail               = errors.New("invalid email address")
	ErrPasswordPolicy             = errors.New("password does not satisfy policy")
	ErrPasswordReuse              = errors.New("new password must differ from the current one")
	ErrUserNotFound               = errors.New("user not found")
	ErrDeviceNotFound             = errors.New("second-factor device not found")
	ErrSecondFactorAlreadyEnabled = errors.New("second factor already enabled")
	ErrEnrollmentNotStarted       = errors.New("second-factor enrollment not started")
	ErrAccountTypeMismatch        = errors.New("profile does not match account type")
	ErrInvalidProfile             = errors.New("invalid profile")
	ErrRateLimited                = errors.New("too many attempts, try again later")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrEngineNotReady             = errors.New("engine not initialized")
)

// ErrorCode returns the stable, client-facing tag for err, or "internal" for
// anything outside the taxonomy.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrWrongPassword):
		return "wrong_password"
	case errors.Is(err, ErrNoActiveDevice):
		return "no_active_device"
	case errors.Is(err, ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, ErrPasswordReuse):
		return "password_reuse"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, ErrSecondFactorAlreadyEnabled):
		return "mfa_already_enabled"
	case errors.Is(err, ErrEnrollmentNotStarted):
		return "enrollment_not_started"
	case errors.Is(err, ErrAccountTypeMismatch):
		return "account_type_mismatch"
	case errors.Is(err, ErrInvalidProfile):
		return "invalid_profile"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrEngineNotReady):
		return "engine_not_ready"
	default:
		return "internal"
	}
}
