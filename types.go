package boxumco

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AccountType tags a user as a client or a supplier. It is fixed at
// registration.
type AccountType uint8

const (
	// AccountClient buys from suppliers.
	AccountClient AccountType = iota + 1
	// AccountSupplier lists services and companies.
	AccountSupplier
)

// String returns the wire name ("client" or "supplier").
func (t AccountType) String() string {
	switch t {
	case AccountClient:
		return "client"
	case AccountSupplier:
		return "supplier"
	default:
		return "unknown"
	}
}

// ParseAccountType is the inverse of AccountType.String.
func ParseAccountType(s string) (AccountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return AccountClient, nil
	case "supplier":
		return AccountSupplier, nil
	default:
		return 0, fmt.Errorf("unknown account type %q", s)
	}
}

// Contact holds the personal fields shared by both profile variants. The auth
// core treats them as opaque.
type Contact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Number    string `json:"number"`
	Address   string `json:"address"`
	Postcode  string `json:"postcode"`
	DOB       string `json:"dob"`
}

// Profile is the closed set of account payloads: ClientProfile or
// SupplierProfile. The unexported method keeps the set closed.
type Profile interface {
	AccountType() AccountType
	ContactInfo() Contact
	isProfile()
}

// ClientProfile is the payload of a client account.
type ClientProfile struct {
	Contact
	CompanyName string `json:"company_name"`
}

// AccountType implements Profile.
func (ClientProfile) AccountType() AccountType { return AccountClient }

// ContactInfo implements Profile.
func (p ClientProfile) ContactInfo() Contact { return p.Contact }

func (ClientProfile) isProfile() {}

// Company describes the business behind a supplier account.
type Company struct {
	Name          string   `json:"company_name"`
	Address       string   `json:"company_address"`
	Description   string   `json:"company_description"`
	Postcode      string   `json:"company_postcode"`
	Number        string   `json:"company_number"`
	Type          string   `json:"company_type"`
	LogoKey       string   `json:"company_logo,omitempty"`
	Subcategories []string `json:"subcategories"`
}

// SupplierProfile is the payload of a supplier account.
type SupplierProfile struct {
	Contact
	Company Company
}

// AccountType implements Profile.
func (SupplierProfile) AccountType() AccountType { return AccountSupplier }

// ContactInfo implements Profile.
func (p SupplierProfile) ContactInfo() Contact { return p.Contact }

func (SupplierProfile) isProfile() {}

// User is an account as held by the CredentialStore.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Active       bool
	Profile      Profile
	CreatedAt    time.Time
}

// AccountType derives the account type from the profile variant.
func (u User) AccountType() AccountType {
	if u.Profile == nil {
		return 0
	}
	return u.Profile.AccountType()
}

// NewUser is the input of CredentialStore.Create.
type NewUser struct {
	Email        string
	PasswordHash string
	Active       bool
	Profile      Profile
}

// Device is the per-user TOTP device. Only a confirmed device gates login.
type Device struct {
	UserID          string
	Name            string
	Secret          []byte
	Confirmed       bool
	LastUsedCounter int64
	CreatedAt       time.Time
}

// CredentialStore persists users. Implementations must enforce email
// uniqueness atomically and return ErrDuplicateEmail on conflict, and
// ErrUserNotFound for missing rows. Emails are passed in normalised
// (trimmed, lower case) form.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, in NewUser) (User, error)
	SetActive(ctx context.Context, id string, active bool) error
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	UpdateProfile(ctx context.Context, id string, profile Profile) (User, error)
	// Delete removes the user together with its profile and device.
	Delete(ctx context.Context, id string) error
}

// DeviceStore persists second-factor devices, at most one per user.
type DeviceStore interface {
	// GetOrCreateUnconfirmed returns the user's existing device, or atomically
	// inserts an unconfirmed one holding secret.
	GetOrCreateUnconfirmed(ctx context.Context, userID string, secret []byte) (Device, error)
	GetDevice(ctx context.Context, userID string) (Device, error)
	// ConfirmDevice flips confirmed from false to true and reports whether
	// this call performed the transition.
	ConfirmDevice(ctx context.Context, userID string) (bool, error)
	UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) error
	// DeleteConfirmedDevice removes the user's device only if it is
	// confirmed, and reports whether a row was removed.
	DeleteConfirmedDevice(ctx context.Context, userID string) (bool, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Email is an outgoing message handed to a Mailer.
type Email struct {
	Kind    string    `json:"kind"`
	To      string    `json:"to"`
	UserID  string    `json:"user_id,omitempty"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Created time.Time `json:"created"`
	// Attempts counts failed deliveries so far.
	Attempts int `json:"attempts"`
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// RetryQueue holds messages whose delivery failed, for an out-of-band mailer.
type RetryQueue interface {
	Enqueue(ctx context.Context, msg Email) error
}

// QRRenderer turns a provisioning URI into an image, typically a data URI.
type QRRenderer interface {
	Render(content string) (string, error)
}

// SessionTokens is an issued access/refresh pair.
type SessionTokens struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is the outcome of Login and CompleteMFA. Exactly one of Tokens
// and ChallengeToken is set.
type LoginResult struct {
	UserID         string
	AccountType    AccountType
	MFARequired    bool
	ChallengeToken string
	Tokens         *SessionTokens
}

// RefreshResult carries a freshly minted access token.
type RefreshResult struct {
	Access          string
	AccessExpiresAt time.Time
}

// AuthResult is the identity extracted from a valid access token.
type AuthResult struct {
	UserID      string
	AccountType AccountType
	Email       string
	FirstName   string
	LastName    string
	ExpiresAt   time.Time
}

// TOTPEnrollment is returned by BeginEnrollment.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
	QRImage         string
}

// RegisterRequest is the input of Register. The profile variant fixes the
// account type.
type RegisterRequest struct {
	Email    string
	Password string
	Profile  Profile
}

// RegisterResult reports a created account. VerificationQueued is true when
// the verification email could not be sent and was queued for retry.
type RegisterResult struct {
	UserID             string
	AccountType        AccountType
	VerificationQueued bool
}
