package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptyPassword   = errors.New("password: empty password")
	ErrMalformedHash   = errors.New("password: malformed hash")
	ErrUnsupportedHash = errors.New("password: unsupported hash algorithm")
)

// Lower bounds accepted both for configuration and for stored hashes.
const (
	floorMemoryKB = 8 * 1024
	floorSaltLen  = 16
	floorKeyLen   = 16
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the parameters used for new accounts.
func DefaultConfig() Config {
	return Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

func (c Config) validate() error {
	switch {
	case c.Memory < floorMemoryKB:
		return fmt.Errorf("password: memory %d KB below %d KB", c.Memory, floorMemoryKB)
	case c.Time == 0:
		return errors.New("password: time must be >= 1")
	case c.Parallelism == 0:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < floorSaltLen:
		return fmt.Errorf("password: salt length %d below %d", c.SaltLength, floorSaltLen)
	case c.KeyLength < floorKeyLen:
		return fmt.Errorf("password: key length %d below %d", c.KeyLength, floorKeyLen)
	}
	return nil
}

// Argon2 hashes with Argon2id and verifies Argon2id PHC strings. Legacy bcrypt
// hashes ($2a$, $2b$, $2y$) verify too and always report NeedsUpgrade, so
// imported accounts migrate on their next login.
type Argon2 struct {
	config Config
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) params() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, p.parallelism)
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$%s$%s$%s",
		argon2.Version, p.params(),
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key))
}

func (p phc) derive(plaintext string) []byte {
	return argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
}

// Hash returns a PHC encoded Argon2id hash. Length and composition rules are
// the caller's policy; Hash only rejects an empty input.
func (a *Argon2) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
		key:         make([]byte, a.config.KeyLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	p.key = p.derive(plaintext)
	return p.String(), nil
}

// Verify reports whether plaintext matches encodedHash. A mismatch is
// (false, nil); an unreadable hash is an error.
func (a *Argon2) Verify(plaintext, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		switch err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(plaintext)); {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
	}

	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(plaintext), p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash is bcrypt or was produced with
// weaker parameters than the current config.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return true, nil
	}
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	c := a.config
	weaker := p.memory < c.Memory || p.time < c.Time || p.parallelism < c.Parallelism
	return weaker || uint32(len(p.key)) != c.KeyLength, nil
}

func isBcrypt(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func decodePHC(s string) (phc, error) {
	var p phc
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return p, ErrMalformedHash
	}
	if fields[1] != "argon2id" {
		return p, ErrUnsupportedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return p, fmt.Errorf("%w: version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return p, ErrUnsupportedHash
	}

	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return p, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}
	// Reject trailing or reordered parameters.
	if p.params() != fields[3] {
		return p, fmt.Errorf("%w: parameters %q", ErrMalformedHash, fields[3])
	}
	if p.memory < floorMemoryKB || p.time == 0 || p.parallelism == 0 {
		return p, fmt.Errorf("%w: parameters below minimum", ErrMalformedHash)
	}

	var err error
	if p.salt, err = decodeB64(fields[4]); err != nil || len(p.salt) < floorSaltLen {
		return p, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = decodeB64(fields[5]); err != nil || len(p.key) == 0 {
		return p, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, nil
}

// decodeB64 accepts padded base64 as written by some other argon2 encoders.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
