package boxumco

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process CredentialStore and DeviceStore. It is meant
// for tests, the load generator and local development. A single mutex
// serialises every operation, so uniqueness checks and inserts are atomic.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]User
	byEmail map[string]string
	devices map[string]Device
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]User),
		byEmail: make(map[string]string),
		devices: make(map[string]Device),
		now:     time.Now,
	}
}

var (
	_ CredentialStore = (*MemoryStore)(nil)
	_ DeviceStore     = (*MemoryStore)(nil)
)

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) Create(_ context.Context, in NewUser) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[in.Email]; exists {
		return User{}, ErrDuplicateEmail
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Active:       in.Active,
		Profile:      in.Profile,
		CreatedAt:    s.now().UTC(),
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	return s.update(id, func(u *User) { u.Active = active })
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	return s.update(id, func(u *User) { u.PasswordHash = hash })
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id string, profile Profile) (User, error) {
	var out User
	err := s.update(id, func(u *User) {
		u.Profile = profile
		out = *u
	})
	return out, err
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.byEmail, u.Email)
	delete(s.devices, id)
	return nil
}

func (s *MemoryStore) update(id string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&u)
	s.users[id] = u
	return nil
}

func (s *MemoryStore) GetOrCreateUnconfirmed(_ context.Context, userID string, secret []byte) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.devices[userID]; ok {
		return cloneDevice(d), nil
	}
	if _, ok := s.users[userID]; !ok {
		return Device{}, ErrUserNotFound
	}
	d := Device{
		UserID:    userID,
		Name:      "default",
		Secret:    append([]byte(nil), secret...),
		CreatedAt: s.now().UTC(),
	}
	s.devices[userID] = d
	return cloneDevice(d), nil
}

func (s *MemoryStore) GetDevice(_ context.Context, userID string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[userID]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return cloneDevice(d), nil
}

func (s *MemoryStore) ConfirmDevice(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[userID]
	if !ok {
		return false, ErrDeviceNotFound
	}
	if d.Confirmed {
		return false, nil
	}
	d.Confirmed = true
	s.devices[userID] = d
	return true, nil
}

func (s *MemoryStore) UpdateLastUsedCounter(_ context.Context, userID string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[userID]
	if !ok {
		return ErrDeviceNotFound
	}
	if counter > d.LastUsedCounter {
		d.LastUsedCounter = counter
		s.devices[userID] = d
	}
	return nil
}

func (s *MemoryStore) DeleteConfirmedDevice(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.devices[userID]; !ok || !d.Confirmed {
		return false, nil
	}
	delete(s.devices, userID)
	return true, nil
}

func cloneDevice(d Device) Device {
	d.Secret = append([]byte(nil), d.Secret...)
	return d
}
