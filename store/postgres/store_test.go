package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Yellowatch/boxumco"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestPool connects to BOXUM_TEST_DSN, or starts a disposable container
// when BOXUM_PG_INTEGRATION=1. Otherwise the test is skipped.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("BOXUM_TEST_DSN")
	if dsn == "" {
		if os.Getenv("BOXUM_PG_INTEGRATION") != "1" {
			t.Skip("set BOXUM_PG_INTEGRATION=1 or BOXUM_TEST_DSN to run postgres tests")
		}
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("boxum"),
			tcpostgres.WithUsername("boxum"),
			tcpostgres.WithPassword("boxum"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE TABLE users CASCADE`)
	require.NoError(t, err)
	return pool
}

func client(email string) boxumco.NewUser {
	return boxumco.NewUser{
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		Profile: boxumco.ClientProfile{
			Contact:     boxumco.Contact{FirstName: "Ada", LastName: "Lovelace", Postcode: "N1 9GU"},
			CompanyName: "Analytical Ltd",
		},
	}
}

func supplier(email string) boxumco.NewUser {
	return boxumco.NewUser{
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		Profile: boxumco.SupplierProfile{
			Contact: boxumco.Contact{FirstName: "Grace", LastName: "Hopper"},
			Company: boxumco.Company{
				Name:          "Hopper Removals",
				Type:          "ltd",
				LogoKey:       "logos/hopper.png",
				Subcategories: []string{"removals", "storage"},
			},
		},
	}
}

func TestStoreUserLifecycle(t *testing.T) {
	store := New(newTestPool(t))
	ctx := context.Background()

	u, err := store.Create(ctx, client("a@x.com"))
	require.NoError(t, err)
	assert.False(t, u.Active)
	assert.Equal(t, boxumco.AccountClient, u.AccountType())

	got, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, client("a@x.com").Profile, got.Profile)

	require.NoError(t, store.SetActive(ctx, u.ID, true))
	require.NoError(t, store.UpdatePasswordHash(ctx, u.ID, "new-hash"))
	got, err = store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, "new-hash", got.PasswordHash)

	_, err = store.Create(ctx, client("a@x.com"))
	assert.ErrorIs(t, err, boxumco.ErrDuplicateEmail)

	require.NoError(t, store.Delete(ctx, u.ID))
	_, err = store.FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, boxumco.ErrUserNotFound)
	assert.ErrorIs(t, store.Delete(ctx, u.ID), boxumco.ErrUserNotFound)
}

func TestStoreSupplierProfileRoundTrip(t *testing.T) {
	store := New(newTestPool(t))
	ctx := context.Background()

	in := supplier("s@x.com")
	u, err := store.Create(ctx, in)
	require.NoError(t, err)

	got, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Profile, got.Profile)

	p := in.Profile.(boxumco.SupplierProfile)
	p.Company.Description = "Same-day moves"
	p.Company.Subcategories = nil
	updated, err := store.UpdateProfile(ctx, u.ID, p)
	require.NoError(t, err)
	sp := updated.Profile.(boxumco.SupplierProfile)
	assert.Equal(t, "Same-day moves", sp.Company.Description)
	assert.Empty(t, sp.Company.Subcategories)

	_, err = store.UpdateProfile(ctx, u.ID, client("s@x.com").Profile)
	assert.ErrorIs(t, err, boxumco.ErrAccountTypeMismatch)
}

func TestStoreConcurrentCreateOneWinner(t *testing.T) {
	store := New(newTestPool(t))
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		dups int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Create(ctx, client("race@x.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, boxumco.ErrDuplicateEmail):
				dups++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, dups)
}

func TestStoreDeviceLifecycle(t *testing.T) {
	store := New(newTestPool(t))
	ctx := context.Background()

	u, err := store.Create(ctx, client("d@x.com"))
	require.NoError(t, err)

	_, err = store.GetDevice(ctx, u.ID)
	assert.ErrorIs(t, err, boxumco.ErrDeviceNotFound)

	first, err := store.GetOrCreateUnconfirmed(ctx, u.ID, []byte("01234567890123456789"))
	require.NoError(t, err)
	assert.False(t, first.Confirmed)
	assert.Equal(t, "default", first.Name)

	second, err := store.GetOrCreateUnconfirmed(ctx, u.ID, []byte("zzzzzzzzzzzzzzzzzzzz"))
	require.NoError(t, err)
	assert.Equal(t, first.Secret, second.Secret)

	removed, err := store.DeleteConfirmedDevice(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, removed, "unconfirmed device is not deleted")
	_, err = store.GetDevice(ctx, u.ID)
	require.NoError(t, err)

	changed, err := store.ConfirmDevice(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = store.ConfirmDevice(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, store.UpdateLastUsedCounter(ctx, u.ID, 10))
	require.NoError(t, store.UpdateLastUsedCounter(ctx, u.ID, 5))
	d, err := store.GetDevice(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, d.LastUsedCounter)

	require.NoError(t, store.Delete(ctx, u.ID))
	_, err = store.GetDevice(ctx, u.ID)
	assert.ErrorIs(t, err, boxumco.ErrDeviceNotFound)

	removed, err = store.DeleteConfirmedDevice(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStoreDeviceForUnknownUser(t *testing.T) {
	store := New(newTestPool(t))
	ctx := context.Background()

	_, err := store.GetOrCreateUnconfirmed(ctx, uuid.NewString(), []byte("01234567890123456789"))
	assert.ErrorIs(t, err, boxumco.ErrUserNotFound)

	_, err = store.ConfirmDevice(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, boxumco.ErrDeviceNotFound)
}

func TestStoreDrivesEngine(t *testing.T) {
	store := New(newTestPool(t))
	ctx := context.Background()

	cfg := boxumco.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	mailer := &lastMailer{}
	engine, err := boxumco.New().
		WithConfig(cfg).
		WithCredentialStore(store).
		WithDeviceStore(store).
		WithMailer(mailer).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	res, err := engine.Register(ctx, boxumco.RegisterRequest{
		Email:    "Engine@X.com",
		Password: "pw12345678",
		Profile:  client("").Profile,
	})
	require.NoError(t, err)

	_, err = engine.Login(ctx, "engine@x.com", "pw12345678")
	assert.ErrorIs(t, err, boxumco.ErrAccountInactive)

	require.NoError(t, store.SetActive(ctx, res.UserID, true))
	login, err := engine.Login(ctx, "engine@x.com", "pw12345678")
	require.NoError(t, err)
	require.NotNil(t, login.Tokens)
	assert.Equal(t, 1, mailer.count())
}

type lastMailer struct {
	mu   sync.Mutex
	sent int
}

func (m *lastMailer) Send(context.Context, boxumco.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return nil
}

func (m *lastMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}
