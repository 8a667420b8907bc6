package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yellowatch/boxumco"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var (
	_ boxumco.CredentialStore = (*Store)(nil)
	_ boxumco.DeviceStore     = (*Store)(nil)
)

// querier is implemented by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres-backed credential and device store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open parses dsn and connects a pool.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("postgres: empty connection string")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

const selectUserSQL = `
	SELECT id::text, email, password_hash, active, account_type, created_at
	FROM users
`

func (s *Store) FindByEmail(ctx context.Context, email string) (boxumco.User, error) {
	return s.findUser(ctx, s.pool, selectUserSQL+" WHERE email = $1", email)
}

func (s *Store) FindByID(ctx context.Context, id string) (boxumco.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return boxumco.User{}, boxumco.ErrUserNotFound
	}
	return s.findUser(ctx, s.pool, selectUserSQL+" WHERE id = $1", id)
}

func (s *Store) findUser(ctx context.Context, q querier, query string, arg any) (boxumco.User, error) {
	var (
		u           boxumco.User
		accountType string
	)
	err := q.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Active, &accountType, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return boxumco.User{}, boxumco.ErrUserNotFound
		}
		return boxumco.User{}, fmt.Errorf("db error: %w", err)
	}

	t, err := boxumco.ParseAccountType(accountType)
	if err != nil {
		return boxumco.User{}, fmt.Errorf("db error: %w", err)
	}
	u.Profile, err = loadProfile(ctx, q, u.ID, t)
	if err != nil {
		return boxumco.User{}, err
	}
	return u, nil
}

func (s *Store) Create(ctx context.Context, in boxumco.NewUser) (boxumco.User, error) {
	if in.Profile == nil {
		return boxumco.User{}, boxumco.ErrInvalidProfile
	}

	u := boxumco.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Active:       in.Active,
		Profile:      in.Profile,
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const insertSQL = `
			INSERT INTO users (id, email, password_hash, active, account_type)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`
		if err := tx.QueryRow(ctx, insertSQL, u.ID, u.Email, u.PasswordHash, u.Active, in.Profile.AccountType().String()).Scan(&u.CreatedAt); err != nil {
			return err
		}
		return insertProfile(ctx, tx, u.ID, in.Profile)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return boxumco.User{}, boxumco.ErrDuplicateEmail
		}
		if errors.Is(err, boxumco.ErrInvalidProfile) {
			return boxumco.User{}, err
		}
		return boxumco.User{}, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.updateUser(ctx, `UPDATE users SET active = $2 WHERE id = $1`, id, active)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	return s.updateUser(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
}

func (s *Store) updateUser(ctx context.Context, query, id string, arg any) error {
	if _, err := uuid.Parse(id); err != nil {
		return boxumco.ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx, query, id, arg)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return boxumco.ErrUserNotFound
	}
	return nil
}

// UpdateProfile replaces the profile row. The stored account type must match
// the profile variant.
func (s *Store) UpdateProfile(ctx context.Context, id string, profile boxumco.Profile) (boxumco.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return boxumco.User{}, boxumco.ErrUserNotFound
	}
	if profile == nil {
		return boxumco.User{}, boxumco.ErrInvalidProfile
	}

	var out boxumco.User
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var accountType string
		err := tx.QueryRow(ctx, `SELECT account_type FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&accountType)
		if errors.Is(err, pgx.ErrNoRows) {
			return boxumco.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if accountType != profile.AccountType().String() {
			return boxumco.ErrAccountTypeMismatch
		}
		if err := updateProfile(ctx, tx, id, profile); err != nil {
			return err
		}
		out, err = s.findUser(ctx, tx, selectUserSQL+" WHERE id = $1", id)
		return err
	})
	if err != nil {
		if errors.Is(err, boxumco.ErrUserNotFound) || errors.Is(err, boxumco.ErrAccountTypeMismatch) || errors.Is(err, boxumco.ErrInvalidProfile) {
			return boxumco.User{}, err
		}
		return boxumco.User{}, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Delete removes the user. Profile and device rows cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return boxumco.ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return boxumco.ErrUserNotFound
	}
	return nil
}
