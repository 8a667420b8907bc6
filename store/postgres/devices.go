package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yellowatch/boxumco"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// GetOrCreateUnconfirmed inserts an unconfirmed device unless one exists and
// returns whichever row is stored. Concurrent callers converge on the same
// row through the primary key.
func (s *Store) GetOrCreateUnconfirmed(ctx context.Context, userID string, secret []byte) (boxumco.Device, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return boxumco.Device{}, boxumco.ErrUserNotFound
	}

	const insertSQL = `
		INSERT INTO mfa_devices (user_id, name, secret, confirmed)
		VALUES ($1, 'default', $2, FALSE)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, insertSQL, userID, secret); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return boxumco.Device{}, boxumco.ErrUserNotFound
		}
		return boxumco.Device{}, fmt.Errorf("db error: %w", err)
	}

	d, err := s.GetDevice(ctx, userID)
	if errors.Is(err, boxumco.ErrDeviceNotFound) {
		// deleted between the insert and the select
		return boxumco.Device{}, boxumco.ErrUserNotFound
	}
	return d, err
}

func (s *Store) GetDevice(ctx context.Context, userID string) (boxumco.Device, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return boxumco.Device{}, boxumco.ErrDeviceNotFound
	}

	const selectSQL = `
		SELECT user_id::text, name, secret, confirmed, last_used_counter, created_at
		FROM mfa_devices
		WHERE user_id = $1
	`
	var d boxumco.Device
	err := s.pool.QueryRow(ctx, selectSQL, userID).
		Scan(&d.UserID, &d.Name, &d.Secret, &d.Confirmed, &d.LastUsedCounter, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return boxumco.Device{}, boxumco.ErrDeviceNotFound
		}
		return boxumco.Device{}, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (s *Store) ConfirmDevice(ctx context.Context, userID string) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, boxumco.ErrDeviceNotFound
	}

	tag, err := s.pool.Exec(ctx, `UPDATE mfa_devices SET confirmed = TRUE WHERE user_id = $1 AND NOT confirmed`, userID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetDevice(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) error {
	if _, err := uuid.Parse(userID); err != nil {
		return boxumco.ErrDeviceNotFound
	}

	const updateSQL = `
		UPDATE mfa_devices
		SET last_used_counter = GREATEST(last_used_counter, $2)
		WHERE user_id = $1
	`
	tag, err := s.pool.Exec(ctx, updateSQL, userID, counter)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return boxumco.ErrDeviceNotFound
	}
	return nil
}

func (s *Store) DeleteConfirmedDevice(ctx context.Context, userID string) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM mfa_devices WHERE user_id = $1 AND confirmed`, userID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
