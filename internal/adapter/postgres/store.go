package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements storage.Store using PostgreSQL. Each instance's state
// lives in instance_state keyed by (instance_id, key); the single pending
// wake-up per instance lives in instance_alarms.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, instanceID, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM instance_state WHERE instance_id = $1 AND key = $2`,
		instanceID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s/%s: %w", instanceID, key, err)
	}
	return value, true, nil
}

func (s *Store) Put(ctx context.Context, instanceID, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instance_state (instance_id, key, value, updated_at)
		 VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (instance_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		instanceID, key, string(value))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", instanceID, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, instanceID, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM instance_state WHERE instance_id = $1 AND key = $2`,
		instanceID, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", instanceID, key, err)
	}
	return nil
}

func (s *Store) GetAlarm(ctx context.Context, instanceID string) (time.Time, bool, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT scheduled_at FROM instance_alarms WHERE instance_id = $1`,
		instanceID).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("get alarm %s: %w", instanceID, err)
	}
	return at, true, nil
}

func (s *Store) SetAlarm(ctx context.Context, instanceID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instance_alarms (instance_id, scheduled_at, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (instance_id)
		 DO UPDATE SET scheduled_at = EXCLUDED.scheduled_at, updated_at = now()`,
		instanceID, at)
	if err != nil {
		return fmt.Errorf("set alarm %s: %w", instanceID, err)
	}
	return nil
}

func (s *Store) DeleteAlarm(ctx context.Context, instanceID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM instance_alarms WHERE instance_id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("delete alarm %s: %w", instanceID, err)
	}
	return nil
}
