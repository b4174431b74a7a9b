package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBTX is the subset of database/sql used by the repository. Both *sql.DB
// and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository is the durable tier.
type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions
			(id, user_id, tenant_id, email, role, status,
			 ip_address, user_agent, device_fingerprint,
			 created_at, expires_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.TenantID, s.Email, s.Role, s.Status,
		s.IPAddress, s.UserAgent, s.DeviceFingerprint,
		s.CreatedAt, s.ExpiresAt, s.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, sessionID string) (*Session, error) {
	query := `
		SELECT id, user_id, tenant_id, email, role, status,
		       ip_address, user_agent, device_fingerprint,
		       created_at, expires_at, last_activity_at
		FROM sessions
		WHERE id = $1
	`
	var s Session
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&s.ID, &s.UserID, &s.TenantID, &s.Email, &s.Role, &s.Status,
		&s.IPAddress, &s.UserAgent, &s.DeviceFingerprint,
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &s, nil
}

func (r *PostgresRepository) Extend(ctx context.Context, sessionID string, expiresAt, lastActivityAt time.Time) error {
	query := `
		UPDATE sessions
		SET expires_at = $2, last_activity_at = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, sessionID, expiresAt, lastActivityAt); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, sessionID string) error {
	query := `
		DELETE FROM sessions
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
