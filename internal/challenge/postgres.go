package challenge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DBTX is the subset of database/sql used by the repositories. Both
// *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository is the durable tier. Rows are never deleted; used and
// expired challenges stay behind for the audit trail.
type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, ch *Challenge) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}

	query := `
		INSERT INTO login_challenges
			(id, token, code_hash, email, user_id, tenant_id, attempts, is_used,
			 ip_address, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		ch.ID, ch.Token, ch.CodeHash[:], ch.Email, ch.UserID, ch.TenantID,
		ch.Attempts, ch.Used, ch.IPAddress, ch.UserAgent, ch.CreatedAt, ch.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

const challengeColumns = `
	id, token, code_hash, email, user_id, tenant_id, attempts, is_used,
	ip_address, user_agent, created_at, expires_at
`

func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM login_challenges
		WHERE token = $1 AND expires_at > $2
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token, time.Now()))
}

// FindMostRecentUnusedByEmail scopes by tenant when one is known; an
// empty tenantID matches any tenant (the challenge row itself carries the
// binding established at issuance).
func (r *PostgresRepository) FindMostRecentUnusedByEmail(ctx context.Context, tenantID, email string) (*Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM login_challenges
		WHERE email = $1 AND is_used = FALSE AND expires_at > $2
		  AND ($3 = '' OR tenant_id = $3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email, time.Now(), tenantID))
}

func (r *PostgresRepository) IncrementAttempts(ctx context.Context, token string) error {
	query := `
		UPDATE login_challenges
		SET attempts = attempts + 1
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// MarkUsed is the single-use gate: a conditional update that only one
// concurrent caller can satisfy.
func (r *PostgresRepository) MarkUsed(ctx context.Context, token string) (bool, error) {
	query := `
		UPDATE login_challenges
		SET is_used = TRUE
		WHERE token = $1 AND is_used = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*Challenge, error) {
	var (
		ch       Challenge
		codeHash []byte
	)
	err := row.Scan(
		&ch.ID, &ch.Token, &codeHash, &ch.Email, &ch.UserID, &ch.TenantID,
		&ch.Attempts, &ch.Used, &ch.IPAddress, &ch.UserAgent, &ch.CreatedAt, &ch.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(codeHash) != len(ch.CodeHash) {
		return nil, fmt.Errorf("%w: malformed code hash", ErrUnavailable)
	}
	copy(ch.CodeHash[:], codeHash)
	return &ch, nil
}
