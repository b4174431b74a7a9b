package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBTX is the subset of database/sql used by the provider.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresProvider reads employee accounts joined with their tenant's
// active flag.
type PostgresProvider struct {
	db DBTX
}

func NewPostgresProvider(db DBTX) *PostgresProvider {
	return &PostgresProvider{db: db}
}

const accountQuery = `
	SELECT a.id, a.tenant_id, a.email, a.role, a.status, a.is_active, t.is_active
	FROM accounts a
	JOIN tenants t ON t.id = a.tenant_id
`

func (p *PostgresProvider) FindByEmail(ctx context.Context, tenantID, email string) (*Account, error) {
	query := accountQuery + ` WHERE a.email = $1`
	args := []any{email}
	if tenantID != "" {
		query += ` AND a.tenant_id = $2`
		args = append(args, tenantID)
	}
	return p.scanOne(p.db.QueryRowContext(ctx, query, args...))
}

func (p *PostgresProvider) FindByID(ctx context.Context, id string) (*Account, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, accountQuery+` WHERE a.id = $1`, id))
}

func (p *PostgresProvider) RecordLogin(ctx context.Context, id string, at time.Time, ip string) error {
	query := `
		UPDATE accounts
		SET last_login_at = $2, last_login_ip = $3
		WHERE id = $1
	`
	if _, err := p.db.ExecContext(ctx, query, id, at, ip); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *PostgresProvider) scanOne(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Email, &a.Role, &a.Status, &a.Active, &a.TenantActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &a, nil
}
