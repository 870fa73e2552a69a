// internal/repository/postgres/account_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"propdesk-service/internal/domain/billing"
	xerrors "propdesk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*billing.Account, error) {
	query := `
		SELECT id, name, is_on_hold, stripe_customer_id, last_billing_date, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var a billing.Account
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.IsOnHold, &a.StripeCustomerID, &a.LastBillingDate, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) SetStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	query := `UPDATE accounts SET stripe_customer_id = NULLIF($1, ''), updated_at = $2 WHERE id = $3`

	result, err := r.db.Pool().Exec(ctx, query, customerID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set gateway customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
