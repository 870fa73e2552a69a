// internal/repository/postgres/settings_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"propdesk-service/internal/domain/settings"
	xerrors "propdesk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type SettingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Find(ctx context.Context, accountID int64) (*settings.BankSettings, error) {
	query := `
		SELECT account_id, account_holder_name, bank_name, account_type,
		       encrypted_account_number, encrypted_routing_number, updated_at
		FROM billing_settings
		WHERE account_id = $1
	`

	var s settings.BankSettings
	err := r.db.Pool().QueryRow(ctx, query, accountID).Scan(
		&s.AccountID, &s.AccountHolderName, &s.BankName, &s.AccountType,
		&s.EncryptedAccountNumber, &s.EncryptedRoutingNumber, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get billing settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, s *settings.BankSettings) error {
	query := `
		INSERT INTO billing_settings (
			account_id, account_holder_name, bank_name, account_type,
			encrypted_account_number, encrypted_routing_number, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			account_holder_name      = EXCLUDED.account_holder_name,
			bank_name                = EXCLUDED.bank_name,
			account_type             = EXCLUDED.account_type,
			encrypted_account_number = EXCLUDED.encrypted_account_number,
			encrypted_routing_number = EXCLUDED.encrypted_routing_number,
			updated_at               = NOW()
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		s.AccountID, s.AccountHolderName, s.BankName, s.AccountType,
		s.EncryptedAccountNumber, s.EncryptedRoutingNumber,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return mapWriteError("failed to save billing settings", err)
	}
	return nil
}
