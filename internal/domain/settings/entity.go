// internal/domain/settings/entity.go
package settings

import (
	"context"
	"time"
)

// BankSettings is the stored billing-settings row of an account. Account and routing
// numbers are ciphertexts.
type BankSettings struct {
	AccountID              int64     `db:"account_id"`
	AccountHolderName      string    `db:"account_holder_name"`
	BankName               string    `db:"bank_name"`
	AccountType            string    `db:"account_type"`
	EncryptedAccountNumber string    `db:"encrypted_account_number"`
	EncryptedRoutingNumber string    `db:"encrypted_routing_number"`
	UpdatedAt              time.Time `db:"updated_at"`
}

type Repository interface {
	// Find returns xerrors.ErrNotFound when the account has no settings row.
	Find(ctx context.Context, accountID int64) (*BankSettings, error)
	Upsert(ctx context.Context, s *BankSettings) error
}
