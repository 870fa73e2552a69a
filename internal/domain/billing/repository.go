// internal/domain/billing/repository.go
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id int64) (*Account, error)
	SetStripeCustomerID(ctx context.Context, id int64, customerID string) error
}

// PaymentMethodRepository persists payment methods. Every method that can change
// which method is default runs as one transaction.
type PaymentMethodRepository interface {
	// Create inserts pm. It becomes the default when makeDefault is set or when the
	// account has no other active method; other defaults are cleared in the same tx.
	Create(ctx context.Context, pm *PaymentMethod, makeDefault bool) error
	FindByID(ctx context.Context, accountID, id int64) (*PaymentMethod, error)
	FindDefault(ctx context.Context, accountID int64) (*PaymentMethod, error)
	ListActive(ctx context.Context, accountID int64) ([]PaymentMethod, error)
	SetDefault(ctx context.Context, accountID, id int64) error
	// Deactivate soft-deletes the method, promoting another active method to default
	// if the target was the default.
	Deactivate(ctx context.Context, accountID, id int64) error
	UpdateNickname(ctx context.Context, accountID, id int64, nickname string) error
}

type BillingRepository interface {
	ListBillableSubscriptions(ctx context.Context, asOf time.Time) ([]BillableSubscription, error)
	// ListAccountBillableSubscriptions is ListBillableSubscriptions for one account.
	ListAccountBillableSubscriptions(ctx context.Context, accountID int64, asOf time.Time) ([]BillableSubscription, error)
	// RecordChargeSuccess advances the subscription, clears the account hold and
	// appends the log. It returns xerrors.ErrStale when the subscription has moved
	// past outcome.DueDate.
	RecordChargeSuccess(ctx context.Context, outcome *ChargeOutcome) error
	// RecordChargeFailure holds the account, its users and properties and appends the
	// log, under the same DueDate check.
	RecordChargeFailure(ctx context.Context, outcome *ChargeOutcome) error
	ListPaymentLogs(ctx context.Context, accountID int64, limit int) ([]PaymentLog, error)
}

type ChargeRequest struct {
	AccountID      int64
	CustomerID     string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
}

type ChargeResult struct {
	Success         bool
	PaymentIntentID string
	Error           string
}

// PaymentGateway is the contract of the external payment processor.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, account *Account) (string, error)
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}
