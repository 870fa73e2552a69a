// internal/domain/billing/entity.go
package billing

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethodType string

const (
	PaymentMethodCard        PaymentMethodType = "CARD"
	PaymentMethodBankAccount PaymentMethodType = "BANK_ACCOUNT"
	PaymentMethodPayPal      PaymentMethodType = "PAYPAL"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailure PaymentStatus = "FAILURE"
)

// Account is the billable tenant. IsOnHold is owned by the billing processor.
type Account struct {
	ID               int64          `json:"id" db:"id"`
	Name             string         `json:"name" db:"name"`
	IsOnHold         bool           `json:"is_on_hold" db:"is_on_hold"`
	StripeCustomerID sql.NullString `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	LastBillingDate  sql.NullTime   `json:"last_billing_date,omitempty" db:"last_billing_date"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// PaymentMethod is a stored payment method. Exactly one of Card or BankAccount is set
// for CARD and BANK_ACCOUNT types.
type PaymentMethod struct {
	ID          int64               `db:"id"`
	AccountID   int64               `db:"account_id"`
	Type        PaymentMethodType   `db:"type"`
	IsDefault   bool                `db:"is_default"`
	IsActive    bool                `db:"is_active"`
	Nickname    string              `db:"nickname"`
	Card        *CardDetails        `db:"-"`
	BankAccount *BankAccountDetails `db:"-"`
	CreatedAt   time.Time           `db:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at"`
}

// CardDetails holds ciphertexts for the sensitive card fields and plaintext display data.
type CardDetails struct {
	EncryptedNumber      string `db:"encrypted_card_number"`
	EncryptedExpiryMonth string `db:"encrypted_expiry_month"`
	EncryptedExpiryYear  string `db:"encrypted_expiry_year"`
	EncryptedCVV         string `db:"encrypted_cvv"`
	CardholderName       string `db:"cardholder_name"`
	LastFour             string `db:"last_four_digits"`
	Brand                string `db:"brand"`
}

type BankAccountDetails struct {
	EncryptedAccountNumber string `db:"encrypted_account_number"`
	EncryptedRoutingNumber string `db:"encrypted_routing_number"`
	AccountHolderName      string `db:"account_holder_name"`
	BankName               string `db:"bank_name"`
	AccountType            string `db:"account_type"`
	AccountLastFour        string `db:"account_last_four"`
	RoutingLastFour        string `db:"routing_last_four"`
}

type SubscriptionPlan struct {
	ID            int64           `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	BasePrice     decimal.Decimal `json:"base_price" db:"base_price"`
	MinProperties int             `json:"min_properties" db:"min_properties"`
	MaxProperties int             `json:"max_properties" db:"max_properties"`
	IsActive      bool            `json:"is_active" db:"is_active"`
}

type Subscription struct {
	ID              int64              `json:"id" db:"id"`
	AccountID       int64              `json:"account_id" db:"account_id"`
	UserID          int64              `json:"user_id" db:"user_id"`
	PlanID          int64              `json:"plan_id" db:"plan_id"`
	Status          SubscriptionStatus `json:"status" db:"status"`
	BillingCycleEnd time.Time          `json:"billing_cycle_end" db:"billing_cycle_end"`
	NextBillingDate time.Time          `json:"next_billing_date" db:"next_billing_date"`
}

// BillableSubscription is a due subscription joined with what the processor needs.
// DefaultPaymentMethod is nil when the account has no active default method.
type BillableSubscription struct {
	Subscription         Subscription
	Plan                 SubscriptionPlan
	Account              Account
	DefaultPaymentMethod *PaymentMethod
	PropertyCount        int
}

// PaymentLog is an append-only audit record of one charge attempt.
type PaymentLog struct {
	ID               int64           `json:"id" db:"id"`
	AccountID        int64           `json:"account_id" db:"account_id"`
	SubscriptionID   int64           `json:"subscription_id" db:"subscription_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Currency         string          `json:"currency" db:"currency"`
	Status           PaymentStatus   `json:"status" db:"status"`
	GatewayReference string          `json:"gateway_reference,omitempty" db:"gateway_reference"`
	IdempotencyKey   string          `json:"idempotency_key" db:"idempotency_key"`
	Description      string          `json:"description" db:"description"`
	FailureReason    string          `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// ChargeOutcome carries every write of one processed subscription so the repository
// can apply it in a single transaction.
type ChargeOutcome struct {
	SubscriptionID int64
	AccountID      int64
	// DueDate is the next_billing_date the charge was made for. The write applies only
	// while the subscription still has it, otherwise it fails with ErrStale.
	DueDate         time.Time
	NextBillingDate time.Time
	BillingCycleEnd time.Time
	BilledAt        time.Time
	Log             PaymentLog
}
