// internal/domain/billing/dto.go
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

type AddCardRequest struct {
	CardNumber     string `json:"card_number" binding:"required"`
	ExpiryMonth    int    `json:"expiry_month" binding:"required"`
	ExpiryYear     int    `json:"expiry_year" binding:"required"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholder_name" binding:"required"`
	Nickname       string `json:"nickname"`
}

type AddBankAccountRequest struct {
	AccountNumber     string `json:"account_number" binding:"required"`
	RoutingNumber     string `json:"routing_number" binding:"required"`
	AccountHolderName string `json:"account_holder_name" binding:"required"`
	BankName          string `json:"bank_name"`
	AccountType       string `json:"account_type"`
	Nickname          string `json:"nickname"`
}

type UpdateNicknameRequest struct {
	Nickname string `json:"nickname" binding:"required,max=100"`
}

// PaymentMethodView is the masked projection returned to clients and logs. It never
// carries ciphertexts or full numbers.
type PaymentMethodView struct {
	ID              int64             `json:"id"`
	Type            PaymentMethodType `json:"type"`
	IsDefault       bool              `json:"is_default"`
	Nickname        string            `json:"nickname,omitempty"`
	LastFour        string            `json:"last_four"`
	Brand           string            `json:"brand,omitempty"`
	BankName        string            `json:"bank_name,omitempty"`
	AccountType     string            `json:"account_type,omitempty"`
	RoutingLastFour string            `json:"routing_last_four,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// View projects a stored method to its display-safe form.
func (pm *PaymentMethod) View() *PaymentMethodView {
	v := &PaymentMethodView{
		ID:        pm.ID,
		Type:      pm.Type,
		IsDefault: pm.IsDefault,
		Nickname:  pm.Nickname,
		CreatedAt: pm.CreatedAt,
	}
	switch {
	case pm.Card != nil:
		v.LastFour = pm.Card.LastFour
		v.Brand = pm.Card.Brand
	case pm.BankAccount != nil:
		v.LastFour = pm.BankAccount.AccountLastFour
		v.BankName = pm.BankAccount.BankName
		v.AccountType = pm.BankAccount.AccountType
		v.RoutingLastFour = pm.BankAccount.RoutingLastFour
	}
	return v
}

type PaymentLogListResponse struct {
	Logs  []PaymentLog `json:"logs"`
	Total int          `json:"total"`
}

// RunSummary reports one billing run. AlreadyBilled counts due subscriptions that
// another run processed first.
type RunSummary struct {
	AsOf          time.Time       `json:"as_of"`
	Skipped       bool            `json:"skipped"`
	Due           int             `json:"due"`
	Charged       int             `json:"charged"`
	Failed        int             `json:"failed"`
	NoMethod      int             `json:"no_payment_method"`
	Locked        int             `json:"locked"`
	AlreadyBilled int             `json:"already_billed"`
	Errored       int             `json:"errored"`
	Collected     decimal.Decimal `json:"collected"`
}
