// internal/domain/settings/dto.go
package settings

import "time"

type UpdateBankSettingsRequest struct {
	AccountHolderName string `json:"account_holder_name" binding:"max=255"`
	BankName          string `json:"bank_name" binding:"max=255"`
	AccountType       string `json:"account_type" binding:"omitempty,oneof=checking savings"`
	AccountNumber     string `json:"account_number"`
	RoutingNumber     string `json:"routing_number"`
}

// BankSettingsResponse is what the settings endpoint returns. Numbers are plaintext for
// the owning account; an undecryptable value comes back empty.
type BankSettingsResponse struct {
	AccountHolderName string     `json:"account_holder_name"`
	BankName          string     `json:"bank_name"`
	AccountType       string     `json:"account_type"`
	AccountNumber     string     `json:"account_number"`
	RoutingNumber     string     `json:"routing_number"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}
