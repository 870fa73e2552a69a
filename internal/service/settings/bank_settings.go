// internal/service/settings/bank_settings.go
package settings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"propdesk-service/internal/domain/settings"
	xerrors "propdesk-service/internal/pkg/errors"
	"propdesk-service/internal/pkg/fieldcrypt"

	"go.uber.org/zap"
)

var (
	accountNumberPattern = regexp.MustCompile(`^\d{8,17}$`)
	routingNumberPattern = regexp.MustCompile(`^\d{9}$`)
)

// FieldCipher is the part of fieldcrypt.Cipher the settings boundary needs.
type FieldCipher interface {
	Encrypt(plaintext, context string) (string, error)
	Decrypt(ciphertext, context string) (string, error)
}

// BankSettingsService is the read/write boundary for bank-account billing settings.
// Numbers are encrypted with the "billing" context before they are stored and decrypted
// before they are returned.
type BankSettingsService struct {
	repo   settings.Repository
	cipher FieldCipher
	logger *zap.Logger
}

func NewBankSettingsService(repo settings.Repository, cipher FieldCipher, logger *zap.Logger) *BankSettingsService {
	return &BankSettingsService{repo: repo, cipher: cipher, logger: logger}
}

// GetBankSettings returns the decrypted settings. A value that fails to decrypt comes
// back empty; an account without settings gets an empty response.
func (s *BankSettingsService) GetBankSettings(ctx context.Context, accountID int64) (*settings.BankSettingsResponse, error) {
	bs, err := s.repo.Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return &settings.BankSettingsResponse{}, nil
		}
		return nil, fmt.Errorf("failed to load bank settings: %w", err)
	}
	return s.toResponse(bs), nil
}

// SaveBankSettings encrypts and stores the settings. An empty account or routing number
// keeps the stored one.
func (s *BankSettingsService) SaveBankSettings(ctx context.Context, accountID int64, req *settings.UpdateBankSettingsRequest) (*settings.BankSettingsResponse, error) {
	if req == nil {
		return nil, xerrors.Invalid("settings", "is required")
	}
	accountNumber := strings.Join(strings.Fields(req.AccountNumber), "")
	routingNumber := strings.Join(strings.Fields(req.RoutingNumber), "")
	accountType := strings.ToLower(strings.TrimSpace(req.AccountType))

	if accountNumber != "" && !accountNumberPattern.MatchString(accountNumber) {
		return nil, xerrors.Invalid("account_number", "must be 8 to 17 digits")
	}
	if routingNumber != "" && !routingNumberPattern.MatchString(routingNumber) {
		return nil, xerrors.Invalid("routing_number", "must be exactly 9 digits")
	}
	if accountType != "" && accountType != "checking" && accountType != "savings" {
		return nil, xerrors.Invalid("account_type", "must be checking or savings")
	}

	bs := &settings.BankSettings{AccountID: accountID}
	existing, err := s.repo.Find(ctx, accountID)
	switch {
	case err == nil:
		bs.EncryptedAccountNumber = existing.EncryptedAccountNumber
		bs.EncryptedRoutingNumber = existing.EncryptedRoutingNumber
	case !errors.Is(err, xerrors.ErrNotFound):
		return nil, fmt.Errorf("failed to load bank settings: %w", err)
	}

	bs.AccountHolderName = strings.TrimSpace(req.AccountHolderName)
	bs.BankName = strings.TrimSpace(req.BankName)
	bs.AccountType = accountType

	if accountNumber != "" {
		enc, err := s.cipher.Encrypt(accountNumber, fieldcrypt.ContextBilling)
		if err != nil {
			s.logger.Error("bank settings encryption failed", zap.Int64("account_id", accountID))
			return nil, fmt.Errorf("encrypt account number: %w", err)
		}
		bs.EncryptedAccountNumber = enc
	}
	if routingNumber != "" {
		enc, err := s.cipher.Encrypt(routingNumber, fieldcrypt.ContextBilling)
		if err != nil {
			s.logger.Error("bank settings encryption failed", zap.Int64("account_id", accountID))
			return nil, fmt.Errorf("encrypt routing number: %w", err)
		}
		bs.EncryptedRoutingNumber = enc
	}

	if err := s.repo.Upsert(ctx, bs); err != nil {
		return nil, fmt.Errorf("failed to save bank settings: %w", err)
	}
	s.logger.Info("bank settings updated", zap.Int64("account_id", accountID))
	return s.toResponse(bs), nil
}

func (s *BankSettingsService) toResponse(bs *settings.BankSettings) *settings.BankSettingsResponse {
	updated := bs.UpdatedAt
	return &settings.BankSettingsResponse{
		AccountHolderName: bs.AccountHolderName,
		BankName:          bs.BankName,
		AccountType:       bs.AccountType,
		AccountNumber:     s.decryptOrEmpty(bs.AccountID, "account_number", bs.EncryptedAccountNumber),
		RoutingNumber:     s.decryptOrEmpty(bs.AccountID, "routing_number", bs.EncryptedRoutingNumber),
		UpdatedAt:         &updated,
	}
}

// decryptOrEmpty never surfaces the ciphertext or the cipher error to the caller.
func (s *BankSettingsService) decryptOrEmpty(accountID int64, field, ciphertext string) string {
	if ciphertext == "" {
		return ""
	}
	plain, err := s.cipher.Decrypt(ciphertext, fieldcrypt.ContextBilling)
	if err != nil {
		s.logger.Warn("bank settings field could not be decrypted",
			zap.Int64("account_id", accountID),
			zap.String("field", field),
		)
		return ""
	}
	return plain
}
