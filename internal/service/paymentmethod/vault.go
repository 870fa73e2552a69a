// internal/service/paymentmethod/vault.go
package paymentmethod

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"propdesk-service/internal/domain/billing"
	xerrors "propdesk-service/internal/pkg/errors"
	"propdesk-service/internal/pkg/fieldcrypt"
	"propdesk-service/internal/pkg/metrics"

	"go.uber.org/zap"
)

// Encrypter is the part of fieldcrypt.Cipher the vault needs.
type Encrypter interface {
	Encrypt(plaintext, context string) (string, error)
}

// Vault validates, encrypts and stores payment methods and keeps at most one active
// default per account.
type Vault struct {
	accounts billing.AccountRepository
	methods  billing.PaymentMethodRepository
	cipher   Encrypter
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

func NewVault(
	accounts billing.AccountRepository,
	methods billing.PaymentMethodRepository,
	cipher Encrypter,
	now func() time.Time,
	logger *zap.Logger,
) *Vault {
	if now == nil {
		now = time.Now
	}
	return &Vault{
		accounts: accounts,
		methods:  methods,
		cipher:   cipher,
		now:      now,
		logger:   logger,
	}
}

// UseMetrics counts vault writes on m.
func (v *Vault) UseMetrics(m *metrics.Metrics) {
	v.metrics = m
}

func (v *Vault) observe(op string, err error) {
	if v.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, xerrors.ErrInvalidInput):
		status = "invalid"
	case errors.Is(err, xerrors.ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	v.metrics.PaymentMethodOpsTotal.WithLabelValues(op, status).Inc()
}

// AddCard stores a card. Number, expiry month, expiry year and CVV are encrypted
// separately with the "card" context.
func (v *Vault) AddCard(ctx context.Context, accountID int64, req *billing.AddCardRequest) (_ *billing.PaymentMethodView, err error) {
	defer func() { v.observe("add_card", err) }()

	if req == nil {
		return nil, xerrors.Invalid("card", "is required")
	}
	number := stripSpaces(req.CardNumber)
	cvv := strings.TrimSpace(req.CVV)
	holder := strings.TrimSpace(req.CardholderName)

	if err := validateCardNumber(number); err != nil {
		return nil, err
	}
	if err := validateExpiry(req.ExpiryMonth, req.ExpiryYear, v.now()); err != nil {
		return nil, err
	}
	if err := validateCVV(cvv); err != nil {
		return nil, err
	}
	if holder == "" {
		return nil, xerrors.Invalid("cardholder_name", "is required")
	}

	if _, err := v.accounts.FindByID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("account %d: %w", accountID, err)
	}

	details := &billing.CardDetails{
		CardholderName: holder,
		LastFour:       lastFour(number),
		Brand:          DetectBrand(number),
	}

	fields := []struct {
		dst   *string
		value string
	}{
		{&details.EncryptedNumber, number},
		{&details.EncryptedExpiryMonth, strconv.Itoa(req.ExpiryMonth)},
		{&details.EncryptedExpiryYear, strconv.Itoa(req.ExpiryYear)},
		{&details.EncryptedCVV, cvv},
	}
	for _, f := range fields {
		enc, err := v.cipher.Encrypt(f.value, fieldcrypt.ContextCard)
		if err != nil {
			v.logger.Error("card field encryption failed", zap.Int64("account_id", accountID))
			return nil, fmt.Errorf("encrypt card: %w", err)
		}
		*f.dst = enc
	}

	pm := &billing.PaymentMethod{
		AccountID: accountID,
		Type:      billing.PaymentMethodCard,
		Nickname:  strings.TrimSpace(req.Nickname),
		Card:      details,
	}
	if err := v.methods.Create(ctx, pm, wantsDefault(req.Nickname)); err != nil {
		return nil, fmt.Errorf("failed to store card: %w", err)
	}

	v.logger.Info("card added",
		zap.Int64("account_id", accountID),
		zap.Int64("payment_method_id", pm.ID),
		zap.String("brand", details.Brand),
		zap.String("last_four", details.LastFour),
		zap.Bool("is_default", pm.IsDefault),
	)

	return pm.View(), nil
}

// AddBankAccount stores a bank account. Account and routing numbers are encrypted with
// the "bank" context.
func (v *Vault) AddBankAccount(ctx context.Context, accountID int64, req *billing.AddBankAccountRequest) (_ *billing.PaymentMethodView, err error) {
	defer func() { v.observe("add_bank_account", err) }()

	if req == nil {
		return nil, xerrors.Invalid("bank_account", "is required")
	}
	accountNumber := stripSpaces(req.AccountNumber)
	routingNumber := stripSpaces(req.RoutingNumber)
	holder := strings.TrimSpace(req.AccountHolderName)
	accountType := strings.ToLower(strings.TrimSpace(req.AccountType))

	if err := validateAccountNumber(accountNumber); err != nil {
		return nil, err
	}
	if err := validateRoutingNumber(routingNumber); err != nil {
		return nil, err
	}
	if holder == "" {
		return nil, xerrors.Invalid("account_holder_name", "is required")
	}
	if err := validateAccountType(accountType); err != nil {
		return nil, err
	}

	if _, err := v.accounts.FindByID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("account %d: %w", accountID, err)
	}

	encAccount, err := v.cipher.Encrypt(accountNumber, fieldcrypt.ContextBank)
	if err != nil {
		v.logger.Error("bank field encryption failed", zap.Int64("account_id", accountID))
		return nil, fmt.Errorf("encrypt account number: %w", err)
	}
	encRouting, err := v.cipher.Encrypt(routingNumber, fieldcrypt.ContextBank)
	if err != nil {
		v.logger.Error("bank field encryption failed", zap.Int64("account_id", accountID))
		return nil, fmt.Errorf("encrypt routing number: %w", err)
	}

	pm := &billing.PaymentMethod{
		AccountID: accountID,
		Type:      billing.PaymentMethodBankAccount,
		Nickname:  strings.TrimSpace(req.Nickname),
		BankAccount: &billing.BankAccountDetails{
			EncryptedAccountNumber: encAccount,
			EncryptedRoutingNumber: encRouting,
			AccountHolderName:      holder,
			BankName:               strings.TrimSpace(req.BankName),
			AccountType:            accountType,
			AccountLastFour:        lastFour(accountNumber),
			RoutingLastFour:        lastFour(routingNumber),
		},
	}
	if err := v.methods.Create(ctx, pm, wantsDefault(req.Nickname)); err != nil {
		return nil, fmt.Errorf("failed to store bank account: %w", err)
	}

	v.logger.Info("bank account added",
		zap.Int64("account_id", accountID),
		zap.Int64("payment_method_id", pm.ID),
		zap.String("last_four", pm.BankAccount.AccountLastFour),
		zap.Bool("is_default", pm.IsDefault),
	)

	return pm.View(), nil
}

func (v *Vault) SetDefault(ctx context.Context, accountID, paymentMethodID int64) (err error) {
	defer func() { v.observe("set_default", err) }()

	if err := v.methods.SetDefault(ctx, accountID, paymentMethodID); err != nil {
		return fmt.Errorf("set default payment method %d: %w", paymentMethodID, err)
	}
	v.logger.Info("default payment method changed",
		zap.Int64("account_id", accountID),
		zap.Int64("payment_method_id", paymentMethodID),
	)
	return nil
}

// DeletePaymentMethod soft-deletes the method. When it was the default another active
// method is promoted; with none left the account has no default.
func (v *Vault) DeletePaymentMethod(ctx context.Context, accountID, paymentMethodID int64) (err error) {
	defer func() { v.observe("delete", err) }()

	if err := v.methods.Deactivate(ctx, accountID, paymentMethodID); err != nil {
		return fmt.Errorf("delete payment method %d: %w", paymentMethodID, err)
	}
	v.logger.Info("payment method deleted",
		zap.Int64("account_id", accountID),
		zap.Int64("payment_method_id", paymentMethodID),
	)
	return nil
}

func (v *Vault) GetPaymentMethods(ctx context.Context, accountID int64) ([]*billing.PaymentMethodView, error) {
	methods, err := v.methods.ListActive(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	views := make([]*billing.PaymentMethodView, 0, len(methods))
	for i := range methods {
		views = append(views, methods[i].View())
	}
	return views, nil
}

func (v *Vault) GetDefaultPaymentMethod(ctx context.Context, accountID int64) (*billing.PaymentMethodView, error) {
	pm, err := v.methods.FindDefault(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return pm.View(), nil
}

func (v *Vault) GetPaymentMethod(ctx context.Context, accountID, paymentMethodID int64) (*billing.PaymentMethodView, error) {
	pm, err := v.methods.FindByID(ctx, accountID, paymentMethodID)
	if err != nil {
		return nil, err
	}
	return pm.View(), nil
}

func (v *Vault) UpdateNickname(ctx context.Context, accountID, paymentMethodID int64, nickname string) (*billing.PaymentMethodView, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, xerrors.Invalid("nickname", "is required")
	}
	if err := v.methods.UpdateNickname(ctx, accountID, paymentMethodID, nickname); err != nil {
		return nil, fmt.Errorf("update nickname: %w", err)
	}
	return v.GetPaymentMethod(ctx, accountID, paymentMethodID)
}
