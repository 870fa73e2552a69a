package settings

import (
	"context"
	"errors"
	"testing"

	"propdesk-service/internal/domain/settings"
	xerrors "propdesk-service/internal/pkg/errors"
	"propdesk-service/internal/pkg/fieldcrypt"
	"propdesk-service/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newService(t *testing.T) (*BankSettingsService, *memory.Store, int64, *fieldcrypt.Cipher, *observer.ObservedLogs) {
	t.Helper()
	c, err := fieldcrypt.New("settings-secret", fieldcrypt.WithIterations(1000))
	require.NoError(t, err)
	store := memory.NewStore()
	acct := store.AddAccount("acme")
	core, logs := observer.New(zapcore.DebugLevel)
	return NewBankSettingsService(store.Settings(), c, zap.New(core)), store, acct.ID, c, logs
}

func TestSaveAndGetBankSettings(t *testing.T) {
	svc, store, accountID, c, _ := newService(t)
	ctx := context.Background()

	saved, err := svc.SaveBankSettings(ctx, accountID, &settings.UpdateBankSettingsRequest{
		AccountHolderName: "Jane Doe",
		BankName:          "First Bank",
		AccountType:       "savings",
		AccountNumber:     "12345678",
		RoutingNumber:     "123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "12345678", saved.AccountNumber)

	raw, err := store.Settings().Find(ctx, accountID)
	require.NoError(t, err)
	assert.NotEqual(t, "12345678", raw.EncryptedAccountNumber)
	plain, err := c.Decrypt(raw.EncryptedAccountNumber, fieldcrypt.ContextBilling)
	require.NoError(t, err)
	assert.Equal(t, "12345678", plain)
	_, err = c.Decrypt(raw.EncryptedAccountNumber, fieldcrypt.ContextBank)
	assert.ErrorIs(t, err, xerrors.ErrDecryption)

	got, err := svc.GetBankSettings(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.AccountHolderName)
	assert.Equal(t, "savings", got.AccountType)
	assert.Equal(t, "12345678", got.AccountNumber)
	assert.Equal(t, "123456789", got.RoutingNumber)
	assert.NotNil(t, got.UpdatedAt)
}

func TestSaveBankSettings_KeepsStoredNumbers(t *testing.T) {
	svc, _, accountID, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SaveBankSettings(ctx, accountID, &settings.UpdateBankSettingsRequest{
		AccountNumber: "12345678",
		RoutingNumber: "123456789",
	})
	require.NoError(t, err)

	got, err := svc.SaveBankSettings(ctx, accountID, &settings.UpdateBankSettingsRequest{BankName: "Second Bank"})
	require.NoError(t, err)
	assert.Equal(t, "Second Bank", got.BankName)
	assert.Equal(t, "12345678", got.AccountNumber)
	assert.Equal(t, "123456789", got.RoutingNumber)
}

func TestGetBankSettings_DecryptFailureFallsBackToEmpty(t *testing.T) {
	svc, store, accountID, _, logs := newService(t)
	ctx := context.Background()

	forged := "00:11:22:33"
	require.NoError(t, store.Settings().Upsert(ctx, &settings.BankSettings{
		AccountID:              accountID,
		BankName:               "First Bank",
		EncryptedAccountNumber: forged,
		EncryptedRoutingNumber: "not-a-ciphertext",
	}))

	got, err := svc.GetBankSettings(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "First Bank", got.BankName)
	assert.Empty(t, got.AccountNumber)
	assert.Empty(t, got.RoutingNumber)

	warnings := logs.FilterMessage("bank settings field could not be decrypted").All()
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		for _, f := range w.Context {
			assert.NotContains(t, f.String, forged)
		}
	}
}

func TestGetBankSettings_NoRow(t *testing.T) {
	svc, _, accountID, _, _ := newService(t)

	got, err := svc.GetBankSettings(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, &settings.BankSettingsResponse{}, got)
}

func TestSaveBankSettings_Validation(t *testing.T) {
	svc, _, accountID, _, _ := newService(t)
	ctx := context.Background()

	for name, req := range map[string]*settings.UpdateBankSettingsRequest{
		"routing":      {RoutingNumber: "12345"},
		"account":      {AccountNumber: "123"},
		"account type": {AccountType: "brokerage"},
	} {
		_, err := svc.SaveBankSettings(ctx, accountID, req)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput, name)
	}

	_, err := svc.SaveBankSettings(ctx, 999, &settings.UpdateBankSettingsRequest{BankName: "x"})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

type brokenCipher struct{}

func (brokenCipher) Encrypt(string, string) (string, error) { return "", xerrors.ErrEncryption }
func (brokenCipher) Decrypt(string, string) (string, error) { return "", xerrors.ErrDecryption }

func TestSaveBankSettings_EncryptionFailure(t *testing.T) {
	store := memory.NewStore()
	acct := store.AddAccount("acme")
	svc := NewBankSettingsService(store.Settings(), brokenCipher{}, zap.NewNop())

	_, err := svc.SaveBankSettings(context.Background(), acct.ID, &settings.UpdateBankSettingsRequest{AccountNumber: "12345678"})
	assert.True(t, errors.Is(err, xerrors.ErrEncryption))

	_, err = store.Settings().Find(context.Background(), acct.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}
