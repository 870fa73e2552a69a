package paymentmethod

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"propdesk-service/internal/domain/billing"
	xerrors "propdesk-service/internal/pkg/errors"
	"propdesk-service/internal/pkg/fieldcrypt"
	"propdesk-service/internal/pkg/metrics"
	"propdesk-service/internal/repository/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type vaultFixture struct {
	store     *memory.Store
	vault     *Vault
	cipher    *fieldcrypt.Cipher
	accountID int64
}

func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()
	c, err := fieldcrypt.New("vault-test-secret", fieldcrypt.WithIterations(1000))
	require.NoError(t, err)

	store := memory.NewStore()
	acct := store.AddAccount("acme")
	vault := NewVault(store.Accounts(), store.PaymentMethods(), c, func() time.Time { return fixedNow }, zaptest.NewLogger(t))
	return &vaultFixture{store: store, vault: vault, cipher: c, accountID: acct.ID}
}

func (f *vaultFixture) activeDefaults() int {
	n := 0
	for _, pm := range f.store.StoredPaymentMethods(f.accountID) {
		if pm.IsActive && pm.IsDefault {
			n++
		}
	}
	return n
}

func visaRequest() *billing.AddCardRequest {
	return &billing.AddCardRequest{
		CardNumber:     "4111111111111111",
		ExpiryMonth:    12,
		ExpiryYear:     2030,
		CVV:            "123",
		CardholderName: "Jane Doe",
	}
}

func TestAddCard_VisaScenario(t *testing.T) {
	f := newVaultFixture(t)

	view, err := f.vault.AddCard(context.Background(), f.accountID, visaRequest())
	require.NoError(t, err)

	assert.Equal(t, "visa", view.Brand)
	assert.Equal(t, "1111", view.LastFour)
	assert.Equal(t, billing.PaymentMethodCard, view.Type)
	assert.True(t, view.IsDefault, "first method becomes default")
}

func TestAddCard_StoresOnlyCiphertexts(t *testing.T) {
	f := newVaultFixture(t)

	req := visaRequest()
	req.CardNumber = "4111 1111 1111 1111"
	_, err := f.vault.AddCard(context.Background(), f.accountID, req)
	require.NoError(t, err)

	stored := f.store.StoredPaymentMethods(f.accountID)
	require.Len(t, stored, 1)
	card := stored[0].Card
	require.NotNil(t, card)

	assert.NotContains(t, card.EncryptedNumber, "4111111111111111")
	assert.Len(t, strings.Split(card.EncryptedNumber, ":"), 4)

	number, err := f.cipher.Decrypt(card.EncryptedNumber, fieldcrypt.ContextCard)
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", number)

	month, err := f.cipher.Decrypt(card.EncryptedExpiryMonth, fieldcrypt.ContextCard)
	require.NoError(t, err)
	assert.Equal(t, "12", month)

	year, err := f.cipher.Decrypt(card.EncryptedExpiryYear, fieldcrypt.ContextCard)
	require.NoError(t, err)
	assert.Equal(t, "2030", year)

	cvv, err := f.cipher.Decrypt(card.EncryptedCVV, fieldcrypt.ContextCard)
	require.NoError(t, err)
	assert.Equal(t, "123", cvv)

	_, err = f.cipher.Decrypt(card.EncryptedNumber, fieldcrypt.ContextBilling)
	assert.ErrorIs(t, err, xerrors.ErrDecryption)
}

func TestAddCard_WithoutCVV(t *testing.T) {
	f := newVaultFixture(t)

	req := visaRequest()
	req.CVV = ""
	_, err := f.vault.AddCard(context.Background(), f.accountID, req)
	require.NoError(t, err)

	stored := f.store.StoredPaymentMethods(f.accountID)
	assert.Equal(t, "", stored[0].Card.EncryptedCVV)
}

func TestAddCard_Validation(t *testing.T) {
	cases := map[string]func(r *billing.AddCardRequest){
		"missing number": func(r *billing.AddCardRequest) { r.CardNumber = "" },
		"short number":   func(r *billing.AddCardRequest) { r.CardNumber = "411111111111" },
		"long number":    func(r *billing.AddCardRequest) { r.CardNumber = "41111111111111111111" },
		"letters":        func(r *billing.AddCardRequest) { r.CardNumber = "4111-1111-1111-1111" },
		"bad month":      func(r *billing.AddCardRequest) { r.ExpiryMonth = 13 },
		"expired year":   func(r *billing.AddCardRequest) { r.ExpiryYear = 2025 },
		"expired month":  func(r *billing.AddCardRequest) { r.ExpiryYear, r.ExpiryMonth = 2026, 9 },
		"bad cvv":        func(r *billing.AddCardRequest) { r.CVV = "12" },
		"missing holder": func(r *billing.AddCardRequest) { r.CardholderName = "  " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newVaultFixture(t)
			req := visaRequest()
			mutate(req)

			_, err := f.vault.AddCard(context.Background(), f.accountID, req)
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
			assert.Empty(t, f.store.StoredPaymentMethods(f.accountID))
		})
	}
}

func TestAddCard_CurrentMonthIsValid(t *testing.T) {
	f := newVaultFixture(t)

	req := visaRequest()
	req.ExpiryYear, req.ExpiryMonth = 2026, 10
	_, err := f.vault.AddCard(context.Background(), f.accountID, req)
	assert.NoError(t, err)
}

func TestAddCard_UnknownAccount(t *testing.T) {
	f := newVaultFixture(t)

	_, err := f.vault.AddCard(context.Background(), 9999, visaRequest())
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

type failingCipher struct{}

func (failingCipher) Encrypt(string, string) (string, error) {
	return "", xerrors.ErrEncryption
}

func TestAddCard_EncryptionFailure(t *testing.T) {
	store := memory.NewStore()
	acct := store.AddAccount("acme")
	vault := NewVault(store.Accounts(), store.PaymentMethods(), failingCipher{}, func() time.Time { return fixedNow }, zaptest.NewLogger(t))

	_, err := vault.AddCard(context.Background(), acct.ID, visaRequest())
	assert.ErrorIs(t, err, xerrors.ErrEncryption)
	assert.Empty(t, store.StoredPaymentMethods(acct.ID))
}

func TestDetectBrand(t *testing.T) {
	cases := map[string]string{
		"4111111111111111": BrandVisa,
		"5105105105105100": BrandMastercard,
		"5500000000000004": BrandMastercard,
		"2221000000000009": BrandMastercard,
		"2720990000000007": BrandMastercard,
		"2721000000000000": BrandUnknown,
		"378282246310005":  BrandAmex,
		"341111111111111":  BrandAmex,
		"6011111111111117": BrandDiscover,
		"6500000000000002": BrandDiscover,
		"3530111333300000": BrandUnknown,
		"5600000000000000": BrandUnknown,
	}
	for number, want := range cases {
		assert.Equal(t, want, DetectBrand(number), number)
	}
}

func TestAddCard_DefaultNickname(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	first, err := f.vault.AddCard(ctx, f.accountID, visaRequest())
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	plain := visaRequest()
	plain.Nickname = "Office card"
	second, err := f.vault.AddCard(ctx, f.accountID, plain)
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	flagged := visaRequest()
	flagged.Nickname = "My DEFAULT card"
	third, err := f.vault.AddCard(ctx, f.accountID, flagged)
	require.NoError(t, err)
	assert.True(t, third.IsDefault)

	def, err := f.vault.GetDefaultPaymentMethod(ctx, f.accountID)
	require.NoError(t, err)
	assert.Equal(t, third.ID, def.ID)
	assert.Equal(t, 1, f.activeDefaults())
}

func TestAddBankAccount(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	view, err := f.vault.AddBankAccount(ctx, f.accountID, &billing.AddBankAccountRequest{
		AccountNumber:     "12345678",
		RoutingNumber:     "123456789",
		AccountHolderName: "Jane Doe",
		BankName:          "First Bank",
		AccountType:       "Checking",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentMethodBankAccount, view.Type)
	assert.Equal(t, "5678", view.LastFour)
	assert.Equal(t, "6789", view.RoutingLastFour)
	assert.Equal(t, "First Bank", view.BankName)
	assert.Equal(t, "checking", view.AccountType)
	assert.True(t, view.IsDefault)

	stored := f.store.StoredPaymentMethods(f.accountID)[0].BankAccount
	acctNo, err := f.cipher.Decrypt(stored.EncryptedAccountNumber, fieldcrypt.ContextBank)
	require.NoError(t, err)
	assert.Equal(t, "12345678", acctNo)
	routing, err := f.cipher.Decrypt(stored.EncryptedRoutingNumber, fieldcrypt.ContextBank)
	require.NoError(t, err)
	assert.Equal(t, "123456789", routing)
}

func TestAddBankAccount_Validation(t *testing.T) {
	base := func() *billing.AddBankAccountRequest {
		return &billing.AddBankAccountRequest{AccountNumber: "12345678", RoutingNumber: "123456789", AccountHolderName: "Jane"}
	}
	cases := map[string]func(r *billing.AddBankAccountRequest){
		"short routing":  func(r *billing.AddBankAccountRequest) { r.RoutingNumber = "12345" },
		"long routing":   func(r *billing.AddBankAccountRequest) { r.RoutingNumber = "1234567890" },
		"short account":  func(r *billing.AddBankAccountRequest) { r.AccountNumber = "1234567" },
		"long account":   func(r *billing.AddBankAccountRequest) { r.AccountNumber = "123456789012345678" },
		"alpha account":  func(r *billing.AddBankAccountRequest) { r.AccountNumber = "1234abcd" },
		"missing holder": func(r *billing.AddBankAccountRequest) { r.AccountHolderName = "" },
		"bad type":       func(r *billing.AddBankAccountRequest) { r.AccountType = "brokerage" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newVaultFixture(t)
			req := base()
			mutate(req)

			_, err := f.vault.AddBankAccount(context.Background(), f.accountID, req)
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

			var fe *xerrors.FieldError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestAddBankAccount_StripsWhitespace(t *testing.T) {
	f := newVaultFixture(t)

	_, err := f.vault.AddBankAccount(context.Background(), f.accountID, &billing.AddBankAccountRequest{
		AccountNumber:     "1234 5678",
		RoutingNumber:     " 123 456 789 ",
		AccountHolderName: "Jane",
	})
	assert.NoError(t, err)
}

func TestSetDefault(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	a, err := f.vault.AddCard(ctx, f.accountID, visaRequest())
	require.NoError(t, err)
	b, err := f.vault.AddCard(ctx, f.accountID, visaRequest())
	require.NoError(t, err)

	require.NoError(t, f.vault.SetDefault(ctx, f.accountID, b.ID))

	gotA, err := f.vault.GetPaymentMethod(ctx, f.accountID, a.ID)
	require.NoError(t, err)
	gotB, err := f.vault.GetPaymentMethod(ctx, f.accountID, b.ID)
	require.NoError(t, err)
	assert.False(t, gotA.IsDefault)
	assert.True(t, gotB.IsDefault)

	err = f.vault.SetDefault(ctx, f.accountID, 424242)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
	assert.Equal(t, 1, f.activeDefaults())
}

func TestDeletePaymentMethod(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	a, err := f.vault.AddCard(ctx, f.accountID, visaRequest())
	require.NoError(t, err)
	b, err := f.vault.AddCard(ctx, f.accountID, visaRequest())
	require.NoError(t, err)

	require.NoError(t, f.vault.DeletePaymentMethod(ctx, f.accountID, a.ID))

	def, err := f.vault.GetDefaultPaymentMethod(ctx, f.accountID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID)

	_, err = f.vault.GetPaymentMethod(ctx, f.accountID, a.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	require.NoError(t, f.vault.DeletePaymentMethod(ctx, f.accountID, b.ID))
	_, err = f.vault.GetDefaultPaymentMethod(ctx, f.accountID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	list, err := f.vault.GetPaymentMethods(ctx, f.accountID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, f.vault.DeletePaymentMethod(ctx, f.accountID, b.ID), xerrors.ErrNotFound)
}

func TestUpdateNickname(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	a, err := f.vault.AddCard(ctx, f.accountID, visaRequest())
	require.NoError(t, err)

	view, err := f.vault.UpdateNickname(ctx, f.accountID, a.ID, "  Travel  ")
	require.NoError(t, err)
	assert.Equal(t, "Travel", view.Nickname)

	_, err = f.vault.UpdateNickname(ctx, f.accountID, a.ID, " ")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = f.vault.UpdateNickname(ctx, f.accountID+1, a.ID, "Other")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestAtMostOneDefault_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for run := 0; run < 20; run++ {
		f := newVaultFixture(t)
		var ids []int64

		for step := 0; step < 15; step++ {
			switch op := rng.Intn(4); {
			case op == 0:
				req := visaRequest()
				if rng.Intn(3) == 0 {
					req.Nickname = "default"
				}
				v, err := f.vault.AddCard(ctx, f.accountID, req)
				require.NoError(t, err)
				ids = append(ids, v.ID)
			case op == 1:
				req := &billing.AddBankAccountRequest{AccountNumber: "12345678", RoutingNumber: "123456789", AccountHolderName: "J"}
				if rng.Intn(3) == 0 {
					req.Nickname = "Default payout"
				}
				v, err := f.vault.AddBankAccount(ctx, f.accountID, req)
				require.NoError(t, err)
				ids = append(ids, v.ID)
			case op == 2 && len(ids) > 0:
				_ = f.vault.SetDefault(ctx, f.accountID, ids[rng.Intn(len(ids))])
			case op == 3 && len(ids) > 0:
				_ = f.vault.DeletePaymentMethod(ctx, f.accountID, ids[rng.Intn(len(ids))])
			}

			assert.LessOrEqual(t, f.activeDefaults(), 1)

			list, err := f.vault.GetPaymentMethods(ctx, f.accountID)
			require.NoError(t, err)
			if len(list) > 0 {
				assert.Equal(t, 1, f.activeDefaults(), "active methods must keep a default")
			}
		}
	}
}

func TestAtMostOneDefault_Concurrent(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := visaRequest()
			if i%2 == 0 {
				req.Nickname = "default"
			}
			_, err := f.vault.AddCard(ctx, f.accountID, req)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.activeDefaults())
}

func TestVault_CountsWrites(t *testing.T) {
	f := newVaultFixture(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	f.vault.UseMetrics(m)
	ctx := context.Background()

	view, err := f.vault.AddCard(ctx, f.accountID, visaRequest())
	require.NoError(t, err)
	bad := visaRequest()
	bad.CardNumber = "123"
	_, err = f.vault.AddCard(ctx, f.accountID, bad)
	require.Error(t, err)
	require.NoError(t, f.vault.DeletePaymentMethod(ctx, f.accountID, view.ID))
	require.Error(t, f.vault.SetDefault(ctx, f.accountID, view.ID))

	ops := m.PaymentMethodOpsTotal
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("add_card", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("add_card", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("delete", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("set_default", "not_found")))
}
