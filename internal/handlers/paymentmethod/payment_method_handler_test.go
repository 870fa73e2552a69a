package paymentmethod

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"propdesk-service/internal/domain/billing"
	"propdesk-service/internal/middleware"
	"propdesk-service/internal/pkg/fieldcrypt"
	"propdesk-service/internal/pkg/jwt"
	"propdesk-service/internal/pkg/response"
	"propdesk-service/internal/repository/memory"
	service "propdesk-service/internal/service/paymentmethod"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type verifierFunc func(string) (*jwt.Claims, error)

func (f verifierFunc) VerifyAccessToken(token string) (*jwt.Claims, error) { return f(token) }

// tokens are "acct-<id>"
var testVerifier = verifierFunc(func(token string) (*jwt.Claims, error) {
	var id int64
	if _, err := fmt.Sscanf(token, "acct-%d", &id); err != nil {
		return nil, errors.New("bad token")
	}
	return &jwt.Claims{IdentityID: 100 + id, AccountID: id}, nil
})

func setup(t *testing.T) (*gin.Engine, int64) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c, err := fieldcrypt.New("handler-secret", fieldcrypt.WithIterations(1000))
	require.NoError(t, err)
	store := memory.NewStore()
	acct := store.AddAccount("acme")
	now := func() time.Time { return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC) }
	h := NewPaymentMethodHandler(service.NewVault(store.Accounts(), store.PaymentMethods(), c, now, zap.NewNop()))

	r := gin.New()
	pm := r.Group("/payment-methods", middleware.NewAuthMiddleware(testVerifier).Auth())
	pm.GET("", h.ListPaymentMethods)
	pm.GET("/default", h.GetDefaultPaymentMethod)
	pm.GET("/:id", h.GetPaymentMethod)
	pm.POST("/cards", h.AddCard)
	pm.POST("/bank-accounts", h.AddBankAccount)
	pm.PUT("/:id/default", h.SetDefault)
	pm.PUT("/:id/nickname", h.UpdateNickname)
	pm.DELETE("/:id", h.DeletePaymentMethod)
	return r, acct.ID
}

func call(r http.Handler, method, path string, accountID int64, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accountID > 0 {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer acct-%d", accountID))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) billing.PaymentMethodView {
	t.Helper()
	var env struct {
		response.Response
		Data billing.PaymentMethodView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

var visa = map[string]interface{}{
	"card_number":     "4111111111111111",
	"expiry_month":    12,
	"expiry_year":     2030,
	"cvv":             "123",
	"cardholder_name": "Jane Doe",
}

func TestAddCard(t *testing.T) {
	r, accountID := setup(t)

	w := call(r, http.MethodPost, "/payment-methods/cards", accountID, visa)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	view := decodeView(t, w)
	assert.Equal(t, "visa", view.Brand)
	assert.Equal(t, "1111", view.LastFour)
	assert.True(t, view.IsDefault)
	assert.NotContains(t, w.Body.String(), "4111111111111111")
	assert.NotContains(t, w.Body.String(), "encrypted")
}

func TestAddCard_ValidationIs400(t *testing.T) {
	r, accountID := setup(t)

	bad := map[string]interface{}{}
	for k, v := range visa {
		bad[k] = v
	}
	bad["card_number"] = "4111"

	w := call(r, http.MethodPost, "/payment-methods/cards", accountID, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "card_number")
	assert.NotContains(t, w.Body.String(), `"4111"`)
}

func TestAddCard_MalformedBodyDoesNotEchoInput(t *testing.T) {
	r, accountID := setup(t)

	w := call(r, http.MethodPost, "/payment-methods/cards", accountID, map[string]interface{}{"card_number": 4111111111111111})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "4111111111111111")
}

func TestBankAccountRoutingValidation(t *testing.T) {
	r, accountID := setup(t)

	ok := call(r, http.MethodPost, "/payment-methods/bank-accounts", accountID, map[string]string{
		"account_number": "12345678", "routing_number": "123456789", "account_holder_name": "Jane",
	})
	assert.Equal(t, http.StatusCreated, ok.Code)

	bad := call(r, http.MethodPost, "/payment-methods/bank-accounts", accountID, map[string]string{
		"account_number": "12345678", "routing_number": "12345", "account_holder_name": "Jane",
	})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestDefaultLifecycle(t *testing.T) {
	r, accountID := setup(t)

	first := decodeView(t, call(r, http.MethodPost, "/payment-methods/cards", accountID, visa))
	second := decodeView(t, call(r, http.MethodPost, "/payment-methods/cards", accountID, visa))
	assert.False(t, second.IsDefault)

	w := call(r, http.MethodPut, fmt.Sprintf("/payment-methods/%d/default", second.ID), accountID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	def := decodeView(t, call(r, http.MethodGet, "/payment-methods/default", accountID, nil))
	assert.Equal(t, second.ID, def.ID)

	w = call(r, http.MethodDelete, fmt.Sprintf("/payment-methods/%d", second.ID), accountID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	def = decodeView(t, call(r, http.MethodGet, "/payment-methods/default", accountID, nil))
	assert.Equal(t, first.ID, def.ID)

	w = call(r, http.MethodGet, "/payment-methods", accountID, nil)
	var list struct {
		Data []billing.PaymentMethodView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)
}

func TestNickname(t *testing.T) {
	r, accountID := setup(t)
	pm := decodeView(t, call(r, http.MethodPost, "/payment-methods/cards", accountID, visa))

	w := call(r, http.MethodPut, fmt.Sprintf("/payment-methods/%d/nickname", pm.ID), accountID, map[string]string{"nickname": "Office"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Office", decodeView(t, w).Nickname)

	w = call(r, http.MethodPut, fmt.Sprintf("/payment-methods/%d/nickname", pm.ID), accountID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOtherAccountsMethodsAre404(t *testing.T) {
	r, accountID := setup(t)
	pm := decodeView(t, call(r, http.MethodPost, "/payment-methods/cards", accountID, visa))

	other := accountID + 1000
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, fmt.Sprintf("/payment-methods/%d", pm.ID), other, nil).Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodDelete, fmt.Sprintf("/payment-methods/%d", pm.ID), other, nil).Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, "/payment-methods/default", other, nil).Code)
}

func TestBadIDAndMissingToken(t *testing.T) {
	r, accountID := setup(t)

	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodGet, "/payment-methods/abc", accountID, nil).Code)
	w := call(r, http.MethodGet, "/payment-methods", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "missing authorization token"))
}
