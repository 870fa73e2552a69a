// internal/handlers/paymentmethod/payment_method_handler.go
package paymentmethod

import (
	"net/http"
	"strconv"

	"propdesk-service/internal/domain/billing"
	"propdesk-service/internal/middleware"
	"propdesk-service/internal/pkg/response"
	service "propdesk-service/internal/service/paymentmethod"

	"github.com/gin-gonic/gin"
)

type PaymentMethodHandler struct {
	vault *service.Vault
}

func NewPaymentMethodHandler(vault *service.Vault) *PaymentMethodHandler {
	return &PaymentMethodHandler{vault: vault}
}

// ListPaymentMethods returns the caller's active payment methods, default first
func (h *PaymentMethodHandler) ListPaymentMethods(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}

	methods, err := h.vault.GetPaymentMethods(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "payment methods retrieved", methods)
}

func (h *PaymentMethodHandler) GetDefaultPaymentMethod(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}

	pm, err := h.vault.GetDefaultPaymentMethod(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "default payment method retrieved", pm)
}

func (h *PaymentMethodHandler) GetPaymentMethod(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}
	id, ok := paymentMethodID(c)
	if !ok {
		return
	}

	pm, err := h.vault.GetPaymentMethod(c.Request.Context(), accountID, id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "payment method retrieved", pm)
}

func (h *PaymentMethodHandler) AddCard(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}

	var req billing.AddCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// binding errors echo field values, which may be card data
		response.ValidationError(c, "invalid request body", nil)
		return
	}

	pm, err := h.vault.AddCard(c.Request.Context(), accountID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "card added", pm)
}

func (h *PaymentMethodHandler) AddBankAccount(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}

	var req billing.AddBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", nil)
		return
	}

	pm, err := h.vault.AddBankAccount(c.Request.Context(), accountID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "bank account added", pm)
}

func (h *PaymentMethodHandler) SetDefault(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}
	id, ok := paymentMethodID(c)
	if !ok {
		return
	}

	if err := h.vault.SetDefault(c.Request.Context(), accountID, id); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "default payment method updated", nil)
}

func (h *PaymentMethodHandler) UpdateNickname(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}
	id, ok := paymentMethodID(c)
	if !ok {
		return
	}

	var req billing.UpdateNicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	pm, err := h.vault.UpdateNickname(c.Request.Context(), accountID, id, req.Nickname)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "nickname updated", pm)
}

func (h *PaymentMethodHandler) DeletePaymentMethod(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}
	id, ok := paymentMethodID(c)
	if !ok {
		return
	}

	if err := h.vault.DeletePaymentMethod(c.Request.Context(), accountID, id); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "payment method deleted", nil)
}

func paymentMethodID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ValidationError(c, "invalid payment method ID", nil)
		return 0, false
	}
	return id, true
}
