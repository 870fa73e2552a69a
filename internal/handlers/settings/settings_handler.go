// internal/handlers/settings/settings_handler.go
package settings

import (
	"net/http"

	"propdesk-service/internal/domain/settings"
	"propdesk-service/internal/middleware"
	"propdesk-service/internal/pkg/response"
	service "propdesk-service/internal/service/settings"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	bankSettings *service.BankSettingsService
}

func NewSettingsHandler(bankSettings *service.BankSettingsService) *SettingsHandler {
	return &SettingsHandler{bankSettings: bankSettings}
}

func (h *SettingsHandler) GetBillingSettings(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}

	result, err := h.bankSettings.GetBankSettings(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "billing settings retrieved", result)
}

func (h *SettingsHandler) UpdateBillingSettings(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}

	var req settings.UpdateBankSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", nil)
		return
	}

	result, err := h.bankSettings.SaveBankSettings(c.Request.Context(), accountID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "billing settings updated", result)
}
