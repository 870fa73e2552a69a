// internal/handlers/billing/billing_handler.go
package billing

import (
	"net/http"
	"strconv"
	"time"

	"propdesk-service/internal/middleware"
	"propdesk-service/internal/pkg/response"
	service "propdesk-service/internal/service/billing"
	"propdesk-service/internal/service/pricing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BillingHandler struct {
	processor *service.Processor
	resolver  *pricing.Resolver
	now       func() time.Time
	logger    *zap.Logger
}

func NewBillingHandler(processor *service.Processor, resolver *pricing.Resolver, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{
		processor: processor,
		resolver:  resolver,
		now:       time.Now,
		logger:    logger,
	}
}

// ========== Pricing (public) ==========

func (h *BillingHandler) ListTiers(c *gin.Context) {
	response.Success(c, http.StatusOK, "pricing tiers retrieved", h.resolver.Tiers())
}

func (h *BillingHandler) Quote(c *gin.Context) {
	n, err := strconv.Atoi(c.Query("properties"))
	if err != nil || n < 0 {
		response.ValidationError(c, "properties must be a non-negative integer", nil)
		return
	}

	response.Success(c, http.StatusOK, "quote computed", h.resolver.Quote(n))
}

// ========== Account ==========

func (h *BillingHandler) ListPaymentLogs(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.Unauthorized(c, "account not found in token")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}

	result, err := h.processor.PaymentLogs(c.Request.Context(), accountID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "payment logs retrieved", result)
}

// ========== Admin ==========

// RunBilling bills everything due now, bypassing the first-of-month gate.
func (h *BillingHandler) RunBilling(c *gin.Context) {
	identityID, _ := middleware.GetIdentityID(c)
	h.logger.Info("manual billing run requested", zap.Int64("identity_id", identityID))

	summary, err := h.processor.RunCycle(c.Request.Context(), h.now().UTC())
	if err != nil {
		h.logger.Error("manual billing run failed", zap.Error(err))
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "billing run completed", summary)
}
