// internal/app/router.go
package app

import (
	billingHandler "propdesk-service/internal/handlers/billing"
	paymentMethodHandler "propdesk-service/internal/handlers/paymentmethod"
	settingsHandler "propdesk-service/internal/handlers/settings"
	"propdesk-service/internal/middleware"
	"propdesk-service/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Handlers struct {
	PaymentMethodHandler *paymentMethodHandler.PaymentMethodHandler
	SettingsHandler      *settingsHandler.SettingsHandler
	BillingHandler       *billingHandler.BillingHandler
	AuthMiddleware       *middleware.AuthMiddleware

	// MethodWriteLimit guards the add-card and add-bank-account routes. Optional.
	MethodWriteLimit gin.HandlerFunc
}

func SetupRouter(r *gin.Engine, h *Handlers, gatherer prometheus.Gatherer) {
	r.GET("/metrics", metrics.Handler(gatherer))

	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Pricing (public) ====================
	pricing := api.Group("/pricing")
	{
		pricing.GET("/tiers", h.BillingHandler.ListTiers)
		pricing.GET("/quote", h.BillingHandler.Quote)
	}

	// ==================== Payment Methods ====================
	methods := api.Group("/payment-methods")
	methods.Use(h.AuthMiddleware.Auth())
	addMethod := []gin.HandlerFunc{}
	if h.MethodWriteLimit != nil {
		addMethod = append(addMethod, h.MethodWriteLimit)
	}
	{
		methods.GET("", h.PaymentMethodHandler.ListPaymentMethods)
		methods.GET("/default", h.PaymentMethodHandler.GetDefaultPaymentMethod)
		methods.GET("/:id", h.PaymentMethodHandler.GetPaymentMethod)
		methods.POST("/cards", append(addMethod, h.PaymentMethodHandler.AddCard)...)
		methods.POST("/bank-accounts", append(addMethod, h.PaymentMethodHandler.AddBankAccount)...)
		methods.PUT("/:id/default", h.PaymentMethodHandler.SetDefault)
		methods.PUT("/:id/nickname", h.PaymentMethodHandler.UpdateNickname)
		methods.DELETE("/:id", h.PaymentMethodHandler.DeletePaymentMethod)
	}

	// ==================== Settings ====================
	settings := api.Group("/settings")
	settings.Use(h.AuthMiddleware.Auth())
	{
		settings.GET("/billing", h.SettingsHandler.GetBillingSettings)
		settings.PUT("/billing", h.SettingsHandler.UpdateBillingSettings)
	}

	// ==================== Billing ====================
	billing := api.Group("/billing")
	billing.Use(h.AuthMiddleware.Auth())
	{
		billing.GET("/payment-logs", h.BillingHandler.ListPaymentLogs)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.POST("/billing/run", h.BillingHandler.RunBilling)
	}
}
