// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"propdesk-service/internal/config"
	billingHandler "propdesk-service/internal/handlers/billing"
	paymentMethodHandler "propdesk-service/internal/handlers/paymentmethod"
	settingsHandler "propdesk-service/internal/handlers/settings"
	"propdesk-service/internal/middleware"
	"propdesk-service/internal/pkg/jwt"
	billingsvc "propdesk-service/internal/service/billing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg       config.AppConfig
	engine    *gin.Engine
	http      *http.Server
	logger    *zap.Logger
	deps      *Deps
	scheduler *billingsvc.Scheduler
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Setup wires storage, services, handlers and routes. It must succeed before Start.
func (s *Server) Setup(ctx context.Context) error {
	deps, err := BuildDeps(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.deps = deps

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		deps.Close()
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Scheduler -----
	s.scheduler, err = billingsvc.NewScheduler(deps.Processor, s.cfg.BillingCron, s.cfg.BillingRunTimeout, s.logger.Named("scheduler"))
	if err != nil {
		deps.Close()
		return err
	}

	// ----- Handlers -----
	methodLimit := middleware.RateLimit(deps.Limiter, "payment_methods", s.cfg.MethodRateLimit, s.cfg.MethodRateWindow, s.logger)
	handlers := &Handlers{
		PaymentMethodHandler: paymentMethodHandler.NewPaymentMethodHandler(deps.Vault),
		SettingsHandler:      settingsHandler.NewSettingsHandler(deps.Bank),
		BillingHandler:       billingHandler.NewBillingHandler(deps.Processor, deps.Resolver, s.logger.Named("billing")),
		AuthMiddleware:       middleware.NewAuthMiddleware(verifier),
		MethodWriteLimit:     methodLimit,
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.RequestLogger(s.logger),
		deps.Metrics.GinMiddleware(),
	)

	// ----- Router -----
	SetupRouter(s.engine, handlers, deps.Registry)

	s.http = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Start runs the scheduler and serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.scheduler.Start()

	s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP, waits for a running billing tick and closes storage.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.scheduler != nil {
		s.scheduler.Stop(ctx)
	}
	if s.deps != nil {
		s.deps.Close()
	}
	return errors.Join(errs...)
}
