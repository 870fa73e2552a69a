// Command billing runs one billing cycle and exits. Without --as-of it behaves like the
// scheduled job and only bills on the first day of the month.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propdesk-service/internal/app"
	"propdesk-service/internal/config"
	"propdesk-service/internal/domain/billing"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	asOf := flag.String("as-of", "", "bill everything due at this RFC3339 time or YYYY-MM-DD date, ignoring the first-of-month gate")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("[BILLING] No .env file found, relying on system env vars")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.BillingRunTimeout)
	defer cancel()

	deps, err := app.BuildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer deps.Close()

	var summary *billing.RunSummary
	if *asOf != "" {
		at, perr := parseAsOf(*asOf)
		if perr != nil {
			logger.Fatal("invalid --as-of", zap.Error(perr))
		}
		summary, err = deps.Processor.RunCycle(ctx, at)
	} else {
		summary, err = deps.Processor.Run(ctx)
	}
	if err != nil {
		logger.Error("billing run failed", zap.Error(err))
		deps.Close()
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("billing run finished",
		zap.Time("as_of", summary.AsOf),
		zap.Bool("skipped", summary.Skipped),
		zap.Int("due", summary.Due),
		zap.Int("charged", summary.Charged),
		zap.Int("failed", summary.Failed),
		zap.Int("no_payment_method", summary.NoMethod),
		zap.Int("locked", summary.Locked),
		zap.Int("already_billed", summary.AlreadyBilled),
		zap.Int("errored", summary.Errored),
		zap.String("collected", summary.Collected.StringFixed(2)),
	)
}

func parseAsOf(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
