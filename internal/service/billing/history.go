// internal/service/billing/history.go
package billing

import (
	"context"
	"fmt"

	"propdesk-service/internal/domain/billing"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// PaymentLogs returns the account's charge history, newest first.
func (p *Processor) PaymentLogs(ctx context.Context, accountID int64, limit int) (*billing.PaymentLogListResponse, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	logs, err := p.repo.ListPaymentLogs(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment logs: %w", err)
	}
	return &billing.PaymentLogListResponse{Logs: logs, Total: len(logs)}, nil
}
