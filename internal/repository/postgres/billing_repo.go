// internal/repository/postgres/billing_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"propdesk-service/internal/domain/billing"
	xerrors "propdesk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type BillingRepository struct {
	db *DB
}

func NewBillingRepository(db *DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// ListBillableSubscriptions returns active subscriptions due on or before asOf, joined
// with their plan, account, default payment method and the user's property count.
func (r *BillingRepository) ListBillableSubscriptions(ctx context.Context, asOf time.Time) ([]billing.BillableSubscription, error) {
	return r.listBillable(ctx, asOf, nil)
}

func (r *BillingRepository) ListAccountBillableSubscriptions(ctx context.Context, accountID int64, asOf time.Time) ([]billing.BillableSubscription, error) {
	return r.listBillable(ctx, asOf, &accountID)
}

// listBillable filters by account when accountID is set.
func (r *BillingRepository) listBillable(ctx context.Context, asOf time.Time, accountID *int64) ([]billing.BillableSubscription, error) {
	query := `
		SELECT
			s.id, s.account_id, s.user_id, s.plan_id, s.status, s.billing_cycle_end, s.next_billing_date,
			p.id, p.name, p.base_price, p.min_properties, p.max_properties, p.is_active,
			a.id, a.name, a.is_on_hold, a.stripe_customer_id, a.last_billing_date, a.created_at, a.updated_at,
			(SELECT COUNT(*) FROM properties pr WHERE pr.user_id = s.user_id),
			` + methodColumns("pm") + `
		FROM subscriptions s
		JOIN subscription_plans p ON p.id = s.plan_id AND p.is_active
		JOIN accounts a ON a.id = s.account_id
		LEFT JOIN payment_methods pm ON pm.account_id = s.account_id AND pm.is_default AND pm.is_active
		WHERE s.status = $1 AND s.next_billing_date <= $2
		  AND ($3::BIGINT IS NULL OR s.account_id = $3)
		ORDER BY s.id
	`

	rows, err := r.db.Pool().Query(ctx, query, billing.SubscriptionStatusActive, asOf, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list billable subscriptions: %w", err)
	}
	defer rows.Close()

	out := []billing.BillableSubscription{}
	for rows.Next() {
		var b billing.BillableSubscription
		var method methodRow
		s, p, a := &b.Subscription, &b.Plan, &b.Account

		dest := []any{
			&s.ID, &s.AccountID, &s.UserID, &s.PlanID, &s.Status, &s.BillingCycleEnd, &s.NextBillingDate,
			&p.ID, &p.Name, &p.BasePrice, &p.MinProperties, &p.MaxProperties, &p.IsActive,
			&a.ID, &a.Name, &a.IsOnHold, &a.StripeCustomerID, &a.LastBillingDate, &a.CreatedAt, &a.UpdatedAt,
			&b.PropertyCount,
		}
		if err := rows.Scan(append(dest, method.dest()...)...); err != nil {
			return nil, fmt.Errorf("failed to scan billable subscription: %w", err)
		}
		b.DefaultPaymentMethod = method.toDomain()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BillingRepository) RecordChargeSuccess(ctx context.Context, o *billing.ChargeOutcome) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	result, err := tx.Exec(ctx, `
		UPDATE subscriptions SET next_billing_date = $1, billing_cycle_end = $2, updated_at = $3
		WHERE id = $4 AND next_billing_date = $5`,
		o.NextBillingDate, o.BillingCycleEnd, now, o.SubscriptionID, o.DueDate,
	)
	if err != nil {
		return fmt.Errorf("failed to advance subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("subscription %d no longer due on %s: %w", o.SubscriptionID, o.DueDate.Format(time.DateOnly), xerrors.ErrStale)
	}

	result, err = tx.Exec(ctx, `
		UPDATE accounts SET is_on_hold = FALSE, last_billing_date = $1, updated_at = $2
		WHERE id = $3`,
		o.BilledAt, now, o.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear account hold: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	if err := insertPaymentLog(ctx, tx, &o.Log); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit charge success: %w", err)
	}
	return nil
}

func (r *BillingRepository) RecordChargeFailure(ctx context.Context, o *billing.ChargeOutcome) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	// locks the subscription row and checks it is still at the billed period
	result, err := tx.Exec(ctx,
		`UPDATE subscriptions SET updated_at = $1 WHERE id = $2 AND next_billing_date = $3`,
		now, o.SubscriptionID, o.DueDate,
	)
	if err != nil {
		return fmt.Errorf("failed to lock subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("subscription %d no longer due on %s: %w", o.SubscriptionID, o.DueDate.Format(time.DateOnly), xerrors.ErrStale)
	}

	result, err = tx.Exec(ctx,
		`UPDATE accounts SET is_on_hold = TRUE, updated_at = $1 WHERE id = $2`,
		now, o.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to hold account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET is_on_hold = TRUE, updated_at = $1 WHERE account_id = $2`,
		now, o.AccountID,
	); err != nil {
		return fmt.Errorf("failed to hold users: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE properties SET is_on_hold = TRUE, updated_at = $1 WHERE account_id = $2`,
		now, o.AccountID,
	); err != nil {
		return fmt.Errorf("failed to hold properties: %w", err)
	}

	if err := insertPaymentLog(ctx, tx, &o.Log); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit charge failure: %w", err)
	}
	return nil
}

// ListPaymentLogs returns the newest logs first. limit <= 0 returns all of them.
func (r *BillingRepository) ListPaymentLogs(ctx context.Context, accountID int64, limit int) ([]billing.PaymentLog, error) {
	query := `
		SELECT id, account_id, subscription_id, amount, currency, status,
		       COALESCE(gateway_reference, ''), idempotency_key, description,
		       COALESCE(failure_reason, ''), created_at
		FROM payment_logs
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`
	if limit < 0 {
		limit = 0
	}

	rows, err := r.db.Pool().Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment logs: %w", err)
	}
	defer rows.Close()

	logs := []billing.PaymentLog{}
	for rows.Next() {
		var l billing.PaymentLog
		if err := rows.Scan(
			&l.ID, &l.AccountID, &l.SubscriptionID, &l.Amount, &l.Currency, &l.Status,
			&l.GatewayReference, &l.IdempotencyKey, &l.Description,
			&l.FailureReason, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func insertPaymentLog(ctx context.Context, tx pgx.Tx, l *billing.PaymentLog) error {
	query := `
		INSERT INTO payment_logs (
			account_id, subscription_id, amount, currency, status,
			gateway_reference, idempotency_key, description, failure_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))
		RETURNING id, created_at
	`
	var createdAt *time.Time
	if !l.CreatedAt.IsZero() {
		createdAt = &l.CreatedAt
	}

	err := tx.QueryRow(ctx, query,
		l.AccountID, l.SubscriptionID, l.Amount, l.Currency, l.Status,
		nullable(l.GatewayReference), l.IdempotencyKey, l.Description, nullable(l.FailureReason), createdAt,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return mapWriteError("failed to insert payment log", err)
	}
	return nil
}
