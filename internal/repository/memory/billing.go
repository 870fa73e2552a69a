package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"propdesk-service/internal/domain/billing"
	"propdesk-service/internal/domain/settings"
	xerrors "propdesk-service/internal/pkg/errors"
)

func (s *Store) ListBillableSubscriptions(ctx context.Context, asOf time.Time) ([]billing.BillableSubscription, error) {
	return s.listBillable(asOf, 0)
}

func (s *Store) ListAccountBillableSubscriptions(ctx context.Context, accountID int64, asOf time.Time) ([]billing.BillableSubscription, error) {
	return s.listBillable(asOf, accountID)
}

// listBillable filters by account when accountID is non-zero.
func (s *Store) listBillable(asOf time.Time, accountID int64) ([]billing.BillableSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []billing.BillableSubscription{}
	for _, sub := range s.subscriptions {
		if sub.Status != billing.SubscriptionStatusActive || sub.NextBillingDate.After(asOf) {
			continue
		}
		if accountID != 0 && sub.AccountID != accountID {
			continue
		}
		plan, ok := s.plans[sub.PlanID]
		if !ok || !plan.IsActive {
			continue
		}
		account, ok := s.accounts[sub.AccountID]
		if !ok {
			continue
		}

		b := billing.BillableSubscription{
			Subscription:  *sub,
			Plan:          *plan,
			Account:       *account,
			PropertyCount: s.propertyCountLocked(sub.UserID),
		}
		if pm := s.defaultLocked(sub.AccountID); pm != nil {
			cp := copyMethod(pm)
			b.DefaultPaymentMethod = &cp
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subscription.ID < out[j].Subscription.ID })
	return out, nil
}

func (s *Store) RecordChargeSuccess(ctx context.Context, o *billing.ChargeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[o.SubscriptionID]
	if !ok {
		return xerrors.ErrNotFound
	}
	account, ok := s.accounts[o.AccountID]
	if !ok {
		return xerrors.ErrNotFound
	}
	if !sub.NextBillingDate.Equal(o.DueDate) {
		return xerrors.ErrStale
	}
	for _, l := range s.logs {
		if l.Status == billing.PaymentStatusSuccess && l.IdempotencyKey == o.Log.IdempotencyKey {
			return xerrors.ErrConflict
		}
	}

	sub.NextBillingDate = o.NextBillingDate
	sub.BillingCycleEnd = o.BillingCycleEnd
	account.IsOnHold = false
	account.LastBillingDate = sql.NullTime{Time: o.BilledAt, Valid: true}
	account.UpdatedAt = s.now()

	s.appendLogLocked(o.Log)
	return nil
}

func (s *Store) RecordChargeFailure(ctx context.Context, o *billing.ChargeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[o.SubscriptionID]
	if !ok {
		return xerrors.ErrNotFound
	}
	account, ok := s.accounts[o.AccountID]
	if !ok {
		return xerrors.ErrNotFound
	}
	if !sub.NextBillingDate.Equal(o.DueDate) {
		return xerrors.ErrStale
	}

	account.IsOnHold = true
	account.UpdatedAt = s.now()
	for _, u := range s.users {
		if u.AccountID == o.AccountID {
			u.IsOnHold = true
		}
	}
	for _, p := range s.properties {
		if p.AccountID == o.AccountID {
			p.IsOnHold = true
		}
	}

	s.appendLogLocked(o.Log)
	return nil
}

func (s *Store) ListPaymentLogs(ctx context.Context, accountID int64, limit int) ([]billing.PaymentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []billing.PaymentLog{}
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].AccountID != accountID {
			continue
		}
		out = append(out, s.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) appendLogLocked(l billing.PaymentLog) {
	l.ID = s.id()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	s.logs = append(s.logs, l)
}

func (s *Store) propertyCountLocked(userID int64) int {
	n := 0
	for _, p := range s.properties {
		if p.UserID == userID {
			n++
		}
	}
	return n
}

// ---- settings.Repository ----

type settingsRepo struct {
	s *Store
}

func (r settingsRepo) Find(ctx context.Context, accountID int64) (*settings.BankSettings, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	bs, ok := s.bankSettings[accountID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *bs
	return &cp, nil
}

func (r settingsRepo) Upsert(ctx context.Context, bs *settings.BankSettings) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[bs.AccountID]; !ok {
		return xerrors.ErrNotFound
	}
	bs.UpdatedAt = s.now()
	cp := *bs
	s.bankSettings[bs.AccountID] = &cp
	return nil
}
