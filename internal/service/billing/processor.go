// internal/service/billing/processor.go
package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"propdesk-service/internal/domain/billing"
	xerrors "propdesk-service/internal/pkg/errors"
	"propdesk-service/internal/pkg/lock"
	"propdesk-service/internal/pkg/metrics"
	"propdesk-service/internal/service/pricing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type PricingPolicy string

const (
	// PolicyPlan charges plan.BasePrice per property; the tier is frozen when the plan is assigned.
	PolicyPlan PricingPolicy = "plan"
	// PolicyTiered re-resolves the tier from the current property count every cycle.
	PolicyTiered PricingPolicy = "tiered"
)

func ParsePricingPolicy(s string) (PricingPolicy, error) {
	switch PricingPolicy(s) {
	case "", PolicyPlan:
		return PolicyPlan, nil
	case PolicyTiered:
		return PolicyTiered, nil
	}
	return "", xerrors.Invalid("pricing_policy", fmt.Sprintf("unknown policy %q", s))
}

type Config struct {
	Concurrency int
	Policy      PricingPolicy
	Currency    string
	LockTTL     time.Duration
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// Processor runs the monthly billing cycle. It is the only writer of Account.IsOnHold.
type Processor struct {
	repo     billing.BillingRepository
	accounts billing.AccountRepository
	gateway  billing.PaymentGateway
	resolver *pricing.Resolver
	locker   lock.Locker
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

func NewProcessor(
	repo billing.BillingRepository,
	accounts billing.AccountRepository,
	gateway billing.PaymentGateway,
	resolver *pricing.Resolver,
	locker lock.Locker,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyPlan
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if resolver == nil {
		resolver = pricing.NewResolver()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}

	p := &Processor{
		repo:     repo,
		accounts: accounts,
		gateway:  gateway,
		resolver: resolver,
		locker:   locker,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run bills due subscriptions on the first day of the month (UTC) and is a no-op on
// every other day, so it can be triggered daily.
func (p *Processor) Run(ctx context.Context) (*billing.RunSummary, error) {
	now := p.now().UTC()
	if now.Day() != 1 {
		p.logger.Debug("billing run skipped, not the first of the month", zap.Time("now", now))
		p.countRun("skipped")
		return &billing.RunSummary{AsOf: now, Skipped: true, Collected: decimal.Zero}, nil
	}
	return p.RunCycle(ctx, now)
}

// RunCycle bills every subscription due at asOf regardless of the date.
func (p *Processor) RunCycle(ctx context.Context, asOf time.Time) (*billing.RunSummary, error) {
	start := time.Now()
	summary := &billing.RunSummary{AsOf: asOf, Collected: decimal.Zero}

	due, err := p.repo.ListBillableSubscriptions(ctx, asOf)
	if err != nil {
		p.countRun("error")
		return nil, fmt.Errorf("failed to load billable subscriptions: %w", err)
	}
	summary.Due = len(due)

	p.logger.Info("billing run started",
		zap.Time("as_of", asOf),
		zap.Int("due", len(due)),
		zap.String("policy", string(p.cfg.Policy)),
	)

	counts := &tally{summary: summary}
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for _, group := range groupByAccount(due) {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.billAccount(ctx, asOf, group, counts)
			return nil
		})
	}
	_ = g.Wait()

	if p.metrics != nil {
		p.metrics.BillingRunDuration.Observe(time.Since(start).Seconds())
	}
	if err := ctx.Err(); err != nil {
		p.countRun("error")
		p.logger.Warn("billing run interrupted", zap.Error(err))
		return summary, err
	}
	p.countRun("completed")

	p.logger.Info("billing run finished",
		zap.Int("due", summary.Due),
		zap.Int("charged", summary.Charged),
		zap.Int("failed", summary.Failed),
		zap.Int("no_payment_method", summary.NoMethod),
		zap.Int("locked", summary.Locked),
		zap.Int("already_billed", summary.AlreadyBilled),
		zap.Int("errored", summary.Errored),
		zap.String("collected", summary.Collected.StringFixed(2)),
		zap.Duration("took", time.Since(start)),
	)
	return summary, nil
}

type accountGroup struct {
	accountID int64
	subs      []billing.BillableSubscription
}

func groupByAccount(due []billing.BillableSubscription) []accountGroup {
	idx := map[int64]int{}
	var groups []accountGroup
	for _, b := range due {
		i, ok := idx[b.Account.ID]
		if !ok {
			i = len(groups)
			idx[b.Account.ID] = i
			groups = append(groups, accountGroup{accountID: b.Account.ID})
		}
		groups[i].subs = append(groups[i].subs, b)
	}
	for _, g := range groups {
		sort.Slice(g.subs, func(a, b int) bool { return g.subs[a].Subscription.ID < g.subs[b].Subscription.ID })
	}
	return groups
}

type result int

const (
	resultCharged result = iota
	resultFailed
	resultNoMethod
	resultAlreadyBilled
)

type tally struct {
	mu      sync.Mutex
	summary *billing.RunSummary
}

func (t *tally) add(fn func(s *billing.RunSummary)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.summary)
}

// billAccount charges one account's subscriptions sequentially under the account lock.
// The group was read before the lock was taken, so the account's due list and gateway
// customer are read again once it is held.
func (p *Processor) billAccount(ctx context.Context, asOf time.Time, group accountGroup, t *tally) {
	log := p.logger.With(zap.Int64("account_id", group.accountID))

	lease, err := p.locker.Acquire(ctx, lock.AccountKey(group.accountID), p.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, xerrors.ErrLockHeld) {
			log.Info("account locked by another billing worker, skipping")
			if p.metrics != nil {
				p.metrics.BillingLockContention.Inc()
			}
			t.add(func(s *billing.RunSummary) { s.Locked += len(group.subs) })
			return
		}
		log.Error("failed to acquire account lock", zap.Error(err))
		t.add(func(s *billing.RunSummary) { s.Errored += len(group.subs) })
		return
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release account lock", zap.Error(err))
		}
	}()

	subs, err := p.repo.ListAccountBillableSubscriptions(ctx, group.accountID, asOf)
	if err != nil {
		log.Error("failed to reload due subscriptions", zap.Error(err))
		t.add(func(s *billing.RunSummary) { s.Errored += len(group.subs) })
		return
	}
	subs = stillDue(group.subs, subs)
	if gone := len(group.subs) - len(subs); gone > 0 {
		log.Info("subscriptions already billed by another run", zap.Int("count", gone))
		t.add(func(s *billing.RunSummary) { s.AlreadyBilled += gone })
	}
	if len(subs) == 0 {
		return
	}

	account, err := p.accounts.FindByID(ctx, group.accountID)
	if err != nil {
		log.Error("failed to reload account", zap.Error(err))
		t.add(func(s *billing.RunSummary) { s.Errored += len(subs) })
		return
	}
	customerID := account.StripeCustomerID.String

	for i := range subs {
		if ctx.Err() != nil {
			return
		}
		b := &subs[i]
		res, amount, err := p.billSubscription(ctx, b, &customerID)
		if err != nil {
			log.Error("subscription billing failed",
				zap.Int64("subscription_id", b.Subscription.ID),
				zap.Error(err),
			)
			t.add(func(s *billing.RunSummary) { s.Errored++ })
			continue
		}
		t.add(func(s *billing.RunSummary) {
			switch res {
			case resultCharged:
				s.Charged++
				s.Collected = s.Collected.Add(amount)
			case resultFailed:
				s.Failed++
			case resultNoMethod:
				s.NoMethod++
			case resultAlreadyBilled:
				s.AlreadyBilled++
			}
		})
	}
}

// stillDue keeps the fresh rows whose subscription was part of the original group.
func stillDue(group, fresh []billing.BillableSubscription) []billing.BillableSubscription {
	want := make(map[int64]bool, len(group))
	for _, b := range group {
		want[b.Subscription.ID] = true
	}
	out := fresh[:0]
	for _, b := range fresh {
		if want[b.Subscription.ID] {
			out = append(out, b)
		}
	}
	return out
}

func (p *Processor) billSubscription(ctx context.Context, b *billing.BillableSubscription, customerID *string) (result, decimal.Decimal, error) {
	sub := b.Subscription
	log := p.logger.With(
		zap.Int64("account_id", b.Account.ID),
		zap.Int64("subscription_id", sub.ID),
	)

	if b.DefaultPaymentMethod == nil || !b.DefaultPaymentMethod.IsActive {
		log.Warn("no active default payment method, skipping subscription")
		return resultNoMethod, decimal.Zero, nil
	}

	amount := p.Amount(b)
	key := IdempotencyKey(b.Account.ID, sub.ID, sub.NextBillingDate)
	billedAt := p.now().UTC()

	entry := billing.PaymentLog{
		AccountID:      b.Account.ID,
		SubscriptionID: sub.ID,
		Amount:         amount,
		Currency:       p.cfg.Currency,
		IdempotencyKey: key,
		Description:    describe(b, sub.NextBillingDate),
		CreatedAt:      billedAt,
	}
	outcome := &billing.ChargeOutcome{
		SubscriptionID: sub.ID,
		AccountID:      b.Account.ID,
		DueDate:        sub.NextBillingDate,
		BilledAt:       billedAt,
	}

	var chargeRes *billing.ChargeResult
	if amount.IsZero() {
		chargeRes = &billing.ChargeResult{Success: true}
	} else {
		if *customerID == "" {
			id, err := p.gateway.CreateCustomer(ctx, &b.Account)
			if err != nil {
				return 0, decimal.Zero, fmt.Errorf("create gateway customer: %w", err)
			}
			if err := p.accounts.SetStripeCustomerID(ctx, b.Account.ID, id); err != nil {
				return 0, decimal.Zero, fmt.Errorf("save gateway customer: %w", err)
			}
			*customerID = id
			log.Info("gateway customer created")
		}

		res, err := p.gateway.Charge(ctx, billing.ChargeRequest{
			AccountID:      b.Account.ID,
			CustomerID:     *customerID,
			Amount:         amount,
			Currency:       p.cfg.Currency,
			Description:    entry.Description,
			IdempotencyKey: key,
		})
		if err != nil {
			if ctx.Err() != nil {
				return 0, decimal.Zero, ctx.Err()
			}
			res = &billing.ChargeResult{Success: false, Error: err.Error()}
		}
		chargeRes = res
	}

	if chargeRes.Success {
		outcome.NextBillingDate = addMonth(sub.NextBillingDate)
		outcome.BillingCycleEnd = addMonth(sub.BillingCycleEnd)
		entry.Status = billing.PaymentStatusSuccess
		entry.GatewayReference = chargeRes.PaymentIntentID
		outcome.Log = entry

		if err := p.repo.RecordChargeSuccess(ctx, outcome); err != nil {
			if alreadyBilled(err) {
				log.Info("subscription already billed by another run")
				return resultAlreadyBilled, decimal.Zero, nil
			}
			return 0, decimal.Zero, fmt.Errorf("record charge success: %w", err)
		}
		p.countCharge(billing.PaymentStatusSuccess, amount)
		log.Info("subscription charged",
			zap.String("amount", amount.StringFixed(2)),
			zap.String("payment_intent_id", chargeRes.PaymentIntentID),
			zap.Bool("was_on_hold", b.Account.IsOnHold),
		)
		return resultCharged, amount, nil
	}

	reason := chargeRes.Error
	if reason == "" {
		reason = xerrors.ErrPaymentGateway.Error()
	}
	entry.Status = billing.PaymentStatusFailure
	entry.FailureReason = reason
	outcome.NextBillingDate = sub.NextBillingDate
	outcome.BillingCycleEnd = sub.BillingCycleEnd
	outcome.Log = entry

	if err := p.repo.RecordChargeFailure(ctx, outcome); err != nil {
		if alreadyBilled(err) {
			log.Info("subscription already billed by another run")
			return resultAlreadyBilled, decimal.Zero, nil
		}
		return 0, decimal.Zero, fmt.Errorf("record charge failure: %w", err)
	}
	p.countCharge(billing.PaymentStatusFailure, amount)
	if p.metrics != nil {
		p.metrics.BillingAccountsOnHold.Inc()
	}
	log.Warn("subscription charge failed, account placed on hold",
		zap.String("amount", amount.StringFixed(2)),
		zap.String("reason", reason),
	)
	return resultFailed, decimal.Zero, nil
}

// alreadyBilled reports a write-back rejected because another run recorded the period.
func alreadyBilled(err error) bool {
	return errors.Is(err, xerrors.ErrStale) || errors.Is(err, xerrors.ErrConflict)
}

// Amount is the monthly charge for the subscription under the configured policy.
func (p *Processor) Amount(b *billing.BillableSubscription) decimal.Decimal {
	count := decimal.NewFromInt(int64(b.PropertyCount))
	if p.cfg.Policy == PolicyTiered {
		return p.resolver.ResolveTier(b.PropertyCount).BasePrice.Mul(count)
	}
	return b.Plan.BasePrice.Mul(count)
}

// addMonth moves t one calendar month forward, clamping to the last day of the target
// month so Jan 31 becomes Feb 28 instead of Mar 3.
func addMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	hh, mm, ss := t.Clock()
	return time.Date(y, m+1, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// IdempotencyKey scopes a charge to one account, subscription and billing month.
func IdempotencyKey(accountID, subscriptionID int64, due time.Time) string {
	return fmt.Sprintf("acct-%d-sub-%d-%s", accountID, subscriptionID, due.UTC().Format("2006-01"))
}

func describe(b *billing.BillableSubscription, due time.Time) string {
	return fmt.Sprintf("%s subscription %s (%d properties)", b.Plan.Name, due.UTC().Format("2006-01"), b.PropertyCount)
}

func (p *Processor) countRun(outcome string) {
	if p.metrics != nil {
		p.metrics.BillingRunsTotal.WithLabelValues(outcome).Inc()
	}
}

func (p *Processor) countCharge(status billing.PaymentStatus, amount decimal.Decimal) {
	if p.metrics == nil {
		return
	}
	p.metrics.BillingChargesTotal.WithLabelValues(string(status)).Inc()
	if status == billing.PaymentStatusSuccess {
		p.metrics.BillingCollectedTotal.WithLabelValues(p.cfg.Currency).Add(amount.InexactFloat64())
	}
}
