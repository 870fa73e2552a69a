// internal/gateway/sandbox.go
package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"propdesk-service/internal/domain/billing"
	xerrors "propdesk-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	customerPrefix = "cus_"
	intentPrefix   = "pi_"

	DeclineReason = "card_declined"
)

// Sandbox is an in-process PaymentGateway. It issues ULID-based references, replays a
// successful result for a repeated idempotency key and declines charges for configured
// accounts. Declines are not stored, so a retry with the same key is decided again.
type Sandbox struct {
	mu       sync.Mutex
	decline  map[int64]bool
	results  map[string]billing.ChargeResult
	charges  []billing.ChargeRequest
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
	logger   *zap.Logger
	failWith error
}

func NewSandbox(declineAccounts []int64, logger *zap.Logger) *Sandbox {
	s := &Sandbox{
		decline: make(map[int64]bool, len(declineAccounts)),
		results: make(map[string]billing.ChargeResult),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
		logger:  logger,
	}
	for _, id := range declineAccounts {
		s.decline[id] = true
	}
	return s
}

// Decline makes every later charge for the account fail.
func (s *Sandbox) Decline(accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decline[accountID] = true
}

// Approve removes the account from the decline list.
func (s *Sandbox) Approve(accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.decline, accountID)
}

// FailTransport makes calls return err, as a network failure would. nil restores normal behaviour.
func (s *Sandbox) FailTransport(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Charges returns every request that reached the gateway, replays excluded.
func (s *Sandbox) Charges() []billing.ChargeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]billing.ChargeRequest, len(s.charges))
	copy(out, s.charges)
	return out
}

func (s *Sandbox) CreateCustomer(ctx context.Context, account *billing.Account) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return "", fmt.Errorf("%w: %v", xerrors.ErrPaymentGateway, s.failWith)
	}
	id := customerPrefix + strings.ToLower(s.newID())
	s.logger.Info("sandbox customer created",
		zap.Int64("account_id", account.ID),
		zap.String("customer_id", id),
	)
	return id, nil
}

func (s *Sandbox) Charge(ctx context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrPaymentGateway, s.failWith)
	}
	if req.IdempotencyKey != "" {
		if prev, ok := s.results[req.IdempotencyKey]; ok {
			s.logger.Debug("sandbox charge replayed", zap.String("idempotency_key", req.IdempotencyKey))
			res := prev
			return &res, nil
		}
	}
	if req.CustomerID == "" {
		return nil, xerrors.Invalid("customer_id", "is required")
	}
	if req.Amount.LessThan(decimal.Zero) {
		return nil, xerrors.Invalid("amount", "must not be negative")
	}

	s.charges = append(s.charges, req)

	res := billing.ChargeResult{Success: true, PaymentIntentID: intentPrefix + strings.ToLower(s.newID())}
	if s.decline[req.AccountID] {
		res = billing.ChargeResult{Success: false, Error: DeclineReason}
	}
	if res.Success && req.IdempotencyKey != "" {
		s.results[req.IdempotencyKey] = res
	}

	s.logger.Info("sandbox charge",
		zap.Int64("account_id", req.AccountID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("currency", req.Currency),
		zap.Bool("success", res.Success),
	)
	return &res, nil
}

func (s *Sandbox) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}
