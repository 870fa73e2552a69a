// Package memory is an in-process implementation of the billing and settings
// repositories. It backs STORAGE_DRIVER=memory for local runs and the service tests.
// A single mutex gives every operation the same atomicity the Postgres transactions do.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"propdesk-service/internal/domain/billing"
	"propdesk-service/internal/domain/settings"
	xerrors "propdesk-service/internal/pkg/errors"
)

type User struct {
	ID        int64
	AccountID int64
	IsOnHold  bool
}

type Property struct {
	ID        int64
	AccountID int64
	UserID    int64
	IsOnHold  bool
}

type Store struct {
	mu sync.Mutex

	nextID int64

	accounts       map[int64]*billing.Account
	users          map[int64]*User
	properties     map[int64]*Property
	plans          map[int64]*billing.SubscriptionPlan
	subscriptions  map[int64]*billing.Subscription
	paymentMethods map[int64]*billing.PaymentMethod
	logs           []billing.PaymentLog
	bankSettings   map[int64]*settings.BankSettings

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		accounts:       make(map[int64]*billing.Account),
		users:          make(map[int64]*User),
		properties:     make(map[int64]*Property),
		plans:          make(map[int64]*billing.SubscriptionPlan),
		subscriptions:  make(map[int64]*billing.Subscription),
		paymentMethods: make(map[int64]*billing.PaymentMethod),
		bankSettings:   make(map[int64]*settings.BankSettings),
		now:            time.Now,
	}
}

// SetClock replaces the time source used for created/updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// ---- seeding (local dev fixtures and tests) ----

func (s *Store) AddAccount(name string) *billing.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	a := &billing.Account{ID: s.id(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.accounts[a.ID] = a
	cp := *a
	return &cp
}

func (s *Store) AddUser(accountID int64) *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := &User{ID: s.id(), AccountID: accountID}
	s.users[u.ID] = u
	cp := *u
	return &cp
}

func (s *Store) AddProperties(accountID, userID int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < n; i++ {
		p := &Property{ID: s.id(), AccountID: accountID, UserID: userID}
		s.properties[p.ID] = p
	}
}

func (s *Store) AddPlan(plan billing.SubscriptionPlan) *billing.SubscriptionPlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan.ID = s.id()
	s.plans[plan.ID] = &plan
	cp := plan
	return &cp
}

func (s *Store) AddSubscription(sub billing.Subscription) *billing.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub.ID = s.id()
	s.subscriptions[sub.ID] = &sub
	cp := sub
	return &cp
}

// ---- inspection ----

func (s *Store) Account(id int64) (billing.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return billing.Account{}, false
	}
	return *a, true
}

func (s *Store) Subscription(id int64) (billing.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return billing.Subscription{}, false
	}
	return *sub, true
}

func (s *Store) UsersOf(accountID int64) []User {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []User
	for _, u := range s.users {
		if u.AccountID == accountID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) PropertiesOf(accountID int64) []Property {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Property
	for _, p := range s.properties {
		if p.AccountID == accountID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StoredPaymentMethods returns every method of the account, including inactive ones.
func (s *Store) StoredPaymentMethods(accountID int64) []billing.PaymentMethod {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []billing.PaymentMethod
	for _, pm := range s.paymentMethods {
		if pm.AccountID == accountID {
			out = append(out, copyMethod(pm))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- billing.AccountRepository ----

func (s *Store) FindByID(ctx context.Context, id int64) (*billing.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) SetStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	a.StripeCustomerID = sql.NullString{String: customerID, Valid: customerID != ""}
	a.UpdatedAt = s.now()
	return nil
}

// Accounts exposes the account half of the store under the billing.AccountRepository name.
func (s *Store) Accounts() billing.AccountRepository { return s }

// PaymentMethods exposes the payment-method half of the store.
func (s *Store) PaymentMethods() billing.PaymentMethodRepository { return paymentMethodRepo{s} }

// Billing exposes the billing half of the store.
func (s *Store) Billing() billing.BillingRepository { return s }

// Settings exposes the bank-settings half of the store.
func (s *Store) Settings() settings.Repository { return settingsRepo{s} }

func copyMethod(pm *billing.PaymentMethod) billing.PaymentMethod {
	cp := *pm
	if pm.Card != nil {
		card := *pm.Card
		cp.Card = &card
	}
	if pm.BankAccount != nil {
		bank := *pm.BankAccount
		cp.BankAccount = &bank
	}
	return cp
}
