package memory

import (
	"context"
	"sort"

	"propdesk-service/internal/domain/billing"
	xerrors "propdesk-service/internal/pkg/errors"
)

type paymentMethodRepo struct {
	s *Store
}

func (r paymentMethodRepo) Create(ctx context.Context, pm *billing.PaymentMethod, makeDefault bool) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[pm.AccountID]; !ok {
		return xerrors.ErrNotFound
	}

	if !makeDefault && s.activeCountLocked(pm.AccountID) == 0 {
		makeDefault = true
	}
	if makeDefault {
		s.clearDefaultsLocked(pm.AccountID)
	}

	now := s.now()
	pm.ID = s.id()
	pm.IsActive = true
	pm.IsDefault = makeDefault
	pm.CreatedAt = now
	pm.UpdatedAt = now

	stored := copyMethod(pm)
	s.paymentMethods[pm.ID] = &stored
	return nil
}

func (r paymentMethodRepo) FindByID(ctx context.Context, accountID, id int64) (*billing.PaymentMethod, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, err := s.ownedActiveLocked(accountID, id)
	if err != nil {
		return nil, err
	}
	cp := copyMethod(pm)
	return &cp, nil
}

func (r paymentMethodRepo) FindDefault(ctx context.Context, accountID int64) (*billing.PaymentMethod, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if pm := s.defaultLocked(accountID); pm != nil {
		cp := copyMethod(pm)
		return &cp, nil
	}
	return nil, xerrors.ErrNotFound
}

func (r paymentMethodRepo) ListActive(ctx context.Context, accountID int64) ([]billing.PaymentMethod, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []billing.PaymentMethod{}
	for _, pm := range s.paymentMethods {
		if pm.AccountID == accountID && pm.IsActive {
			out = append(out, copyMethod(pm))
		}
	}
	// default first, then newest, matching the Postgres ORDER BY
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r paymentMethodRepo) SetDefault(ctx context.Context, accountID, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, err := s.ownedActiveLocked(accountID, id)
	if err != nil {
		return err
	}
	s.clearDefaultsLocked(accountID)
	pm.IsDefault = true
	pm.UpdatedAt = s.now()
	return nil
}

func (r paymentMethodRepo) Deactivate(ctx context.Context, accountID, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, err := s.ownedActiveLocked(accountID, id)
	if err != nil {
		return err
	}

	wasDefault := pm.IsDefault
	now := s.now()
	pm.IsActive = false
	pm.IsDefault = false
	pm.UpdatedAt = now

	if !wasDefault {
		return nil
	}

	var promote *billing.PaymentMethod
	for _, other := range s.paymentMethods {
		if other.AccountID != accountID || !other.IsActive {
			continue
		}
		if promote == nil || other.ID > promote.ID {
			promote = other
		}
	}
	if promote != nil {
		promote.IsDefault = true
		promote.UpdatedAt = now
	}
	return nil
}

func (r paymentMethodRepo) UpdateNickname(ctx context.Context, accountID, id int64, nickname string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, err := s.ownedActiveLocked(accountID, id)
	if err != nil {
		return err
	}
	pm.Nickname = nickname
	pm.UpdatedAt = s.now()
	return nil
}

func (s *Store) ownedActiveLocked(accountID, id int64) (*billing.PaymentMethod, error) {
	pm, ok := s.paymentMethods[id]
	if !ok || pm.AccountID != accountID || !pm.IsActive {
		return nil, xerrors.ErrNotFound
	}
	return pm, nil
}

func (s *Store) activeCountLocked(accountID int64) int {
	n := 0
	for _, pm := range s.paymentMethods {
		if pm.AccountID == accountID && pm.IsActive {
			n++
		}
	}
	return n
}

func (s *Store) defaultLocked(accountID int64) *billing.PaymentMethod {
	for _, pm := range s.paymentMethods {
		if pm.AccountID == accountID && pm.IsActive && pm.IsDefault {
			return pm
		}
	}
	return nil
}

func (s *Store) clearDefaultsLocked(accountID int64) {
	now := s.now()
	for _, pm := range s.paymentMethods {
		if pm.AccountID == accountID && pm.IsDefault {
			pm.IsDefault = false
			pm.UpdatedAt = now
		}
	}
}
