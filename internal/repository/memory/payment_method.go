package memory

import (
	"context"
	"fmt"
	"time"

	"payment-service/internal/domain"
	"payment-service/pkg/xerrors"
)

type PaymentMethodRepo struct {
	s *Store
}

func (r *PaymentMethodRepo) Create(ctx context.Context, m *domain.PaymentMethod) (*domain.PaymentMethod, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := copyMethod(m)
	if stored.ID == "" {
		stored.ID = r.s.ids.NewID()
	}
	if stored.Status == "" {
		stored.Status = domain.MethodPendingVerify
	}
	now := time.Now()
	stored.IsDefault = false
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.s.methods[stored.ID] = stored
	return copyMethod(stored), nil
}

func (r *PaymentMethodRepo) GetByID(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.methods[id]
	if !ok {
		return nil, fmt.Errorf("payment method: %w", xerrors.ErrNotFound)
	}
	return copyMethod(m), nil
}

func (r *PaymentMethodRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.methods {
		if m.ExternalID == externalID {
			return copyMethod(m), nil
		}
	}
	return nil, fmt.Errorf("payment method: %w", xerrors.ErrNotFound)
}

func (r *PaymentMethodRepo) ListByUser(ctx context.Context, userID string) ([]*domain.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.PaymentMethod
	for _, m := range r.s.methods {
		if m.UserID == userID {
			out = append(out, copyMethod(m))
		}
	}
	sortNewestFirst(out, func(m *domain.PaymentMethod) time.Time { return m.CreatedAt })
	return out, nil
}

func (r *PaymentMethodRepo) UpdateStatus(ctx context.Context, id string, status domain.PaymentMethodStatus, details *domain.MethodDetails) (*domain.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.methods[id]
	if !ok {
		return nil, fmt.Errorf("payment method: %w", xerrors.ErrNotFound)
	}
	m.Status = status
	if details != nil {
		m.Details = *details
	}
	m.UpdatedAt = time.Now()
	return copyMethod(m), nil
}

func (r *PaymentMethodRepo) SetDefault(ctx context.Context, userID, id string) (*domain.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	target, ok := r.s.methods[id]
	if !ok || target.UserID != userID {
		return nil, fmt.Errorf("payment method: %w", xerrors.ErrNotFound)
	}
	for _, m := range r.s.methods {
		if m.UserID == userID {
			m.IsDefault = false
		}
	}
	target.IsDefault = true
	target.UpdatedAt = time.Now()
	return copyMethod(target), nil
}
