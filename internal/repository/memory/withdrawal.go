package memory

import (
	"context"
	"fmt"
	"time"

	"payment-service/internal/domain"
	"payment-service/pkg/xerrors"
)

type WithdrawalRepo struct {
	s *Store
}

func (r *WithdrawalRepo) Create(ctx context.Context, w *domain.Withdrawal) (*domain.Withdrawal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := copyWithdrawal(w)
	if stored.ID == "" {
		stored.ID = r.s.ids.NewID()
	}
	now := time.Now()
	stored.Status = domain.WithdrawalPending
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.s.withdrawals[stored.ID] = stored
	return copyWithdrawal(stored), nil
}

func (r *WithdrawalRepo) GetByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal: %w", xerrors.ErrNotFound)
	}
	return copyWithdrawal(w), nil
}

func (r *WithdrawalRepo) MarkProcessing(ctx context.Context, id string) (*domain.Withdrawal, error) {
	return r.transition(ctx, id, domain.WithdrawalPending, func(w *domain.Withdrawal) {
		w.Status = domain.WithdrawalProcessing
	})
}

func (r *WithdrawalRepo) Complete(ctx context.Context, id, externalRef, transactionID string) (*domain.Withdrawal, error) {
	return r.transition(ctx, id, domain.WithdrawalProcessing, func(w *domain.Withdrawal) {
		now := time.Now()
		w.Status = domain.WithdrawalCompleted
		w.ExternalReference = &externalRef
		w.TransactionID = &transactionID
		w.ProcessedAt = &now
	})
}

func (r *WithdrawalRepo) Fail(ctx context.Context, id, reason string) (*domain.Withdrawal, error) {
	return r.transition(ctx, id, domain.WithdrawalProcessing, func(w *domain.Withdrawal) {
		w.Status = domain.WithdrawalFailed
		w.RejectionReason = reason
	})
}

func (r *WithdrawalRepo) Cancel(ctx context.Context, id string) (*domain.Withdrawal, error) {
	return r.transition(ctx, id, domain.WithdrawalPending, func(w *domain.Withdrawal) {
		w.Status = domain.WithdrawalCancelled
	})
}

func (r *WithdrawalRepo) SetReference(ctx context.Context, id, externalRef string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.withdrawals[id]
	if !ok {
		return fmt.Errorf("withdrawal %s: %w", id, xerrors.ErrNotFound)
	}
	w.ExternalReference = &externalRef
	w.UpdatedAt = time.Now()
	return nil
}

func (r *WithdrawalRepo) transition(ctx context.Context, id string, from domain.WithdrawalStatus, apply func(*domain.Withdrawal)) (*domain.Withdrawal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	w, ok := r.s.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal: %w", xerrors.ErrNotFound)
	}
	if w.Status != from {
		return nil, fmt.Errorf("withdrawal is %s: %w", w.Status, xerrors.ErrInvalidStateTransition)
	}
	apply(w)
	w.UpdatedAt = time.Now()
	return copyWithdrawal(w), nil
}

func (r *WithdrawalRepo) List(ctx context.Context, f domain.WithdrawalFilter) ([]*domain.Withdrawal, int, error) {
	f.Normalize()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []*domain.Withdrawal
	for _, w := range r.s.withdrawals {
		if f.UserID != "" && w.UserID != f.UserID {
			continue
		}
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		if f.From != nil && w.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && w.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, copyWithdrawal(w))
	}

	sortNewestFirst(matched, func(w *domain.Withdrawal) time.Time { return w.CreatedAt })
	total := len(matched)
	return paginate(matched, f.Page, f.Limit), total, nil
}
