package memory

import (
	"context"
	"fmt"
	"time"

	"payment-service/internal/domain"
	"payment-service/pkg/xerrors"
)

type TransactionRepo struct {
	s *Store
}

func (r *TransactionRepo) Record(ctx context.Context, t *domain.Transaction) (*domain.Transaction, bool, error) {
	if err := t.Validate(); err != nil {
		return nil, false, err
	}
	if t.Status == "" {
		t.Status = domain.TxPending
	}
	if t.Status != domain.TxPending && t.Status != domain.TxCompleted {
		return nil, false, fmt.Errorf("%w: transactions are recorded pending or completed", xerrors.ErrInvalidRequest)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if t.Reference != nil {
		if existingID, ok := r.s.txByRef[*t.Reference]; ok {
			return copyTransaction(r.s.transactions[existingID]), false, nil
		}
	}

	stored := copyTransaction(t)
	if stored.ID == "" {
		stored.ID = r.s.ids.NewID()
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if stored.Status == domain.TxCompleted {
		if err := r.s.applyBalanceChangesLocked(stored); err != nil {
			return nil, false, err
		}
	}

	r.s.transactions[stored.ID] = stored
	if stored.Reference != nil {
		r.s.txByRef[*stored.Reference] = stored.ID
	}
	return copyTransaction(stored), true, nil
}

func (r *TransactionRepo) Transition(ctx context.Context, id string, status domain.TransactionStatus, reason string) (*domain.Transaction, bool, error) {
	if !status.IsTerminal() {
		return nil, false, fmt.Errorf("%w: transactions only transition to terminal states", xerrors.ErrInvalidRequest)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.transactions[id]
	if !ok {
		return nil, false, fmt.Errorf("transaction: %w", xerrors.ErrNotFound)
	}
	if t.Status == status {
		return copyTransaction(t), false, nil
	}
	if t.Status.IsTerminal() {
		return copyTransaction(t), false, fmt.Errorf("transaction %s -> %s: %w", t.Status, status, xerrors.ErrInvalidStateTransition)
	}

	applied := false
	if status == domain.TxCompleted {
		if err := r.s.applyBalanceChangesLocked(t); err != nil {
			return nil, false, err
		}
		applied = true
	}
	t.Status = status
	t.FailureReason = reason
	t.UpdatedAt = time.Now()
	return copyTransaction(t), applied, nil
}

func (s *Store) applyBalanceChangesLocked(t *domain.Transaction) error {
	changes, err := t.BalanceChanges()
	if err != nil {
		return err
	}
	for _, c := range changes {
		w, ok := s.wallets[c.WalletID]
		if !ok {
			return fmt.Errorf("wallet: %w", xerrors.ErrNotFound)
		}
		if c.FromPending {
			if w.PendingBalance.Add(c.Delta).IsNegative() {
				return fmt.Errorf("wallet %s: %w", w.ID, xerrors.ErrInsufficientFunds)
			}
			w.PendingBalance = w.PendingBalance.Add(c.Delta)
		} else {
			if w.Status != domain.WalletActive {
				return fmt.Errorf("wallet %s: %w", w.ID, xerrors.ErrWalletNotActive)
			}
			if w.AvailableBalance.Add(c.Delta).IsNegative() {
				return fmt.Errorf("wallet %s: %w", w.ID, xerrors.ErrInsufficientFunds)
			}
			w.AvailableBalance = w.AvailableBalance.Add(c.Delta)
		}
		w.Balance = w.Balance.Add(c.Delta)
		w.UpdatedAt = time.Now()
	}
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction: %w", xerrors.ErrNotFound)
	}
	return copyTransaction(t), nil
}

func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.txByRef[reference]
	if !ok {
		return nil, fmt.Errorf("transaction: %w", xerrors.ErrNotFound)
	}
	return copyTransaction(r.s.transactions[id]), nil
}

func (r *TransactionRepo) List(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	f.Normalize()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []*domain.Transaction
	for _, t := range r.s.transactions {
		if f.UserID != "" && t.UserID != f.UserID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.ProjectID != "" && (t.ProjectID == nil || *t.ProjectID != f.ProjectID) {
			continue
		}
		if f.EscrowID != "" && (t.EscrowID == nil || *t.EscrowID != f.EscrowID) {
			continue
		}
		if f.Reference != "" && (t.Reference == nil || *t.Reference != f.Reference) {
			continue
		}
		if f.From != nil && t.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && t.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, copyTransaction(t))
	}

	sortNewestFirst(matched, func(t *domain.Transaction) time.Time { return t.CreatedAt })
	total := len(matched)
	return paginate(matched, f.Page, f.Limit), total, nil
}
