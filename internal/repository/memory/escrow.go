package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"payment-service/internal/domain"
	"payment-service/pkg/xerrors"
)

type EscrowRepo struct {
	s *Store
}

func (r *EscrowRepo) Create(ctx context.Context, e *domain.Escrow) (*domain.Escrow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := copyEscrow(e)
	if stored.ID == "" {
		stored.ID = r.s.ids.NewID()
	}
	for i := range stored.Milestones {
		if stored.Milestones[i].ID == "" {
			stored.Milestones[i].ID = r.s.ids.NewID()
		}
		if stored.Milestones[i].Status == "" {
			stored.Milestones[i].Status = domain.MilestonePending
		}
	}
	if err := stored.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	stored.Status = domain.EscrowPending
	stored.FundedAmount = decimal.Zero
	stored.ReleasedAmount = decimal.Zero
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.s.escrows[stored.ID] = stored
	return copyEscrow(stored), nil
}

func (r *EscrowRepo) GetByID(ctx context.Context, id string) (*domain.Escrow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.escrows[id]
	if !ok {
		return nil, fmt.Errorf("escrow: %w", xerrors.ErrNotFound)
	}
	return copyEscrow(e), nil
}

func (r *EscrowRepo) ListByProject(ctx context.Context, projectID string) ([]*domain.Escrow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Escrow
	for _, e := range r.s.escrows {
		if e.ProjectID == projectID {
			out = append(out, copyEscrow(e))
		}
	}
	sortNewestFirst(out, func(e *domain.Escrow) time.Time { return e.CreatedAt })
	return out, nil
}

func (r *EscrowRepo) AddFunds(ctx context.Context, id string, amount decimal.Decimal) (*domain.Escrow, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: funding amount must be positive", xerrors.ErrInvalidRequest)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.escrows[id]
	if !ok {
		return nil, fmt.Errorf("escrow: %w", xerrors.ErrNotFound)
	}
	if e.Status != domain.EscrowPending {
		if e.Status == domain.EscrowFunded {
			return nil, fmt.Errorf("escrow %s: %w", id, xerrors.ErrEscrowAlreadyFunded)
		}
		return nil, fmt.Errorf("escrow %s is %s: %w", id, e.Status, xerrors.ErrInvalidStateTransition)
	}
	if e.FundedAmount.Add(amount).GreaterThan(e.TotalAmount) {
		return nil, fmt.Errorf("%w: amount exceeds the remaining escrow total", xerrors.ErrInvalidRequest)
	}

	e.FundedAmount = e.FundedAmount.Add(amount)
	if e.FullyFunded() {
		e.Status = domain.EscrowFunded
	}
	e.UpdatedAt = time.Now()
	return copyEscrow(e), nil
}

func (r *EscrowRepo) ApproveMilestone(ctx context.Context, escrowID, milestoneID string, releasedAt time.Time) (*domain.Escrow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.escrows[escrowID]
	if !ok {
		return nil, fmt.Errorf("escrow: %w", xerrors.ErrNotFound)
	}
	if e.Status != domain.EscrowFunded {
		return nil, fmt.Errorf("escrow %s is %s: %w", escrowID, e.Status, xerrors.ErrEscrowNotFunded)
	}
	m := e.Milestone(milestoneID)
	if m == nil {
		return nil, fmt.Errorf("milestone %s: %w", milestoneID, xerrors.ErrMilestoneNotFound)
	}
	if m.Status == domain.MilestoneApproved {
		return nil, fmt.Errorf("milestone %s: %w", milestoneID, xerrors.ErrMilestoneAlreadyApproved)
	}

	m.Status = domain.MilestoneApproved
	released := releasedAt
	m.ReleasedAt = &released

	sum := decimal.Zero
	for _, ms := range e.Milestones {
		if ms.Status == domain.MilestoneApproved {
			sum = sum.Add(ms.Amount)
		}
	}
	e.ReleasedAmount = sum
	if e.AllMilestonesApproved() {
		e.Status = domain.EscrowReleased
	}
	e.UpdatedAt = time.Now()
	return copyEscrow(e), nil
}

func (r *EscrowRepo) UpdateStatus(ctx context.Context, id string, status domain.EscrowStatus) (*domain.Escrow, error) {
	if status != domain.EscrowRefunded && status != domain.EscrowDisputed {
		return nil, fmt.Errorf("escrow status override to %s: %w", status, xerrors.ErrInvalidStateTransition)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.escrows[id]
	if !ok {
		return nil, fmt.Errorf("escrow: %w", xerrors.ErrNotFound)
	}
	switch e.Status {
	case domain.EscrowPending, domain.EscrowFunded, domain.EscrowDisputed:
		e.Status = status
		e.UpdatedAt = time.Now()
		return copyEscrow(e), nil
	}
	return nil, fmt.Errorf("escrow %s is %s: %w", id, e.Status, xerrors.ErrInvalidStateTransition)
}
