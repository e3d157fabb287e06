package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"payment-service/pkg/xerrors"
)

type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowFunded   EscrowStatus = "funded"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
	EscrowDisputed EscrowStatus = "disputed"
)

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneApproved   MilestoneStatus = "approved"
)

// Milestone is a sub-deliverable with its own amount, released independently
// once approved. Approval happens at most once and only while the escrow is
// funded.
type Milestone struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	Status     MilestoneStatus `json:"status"`
	ReleasedAt *time.Time      `json:"released_at,omitempty"`
}

// Escrow holds funds earmarked for a project, divided into milestones.
type Escrow struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id"`
	ClientID       string          `json:"client_id"`
	FreelancerID   string          `json:"freelancer_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	FundedAmount   decimal.Decimal `json:"funded_amount"`
	ReleasedAmount decimal.Decimal `json:"released_amount"`
	Status         EscrowStatus    `json:"status"`
	Milestones     []Milestone     `json:"milestones"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (e *Escrow) Validate() error {
	if e.ProjectID == "" || e.ClientID == "" || e.FreelancerID == "" {
		return fmt.Errorf("%w: project, client and freelancer ids required", xerrors.ErrInvalidRequest)
	}
	if e.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: total amount must be positive", xerrors.ErrInvalidRequest)
	}
	if len(e.Milestones) == 0 {
		return fmt.Errorf("%w: at least one milestone required", xerrors.ErrInvalidRequest)
	}
	sum := decimal.Zero
	for _, m := range e.Milestones {
		if m.Amount.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: milestone %q amount must be positive", xerrors.ErrInvalidRequest, m.Title)
		}
		sum = sum.Add(m.Amount)
	}
	if !sum.Equal(e.TotalAmount) {
		return fmt.Errorf("%w: milestone amounts must sum to the total", xerrors.ErrInvalidRequest)
	}
	return nil
}

// Milestone returns the milestone with the given id, or nil.
func (e *Escrow) Milestone(id string) *Milestone {
	for i := range e.Milestones {
		if e.Milestones[i].ID == id {
			return &e.Milestones[i]
		}
	}
	return nil
}

// AllMilestonesApproved reports whether every milestone has been approved.
func (e *Escrow) AllMilestonesApproved() bool {
	for _, m := range e.Milestones {
		if m.Status != MilestoneApproved {
			return false
		}
	}
	return true
}

// FullyFunded reports whether the funded amount covers the total.
func (e *Escrow) FullyFunded() bool {
	return e.FundedAmount.GreaterThanOrEqual(e.TotalAmount)
}

// PlatformFee computes the fee retained from a milestone amount at the given
// percentage.
func PlatformFee(amount decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}
