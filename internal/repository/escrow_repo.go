package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"payment-service/internal/domain"
	"payment-service/pkg/utils"
	"payment-service/pkg/xerrors"
)

type EscrowRepository interface {
	Create(ctx context.Context, e *domain.Escrow) (*domain.Escrow, error)
	GetByID(ctx context.Context, id string) (*domain.Escrow, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.Escrow, error)

	// AddFunds increments the funded amount and flips a pending escrow to
	// funded once fully covered. Rejected unless the escrow is pending and
	// the amount fits within the remaining total.
	AddFunds(ctx context.Context, id string, amount decimal.Decimal) (*domain.Escrow, error)

	// ApproveMilestone marks the milestone approved under a row lock so
	// two concurrent releases resolve to exactly one success. Recomputes
	// the released amount and flips the escrow to released once every
	// milestone is approved.
	ApproveMilestone(ctx context.Context, escrowID, milestoneID string, releasedAt time.Time) (*domain.Escrow, error)

	// UpdateStatus is the admin-only side branch to refunded/disputed.
	UpdateStatus(ctx context.Context, id string, status domain.EscrowStatus) (*domain.Escrow, error)
}

type escrowRepo struct {
	db  *pgxpool.Pool
	ids *utils.IDGenerator
}

func NewEscrowRepo(db *pgxpool.Pool, ids *utils.IDGenerator) EscrowRepository {
	return &escrowRepo{db: db, ids: ids}
}

const escrowColumns = `id, project_id, client_id, freelancer_id,
	total_amount, funded_amount, released_amount, status, milestones, created_at, updated_at`

func scanEscrow(row pgx.Row) (*domain.Escrow, error) {
	var e domain.Escrow
	var milestones []byte
	err := row.Scan(
		&e.ID, &e.ProjectID, &e.ClientID, &e.FreelancerID,
		&e.TotalAmount, &e.FundedAmount, &e.ReleasedAmount, &e.Status,
		&milestones, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("escrow: %w", xerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan escrow: %w", err)
	}
	if err := json.Unmarshal(milestones, &e.Milestones); err != nil {
		return nil, fmt.Errorf("failed to decode milestones: %w", err)
	}
	return &e, nil
}

func (r *escrowRepo) Create(ctx context.Context, e *domain.Escrow) (*domain.Escrow, error) {
	if e.ID == "" {
		e.ID = r.ids.NewID()
	}
	for i := range e.Milestones {
		if e.Milestones[i].ID == "" {
			e.Milestones[i].ID = r.ids.NewID()
		}
		if e.Milestones[i].Status == "" {
			e.Milestones[i].Status = domain.MilestonePending
		}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	milestones, err := json.Marshal(e.Milestones)
	if err != nil {
		return nil, fmt.Errorf("failed to encode milestones: %w", err)
	}

	query := `
		INSERT INTO escrows (id, project_id, client_id, freelancer_id, total_amount, milestones)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + escrowColumns
	return scanEscrow(r.db.QueryRow(ctx, query,
		e.ID, e.ProjectID, e.ClientID, e.FreelancerID, e.TotalAmount, milestones))
}

func (r *escrowRepo) GetByID(ctx context.Context, id string) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`
	return scanEscrow(r.db.QueryRow(ctx, query, id))
}

func (r *escrowRepo) ListByProject(ctx context.Context, projectID string) ([]*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE project_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list escrows: %w", err)
	}
	defer rows.Close()

	var out []*domain.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read escrows: %w", err)
	}
	return out, nil
}

func (r *escrowRepo) AddFunds(ctx context.Context, id string, amount decimal.Decimal) (*domain.Escrow, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: funding amount must be positive", xerrors.ErrInvalidRequest)
	}

	query := `
		UPDATE escrows
		SET funded_amount = funded_amount + $2,
		    status = CASE WHEN funded_amount + $2 >= total_amount THEN 'funded' ELSE status END,
		    updated_at = now()
		WHERE id = $1 AND status = 'pending' AND funded_amount + $2 <= total_amount
		RETURNING ` + escrowColumns
	e, err := scanEscrow(r.db.QueryRow(ctx, query, id, amount))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	current, gerr := r.GetByID(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	if current.Status != domain.EscrowPending {
		if current.Status == domain.EscrowFunded {
			return nil, fmt.Errorf("escrow %s: %w", id, xerrors.ErrEscrowAlreadyFunded)
		}
		return nil, fmt.Errorf("escrow %s is %s: %w", id, current.Status, xerrors.ErrInvalidStateTransition)
	}
	return nil, fmt.Errorf("%w: amount exceeds the remaining escrow total", xerrors.ErrInvalidRequest)
}

func (r *escrowRepo) ApproveMilestone(ctx context.Context, escrowID, milestoneID string, releasedAt time.Time) (*domain.Escrow, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	e, err := scanEscrow(tx.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE`, escrowID))
	if err != nil {
		return nil, err
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
	m.ReleasedAt = &releasedAt

	released := decimal.Zero
	for _, ms := range e.Milestones {
		if ms.Status == domain.MilestoneApproved {
			released = released.Add(ms.Amount)
		}
	}
	e.ReleasedAmount = released
	if e.AllMilestonesApproved() {
		e.Status = domain.EscrowReleased
	}

	milestones, err := json.Marshal(e.Milestones)
	if err != nil {
		return nil, fmt.Errorf("failed to encode milestones: %w", err)
	}

	updated, err := scanEscrow(tx.QueryRow(ctx, `
		UPDATE escrows
		SET milestones = $2, released_amount = $3, status = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+escrowColumns,
		escrowID, milestones, e.ReleasedAmount, e.Status))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit milestone approval: %w", err)
	}
	return updated, nil
}

func (r *escrowRepo) UpdateStatus(ctx context.Context, id string, status domain.EscrowStatus) (*domain.Escrow, error) {
	if status != domain.EscrowRefunded && status != domain.EscrowDisputed {
		return nil, fmt.Errorf("escrow status override to %s: %w", status, xerrors.ErrInvalidStateTransition)
	}

	query := `
		UPDATE escrows
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'funded', 'disputed')
		RETURNING ` + escrowColumns
	e, err := scanEscrow(r.db.QueryRow(ctx, query, id, status))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	current, gerr := r.GetByID(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	return nil, fmt.Errorf("escrow %s is %s: %w", id, current.Status, xerrors.ErrInvalidStateTransition)
}
