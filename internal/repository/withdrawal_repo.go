package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payment-service/internal/domain"
	"payment-service/pkg/utils"
	"payment-service/pkg/xerrors"
)

type WithdrawalRepository interface {
	Create(ctx context.Context, w *domain.Withdrawal) (*domain.Withdrawal, error)
	GetByID(ctx context.Context, id string) (*domain.Withdrawal, error)
	List(ctx context.Context, f domain.WithdrawalFilter) ([]*domain.Withdrawal, int, error)

	// The state machine moves through compare-and-set updates so a racing
	// request or replayed webhook observes InvalidStateTransition instead
	// of double-applying an outcome.
	MarkProcessing(ctx context.Context, id string) (*domain.Withdrawal, error)
	Complete(ctx context.Context, id, externalRef, transactionID string) (*domain.Withdrawal, error)
	Fail(ctx context.Context, id, reason string) (*domain.Withdrawal, error)
	Cancel(ctx context.Context, id string) (*domain.Withdrawal, error)

	// SetReference records the processor payout id as soon as disbursement
	// is requested, before any local settlement, so reconciliation can
	// find the withdrawal even after a crash.
	SetReference(ctx context.Context, id, externalRef string) error
}

type withdrawalRepo struct {
	db  *pgxpool.Pool
	ids *utils.IDGenerator
}

func NewWithdrawalRepo(db *pgxpool.Pool, ids *utils.IDGenerator) WithdrawalRepository {
	return &withdrawalRepo{db: db, ids: ids}
}

const withdrawalColumns = `id, user_id, amount, fee, net_amount, status,
	payment_method_id, transaction_id, reference, rejection_reason, processed_at, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := row.Scan(
		&w.ID, &w.UserID, &w.Amount, &w.Fee, &w.NetAmount, &w.Status,
		&w.PaymentMethodID, &w.TransactionID, &w.ExternalReference,
		&w.RejectionReason, &w.ProcessedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("withdrawal: %w", xerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
	}
	return &w, nil
}

func (r *withdrawalRepo) Create(ctx context.Context, w *domain.Withdrawal) (*domain.Withdrawal, error) {
	if w.ID == "" {
		w.ID = r.ids.NewID()
	}
	query := `
		INSERT INTO withdrawals (id, user_id, amount, fee, net_amount, payment_method_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + withdrawalColumns
	return scanWithdrawal(r.db.QueryRow(ctx, query,
		w.ID, w.UserID, w.Amount, w.Fee, w.NetAmount, w.PaymentMethodID))
}

func (r *withdrawalRepo) GetByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`
	return scanWithdrawal(r.db.QueryRow(ctx, query, id))
}

func (r *withdrawalRepo) MarkProcessing(ctx context.Context, id string) (*domain.Withdrawal, error) {
	return r.transition(ctx, id, `
		UPDATE withdrawals SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+withdrawalColumns, id)
}

func (r *withdrawalRepo) Complete(ctx context.Context, id, externalRef, transactionID string) (*domain.Withdrawal, error) {
	return r.transition(ctx, id, `
		UPDATE withdrawals
		SET status = 'completed', reference = $2, transaction_id = $3,
		    processed_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING `+withdrawalColumns, id, externalRef, transactionID, time.Now())
}

func (r *withdrawalRepo) Fail(ctx context.Context, id, reason string) (*domain.Withdrawal, error) {
	return r.transition(ctx, id, `
		UPDATE withdrawals
		SET status = 'failed', rejection_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING `+withdrawalColumns, id, reason)
}

func (r *withdrawalRepo) Cancel(ctx context.Context, id string) (*domain.Withdrawal, error) {
	return r.transition(ctx, id, `
		UPDATE withdrawals SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+withdrawalColumns, id)
}

func (r *withdrawalRepo) SetReference(ctx context.Context, id, externalRef string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE withdrawals SET reference = $2, updated_at = now() WHERE id = $1`,
		id, externalRef)
	if err != nil {
		return fmt.Errorf("failed to set withdrawal reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal %s: %w", id, xerrors.ErrNotFound)
	}
	return nil
}

func (r *withdrawalRepo) transition(ctx context.Context, id, query string, args ...any) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	current, gerr := r.GetByID(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	return nil, fmt.Errorf("withdrawal is %s: %w", current.Status, xerrors.ErrInvalidStateTransition)
}

func (r *withdrawalRepo) List(ctx context.Context, f domain.WithdrawalFilter) ([]*domain.Withdrawal, int, error) {
	f.Normalize()

	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM withdrawals`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM withdrawals%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		withdrawalColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []*domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read withdrawals: %w", err)
	}
	return out, total, nil
}
