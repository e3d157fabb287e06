package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payment-service/internal/domain"
	"payment-service/pkg/utils"
	"payment-service/pkg/xerrors"
)

type TransactionRepository interface {
	// Record persists a transaction in pending or completed state. A
	// completed transaction applies its balance delta in the same database
	// transaction. When the reference is already recorded the existing
	// transaction is returned and the second return value is false.
	Record(ctx context.Context, t *domain.Transaction) (*domain.Transaction, bool, error)

	// Transition moves a transaction toward a terminal state. The balance
	// delta is applied exactly once, on the first transition into
	// completed; the second return value reports whether it was applied
	// this call. Re-entering the current status is a no-op.
	Transition(ctx context.Context, id string, status domain.TransactionStatus, reason string) (*domain.Transaction, bool, error)

	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	List(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, int, error)
}

type transactionRepo struct {
	db  *pgxpool.Pool
	ids *utils.IDGenerator
}

func NewTransactionRepo(db *pgxpool.Pool, ids *utils.IDGenerator) TransactionRepository {
	return &transactionRepo{db: db, ids: ids}
}

const transactionColumns = `id, user_id, type, status, amount, fee,
	source_wallet_id, destination_wallet_id, escrow_id, project_id, milestone_id,
	description, reference, failure_reason, created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.Status, &t.Amount, &t.Fee,
		&t.SourceWalletID, &t.DestinationWalletID, &t.EscrowID, &t.ProjectID, &t.MilestoneID,
		&t.Description, &t.Reference, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction: %w", xerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return &t, nil
}

func (r *transactionRepo) Record(ctx context.Context, t *domain.Transaction) (*domain.Transaction, bool, error) {
	if err := t.Validate(); err != nil {
		return nil, false, err
	}
	if t.Status == "" {
		t.Status = domain.TxPending
	}
	if t.Status != domain.TxPending && t.Status != domain.TxCompleted {
		return nil, false, fmt.Errorf("%w: transactions are recorded pending or completed", xerrors.ErrInvalidRequest)
	}
	if t.ID == "" {
		t.ID = r.ids.NewID()
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO transactions
			(id, user_id, type, status, amount, fee,
			 source_wallet_id, destination_wallet_id, escrow_id, project_id, milestone_id,
			 description, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + transactionColumns
	recorded, err := scanTransaction(tx.QueryRow(ctx, insert,
		t.ID, t.UserID, t.Type, t.Status, t.Amount, t.Fee,
		t.SourceWalletID, t.DestinationWalletID, t.EscrowID, t.ProjectID, t.MilestoneID,
		t.Description, t.Reference,
	))
	if err != nil {
		if xerrors.IsUniqueViolation(err) && t.Reference != nil {
			// Concurrent or retried recording of the same movement:
			// hand back the one that won.
			existing, ferr := r.GetByReference(ctx, *t.Reference)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to record transaction: %w", err)
	}

	if recorded.Status == domain.TxCompleted {
		if err := applyBalanceChanges(ctx, tx, recorded); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return recorded, true, nil
}

func (r *transactionRepo) Transition(ctx context.Context, id string, status domain.TransactionStatus, reason string) (*domain.Transaction, bool, error) {
	if !status.IsTerminal() {
		return nil, false, fmt.Errorf("%w: transactions only transition to terminal states", xerrors.ErrInvalidRequest)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanTransaction(tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, false, err
	}

	// Duplicate delivery of the same outcome is a no-op, never a
	// double-applied delta.
	if current.Status == status {
		return current, false, nil
	}
	if current.Status.IsTerminal() {
		return current, false, fmt.Errorf("transaction %s -> %s: %w", current.Status, status, xerrors.ErrInvalidStateTransition)
	}

	updated, err := scanTransaction(tx.QueryRow(ctx, `
		UPDATE transactions
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+transactionColumns,
		id, status, reason))
	if err != nil {
		return nil, false, err
	}

	applied := false
	if status == domain.TxCompleted {
		if err := applyBalanceChanges(ctx, tx, updated); err != nil {
			return nil, false, err
		}
		applied = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transition: %w", err)
	}
	return updated, applied, nil
}

// applyBalanceChanges applies the wallet deltas implied by a completed
// transaction. Guarded single-statement updates take the row lock and keep
// the balance invariant in one place.
func applyBalanceChanges(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	changes, err := t.BalanceChanges()
	if err != nil {
		return err
	}
	for _, c := range changes {
		var query string
		if c.FromPending {
			query = `
				UPDATE wallets
				SET balance = balance + $2,
				    pending_balance = pending_balance + $2,
				    updated_at = now()
				WHERE id = $1 AND pending_balance + $2 >= 0
			`
		} else {
			query = `
				UPDATE wallets
				SET balance = balance + $2,
				    available_balance = available_balance + $2,
				    updated_at = now()
				WHERE id = $1 AND status = 'active' AND available_balance + $2 >= 0
			`
		}
		tag, err := tx.Exec(ctx, query, c.WalletID, c.Delta)
		if err != nil {
			return fmt.Errorf("failed to apply balance change: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("wallet %s: %w", c.WalletID, xerrors.ErrInsufficientFunds)
		}
	}
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

func (r *transactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, reference))
}

func (r *transactionRepo) List(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, int, error) {
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
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ProjectID != "" {
		add("project_id = $%d", f.ProjectID)
	}
	if f.EscrowID != "" {
		add("escrow_id = $%d", f.EscrowID)
	}
	if f.Reference != "" {
		add("reference = $%d", f.Reference)
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
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM transactions%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read transactions: %w", err)
	}
	return out, total, nil
}
