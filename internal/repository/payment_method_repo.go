package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payment-service/internal/domain"
	"payment-service/pkg/utils"
	"payment-service/pkg/xerrors"
)

type PaymentMethodRepository interface {
	Create(ctx context.Context, m *domain.PaymentMethod) (*domain.PaymentMethod, error)
	GetByID(ctx context.Context, id string) (*domain.PaymentMethod, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.PaymentMethod, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.PaymentMethod, error)
	UpdateStatus(ctx context.Context, id string, status domain.PaymentMethodStatus, details *domain.MethodDetails) (*domain.PaymentMethod, error)
	// SetDefault clears the user's previous default and marks the given
	// instrument in one database transaction.
	SetDefault(ctx context.Context, userID, id string) (*domain.PaymentMethod, error)
}

type paymentMethodRepo struct {
	db  *pgxpool.Pool
	ids *utils.IDGenerator
}

func NewPaymentMethodRepo(db *pgxpool.Pool, ids *utils.IDGenerator) PaymentMethodRepository {
	return &paymentMethodRepo{db: db, ids: ids}
}

const methodColumns = `id, user_id, type, name, status, external_id, details, is_default, created_at, updated_at`

func scanPaymentMethod(row pgx.Row) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	var details []byte
	var externalID *string
	err := row.Scan(
		&m.ID, &m.UserID, &m.Type, &m.Name, &m.Status,
		&externalID, &details, &m.IsDefault, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment method: %w", xerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan payment method: %w", err)
	}
	if externalID != nil {
		m.ExternalID = *externalID
	}
	if err := json.Unmarshal(details, &m.Details); err != nil {
		return nil, fmt.Errorf("failed to decode method details: %w", err)
	}
	return &m, nil
}

func (r *paymentMethodRepo) Create(ctx context.Context, m *domain.PaymentMethod) (*domain.PaymentMethod, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = r.ids.NewID()
	}
	if m.Status == "" {
		m.Status = domain.MethodPendingVerify
	}
	details, err := m.Details.Value()
	if err != nil {
		return nil, fmt.Errorf("failed to encode method details: %w", err)
	}

	query := `
		INSERT INTO payment_methods (id, user_id, type, name, status, external_id, details)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING ` + methodColumns
	return scanPaymentMethod(r.db.QueryRow(ctx, query,
		m.ID, m.UserID, m.Type, m.Name, m.Status, m.ExternalID, details))
}

func (r *paymentMethodRepo) GetByID(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM payment_methods WHERE id = $1`
	return scanPaymentMethod(r.db.QueryRow(ctx, query, id))
}

func (r *paymentMethodRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.PaymentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM payment_methods WHERE external_id = $1`
	return scanPaymentMethod(r.db.QueryRow(ctx, query, externalID))
}

func (r *paymentMethodRepo) ListByUser(ctx context.Context, userID string) ([]*domain.PaymentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM payment_methods WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var out []*domain.PaymentMethod
	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payment methods: %w", err)
	}
	return out, nil
}

func (r *paymentMethodRepo) UpdateStatus(ctx context.Context, id string, status domain.PaymentMethodStatus, details *domain.MethodDetails) (*domain.PaymentMethod, error) {
	if details == nil {
		query := `
			UPDATE payment_methods SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING ` + methodColumns
		return scanPaymentMethod(r.db.QueryRow(ctx, query, id, status))
	}

	encoded, err := details.Value()
	if err != nil {
		return nil, fmt.Errorf("failed to encode method details: %w", err)
	}
	query := `
		UPDATE payment_methods SET status = $2, details = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + methodColumns
	return scanPaymentMethod(r.db.QueryRow(ctx, query, id, status, encoded))
}

func (r *paymentMethodRepo) SetDefault(ctx context.Context, userID, id string) (*domain.PaymentMethod, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE payment_methods SET is_default = false, updated_at = now() WHERE user_id = $1 AND is_default`,
		userID); err != nil {
		return nil, fmt.Errorf("failed to clear default payment method: %w", err)
	}

	m, err := scanPaymentMethod(tx.QueryRow(ctx, `
		UPDATE payment_methods SET is_default = true, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+methodColumns, id, userID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit default change: %w", err)
	}
	return m, nil
}
