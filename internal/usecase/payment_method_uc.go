package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"payment-service/internal/domain"
	"payment-service/internal/gateway"
	"payment-service/internal/metrics"
	"payment-service/internal/repository"
	"payment-service/pkg/xerrors"
)

type PaymentMethodUsecase struct {
	methodRepo repository.PaymentMethodRepository
	gw         gateway.Gateway
	logger     *zap.Logger
}

func NewPaymentMethodUsecase(methodRepo repository.PaymentMethodRepository, gw gateway.Gateway, logger *zap.Logger) *PaymentMethodUsecase {
	return &PaymentMethodUsecase{methodRepo: methodRepo, gw: gw, logger: logger}
}

// AddParams carries a new instrument. For stripe-type methods without an
// account id, a connected account is created at the processor first.
type AddParams struct {
	UserID  string
	Type    domain.PaymentMethodType
	Name    string
	Email   string
	Details domain.MethodDetails
}

func (uc *PaymentMethodUsecase) Add(ctx context.Context, p AddParams) (*domain.PaymentMethod, error) {
	m := &domain.PaymentMethod{
		UserID:  p.UserID,
		Type:    p.Type,
		Name:    p.Name,
		Details: p.Details,
	}

	if p.Type == domain.MethodStripe {
		if p.Details.Stripe == nil {
			return nil, fmt.Errorf("%w: stripe account details required", xerrors.ErrInvalidRequest)
		}
		if p.Details.Stripe.AccountID == "" {
			account, err := uc.gw.CreateConnectedAccount(ctx, p.Email, p.Details.Stripe.Country)
			if err != nil {
				metrics.ProcessorRequests.WithLabelValues("connected_account", "error").Inc()
				return nil, err
			}
			metrics.ProcessorRequests.WithLabelValues("connected_account", "ok").Inc()
			m.Details.Stripe.AccountID = account.ID
		}
		m.ExternalID = m.Details.Stripe.AccountID
	}

	created, err := uc.methodRepo.Create(ctx, m)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("payment method added",
		zap.String("payment_method_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.String("type", string(created.Type)))
	return created, nil
}

func (uc *PaymentMethodUsecase) GetForUser(ctx context.Context, id, userID string) (*domain.PaymentMethod, error) {
	m, err := uc.methodRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, fmt.Errorf("payment method belongs to another user: %w", xerrors.ErrForbidden)
	}
	return m, nil
}

func (uc *PaymentMethodUsecase) ListByUser(ctx context.Context, userID string) ([]*domain.PaymentMethod, error) {
	return uc.methodRepo.ListByUser(ctx, userID)
}

func (uc *PaymentMethodUsecase) SetDefault(ctx context.Context, userID, id string) (*domain.PaymentMethod, error) {
	if _, err := uc.GetForUser(ctx, id, userID); err != nil {
		return nil, err
	}
	return uc.methodRepo.SetDefault(ctx, userID, id)
}

// Deactivate retires an instrument without deleting its history.
func (uc *PaymentMethodUsecase) Deactivate(ctx context.Context, userID, id string) (*domain.PaymentMethod, error) {
	if _, err := uc.GetForUser(ctx, id, userID); err != nil {
		return nil, err
	}
	return uc.methodRepo.UpdateStatus(ctx, id, domain.MethodInactive, nil)
}
