package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"payment-service/internal/domain"
	"payment-service/internal/gateway"
	"payment-service/internal/metrics"
	"payment-service/internal/repository"
	"payment-service/pkg/xerrors"
)

// WebhookUsecase reconciles processor webhook events against local state.
// Every handler is idempotent: duplicate or out-of-order deliveries resolve
// to no-ops, never to double-applied money.
type WebhookUsecase struct {
	gw           gateway.Gateway
	txUC         *TransactionUsecase
	withdrawalUC *WithdrawalUsecase
	methodRepo   repository.PaymentMethodRepository
	events       EventCache
	logger       *zap.Logger
}

func NewWebhookUsecase(
	gw gateway.Gateway,
	txUC *TransactionUsecase,
	withdrawalUC *WithdrawalUsecase,
	methodRepo repository.PaymentMethodRepository,
	events EventCache,
	logger *zap.Logger,
) *WebhookUsecase {
	return &WebhookUsecase{
		gw:           gw,
		txUC:         txUC,
		withdrawalUC: withdrawalUC,
		methodRepo:   methodRepo,
		events:       events,
		logger:       logger,
	}
}

// HandleEvent verifies, deduplicates and dispatches one raw webhook delivery.
// A non-nil error means the signature or payload was bad and the processor
// should not be acknowledged. Errors inside a recognized event type are
// logged and swallowed so the processor does not retry-storm; the event is
// NOT marked processed in that case, so a redelivery gets a fresh attempt.
func (uc *WebhookUsecase) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := uc.gw.VerifyWebhookSignature(payload, signatureHeader)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return err
	}

	if uc.events != nil && uc.events.Seen(ctx, event.ID) {
		metrics.WebhookEvents.WithLabelValues(event.Type, "duplicate").Inc()
		uc.logger.Info("duplicate webhook event skipped",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		return nil
	}

	uc.logger.Info("webhook event received",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))

	if err := uc.dispatch(ctx, event); err != nil {
		metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		uc.logger.Error("webhook event processing failed, acknowledged without marking processed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		return nil
	}

	if uc.events != nil {
		uc.events.MarkSeen(ctx, event.ID)
	}
	metrics.WebhookEvents.WithLabelValues(event.Type, "ok").Inc()
	return nil
}

func (uc *WebhookUsecase) dispatch(ctx context.Context, event *gateway.Event) error {
	switch event.Type {
	case "payment_intent.succeeded":
		return uc.settleDeposit(ctx, event, domain.TxCompleted, "")
	case "payment_intent.payment_failed":
		return uc.settleDeposit(ctx, event, domain.TxFailed, "payment failed at processor")
	case "payout.paid":
		return uc.settlePayout(ctx, event, true)
	case "payout.failed":
		return uc.settlePayout(ctx, event, false)
	case "payment_method.attached":
		return uc.methodAttached(ctx, event)
	case "payment_method.detached":
		return uc.methodDetached(ctx, event)
	case "account.updated":
		return uc.accountUpdated(ctx, event)
	default:
		uc.logger.Debug("ignoring webhook event type", zap.String("event_type", event.Type))
		return nil
	}
}

func (uc *WebhookUsecase) settleDeposit(ctx context.Context, event *gateway.Event, status domain.TransactionStatus, reason string) error {
	var intent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data, &intent); err != nil || intent.ID == "" {
		return fmt.Errorf("%w: payment intent event without id", xerrors.ErrInvalidRequest)
	}

	tx, err := uc.txUC.GetByReference(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			// Not a transaction we opened; another service's intent.
			uc.logger.Warn("payment intent has no local transaction",
				zap.String("intent_id", intent.ID))
			return nil
		}
		return err
	}

	_, err = uc.txUC.Transition(ctx, tx.ID, status, reason)
	if errors.Is(err, xerrors.ErrInvalidStateTransition) {
		// Already settled one way; a late or repeated delivery.
		uc.logger.Info("deposit already settled",
			zap.String("transaction_id", tx.ID),
			zap.String("intent_id", intent.ID))
		return nil
	}
	return err
}

func (uc *WebhookUsecase) settlePayout(ctx context.Context, event *gateway.Event, paid bool) error {
	var payout struct {
		ID             string            `json:"id"`
		FailureMessage string            `json:"failure_message"`
		Metadata       map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data, &payout); err != nil || payout.ID == "" {
		return fmt.Errorf("%w: payout event without id", xerrors.ErrInvalidRequest)
	}

	withdrawalID := payout.Metadata["withdrawal_id"]
	if withdrawalID == "" {
		uc.logger.Warn("payout event without withdrawal metadata",
			zap.String("payout_id", payout.ID))
		return nil
	}

	var err error
	if paid {
		_, err = uc.withdrawalUC.Complete(ctx, withdrawalID, payout.ID)
	} else {
		reason := payout.FailureMessage
		if reason == "" {
			reason = "payout failed at processor"
		}
		_, err = uc.withdrawalUC.FailProcessing(ctx, withdrawalID, reason)
	}
	if errors.Is(err, xerrors.ErrInvalidStateTransition) {
		uc.logger.Info("withdrawal already settled",
			zap.String("withdrawal_id", withdrawalID),
			zap.String("payout_id", payout.ID))
		return nil
	}
	return err
}

func (uc *WebhookUsecase) methodAttached(ctx context.Context, event *gateway.Event) error {
	var attached struct {
		ID   string              `json:"id"`
		Card *domain.CardDetails `json:"card"`
	}
	if err := json.Unmarshal(event.Data, &attached); err != nil || attached.ID == "" {
		return fmt.Errorf("%w: payment method event without id", xerrors.ErrInvalidRequest)
	}

	m, err := uc.methodRepo.GetByExternalID(ctx, attached.ID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		return err
	}

	var details *domain.MethodDetails
	if attached.Card != nil {
		d := m.Details
		d.Card = attached.Card
		details = &d
	}
	_, err = uc.methodRepo.UpdateStatus(ctx, m.ID, domain.MethodActive, details)
	return err
}

func (uc *WebhookUsecase) methodDetached(ctx context.Context, event *gateway.Event) error {
	var detached struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data, &detached); err != nil || detached.ID == "" {
		return fmt.Errorf("%w: payment method event without id", xerrors.ErrInvalidRequest)
	}

	m, err := uc.methodRepo.GetByExternalID(ctx, detached.ID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = uc.methodRepo.UpdateStatus(ctx, m.ID, domain.MethodInactive, nil)
	return err
}

func (uc *WebhookUsecase) accountUpdated(ctx context.Context, event *gateway.Event) error {
	var account struct {
		ID             string `json:"id"`
		Country        string `json:"country"`
		PayoutsEnabled bool   `json:"payouts_enabled"`
	}
	if err := json.Unmarshal(event.Data, &account); err != nil || account.ID == "" {
		return fmt.Errorf("%w: account event without id", xerrors.ErrInvalidRequest)
	}

	m, err := uc.methodRepo.GetByExternalID(ctx, account.ID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		return err
	}

	details := m.Details
	if details.Stripe == nil {
		details.Stripe = &domain.StripeAccountDetails{AccountID: account.ID}
	}
	details.Stripe.Country = account.Country
	details.Stripe.PayoutsEnabled = account.PayoutsEnabled

	status := domain.MethodPendingVerify
	if account.PayoutsEnabled {
		status = domain.MethodActive
	}
	_, err = uc.methodRepo.UpdateStatus(ctx, m.ID, status, &details)
	return err
}
