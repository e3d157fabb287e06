package usecase

import (
	"context"

	"payment-service/internal/domain"
)

// Notifier delivers user-facing notifications. Satisfied by
// client.NotificationClient; a nil Notifier disables notifications.
type Notifier interface {
	SendInApp(ctx context.Context, userID, notifType, title, message string, data map[string]any) error
}

// ProjectNotifier informs the project service about milestone payments.
// Satisfied by client.ProjectClient.
type ProjectNotifier interface {
	UpdateMilestoneStatus(ctx context.Context, projectID, milestoneID, status, transactionID string) error
}

// EventPublisher fans transaction lifecycle events out to the platform.
// Satisfied by pub.TransactionEventPublisher.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, t *domain.Transaction)
}

// EventCache remembers processor event ids that were fully processed, as a
// fast duplicate short-circuit. Satisfied by cache.EventCache; a nil cache
// disables the check and every delivery falls through to the idempotent
// dispatch handlers.
type EventCache interface {
	Seen(ctx context.Context, eventID string) bool
	MarkSeen(ctx context.Context, eventID string)
}
