package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// NotificationClient delivers in-app notifications through the notification
// service. Delivery is best effort and never blocks a money movement.
type NotificationClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewNotificationClient(baseURL string, logger *zap.Logger) *NotificationClient {
	return &NotificationClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type notificationRequest struct {
	UserID  string         `json:"user_id"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// SendInApp posts a notification for the given user.
func (c *NotificationClient) SendInApp(ctx context.Context, userID, notifType, title, message string, data map[string]any) error {
	payload, err := json.Marshal(notificationRequest{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
		Data:    data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/notifications", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to reach notification service",
			zap.String("user_id", userID),
			zap.String("type", notifType),
			zap.Error(err))
		return fmt.Errorf("notification service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("notification service rejected notification",
			zap.String("user_id", userID),
			zap.String("type", notifType),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}
