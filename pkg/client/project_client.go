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

// ProjectClient notifies the project service when a milestone payment goes
// through so the project side can flip its own milestone state.
type ProjectClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewProjectClient(baseURL string, logger *zap.Logger) *ProjectClient {
	return &ProjectClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type milestoneStatusUpdate struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

// UpdateMilestoneStatus marks a project milestone paid. Best effort: the
// caller treats a failure as a delivery problem, not a payment problem.
func (c *ProjectClient) UpdateMilestoneStatus(ctx context.Context, projectID, milestoneID, status, transactionID string) error {
	payload, err := json.Marshal(milestoneStatusUpdate{Status: status, TransactionID: transactionID})
	if err != nil {
		return fmt.Errorf("failed to marshal milestone update: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/projects/%s/milestones/%s/status", c.baseURL, projectID, milestoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build milestone update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("failed to reach project service",
			zap.String("project_id", projectID),
			zap.String("milestone_id", milestoneID),
			zap.Error(err))
		return fmt.Errorf("project service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Error("project service rejected milestone update",
			zap.String("project_id", projectID),
			zap.String("milestone_id", milestoneID),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("project service returned %d", resp.StatusCode)
	}

	c.logger.Info("milestone status updated",
		zap.String("project_id", projectID),
		zap.String("milestone_id", milestoneID),
		zap.String("status", status))
	return nil
}
