package controller

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkllon/swarmctl/pkg/types"
)

// IntegrationStrategy is the pluggable integration boundary. The
// controller hands over the completed task set; the strategy decides
// what merges cleanly. Quality-gated policies plug in here.
type IntegrationStrategy interface {
	Integrate(swarmID string, taskIDs []string) (*types.IntegrationReport, error)
}

// BaselineStrategy treats every completed task as a successful
// integration
type BaselineStrategy struct{}

// Integrate accepts all completed tasks
func (BaselineStrategy) Integrate(swarmID string, taskIDs []string) (*types.IntegrationReport, error) {
	successful := make([]string, len(taskIDs))
	copy(successful, taskIDs)

	return &types.IntegrationReport{
		ReportID:               uuid.NewString(),
		IntegrationBatch:       taskIDs,
		SuccessfulIntegrations: successful,
		CreatedAt:              time.Now(),
		Summary:                fmt.Sprintf("Successfully integrated %d tasks", len(successful)),
	}, nil
}
