package cloudsync

import (
	"context"
	"fmt"

	"firelater-orchestrator/internal/models"
)

// Collector pulls the current resource inventory and cost lines for one
// cloud account. Implementations exist for each member of the closed
// provider set; both methods must tolerate being retried in full.
type Collector interface {
	Resources(ctx context.Context) ([]models.CloudResource, error)
	Costs(ctx context.Context) ([]models.CloudCostRecord, error)
}

// CollectorFactory builds the provider-specific collector for an
// account's credentials. Swapped for a fake in tests.
type CollectorFactory func(ctx context.Context, provider models.CloudProvider, creds Credentials) (Collector, error)

// NewCollector dispatches over the provider variant. Every member of
// models.CloudProvider must be handled here.
func NewCollector(ctx context.Context, provider models.CloudProvider, creds Credentials) (Collector, error) {
	switch provider {
	case models.ProviderAWS:
		return newAWSCollector(ctx, creds)
	case models.ProviderAzure:
		return newAzureCollector(ctx, creds)
	case models.ProviderGCP:
		return newGCPCollector(creds)
	}
	return nil, fmt.Errorf("unsupported cloud provider %q", provider)
}
