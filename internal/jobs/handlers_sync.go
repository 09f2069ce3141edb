package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsforge/tenantcore/internal/db"
	"github.com/opsforge/tenantcore/internal/integrations"
	"github.com/opsforge/tenantcore/internal/queue"
)

// SyncProviders is the fixed set of integration providers this deployment
// routes. A sync job for any other provider is rejected by the router.
var SyncProviders = []string{"quickbooks", "shopify", "stripe"}

type IntegrationStore interface {
	GetIntegration(ctx context.Context, id string) (*db.AdminIntegration, error)
}

type ProviderClient interface {
	RunSync(ctx context.Context, integ *db.AdminIntegration, syncType string) (*integrations.Summary, error)
}

// SyncHandlers executes sync jobs against third-party integrations. The
// provider internals are opaque; only the success/failure contract and run
// counters matter here.
type SyncHandlers struct {
	store  IntegrationStore
	client ProviderClient
}

func NewSyncHandlers(store IntegrationStore, client ProviderClient) *SyncHandlers {
	return &SyncHandlers{store: store, client: client}
}

// Register installs one route per known provider, so an unknown provider
// fails fast at dispatch instead of inside a handler.
func (h *SyncHandlers) Register(r *Router) {
	for _, provider := range SyncProviders {
		r.Register("sync:"+provider, h.Run)
	}
}

func (h *SyncHandlers) Run(ctx context.Context, job *queue.Job) (map[string]interface{}, error) {
	provider := strings.TrimPrefix(job.Type, "sync:")
	integrationID := stringField(job.Payload, "integration_id")
	if integrationID == "" {
		return nil, fmt.Errorf("sync job %s has no integration_id", job.ID)
	}
	syncType := stringField(job.Payload, "sync_type")
	if syncType == "" {
		syncType = "full"
	}

	integ, err := h.store.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("integration %s not found: %w", integrationID, err)
	}
	if !integ.Enabled {
		return nil, fmt.Errorf("integration %s is disabled", integrationID)
	}
	if integ.Provider != provider {
		return nil, fmt.Errorf("integration %s is %q, job routed for %q", integrationID, integ.Provider, provider)
	}

	summary, err := h.client.RunSync(ctx, integ, syncType)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"provider":          provider,
		"sync_type":         syncType,
		"processed_records": summary.Processed,
		"success_count":     summary.Succeeded,
		"error_count":       summary.Failed,
	}
	if len(summary.Raw) > 0 {
		result["data"] = summary.Raw
	}
	return result, nil
}
