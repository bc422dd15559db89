package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hotspots/internal/service"
)

// RegisterUsage registers the DuckDB usage ledger routes.
func (h *APIHandler) RegisterUsage(api huma.API) {
	huma.Get(api, "/api/v1/usage", h.GetUsage, huma.OperationTags("usage"))
}

// UsageOutput is the per-layer usage summary.
type UsageOutput struct {
	Body []service.LayerUsage
}

func (h *APIHandler) GetUsage(ctx context.Context, input *struct{}) (*UsageOutput, error) {
	if !h.svc.Usage.Available() {
		return nil, huma.Error503ServiceUnavailable("usage ledger not available")
	}
	summary, err := h.svc.Usage.Summary(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("usage query failed", err)
	}
	return &UsageOutput{Body: summary}, nil
}
