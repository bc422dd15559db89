// Package api defines the Huma REST routes and handlers.
package api

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hotspots/internal/basemap"
	"github.com/joeblew999/plat-hotspots/internal/catalog"
	"github.com/joeblew999/plat-hotspots/internal/humastar"
	"github.com/joeblew999/plat-hotspots/internal/legend"
	"github.com/joeblew999/plat-hotspots/internal/metadata"
	"github.com/joeblew999/plat-hotspots/internal/overlay"
	"github.com/joeblew999/plat-hotspots/internal/service"
)

// Version is the API version reported by /health and the OpenAPI document.
const Version = "1.0.0"

// Services holds the dependencies of the API handlers.
type Services struct {
	Catalog  *catalog.Catalog
	Metadata metadata.Fetcher
	Sessions *service.SessionService
	Usage    *service.UsageService
	Logger   *slog.Logger
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"Hospitales"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// LayerBody is a catalog entry joined with its raster metadata.
type LayerBody struct {
	catalog.LayerDescriptor
	ImageURL string                  `json:"imageUrl,omitempty" doc:"Overlay image URL" example:"/data/Hospitales.png"`
	Metadata *metadata.LayerMetadata `json:"metadata,omitempty" doc:"Image file and bounds, absent when the layer has no metadata"`
}

var layerActions = []humastar.ActionDef{
	{Rel: "preview", Pattern: "/viewer?layer=%s", Method: "GET", Title: "Ver en el mapa"},
}

// Actions implements humastar.Actor.
func (b LayerBody) Actions() []humastar.Action {
	if b.Metadata == nil {
		return nil
	}
	return humastar.ActionsFor(b.ID, layerActions)
}

type LegendBody struct {
	Title   string          `json:"title" doc:"Legend heading" example:"Concentración"`
	Buckets []legend.Bucket `json:"buckets" doc:"Severity classes in ascending grade"`
}

// APIHandler holds the REST API handlers. Methods named Register* are
// called by RegisterRoutes.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route on api.
func RegisterRoutes(api huma.API, svc *Services) {
	h := NewAPIHandler(svc)
	h.RegisterHealth(api)
	h.RegisterLayers(api)
	h.RegisterFootprints(api)
	h.RegisterMap(api)
	h.RegisterUsage(api)
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers the read-only catalog routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
}

// RegisterMap registers base map and legend routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/basemaps", h.GetBasemaps, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/legend", h.GetLegend, huma.OperationTags("map"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

// loadMetadata fetches the metadata document. A failure is logged and
// yields a nil store, so layers are listed without metadata.
func (h *APIHandler) loadMetadata(ctx context.Context) *metadata.Store {
	if h.svc.Metadata == nil {
		return nil
	}
	store, err := metadata.Load(ctx, h.svc.Metadata)
	if err != nil {
		h.svc.Logger.Warn("metadata unavailable", "error", err)
		return nil
	}
	return store
}

func layerBody(desc catalog.LayerDescriptor, store *metadata.Store) LayerBody {
	body := LayerBody{LayerDescriptor: desc}
	if m, ok := store.Lookup(desc.ID); ok {
		body.Metadata = &m
		body.ImageURL = overlay.ImageURL(m.File)
	}
	return body
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body []LayerBody }, error) {
	store := h.loadMetadata(ctx)
	all := h.svc.Catalog.All()
	out := make([]LayerBody, len(all))
	for i, desc := range all {
		out[i] = layerBody(desc, store)
	}
	return &struct{ Body []LayerBody }{Body: out}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*struct{ Body LayerBody }, error) {
	desc, ok := h.svc.Catalog.FindByID(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &struct{ Body LayerBody }{Body: layerBody(desc, h.loadMetadata(ctx))}, nil
}

func (h *APIHandler) GetBasemaps(ctx context.Context, input *struct{}) (*struct{ Body []basemap.Layer }, error) {
	return &struct{ Body []basemap.Layer }{Body: basemap.All()}, nil
}

func (h *APIHandler) GetLegend(ctx context.Context, input *struct{}) (*struct{ Body LegendBody }, error) {
	return &struct{ Body LegendBody }{Body: LegendBody{Title: legend.Title, Buckets: legend.Buckets()}}, nil
}
