package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hotspots/internal/service"
)

type InfoHandler struct {
	dataDir  string
	sessions *service.SessionService
	usage    *service.UsageService
}

func NewInfoHandler(dataDir string, sessions *service.SessionService, usage *service.UsageService) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, sessions: sessions, usage: usage}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether the usage ledger is available"`
	Layers   int      `json:"layers" doc:"Catalog size"`
	Sessions int      `json:"sessions" doc:"Live viewer sessions"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     "plat-hotspots",
		Version:  Version,
		DataDir:  h.dataDir,
		DB:       h.usage.Available(),
		Features: []string{"overlays", "basemaps", "legend", "datastar"},
	}
	if h.sessions != nil {
		body.Layers = h.sessions.Catalog().Len()
		body.Sessions = h.sessions.Len()
	}
	if body.DB {
		body.Features = append(body.Features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
