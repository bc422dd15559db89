// Package viewer contains the Datastar SSE handlers driving the map page.
//
// Every endpoint reads the page's signals, runs one session transition and
// streams the resulting commands back as element patches, signal patches
// and calls into the page's window.hotspots helpers.
package viewer

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hotspots/internal/basemap"
	"github.com/joeblew999/plat-hotspots/internal/humastar"
	"github.com/joeblew999/plat-hotspots/internal/service"
	"github.com/joeblew999/plat-hotspots/internal/templates"
)

// Tag marks the SSE operations in the OpenAPI document.
const Tag = "viewer"

// Signal names shared with web/templates/viewer.html.
const (
	SigSession        = "session"
	SigLayer          = "layer"
	SigOpacity        = "opacity"
	SigOpacityLabel   = "opacitylabel"
	SigBaseLayer      = "basemap"
	SigOverlayGen     = "overlaygen"
	SigOverlayOutcome = "overlayoutcome"
	SigDontShowAgain  = "dontshowagain"
	SigHideWelcome    = "hidewelcome"
	SigWelcome        = "welcome"
	SigLoading        = "loading"
	SigToggleLabel    = "togglelabel"
)

// OutcomeLoaded is the overlayoutcome value for a successful image load.
const OutcomeLoaded = "loaded"

// Handler serves the viewer SSE endpoints.
type Handler struct {
	humastar.Handler
	sessions *service.SessionService
}

// NewHandler creates a viewer handler.
func NewHandler(sessions *service.SessionService, renderer *templates.Renderer) *Handler {
	return &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
	}
}

// RegisterRoutes registers the viewer SSE routes.
func (h *Handler) RegisterRoutes(api huma.API) {
	post := func(path, id, summary string, fn func(context.Context, *humastar.SignalsInput) (*huma.StreamResponse, error)) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      "POST",
			Path:        "/api/v1/viewer" + path,
			Summary:     summary,
			Tags:        []string{Tag},
		}, fn)
	}
	post("/start", "viewer-start", "Start a viewer session", h.Start)
	post("/select", "viewer-select", "Select or clear the active layer", h.Select)
	post("/toggle", "viewer-toggle", "Toggle overlay visibility", h.Toggle)
	post("/opacity", "viewer-opacity", "Set overlay opacity", h.Opacity)
	post("/basemap", "viewer-basemap", "Switch the base map", h.BaseLayer)
	post("/overlay", "viewer-overlay", "Report an overlay image load outcome", h.Overlay)
	post("/welcome/close", "viewer-welcome-close", "Close the welcome modal", h.WelcomeClose)
	post("/welcome/show", "viewer-welcome-show", "Open the welcome modal", h.WelcomeShow)
	post("/welcome/dismiss", "viewer-welcome-dismiss", "Dismiss the welcome modal by clicking outside", h.WelcomeDismiss)
	h.RegisterActivity(api)
}

// Start creates the page's session and streams the startup commands.
// A layer signal names a catalog entry to show instead of the first one.
func (h *Handler) Start(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	sess, res := h.sessions.Create(ctx, signals.Bool(SigHideWelcome))
	results := []service.Result{res}

	if want := signals.String(SigLayer); want != "" && want != sess.State().ActiveLayerID && res.Err == nil {
		if _, ok := h.sessions.Catalog().FindByID(want); ok {
			next, err := h.sessions.Select(sess.ID, want)
			if err == nil {
				results = append(results, next)
			}
		}
	}

	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{SigSession: sess.ID})
		for _, r := range results {
			h.apply(sse, r)
		}
	}), nil
}

// session runs fn against the session named by the request's signals.
func (h *Handler) session(input *humastar.SignalsInput, fn func(id string, s humastar.Signals) (service.Result, error)) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := signals.String(SigSession)
	if id == "" {
		return nil, huma.Error400BadRequest("missing session signal")
	}

	res, err := fn(id, signals)
	if errors.Is(err, service.ErrSessionNotFound) {
		return nil, huma.Error404NotFound("session not found; reload the page")
	}
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) { h.apply(sse, res) }), nil
}

func (h *Handler) Select(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.session(input, func(id string, s humastar.Signals) (service.Result, error) {
		return h.sessions.Select(id, s.String(SigLayer))
	})
}

func (h *Handler) Toggle(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.session(input, func(id string, s humastar.Signals) (service.Result, error) {
		return h.sessions.Toggle(id)
	})
}

func (h *Handler) Opacity(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.session(input, func(id string, s humastar.Signals) (service.Result, error) {
		if !s.Has(SigOpacity) {
			return service.Result{}, huma.Error400BadRequest("missing opacity signal")
		}
		return h.sessions.SetOpacity(id, s.Int(SigOpacity))
	})
}

func (h *Handler) BaseLayer(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.session(input, func(id string, s humastar.Signals) (service.Result, error) {
		return h.sessions.ChangeBaseLayer(id, basemap.Parse(s.String(SigBaseLayer)))
	})
}

func (h *Handler) Overlay(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.session(input, func(id string, s humastar.Signals) (service.Result, error) {
		loaded := s.String(SigOverlayOutcome) == OutcomeLoaded
		return h.sessions.OverlayOutcome(id, s.Uint(SigOverlayGen), loaded)
	})
}

func (h *Handler) WelcomeClose(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.session(input, func(id string, s humastar.Signals) (service.Result, error) {
		return h.sessions.CloseWelcome(id, s.Bool(SigDontShowAgain))
	})
}

func (h *Handler) WelcomeShow(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.session(input, func(id string, s humastar.Signals) (service.Result, error) {
		return h.sessions.ShowWelcome(id)
	})
}

func (h *Handler) WelcomeDismiss(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.session(input, func(id string, s humastar.Signals) (service.Result, error) {
		return h.sessions.DismissWelcome(id)
	})
}
