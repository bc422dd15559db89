package viewer

import (
	"github.com/joeblew999/plat-hotspots/internal/humastar"
	"github.com/joeblew999/plat-hotspots/internal/metadata"
	"github.com/joeblew999/plat-hotspots/internal/overlay"
	"github.com/joeblew999/plat-hotspots/internal/service"
	"github.com/joeblew999/plat-hotspots/internal/welcome"
)

// Element ids patched by the handlers.
const (
	SelectorID  = "#layer-selector"
	LayerInfoID = "#layer-info"
)

// overlayJS is the argument of hotspots.createOverlay.
type overlayJS struct {
	Generation uint64          `json:"generation"`
	URL        string          `json:"url"`
	Bounds     metadata.Bounds `json:"bounds"`
	Opacity    float64         `json:"opacity"`
}

// apply streams one transition's commands in order, then the modal state.
func (h *Handler) apply(sse humastar.SSE, res service.Result) {
	for _, cmd := range res.Commands {
		h.applyCommand(sse, cmd)
	}
	sse.Signals(map[string]any{SigWelcome: res.WelcomeVisible})
	if res.PersistWelcome {
		sse.Call("hotspots.persistWelcomeDismissal", welcome.StorageKey)
	}
}

func (h *Handler) applyCommand(sse humastar.SSE, cmd overlay.Command) {
	switch c := cmd.(type) {
	case overlay.ShowLoading:
		sse.Signals(map[string]any{SigLoading: c.Show})
	case overlay.Alert:
		sse.Alert(c.Message)
	case overlay.PopulateSelector:
		opts := make([]humastar.SelectOptionData, len(c.Options))
		for i, l := range c.Options {
			opts[i] = humastar.SelectOptionData{Value: l.ID, Label: l.Name}
		}
		sse.Patch(h.RenderSelect(c.Placeholder, opts), SelectorID)
	case overlay.SetSelectorValue:
		sse.Signals(map[string]any{SigLayer: c.ID})
	case overlay.CreateOverlay:
		sse.Call("hotspots.createOverlay", overlayJS{
			Generation: c.Overlay.Generation,
			URL:        c.Overlay.ImageURL,
			Bounds:     metadata.FromBound(c.Overlay.Bounds),
			Opacity:    c.Overlay.Opacity,
		})
	case overlay.AttachOverlay:
		sse.Call("hotspots.attachOverlay", c.Generation)
	case overlay.DetachOverlay:
		sse.Call("hotspots.detachOverlay", c.Generation)
	case overlay.DestroyOverlay:
		sse.Call("hotspots.destroyOverlay", c.Generation)
	case overlay.SetOverlayOpacity:
		sse.Call("hotspots.setOpacity", c.Opacity)
	case overlay.FitBounds:
		sse.Call("hotspots.fitBounds", metadata.FromBound(c.Bounds), c.Padding)
	case overlay.SetLayerInfo:
		sse.Patch(h.Render("layer-info", c.Layer), LayerInfoID)
	case overlay.SetToggleLabel:
		sse.Signals(map[string]any{SigToggleLabel: c.Label})
	case overlay.SetOpacityReadout:
		sse.Signals(map[string]any{SigOpacityLabel: c.Text})
	case overlay.SwitchBaseLayer:
		sse.Call("hotspots.setBaseLayer", c.Detach, c.Attach)
	}
}
