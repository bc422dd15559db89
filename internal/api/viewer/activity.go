package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-hotspots/internal/humastar"
	"github.com/joeblew999/plat-hotspots/internal/service"
)

// ActivityEvent is the browser event name carrying session activity.
const ActivityEvent = "hotspots-activity"

// ActivityInput narrows the feed to one layer.
type ActivityInput struct {
	Layer string `query:"layer" doc:"Only events for this layer id" example:"Hospitales"`
}

// RegisterActivity registers the live activity feed.
func (h *Handler) RegisterActivity(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "viewer-activity",
		Method:      "GET",
		Path:        "/api/v1/viewer/events",
		Summary:     "Stream overlay activity from all viewer sessions",
		Tags:        []string{Tag},
	}, h.Activity)
}

// Activity streams session events as Datastar custom events until the
// client disconnects. Base layer switches are not layer activity and are
// left out when a layer filter is given.
func (h *Handler) Activity(ctx context.Context, input *ActivityInput) (*huma.StreamResponse, error) {
	filter := func(e service.Event) bool {
		return input.Layer == "" || (e.Action != service.ActionBaseLayer && e.LayerID == input.Layer)
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			bus := h.sessions.Bus()
			sub := bus.Subscribe(filter)
			defer bus.Unsubscribe(sub)

			done := humaCtx.Context().Done()
			for {
				select {
				case <-done:
					return
				case ev, ok := <-sub.C:
					if !ok {
						return
					}
					sse.DispatchCustomEvent(ActivityEvent, ev)
				}
			}
		},
	}, nil
}
