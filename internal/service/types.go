// Package service contains the viewer's stateful services: per-page overlay
// sessions, the event bus connecting them to observers, and the usage ledger.
package service

import (
	"time"

	"github.com/joeblew999/plat-hotspots/internal/overlay"
)

// Event actions published on the bus.
const (
	ActionSelected   = "selected"
	ActionLoaded     = "loaded"
	ActionFailed     = "failed"
	ActionDeselected = "deselected"
	ActionHidden     = "hidden"
	ActionShown      = "shown"
	ActionBaseLayer  = "basemap"
)

// Event is an overlay state change in one viewer session.
type Event struct {
	SessionID string    `json:"sessionId"`
	LayerID   string    `json:"layerId"` // base layer kind for ActionBaseLayer
	Action    string    `json:"action"`
	At        time.Time `json:"at"`
}

// Result is the outcome of one session transition.
type Result struct {
	Commands []overlay.Command

	// WelcomeVisible is the modal's visibility after the transition.
	WelcomeVisible bool
	// PersistWelcome asks the adapter to store the dismissal flag.
	PersistWelcome bool

	// Err is a domain rejection already reported through Commands.
	Err error
}

// LayerUsage aggregates ledger rows for one layer.
type LayerUsage struct {
	LayerID  string `json:"layerId" doc:"Layer identifier" example:"Hospitales"`
	Selected int64  `json:"selected" doc:"Times the layer was selected"`
	Loaded   int64  `json:"loaded" doc:"Times its image finished loading"`
	Failed   int64  `json:"failed" doc:"Times its image failed to load"`
}
