// Package overlay implements the viewer's overlay state machine.
//
// Transitions are pure: [Step] takes the current [State] and an [Event] and
// returns the next State plus the side-effect [Command]s an adapter must
// carry out (attach an image overlay, patch a label, raise an alert). Nothing
// in this package touches a DOM, a map library or the network, so every rule
// can be exercised directly in tests.
package overlay

import (
	"errors"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-hotspots/internal/basemap"
	"github.com/joeblew999/plat-hotspots/internal/catalog"
	"github.com/joeblew999/plat-hotspots/internal/metadata"
)

var (
	// ErrUnknownLayer means the id is not in the catalog.
	ErrUnknownLayer = errors.New("layer not in catalog")
	// ErrNoMetadata means the id has no metadata entry.
	ErrNoMetadata = errors.New("no metadata for layer")
)

// UI strings.
const (
	LabelHide           = "Ocultar Capa"
	LabelShow           = "Mostrar Capa"
	SelectorPlaceholder = "Seleccione un análisis..."
	InfoPlaceholder     = "Seleccione un análisis para ver"
	MsgMetadataFailed   = "Error al cargar metadatos de las capas."
)

const (
	// FitPadding is the pixel padding used when fitting a new overlay's bounds.
	FitPadding = 50
	// DefaultOpacityPercent is the slider's initial position.
	DefaultOpacityPercent = 70
	// DefaultOpacity is DefaultOpacityPercent as a fraction.
	DefaultOpacity = DefaultOpacityPercent / 100.0
	// DataPrefix is where overlay images are served from.
	DataPrefix = "/data/"
)

// Catalog is the read side of the layer catalog.
type Catalog interface {
	All() []catalog.LayerDescriptor
	FindByID(id string) (catalog.LayerDescriptor, bool)
}

// Metadata is the read side of the metadata store.
type Metadata interface {
	Lookup(id string) (metadata.LayerMetadata, bool)
}

// Deps are the read-only collaborators a transition may consult.
type Deps struct {
	Catalog  Catalog
	Metadata Metadata
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Deps) find(id string) (catalog.LayerDescriptor, bool) {
	if d.Catalog == nil {
		return catalog.LayerDescriptor{}, false
	}
	return d.Catalog.FindByID(id)
}

func (d Deps) lookup(id string) (metadata.LayerMetadata, bool) {
	if d.Metadata == nil {
		return metadata.LayerMetadata{}, false
	}
	return d.Metadata.Lookup(id)
}

// Phase is Empty or Showing.
type Phase int

const (
	Empty Phase = iota
	Showing
)

func (p Phase) String() string {
	if p == Showing {
		return "showing"
	}
	return "empty"
}

// Overlay is the single rendered image overlay a State may own.
type Overlay struct {
	LayerID    string
	ImageURL   string
	Bounds     orb.Bound
	Opacity    float64
	Generation uint64
	Attached   bool
}

// State is one viewer's overlay and base map state.
type State struct {
	ActiveLayerID string
	Overlay       *Overlay
	Visible       bool
	Opacity       float64

	// Generation identifies the most recent load attempt. Load outcomes
	// carrying any other generation are stale.
	Generation uint64
	Loading    bool

	BaseLayer          basemap.Kind
	AttachedBaseLayers []basemap.Kind
}

// NewState returns the initial Empty state.
func NewState() State {
	return State{
		Opacity:            DefaultOpacity,
		BaseLayer:          basemap.Default,
		AttachedBaseLayers: []basemap.Kind{basemap.Default},
	}
}

// Phase reports whether a layer is showing.
func (s State) Phase() Phase {
	if s.ActiveLayerID == "" {
		return Empty
	}
	return Showing
}

// clone detaches s from any storage shared with the value it was copied from.
func (s State) clone() State {
	if s.Overlay != nil {
		o := *s.Overlay
		s.Overlay = &o
	}
	s.AttachedBaseLayers = append([]basemap.Kind(nil), s.AttachedBaseLayers...)
	return s
}

// Event is an input to [Step].
type Event interface{ event() }

type (
	// Started is raised once the metadata store is available.
	Started struct{}
	// StartFailed is raised when the metadata store could not be loaded.
	StartFailed struct{ Err error }
	// SelectLayer is a selector change to a non-empty id.
	SelectLayer struct{ ID string }
	// DeselectLayer is a selector change to the placeholder.
	DeselectLayer struct{}
	// ToggleVisibility is the show/hide button.
	ToggleVisibility struct{}
	// SetOpacity carries the slider position as an integer percentage.
	SetOpacity struct{ Percent int }
	// ChangeBaseLayer is the base layer control.
	ChangeBaseLayer struct{ Kind basemap.Kind }
	// OverlayLoaded is the image-loaded callback for a load attempt.
	OverlayLoaded struct{ Generation uint64 }
	// OverlayFailed is the image-error callback for a load attempt.
	OverlayFailed struct{ Generation uint64 }
)

func (Started) event()          {}
func (StartFailed) event()      {}
func (SelectLayer) event()      {}
func (DeselectLayer) event()    {}
func (ToggleVisibility) event() {}
func (SetOpacity) event()       {}
func (ChangeBaseLayer) event()  {}
func (OverlayLoaded) event()    {}
func (OverlayFailed) event()    {}

// Command is a side effect for the adapter to perform, in order.
type Command interface{ command() }

type (
	// ShowLoading toggles the loading indicator.
	ShowLoading struct{ Show bool }
	// Alert is a blocking user-facing message.
	Alert struct{ Message string }
	// PopulateSelector fills the layer dropdown.
	PopulateSelector struct {
		Placeholder string
		Options     []catalog.LayerDescriptor
	}
	// SetSelectorValue sets the dropdown's current value ("" = placeholder).
	SetSelectorValue struct{ ID string }
	// CreateOverlay constructs the image overlay and attaches it to the map.
	CreateOverlay struct{ Overlay Overlay }
	// AttachOverlay re-adds an existing overlay to the map.
	AttachOverlay struct{ Generation uint64 }
	// DetachOverlay removes an overlay from the map without destroying it.
	DetachOverlay struct{ Generation uint64 }
	// DestroyOverlay detaches and releases an overlay.
	DestroyOverlay struct{ Generation uint64 }
	// SetOverlayOpacity applies opacity to the live overlay.
	SetOverlayOpacity struct{ Opacity float64 }
	// FitBounds moves the map view to the bounds with pixel padding.
	FitBounds struct {
		Bounds  orb.Bound
		Padding int
	}
	// SetLayerInfo shows a layer's description, or the placeholder when nil.
	SetLayerInfo struct{ Layer *catalog.LayerDescriptor }
	// SetToggleLabel sets the visibility button text.
	SetToggleLabel struct{ Label string }
	// SetOpacityReadout sets the text next to the slider.
	SetOpacityReadout struct{ Text string }
	// SwitchBaseLayer detaches every listed base layer then attaches one.
	SwitchBaseLayer struct {
		Detach []basemap.Kind
		Attach basemap.Kind
	}
)

func (ShowLoading) command()       {}
func (Alert) command()             {}
func (PopulateSelector) command()  {}
func (SetSelectorValue) command()  {}
func (CreateOverlay) command()     {}
func (AttachOverlay) command()     {}
func (DetachOverlay) command()     {}
func (DestroyOverlay) command()    {}
func (SetOverlayOpacity) command() {}
func (FitBounds) command()         {}
func (SetLayerInfo) command()      {}
func (SetToggleLabel) command()    {}
func (SetOpacityReadout) command() {}
func (SwitchBaseLayer) command()   {}
