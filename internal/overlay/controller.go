package overlay

import (
	"log/slog"

	"github.com/joeblew999/plat-hotspots/internal/basemap"
)

// Machine owns one State and applies events to it.
// It is not safe for concurrent use; callers serialize access.
type Machine struct {
	deps  Deps
	state State
}

// NewMachine returns a Machine in the initial Empty state.
func NewMachine(cat Catalog, logger *slog.Logger) *Machine {
	return &Machine{
		deps:  Deps{Catalog: cat, Logger: logger},
		state: NewState(),
	}
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.state.clone()
}

// Dispatch applies ev and commits the resulting state.
func (m *Machine) Dispatch(ev Event) ([]Command, error) {
	next, cmds, err := Step(m.state, ev, m.deps)
	m.state = next
	return cmds, err
}

// Start binds the loaded metadata, populates the selector and selects the
// first catalog entry.
func (m *Machine) Start(store Metadata) ([]Command, error) {
	m.deps.Metadata = store
	return m.Dispatch(Started{})
}

// StartFailed reports a metadata load failure.
func (m *Machine) StartFailed(err error) []Command {
	cmds, _ := m.Dispatch(StartFailed{Err: err})
	return cmds
}

// SelectLayer switches to id, or deselects when id is empty.
func (m *Machine) SelectLayer(id string) ([]Command, error) {
	if id == "" {
		return m.Dispatch(DeselectLayer{})
	}
	return m.Dispatch(SelectLayer{ID: id})
}

// DeselectLayer clears the active layer.
func (m *Machine) DeselectLayer() []Command {
	cmds, _ := m.Dispatch(DeselectLayer{})
	return cmds
}

// ToggleVisibility flips the overlay's attachment.
func (m *Machine) ToggleVisibility() []Command {
	cmds, _ := m.Dispatch(ToggleVisibility{})
	return cmds
}

// SetOpacity applies a slider percentage.
func (m *Machine) SetOpacity(percent int) []Command {
	cmds, _ := m.Dispatch(SetOpacity{Percent: percent})
	return cmds
}

// ChangeBaseLayer switches the base map.
func (m *Machine) ChangeBaseLayer(kind basemap.Kind) []Command {
	cmds, _ := m.Dispatch(ChangeBaseLayer{Kind: kind})
	return cmds
}

// OverlayLoaded handles the image-loaded callback for generation gen.
func (m *Machine) OverlayLoaded(gen uint64) []Command {
	cmds, _ := m.Dispatch(OverlayLoaded{Generation: gen})
	return cmds
}

// OverlayFailed handles the image-error callback for generation gen.
func (m *Machine) OverlayFailed(gen uint64) []Command {
	cmds, _ := m.Dispatch(OverlayFailed{Generation: gen})
	return cmds
}
