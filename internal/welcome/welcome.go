// Package welcome models the welcome/info modal.
//
// A persisted flag only suppresses the automatic display at startup; the
// explicit "show info" action always opens the modal.
package welcome

// StorageKey is the browser storage key holding the dismissal flag.
const StorageKey = "hideWelcomeModal"

// FlagStore persists the "don't show again" choice.
type FlagStore interface {
	Hidden() bool
	SetHidden() error
}

// Modal is the modal's visibility state.
type Modal struct {
	store   FlagStore
	visible bool
}

// Open creates the modal for a fresh page, visible unless dismissed before.
func Open(store FlagStore) *Modal {
	return &Modal{store: store, visible: !store.Hidden()}
}

// Visible reports whether the modal is shown.
func (m *Modal) Visible() bool { return m.visible }

// Close is the explicit close action. The flag is persisted only when
// dontShowAgain is checked at that moment.
func (m *Modal) Close(dontShowAgain bool) error {
	m.visible = false
	if dontShowAgain {
		return m.store.SetHidden()
	}
	return nil
}

// ShowInfo reopens the modal regardless of the persisted flag.
func (m *Modal) ShowInfo() { m.visible = true }

// DismissOutside handles a click outside the content area. It never persists.
func (m *Modal) DismissOutside() { m.visible = false }

// MemoryStore is an in-process FlagStore.
type MemoryStore struct {
	hidden bool
}

// Hidden implements FlagStore.
func (s *MemoryStore) Hidden() bool { return s.hidden }

// SetHidden implements FlagStore.
func (s *MemoryStore) SetHidden() error {
	s.hidden = true
	return nil
}
