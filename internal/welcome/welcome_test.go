package welcome

import "testing"

func TestShownOnFirstVisit(t *testing.T) {
	m := Open(&MemoryStore{})
	if !m.Visible() {
		t.Fatal("modal should auto-show without a persisted flag")
	}
}

func TestCloseWithDontShowAgainPersists(t *testing.T) {
	store := &MemoryStore{}
	m := Open(store)
	if err := m.Close(true); err != nil {
		t.Fatal(err)
	}
	if m.Visible() || !store.Hidden() {
		t.Fatalf("visible=%v hidden=%v", m.Visible(), store.Hidden())
	}

	// Simulated restart.
	restarted := Open(store)
	if restarted.Visible() {
		t.Fatal("modal auto-showed after dismissal was persisted")
	}
	restarted.ShowInfo()
	if !restarted.Visible() {
		t.Fatal("show info must open regardless of the flag")
	}
}

func TestCloseWithoutCheckboxDoesNotPersist(t *testing.T) {
	store := &MemoryStore{}
	Open(store).Close(false)
	if store.Hidden() {
		t.Fatal("flag persisted without checkbox")
	}
	if !Open(store).Visible() {
		t.Fatal("modal should still auto-show")
	}
}

func TestDismissOutsideNeverPersists(t *testing.T) {
	store := &MemoryStore{}
	m := Open(store)
	m.DismissOutside()
	if m.Visible() {
		t.Fatal("still visible")
	}
	if store.Hidden() {
		t.Fatal("outside click persisted the flag")
	}
}
