package overlay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/joeblew999/plat-hotspots/internal/basemap"
	"github.com/joeblew999/plat-hotspots/internal/catalog"
	"github.com/joeblew999/plat-hotspots/internal/metadata"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fullStore returns metadata for every catalog entry except those in skip.
func fullStore(t *testing.T, skip ...string) *metadata.Store {
	t.Helper()
	skipped := map[string]bool{}
	for _, id := range skip {
		skipped[id] = true
	}

	var parts []string
	for i, l := range catalog.Default().All() {
		if skipped[l.ID] {
			continue
		}
		south := 17.8 + float64(i)*0.01
		parts = append(parts, fmt.Sprintf(`%q: {"file": "%s.png", "bounds": [[%v, -67.3], [18.6, -65.2]]}`, l.ID, l.ID, south))
	}
	s, err := metadata.Parse(strings.NewReader("{" + strings.Join(parts, ",") + "}"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func startedMachine(t *testing.T, store *metadata.Store) (*Machine, []Command) {
	t.Helper()
	m := NewMachine(catalog.Default(), quiet)
	cmds, err := m.Start(store)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return m, cmds
}

func find[T Command](cmds []Command) (T, bool) {
	for _, c := range cmds {
		if v, ok := c.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func count[T Command](cmds []Command) int {
	n := 0
	for _, c := range cmds {
		if _, ok := c.(T); ok {
			n++
		}
	}
	return n
}

func TestStartSelectsFirstEntry(t *testing.T) {
	store := fullStore(t)
	if store.Len() != 11 {
		t.Fatalf("fixture has %d entries, want 11", store.Len())
	}
	m, cmds := startedMachine(t, store)

	pop, ok := find[PopulateSelector](cmds)
	if !ok || len(pop.Options) != 11 || pop.Placeholder != SelectorPlaceholder {
		t.Fatalf("selector not populated: %+v", pop)
	}

	st := m.State()
	if st.ActiveLayerID != "CDTs" || st.Phase() != Showing || !st.Visible {
		t.Fatalf("state=%+v", st)
	}

	create, ok := find[CreateOverlay](cmds)
	if !ok || create.Overlay.LayerID != "CDTs" || create.Overlay.ImageURL != "/data/CDTs.png" {
		t.Fatalf("create=%+v", create)
	}

	meta, _ := store.Lookup("CDTs")
	fit, ok := find[FitBounds](cmds)
	if !ok || fit.Padding != 50 || fit.Bounds != meta.Bounds.Bound() {
		t.Fatalf("fit=%+v", fit)
	}
}

func TestStartFailed(t *testing.T) {
	m := NewMachine(catalog.Default(), quiet)
	cmds := m.StartFailed(errors.New("boom"))

	alert, ok := find[Alert](cmds)
	if !ok || alert.Message != MsgMetadataFailed {
		t.Fatalf("alert=%+v", alert)
	}
	if _, ok := find[PopulateSelector](cmds); ok {
		t.Fatal("selector populated after failure")
	}
	if m.State().Phase() != Empty {
		t.Fatal("expected Empty")
	}
}

func TestStartWithEmptyCatalog(t *testing.T) {
	empty, _ := catalog.New(nil)
	m := NewMachine(empty, quiet)
	cmds, err := m.Start(fullStore(t))
	if err != nil {
		t.Fatal(err)
	}
	if show, ok := find[ShowLoading](cmds); !ok || show.Show {
		t.Fatalf("loading not hidden: %+v", cmds)
	}
}

func TestStartFirstEntryWithoutMetadataHidesLoading(t *testing.T) {
	m := NewMachine(catalog.Default(), quiet)
	cmds, err := m.Start(fullStore(t, "CDTs"))
	if !errors.Is(err, ErrNoMetadata) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := find[Alert](cmds); !ok {
		t.Fatalf("no alert: %+v", cmds)
	}
	show, ok := find[ShowLoading](cmds)
	if !ok || show.Show {
		t.Fatalf("loading not hidden: %+v", cmds)
	}
	if _, ok := find[PopulateSelector](cmds); !ok {
		t.Fatal("selector not populated")
	}
	if m.State().Phase() != Empty {
		t.Fatal("expected Empty")
	}
}

func TestLoadOutcomesWithoutCatalog(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	s := m.State()
	gen := s.Generation

	next, cmds, err := Step(s, OverlayLoaded{Generation: gen}, Deps{Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	if info, ok := find[SetLayerInfo](cmds); !ok || info.Layer != nil {
		t.Fatalf("info = %+v", cmds)
	}
	if next.Loading {
		t.Fatal("still loading")
	}

	_, cmds, err = Step(s, OverlayFailed{Generation: gen}, Deps{Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	alert, ok := find[Alert](cmds)
	if !ok || !strings.Contains(alert.Message, "CDTs") {
		t.Fatalf("alert = %+v", alert)
	}
}

func TestSelectEveryLayer(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	for _, l := range catalog.Default().All() {
		cmds, err := m.SelectLayer(l.ID)
		if err != nil {
			t.Fatalf("%s: %v", l.ID, err)
		}
		m.OverlayLoaded(m.State().Generation)

		st := m.State()
		if st.ActiveLayerID != l.ID {
			t.Fatalf("active=%q, want %q", st.ActiveLayerID, l.ID)
		}
		if st.Overlay == nil || !st.Overlay.Attached || st.Overlay.LayerID != l.ID {
			t.Fatalf("overlay=%+v", st.Overlay)
		}
		if n := count[CreateOverlay](cmds); n != 1 {
			t.Fatalf("created %d overlays", n)
		}
	}
}

func TestSelectMissingMetadataKeepsState(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t, "Farmacias"))
	m.OverlayLoaded(m.State().Generation)
	before := m.State()

	cmds, err := m.SelectLayer("Farmacias")
	if !errors.Is(err, ErrNoMetadata) || !strings.Contains(err.Error(), "Farmacias") {
		t.Fatalf("err=%v", err)
	}
	alert, ok := find[Alert](cmds)
	if !ok || !strings.Contains(alert.Message, "Farmacias") {
		t.Fatalf("alert=%+v", alert)
	}
	if n := count[DestroyOverlay](cmds); n != 0 {
		t.Fatal("prior overlay destroyed on rejected selection")
	}
	if sel, _ := find[SetSelectorValue](cmds); sel.ID != "CDTs" {
		t.Fatalf("selector not restored: %q", sel.ID)
	}

	after := m.State()
	if after.ActiveLayerID != before.ActiveLayerID || after.Generation != before.Generation || !after.Overlay.Attached {
		t.Fatalf("state changed: before=%+v after=%+v", before, after)
	}
}

func TestSelectUnknownLayerIsSilent(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	cmds, err := m.SelectLayer("nope")
	if !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("err=%v", err)
	}
	if _, ok := find[Alert](cmds); ok {
		t.Fatal("unknown catalog id should not alert")
	}
	if m.State().ActiveLayerID != "CDTs" {
		t.Fatal("state changed")
	}
}

func TestSwitchDestroysPreviousBeforeCreate(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	if _, err := m.SelectLayer("Hospitales"); err != nil {
		t.Fatal(err)
	}
	hosp := m.State().Generation

	cmds, err := m.SelectLayer("Farmacias")
	if err != nil {
		t.Fatal(err)
	}

	destroyAt, createAt := -1, -1
	for i, c := range cmds {
		switch v := c.(type) {
		case DestroyOverlay:
			if v.Generation == hosp {
				destroyAt = i
			}
		case CreateOverlay:
			createAt = i
		}
	}
	if destroyAt < 0 || createAt < 0 || destroyAt > createAt {
		t.Fatalf("destroy=%d create=%d in %+v", destroyAt, createAt, cmds)
	}

	// Farmacias fails to load: nothing attached, alert names it.
	cmds = m.OverlayFailed(m.State().Generation)
	alert, ok := find[Alert](cmds)
	if !ok || !strings.Contains(alert.Message, "Farmacias") {
		t.Fatalf("alert=%+v", alert)
	}
	st := m.State()
	if st.Overlay != nil || st.Phase() != Empty {
		t.Fatalf("overlay still owned after failure: %+v", st)
	}
	if _, ok := find[DestroyOverlay](cmds); !ok {
		t.Fatal("failed overlay not destroyed")
	}
}

func TestStaleLoadOutcomesIgnored(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	first := m.State().Generation

	if _, err := m.SelectLayer("Hospitales"); err != nil {
		t.Fatal(err)
	}
	if cmds := m.OverlayLoaded(first); cmds != nil {
		t.Fatalf("stale load produced %+v", cmds)
	}
	if cmds := m.OverlayFailed(first); cmds != nil {
		t.Fatalf("stale error produced %+v", cmds)
	}
	if !m.State().Loading || m.State().ActiveLayerID != "Hospitales" {
		t.Fatal("stale outcome changed state")
	}
}

func TestLoadOutcomesAreExclusive(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	gen := m.State().Generation

	loaded := m.OverlayLoaded(gen)
	info, ok := find[SetLayerInfo](loaded)
	if !ok || info.Layer == nil || info.Layer.ID != "CDTs" {
		t.Fatalf("info=%+v", info)
	}
	if cmds := m.OverlayFailed(gen); cmds != nil {
		t.Fatalf("error after load produced %+v", cmds)
	}
	if m.State().Overlay == nil {
		t.Fatal("overlay dropped by late error")
	}
}

func TestDeselectOrphansInflightLoad(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	gen := m.State().Generation

	cmds := m.DeselectLayer()
	if _, ok := find[DestroyOverlay](cmds); !ok {
		t.Fatal("overlay not destroyed")
	}
	if show, ok := find[ShowLoading](cmds); !ok || show.Show {
		t.Fatal("loading indicator not cleared")
	}
	if m.State().Phase() != Empty {
		t.Fatal("expected Empty")
	}
	if cmds := m.OverlayLoaded(gen); cmds != nil {
		t.Fatalf("late load after deselect produced %+v", cmds)
	}
}

func TestSelectEmptyIDDeselects(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	if _, err := m.SelectLayer(""); err != nil {
		t.Fatal(err)
	}
	if m.State().Phase() != Empty {
		t.Fatal("expected Empty")
	}
}

func TestToggleVisibilityTwice(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	m.SetOpacity(40)
	before := m.State()

	cmds := m.ToggleVisibility()
	if _, ok := find[DetachOverlay](cmds); !ok {
		t.Fatal("first toggle should detach")
	}
	if lbl, _ := find[SetToggleLabel](cmds); lbl.Label != LabelShow {
		t.Fatalf("label=%q", lbl.Label)
	}
	if m.State().Visible {
		t.Fatal("still visible")
	}

	cmds = m.ToggleVisibility()
	if _, ok := find[AttachOverlay](cmds); !ok {
		t.Fatal("second toggle should attach")
	}

	after := m.State()
	if after.Visible != before.Visible || after.ActiveLayerID != before.ActiveLayerID || after.Opacity != before.Opacity {
		t.Fatalf("before=%+v after=%+v", before, after)
	}
	if !after.Overlay.Attached {
		t.Fatal("overlay not reattached")
	}
}

func TestToggleInEmptyIsNoop(t *testing.T) {
	m := NewMachine(catalog.Default(), quiet)
	if cmds := m.ToggleVisibility(); cmds != nil {
		t.Fatalf("cmds=%+v", cmds)
	}
}

func TestSetOpacity(t *testing.T) {
	cases := []struct {
		percent int
		want    float64
		text    string
	}{
		{30, 0.3, "30%"},
		{0, 0, "0%"},
		{100, 1, "100%"},
		{-20, 0, "0%"},
		{250, 1, "100%"},
	}
	for _, tc := range cases {
		m := NewMachine(catalog.Default(), quiet)
		cmds := m.SetOpacity(tc.percent)
		if got := m.State().Opacity; got != tc.want {
			t.Errorf("SetOpacity(%d) stored %v, want %v", tc.percent, got, tc.want)
		}
		if r, _ := find[SetOpacityReadout](cmds); r.Text != tc.text {
			t.Errorf("SetOpacity(%d) readout %q, want %q", tc.percent, r.Text, tc.text)
		}
		again := m.SetOpacity(tc.percent)
		if m.State().Opacity != tc.want || len(again) != len(cmds) {
			t.Errorf("SetOpacity(%d) not idempotent", tc.percent)
		}
	}
}

func TestOpacityBeforeSelectionCarriesOver(t *testing.T) {
	m := NewMachine(catalog.Default(), quiet)
	cmds := m.SetOpacity(30)
	if _, ok := find[SetOverlayOpacity](cmds); ok {
		t.Fatal("no overlay to apply opacity to")
	}

	cmds, err := m.Start(fullStore(t))
	if err != nil {
		t.Fatal(err)
	}
	create, _ := find[CreateOverlay](cmds)
	if create.Overlay.Opacity != 0.3 {
		t.Fatalf("initial opacity=%v, want 0.3", create.Overlay.Opacity)
	}
	if r, _ := find[SetOpacityReadout](cmds); r.Text != "30%" {
		t.Fatalf("readout=%q", r.Text)
	}
}

func TestOpacityAppliesWhileHidden(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	m.ToggleVisibility()
	cmds := m.SetOpacity(55)
	op, ok := find[SetOverlayOpacity](cmds)
	if !ok || op.Opacity != 0.55 {
		t.Fatalf("op=%+v", op)
	}
	if m.State().Overlay.Opacity != 0.55 {
		t.Fatal("owned overlay opacity not updated")
	}
}

func TestChangeBaseLayerAttachesExactlyOne(t *testing.T) {
	m := NewMachine(catalog.Default(), quiet)
	for _, k := range []basemap.Kind{"satellite", "dark", "bogus", "dark", "default"} {
		cmds := m.ChangeBaseLayer(k)
		st := m.State()
		if len(st.AttachedBaseLayers) != 1 {
			t.Fatalf("%s: attached=%v", k, st.AttachedBaseLayers)
		}
		sw, ok := find[SwitchBaseLayer](cmds)
		if !ok || len(sw.Detach) != 3 || sw.Attach != st.AttachedBaseLayers[0] {
			t.Fatalf("%s: switch=%+v", k, sw)
		}
	}
	if m.State().BaseLayer != basemap.Default {
		t.Fatalf("base=%s", m.State().BaseLayer)
	}
}

func TestStepDoesNotMutateInput(t *testing.T) {
	m, _ := startedMachine(t, fullStore(t))
	s := m.State()
	deps := Deps{Catalog: catalog.Default(), Metadata: fullStore(t), Logger: quiet}

	next, _, err := Step(s, SetOpacity{Percent: 10}, deps)
	if err != nil {
		t.Fatal(err)
	}
	if s.Overlay.Opacity == next.Overlay.Opacity {
		t.Fatal("expected opacity change in next state")
	}
	if s.Overlay.Opacity != DefaultOpacity {
		t.Fatalf("input state mutated: %v", s.Overlay.Opacity)
	}
}

func TestImageURL(t *testing.T) {
	cases := map[string]string{
		"Hospitales.png":     "/data/Hospitales.png",
		"/Hospitales.png":    "/data/Hospitales.png",
		"../../etc/passwd":   "/data/etc/passwd",
		"sub/Farmacias.png":  "/data/sub/Farmacias.png",
	}
	for in, want := range cases {
		if got := ImageURL(in); got != want {
			t.Errorf("ImageURL(%q)=%q, want %q", in, got, want)
		}
	}
}
