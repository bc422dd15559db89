package overlay

import (
	"fmt"
	"path"
	"strings"

	"github.com/joeblew999/plat-hotspots/internal/basemap"
	"github.com/joeblew999/plat-hotspots/internal/catalog"
)

// Step applies ev to s. It never mutates s; on error the returned state
// equals s and the commands only restore or report.
func Step(s State, ev Event, deps Deps) (State, []Command, error) {
	s = s.clone()

	switch e := ev.(type) {
	case Started:
		return started(s, deps)
	case StartFailed:
		deps.logger().Error("metadata load failed", "error", e.Err)
		return s, []Command{
			Alert{Message: MsgMetadataFailed},
			ShowLoading{Show: false},
		}, nil
	case SelectLayer:
		return selectLayer(s, e.ID, deps)
	case DeselectLayer:
		next, cmds := deselectLayer(s)
		return next, cmds, nil
	case ToggleVisibility:
		return toggleVisibility(s)
	case SetOpacity:
		return setOpacity(s, e.Percent)
	case ChangeBaseLayer:
		return changeBaseLayer(s, e.Kind)
	case OverlayLoaded:
		return overlayLoaded(s, e.Generation, deps)
	case OverlayFailed:
		return overlayFailed(s, e.Generation, deps)
	default:
		return s, nil, fmt.Errorf("unknown event %T", ev)
	}
}

func started(s State, deps Deps) (State, []Command, error) {
	var options []catalog.LayerDescriptor
	if deps.Catalog != nil {
		options = deps.Catalog.All()
	}

	cmds := []Command{
		PopulateSelector{Placeholder: SelectorPlaceholder, Options: options},
		SetOpacityReadout{Text: percentText(s.Opacity)},
	}
	if len(options) == 0 {
		return s, append(cmds, ShowLoading{Show: false}), nil
	}

	next, more, err := selectLayer(s, options[0].ID, deps)
	cmds = append(cmds, more...)
	if err != nil {
		cmds = append(cmds, ShowLoading{Show: false})
	}
	return next, cmds, err
}

func selectLayer(s State, id string, deps Deps) (State, []Command, error) {
	desc, found := deps.find(id)
	if !found {
		deps.logger().Warn("config not found", "layer", id)
		return s, []Command{SetSelectorValue{ID: s.ActiveLayerID}}, fmt.Errorf("%w: %s", ErrUnknownLayer, id)
	}

	meta, ok := deps.lookup(id)
	if !ok {
		deps.logger().Warn("metadata not found", "layer", id)
		return s, []Command{
			Alert{Message: fmt.Sprintf("No se encontraron metadatos para %s", desc.Name)},
			SetSelectorValue{ID: s.ActiveLayerID},
		}, fmt.Errorf("%w: %s", ErrNoMetadata, id)
	}

	cmds := []Command{ShowLoading{Show: true}}
	if s.Overlay != nil {
		cmds = append(cmds, DestroyOverlay{Generation: s.Overlay.Generation})
	}

	s.Generation++
	o := &Overlay{
		LayerID:    id,
		ImageURL:   ImageURL(meta.File),
		Bounds:     meta.Bounds.Bound(),
		Opacity:    s.Opacity,
		Generation: s.Generation,
		Attached:   true,
	}
	s.Overlay = o
	s.ActiveLayerID = id
	s.Visible = true
	s.Loading = true

	cmds = append(cmds,
		SetSelectorValue{ID: id},
		CreateOverlay{Overlay: *o},
		SetToggleLabel{Label: LabelHide},
		FitBounds{Bounds: o.Bounds, Padding: FitPadding},
	)
	return s, cmds, nil
}

func deselectLayer(s State) (State, []Command) {
	var cmds []Command
	if s.Overlay != nil {
		cmds = append(cmds, DestroyOverlay{Generation: s.Overlay.Generation})
	}
	if s.Loading {
		cmds = append(cmds, ShowLoading{Show: false})
	}

	// Orphan any load still in flight.
	s.Generation++
	s = toEmpty(s)

	cmds = append(cmds,
		SetLayerInfo{},
		SetToggleLabel{Label: LabelHide},
	)
	return s, cmds
}

func toggleVisibility(s State) (State, []Command, error) {
	if s.Overlay == nil {
		return s, nil, nil
	}

	s.Visible = !s.Visible
	s.Overlay.Attached = s.Visible
	if s.Visible {
		return s, []Command{
			AttachOverlay{Generation: s.Overlay.Generation},
			SetToggleLabel{Label: LabelHide},
		}, nil
	}
	return s, []Command{
		DetachOverlay{Generation: s.Overlay.Generation},
		SetToggleLabel{Label: LabelShow},
	}, nil
}

func setOpacity(s State, percent int) (State, []Command, error) {
	percent = min(max(percent, 0), 100)
	s.Opacity = float64(percent) / 100

	cmds := []Command{SetOpacityReadout{Text: percentText(s.Opacity)}}
	if s.Overlay != nil {
		s.Overlay.Opacity = s.Opacity
		cmds = append(cmds, SetOverlayOpacity{Opacity: s.Opacity})
	}
	return s, cmds, nil
}

func changeBaseLayer(s State, kind basemap.Kind) (State, []Command, error) {
	kind = basemap.Parse(string(kind))
	s.BaseLayer = kind
	s.AttachedBaseLayers = []basemap.Kind{kind}
	return s, []Command{SwitchBaseLayer{Detach: basemap.Kinds(), Attach: kind}}, nil
}

func overlayLoaded(s State, gen uint64, deps Deps) (State, []Command, error) {
	if !s.current(gen) {
		deps.logger().Debug("ignoring stale load", "generation", gen, "current", s.Generation)
		return s, nil, nil
	}
	s.Loading = false

	info := SetLayerInfo{}
	if desc, ok := deps.find(s.ActiveLayerID); ok {
		info.Layer = &desc
	}
	label := LabelHide
	if !s.Visible {
		label = LabelShow
	}
	return s, []Command{
		info,
		SetToggleLabel{Label: label},
		ShowLoading{Show: false},
	}, nil
}

func overlayFailed(s State, gen uint64, deps Deps) (State, []Command, error) {
	if !s.current(gen) {
		deps.logger().Debug("ignoring stale load error", "generation", gen, "current", s.Generation)
		return s, nil, nil
	}

	name := s.ActiveLayerID
	if desc, ok := deps.find(s.ActiveLayerID); ok {
		name = desc.Name
	}
	deps.logger().Error("overlay image failed to load", "layer", s.ActiveLayerID, "url", s.Overlay.ImageURL)

	s = toEmpty(s)
	return s, []Command{
		ShowLoading{Show: false},
		DestroyOverlay{Generation: gen},
		SetSelectorValue{},
		SetLayerInfo{},
		SetToggleLabel{Label: LabelHide},
		Alert{Message: fmt.Sprintf("Error al cargar %s. Verifique que el archivo existe.", name)},
	}, nil
}

// current reports whether gen is the in-flight load of the owned overlay.
func (s State) current(gen uint64) bool {
	return s.Overlay != nil && s.Loading && gen == s.Generation && s.Overlay.Generation == gen
}

func toEmpty(s State) State {
	s.Overlay = nil
	s.ActiveLayerID = ""
	s.Visible = false
	s.Loading = false
	return s
}

// ImageURL maps a metadata file reference to its served path.
func ImageURL(file string) string {
	return DataPrefix + strings.TrimPrefix(path.Clean("/"+file), "/")
}

func percentText(opacity float64) string {
	return fmt.Sprintf("%d%%", int(opacity*100+0.5))
}
