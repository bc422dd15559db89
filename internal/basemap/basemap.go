// Package basemap defines the fixed tile sources the viewer can switch between.
package basemap

// Kind identifies a base layer.
type Kind string

const (
	Default   Kind = "default"
	Satellite Kind = "satellite"
	Dark      Kind = "dark"
)

// MaxZoom is shared by every base layer.
const MaxZoom = 18

// Layer is a tile endpoint template with its attribution.
type Layer struct {
	Kind        Kind   `json:"kind" enum:"default,satellite,dark" doc:"Base layer kind"`
	Label       string `json:"label" doc:"Display label"`
	URL         string `json:"url" doc:"Tile URL template"`
	Attribution string `json:"attribution" doc:"Attribution HTML"`
	MaxZoom     int    `json:"maxZoom" doc:"Maximum zoom level" example:"18"`
}

var layers = []Layer{
	{
		Kind:        Default,
		Label:       "Mapa estándar",
		URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "© OpenStreetMap contributors",
		MaxZoom:     MaxZoom,
	},
	{
		Kind:        Satellite,
		Label:       "Satélite",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: "Tiles &copy; Esri",
		MaxZoom:     MaxZoom,
	},
	{
		Kind:        Dark,
		Label:       "Oscuro",
		URL:         "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
		Attribution: "&copy; OpenStreetMap contributors &copy; CARTO",
		MaxZoom:     MaxZoom,
	},
}

// All returns the base layers in display order.
func All() []Layer {
	out := make([]Layer, len(layers))
	copy(out, layers)
	return out
}

// Kinds returns every kind in display order.
func Kinds() []Kind {
	kinds := make([]Kind, len(layers))
	for i, l := range layers {
		kinds[i] = l.Kind
	}
	return kinds
}

// Parse maps a control value to a kind. Anything unrecognized is Default.
func Parse(s string) Kind {
	switch Kind(s) {
	case Satellite:
		return Satellite
	case Dark:
		return Dark
	default:
		return Default
	}
}
