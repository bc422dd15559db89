package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-hotspots/internal/overlay"
)

// RegisterFootprints registers the GeoJSON coverage route.
func (h *APIHandler) RegisterFootprints(api huma.API) {
	huma.Get(api, "/api/v1/footprints", h.GetFootprints, huma.OperationTags("layers"),
		func(o *huma.Operation) {
			o.Summary = "Get layer footprints"
			o.Description = "Image bounds of every layer with metadata, as a GeoJSON FeatureCollection of polygons."
		})
}

// FootprintsOutput is a GeoJSON FeatureCollection.
type FootprintsOutput struct {
	Body *geojson.FeatureCollection
}

func (h *APIHandler) GetFootprints(ctx context.Context, input *struct{}) (*FootprintsOutput, error) {
	store := h.loadMetadata(ctx)
	fc := geojson.NewFeatureCollection()
	for _, desc := range h.svc.Catalog.All() {
		m, ok := store.Lookup(desc.ID)
		if !ok {
			continue
		}
		b := m.Bounds.Bound()
		f := geojson.NewFeature(b.ToPolygon())
		f.ID = desc.ID
		f.BBox = geojson.NewBBox(b)
		f.Properties["name"] = desc.Name
		f.Properties["source"] = desc.Source
		f.Properties["imageUrl"] = overlay.ImageURL(m.File)
		fc.Append(f)
	}
	return &FootprintsOutput{Body: fc}, nil
}
