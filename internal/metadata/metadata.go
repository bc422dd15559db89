// Package metadata loads the raster metadata document that maps each layer
// id to its overlay image and geographic bounds.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

var (
	// ErrFetch is returned when the metadata document could not be retrieved.
	ErrFetch = errors.New("metadata fetch failed")
	// ErrInvalid is returned when the document could not be parsed or validated.
	ErrInvalid = errors.New("invalid metadata")
)

// Bounds is the Leaflet-style corner pair [[south, west], [north, east]].
type Bounds [2][2]float64

// FromBound converts an orb bound (lon/lat) to lat/lng corners.
func FromBound(b orb.Bound) Bounds {
	return Bounds{
		{b.Min.Lat(), b.Min.Lon()},
		{b.Max.Lat(), b.Max.Lon()},
	}
}

// Bound returns the corners as a normalized orb bound.
func (b Bounds) Bound() orb.Bound {
	return orb.MultiPoint{
		{b[0][1], b[0][0]},
		{b[1][1], b[1][0]},
	}.Bound()
}

func (b Bounds) validate() error {
	for _, corner := range b {
		lat, lng := corner[0], corner[1]
		if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
			return fmt.Errorf("non-finite coordinate %v", corner)
		}
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return fmt.Errorf("coordinate out of range %v", corner)
		}
	}
	return nil
}

// LayerMetadata is the overlay image and its bounding box for one layer.
type LayerMetadata struct {
	File   string `json:"file" doc:"Image path relative to the data directory" example:"Hospitales.png"`
	Bounds Bounds `json:"bounds" doc:"[[south, west], [north, east]]"`
}

// Store is an immutable id → LayerMetadata mapping.
// A Store is only ever constructed fully populated.
type Store struct {
	layers map[string]LayerMetadata
}

// Parse decodes and validates a metadata document.
func Parse(r io.Reader) (*Store, error) {
	var raw map[string]LayerMetadata
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	layers := make(map[string]LayerMetadata, len(raw))
	for id, m := range raw {
		if m.File == "" {
			return nil, fmt.Errorf("%w: layer %q has no file", ErrInvalid, id)
		}
		if err := m.Bounds.validate(); err != nil {
			return nil, fmt.Errorf("%w: layer %q: %v", ErrInvalid, id, err)
		}
		m.Bounds = FromBound(m.Bounds.Bound())
		layers[id] = m
	}
	return &Store{layers: layers}, nil
}

// Load performs a single fetch and parses the result.
// On any failure no Store is returned.
func Load(ctx context.Context, f Fetcher) (*Store, error) {
	rc, err := f.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer rc.Close()
	return Parse(rc)
}

// Lookup returns the metadata for id. It never panics, including on a nil Store.
func (s *Store) Lookup(id string) (LayerMetadata, bool) {
	if s == nil {
		return LayerMetadata{}, false
	}
	m, ok := s.layers[id]
	return m, ok
}

// Len returns the number of layers.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.layers)
}

// IDs returns the layer ids in sorted order.
func (s *Store) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.layers))
	for id := range s.layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Encode writes layers in the document format read by Parse.
func Encode(w io.Writer, layers map[string]LayerMetadata) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(layers)
}
