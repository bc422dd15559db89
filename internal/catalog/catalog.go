// Package catalog holds the static, ordered list of hotspot analyses.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultYAML []byte

// LayerDescriptor describes one hotspot analysis.
type LayerDescriptor struct {
	ID          string `json:"id" yaml:"id" doc:"Unique layer identifier" example:"Hospitales"`
	Name        string `json:"name" yaml:"name" doc:"Display name" example:"Hospitales"`
	Description string `json:"description" yaml:"description" doc:"Free text description"`
	Source      string `json:"source" yaml:"source" doc:"Data source citation" example:"Departamento de Salud, 2024"`
}

// Catalog is a read-only ordered sequence of descriptors.
// Order defines selector order and which entry loads first.
type Catalog struct {
	layers []LayerDescriptor
	index  map[string]int
}

// New builds a catalog, rejecting empty or duplicate ids.
func New(layers []LayerDescriptor) (*Catalog, error) {
	c := &Catalog{
		layers: make([]LayerDescriptor, len(layers)),
		index:  make(map[string]int, len(layers)),
	}
	copy(c.layers, layers)

	for i, l := range c.layers {
		if l.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
		if _, dup := c.index[l.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog id %q", l.ID)
		}
		c.index[l.ID] = i
	}
	return c, nil
}

// Parse builds a catalog from a YAML list of descriptors.
func Parse(data []byte) (*Catalog, error) {
	var layers []LayerDescriptor
	if err := yaml.Unmarshal(data, &layers); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return New(layers)
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the built-in catalog of Puerto Rico healthcare analyses.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// All returns the descriptors in display order.
func (c *Catalog) All() []LayerDescriptor {
	out := make([]LayerDescriptor, len(c.layers))
	copy(out, c.layers)
	return out
}

// FindByID returns the descriptor for id.
func (c *Catalog) FindByID(id string) (LayerDescriptor, bool) {
	i, ok := c.index[id]
	if !ok {
		return LayerDescriptor{}, false
	}
	return c.layers[i], true
}

// First returns the entry auto-selected at startup.
func (c *Catalog) First() (LayerDescriptor, bool) {
	if len(c.layers) == 0 {
		return LayerDescriptor{}, false
	}
	return c.layers[0], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.layers)
}
