// Package adapter holds the AdapterDescriptor type and the diff/classify
// engine that the Adapter Manager uses to reconcile the live catalog against
// a freshly loaded configuration tree.
package adapter

import (
	"fmt"
	"sort"

	"github.com/orbit-project/orbit/internal/config"
)

// Descriptor is the canonical, declarative definition of one adapter (spec
// §3 AdapterDescriptor). name is unique across the live catalog; two
// descriptors with the same name loaded at different times represent the
// same adapter undergoing change, not two adapters.
type Descriptor struct {
	Name              string
	Enabled           bool
	Type              string
	DatasourceRef     string
	InferenceProvider string
	Model             string
	EmbeddingProvider string
	RerankerProvider  string
	VisionProvider    string
	Config            map[string]interface{}
}

// LoadCatalog parses the adapters: section of cfg into descriptors. name
// must be present and unique; a duplicate is a hard load error (spec
// §4.C4).
func LoadCatalog(cfg *config.Config) ([]*Descriptor, error) {
	descriptors := make([]*Descriptor, 0, len(cfg.Adapters))
	seen := make(map[string]bool, len(cfg.Adapters))

	for _, raw := range cfg.Adapters {
		if raw.Name == "" {
			return nil, fmt.Errorf("adapter catalog: entry with empty name")
		}
		if seen[raw.Name] {
			return nil, fmt.Errorf("adapter catalog: duplicate adapter name %q", raw.Name)
		}
		seen[raw.Name] = true

		descriptors = append(descriptors, &Descriptor{
			Name:              raw.Name,
			Enabled:           raw.Enabled,
			Type:              raw.Type,
			DatasourceRef:     raw.DatasourceRef,
			InferenceProvider: raw.InferenceProvider,
			Model:             raw.Model,
			EmbeddingProvider: raw.EmbeddingProvider,
			RerankerProvider:  raw.RerankerProvider,
			VisionProvider:    raw.VisionProvider,
			Config:            raw.Config,
		})
	}

	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })
	return descriptors, nil
}

// Catalog indexes a slice of descriptors by name for O(1) lookup during
// diffing.
type Catalog map[string]*Descriptor

// ToCatalog indexes descriptors by name.
func ToCatalog(descriptors []*Descriptor) Catalog {
	c := make(Catalog, len(descriptors))
	for _, d := range descriptors {
		c[d.Name] = d
	}
	return c
}
