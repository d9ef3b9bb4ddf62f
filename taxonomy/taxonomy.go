// Package taxonomy holds the canonical resource classification and the
// vendor-to-canonical type mappings consulted during reconciliation.
// The taxonomy is reference data: seeded in code, optionally extended
// from YAML, and never mutated by the collection engine.
package taxonomy

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// UnknownType is the sentinel slug for vendor types with no mapping.
// A mapping gap is not an error; the asset is cataloged under unknown
// so the run still reaches a terminal success state.
const UnknownType = "unknown"

// Category is the top grouping: compute, storage, networking, ...
type Category struct {
	Slug string `yaml:"slug" json:"slug"`
	Name string `yaml:"name" json:"name"`
}

// ResourceType is a canonical device type inside a category.
type Type struct {
	Slug     string `yaml:"slug" json:"slug"`
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`

	// Properties describes the keys expected in this type's free-form
	// properties map. Empty means no declarations, anything goes.
	Properties []PropertyDefinition `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// PropertyDefinition documents one key a type's free-form properties
// map may carry. Advisory: collector authors consult it, and the
// reconcile engine flags undeclared or mistyped keys without rejecting
// the observation.
type PropertyDefinition struct {
	Name        string `yaml:"name" json:"name"`
	Kind        string `yaml:"kind" json:"kind"` // string, number, bool
	Unit        string `yaml:"unit,omitempty" json:"unit,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// VendorMapping resolves one vendor's native type string to a
// canonical type slug.
type VendorMapping struct {
	Vendor     string `yaml:"vendor" json:"vendor"`
	VendorType string `yaml:"vendor_type" json:"vendor_type"`
	Type       string `yaml:"type" json:"type"`
}

// Mapper resolves vendor type strings against the loaded taxonomy.
// Safe for concurrent readers; LoadFile replaces mappings under lock.
type Mapper struct {
	mu         sync.RWMutex
	categories map[string]Category
	types      map[string]Type
	mappings   map[string]string // vendor + "\x00" + vendorType -> slug
}

// NewMapper returns a mapper seeded with the built-in taxonomy.
func NewMapper() *Mapper {
	m := &Mapper{
		categories: make(map[string]Category),
		types:      make(map[string]Type),
		mappings:   make(map[string]string),
	}
	m.seed()
	return m
}

// Resolve maps a vendor type string to a canonical type. Unmapped
// vendor types resolve to the unknown sentinel, never an error.
func (m *Mapper) Resolve(vendor, vendorType string) Type {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if slug, ok := m.mappings[mappingKey(vendor, vendorType)]; ok {
		if t, ok := m.types[slug]; ok {
			return t
		}
	}
	return m.types[UnknownType]
}

// TypeBySlug returns a canonical type record by slug.
func (m *Mapper) TypeBySlug(slug string) (Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[slug]
	return t, ok
}

// Types returns all canonical types sorted by slug.
func (m *Mapper) Types() []Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Type, 0, len(m.types))
	for _, t := range m.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// CheckProperties compares an observation's properties map against the
// type's declared definitions and returns one message per undeclared
// key or kind mismatch. A type without declarations accepts anything.
// Advisory only; callers log, they do not reject.
func (m *Mapper) CheckProperties(slug string, props map[string]any) []string {
	m.mu.RLock()
	t, ok := m.types[slug]
	m.mu.RUnlock()
	if !ok || len(t.Properties) == 0 || len(props) == 0 {
		return nil
	}

	defs := make(map[string]PropertyDefinition, len(t.Properties))
	for _, d := range t.Properties {
		defs[d.Name] = d
	}

	var issues []string
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d, declared := defs[k]
		if !declared {
			issues = append(issues, fmt.Sprintf("property %q is not declared for type %s", k, slug))
			continue
		}
		if !kindMatches(d.Kind, props[k]) {
			issues = append(issues, fmt.Sprintf("property %q should be %s", k, d.Kind))
		}
	}
	return issues
}

func kindMatches(kind string, v any) bool {
	switch kind {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case "bool":
		_, ok := v.(bool)
		return ok
	}
	return true
}

// file is the YAML shape accepted by LoadFile.
type file struct {
	Categories []Category      `yaml:"categories"`
	Types      []Type          `yaml:"types"`
	Mappings   []VendorMapping `yaml:"mappings"`
}

// LoadFile merges taxonomy entries from a YAML file over the seeded
// set. Later entries win on slug collision.
func (m *Mapper) LoadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("read taxonomy file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse taxonomy file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range f.Categories {
		m.categories[c.Slug] = c
	}
	for _, t := range f.Types {
		if t.Slug == "" {
			return fmt.Errorf("taxonomy type with empty slug in %s", path)
		}
		m.types[t.Slug] = t
	}
	for _, vm := range f.Mappings {
		if _, ok := m.types[vm.Type]; !ok {
			return fmt.Errorf("mapping %s:%s references unknown type %q", vm.Vendor, vm.VendorType, vm.Type)
		}
		m.mappings[mappingKey(vm.Vendor, vm.VendorType)] = vm.Type
	}
	return nil
}

func mappingKey(vendor, vendorType string) string {
	return vendor + "\x00" + vendorType
}
