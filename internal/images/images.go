// Package images maps simulation module identifiers to pinned container images.
package images

import (
	"fmt"
	"os"
	"sort"

	"github.com/distribution/reference"
	"gopkg.in/yaml.v3"
)

// Map is an immutable module ID to image reference table.
// The zero value resolves every module to the empty string.
type Map struct {
	images map[string]string
}

// New creates a Map from the given entries. The input is copied.
func New(entries map[string]string) *Map {
	m := &Map{images: make(map[string]string, len(entries))}
	for k, v := range entries {
		m.images[k] = v
	}
	return m
}

// Resolve returns the image reference for moduleID, or "" if it is not mapped.
func (m *Map) Resolve(moduleID string) string {
	if m == nil {
		return ""
	}
	return m.images[moduleID]
}

// Modules returns the known module IDs in sorted order.
func (m *Map) Modules() []string {
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.images))
	for id := range m.images {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of mapped modules.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.images)
}

// file is the on-disk layout of the image map.
type file struct {
	Images map[string]string `yaml:"images"`
}

// LoadFile reads an image map from a YAML file and validates every entry.
func LoadFile(path string, requireDigest bool) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image map: %w", err)
	}
	return Parse(data, requireDigest)
}

// Parse decodes an image map document and validates every entry.
func Parse(data []byte, requireDigest bool) (*Map, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing image map: %w", err)
	}

	for _, id := range sortedKeys(f.Images) {
		if err := ValidateReference(f.Images[id], requireDigest); err != nil {
			return nil, fmt.Errorf("module %q: %w", id, err)
		}
	}

	return New(f.Images), nil
}

// ValidateReference checks that ref is a well-formed image reference and,
// when requireDigest is set, that it is pinned by digest.
func ValidateReference(ref string, requireDigest bool) error {
	if ref == "" {
		return fmt.Errorf("image reference is empty")
	}
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	if requireDigest {
		if _, ok := named.(reference.Digested); !ok {
			return fmt.Errorf("image reference %q is not pinned by digest", ref)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
