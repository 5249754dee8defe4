package frame

import (
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrUnknownFrame = errors.New("unknown frame")

// Registry maps frame ids to layouts. It is immutable after construction
// and safe for concurrent readers.
type Registry struct {
	layouts map[string]Layout
	order   []string
}

// NewRegistry builds a registry from the builtin layouts plus extra, where
// extra entries override builtin ones with the same id.
func NewRegistry(extra ...Layout) (*Registry, error) {
	r := &Registry{layouts: make(map[string]Layout)}
	for _, l := range builtinLayouts() {
		r.add(l)
	}
	for _, l := range extra {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		r.add(l)
	}
	return r, nil
}

// LoadRegistry reads layout overrides from a YAML file of the form
// `frames: [...]`. An empty path yields the builtin table.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames file: %w", err)
	}
	var file struct {
		Frames []Layout `yaml:"frames"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse frames file: %w", err)
	}
	reg, err := NewRegistry(file.Frames...)
	if err != nil {
		return nil, err
	}
	log.Printf("🖼️  Loaded %d frame overrides from %s", len(file.Frames), path)
	return reg, nil
}

func (r *Registry) add(l Layout) {
	if _, exists := r.layouts[l.ID]; !exists {
		r.order = append(r.order, l.ID)
	}
	r.layouts[l.ID] = l
}

// Lookup returns the layout for id.
func (r *Registry) Lookup(id string) (Layout, error) {
	l, ok := r.layouts[id]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownFrame, id)
	}
	return l, nil
}

// TotalSlots returns gridRows*gridCols for id, or 0 for an unknown frame.
func (r *Registry) TotalSlots(id string) int {
	l, ok := r.layouts[id]
	if !ok {
		return 0
	}
	return l.TotalSlots()
}

// List returns all layouts in registration order.
func (r *Registry) List() []Layout {
	out := make([]Layout, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.layouts[id])
	}
	return out
}
