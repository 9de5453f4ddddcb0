package bungiesearch

import "fmt"

// Registry maps engine index names to the model indexes they hold and
// models to the indexes they appear in. Registration happens at startup;
// the registry is read-only afterwards and not safe for concurrent writes.
type Registry struct {
	byIndex map[string][]*Index
	byModel map[string][]*Index
	names   []string // registration order of engine index names
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byIndex: make(map[string][]*Index),
		byModel: make(map[string][]*Index),
	}
}

// Register adds an index. Registering the same model twice under one engine
// index is an error.
func (r *Registry) Register(idx *Index) error {
	if idx == nil {
		return fmt.Errorf("bungiesearch: register nil index")
	}
	name := idx.Name()
	for _, existing := range r.byIndex[name] {
		if existing.ModelName() == idx.ModelName() {
			return fmt.Errorf("bungiesearch: index %q: model %s: %w", name, idx.ModelName(), ErrAlreadyRegistered)
		}
	}
	if _, ok := r.byIndex[name]; !ok {
		r.names = append(r.names, name)
	}
	r.byIndex[name] = append(r.byIndex[name], idx)
	r.byModel[idx.ModelName()] = append(r.byModel[idx.ModelName()], idx)
	return nil
}

// IndexNames returns engine index names in registration order.
func (r *Registry) IndexNames() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Indexes returns the model indexes registered under an engine index name.
func (r *Registry) Indexes(name string) ([]*Index, error) {
	list, ok := r.byIndex[name]
	if !ok {
		return nil, fmt.Errorf("bungiesearch: index %q: %w", name, ErrNotRegistered)
	}
	out := make([]*Index, len(list))
	copy(out, list)
	return out, nil
}

// ForModel resolves the index a model serializes through. With several
// registrations the one marked AsDefault wins; ambiguity without a default
// is an error.
func (r *Registry) ForModel(model string) (*Index, error) {
	list := r.byModel[model]
	switch len(list) {
	case 0:
		return nil, fmt.Errorf("bungiesearch: model %q: %w", model, ErrNotRegistered)
	case 1:
		return list[0], nil
	}
	for _, idx := range list {
		if idx.IsDefault() {
			return idx, nil
		}
	}
	return nil, fmt.Errorf("bungiesearch: model %q: %w", model, ErrAmbiguousModel)
}

// All returns every registered index, grouped by engine index in
// registration order.
func (r *Registry) All() []*Index {
	var out []*Index
	for _, name := range r.names {
		out = append(out, r.byIndex[name]...)
	}
	return out
}
