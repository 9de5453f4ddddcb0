package bungiesearch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/slated/bungiesearch/internal/source"
)

// PrepareFunc overrides serialization of one field. It receives the whole
// record and returns the value to index.
type PrepareFunc func(obj any) (any, error)

// Predicate filters records at indexing time.
type Predicate func(obj any) bool

// indexConfig accumulates index options before validation.
type indexConfig struct {
	include    []string
	exclude    []string
	additional []string
	hotfixes   map[string][]FieldOption
	explicit   map[string]Field
	prepares   map[string]PrepareFunc
	idColumn   string
	updatedCol string
	table      string
	settings   map[string]any
	indexIf    Predicate
	isDefault  bool
}

// IndexOption configures index construction.
type IndexOption func(*indexConfig)

// IncludeColumns restricts implicit fields to the named columns.
func IncludeColumns(names ...string) IndexOption {
	return func(c *indexConfig) { c.include = append(c.include, names...) }
}

// ExcludeColumns drops the named columns from implicit fields.
func ExcludeColumns(names ...string) IndexOption {
	return func(c *indexConfig) { c.exclude = append(c.exclude, names...) }
}

// AdditionalColumns adds columns to the fetch list without indexing them.
// Expressions and templates read them off the fetched record.
func AdditionalColumns(names ...string) IndexOption {
	return func(c *indexConfig) { c.additional = append(c.additional, names...) }
}

// Hotfix merges extra field options into the implicit field generated for a
// column.
func Hotfix(column string, opts ...FieldOption) IndexOption {
	return func(c *indexConfig) {
		if c.hotfixes == nil {
			c.hotfixes = make(map[string][]FieldOption)
		}
		c.hotfixes[column] = append(c.hotfixes[column], opts...)
	}
}

// WithField declares an explicit field. It overrides an implicit field of
// the same name.
func WithField(name string, f Field) IndexOption {
	return func(c *indexConfig) {
		if c.explicit == nil {
			c.explicit = make(map[string]Field)
		}
		c.explicit[name] = f
	}
}

// WithPrepare overrides serialization of the named field.
func WithPrepare(name string, fn PrepareFunc) IndexOption {
	return func(c *indexConfig) {
		if c.prepares == nil {
			c.prepares = make(map[string]PrepareFunc)
		}
		c.prepares[name] = fn
	}
}

// WithIDColumn names the column whose value becomes the document id.
// Defaults to the model's primary key column, then to "id".
func WithIDColumn(name string) IndexOption {
	return func(c *indexConfig) { c.idColumn = name }
}

// WithUpdatedColumn names the timestamp column backing start/end filters of
// bulk updates.
func WithUpdatedColumn(name string) IndexOption {
	return func(c *indexConfig) { c.updatedCol = name }
}

// WithTable overrides the source table derived from the model name.
func WithTable(name string) IndexOption {
	return func(c *indexConfig) { c.table = name }
}

// WithSettings adds an engine settings fragment contributed to index
// creation.
func WithSettings(s map[string]any) IndexOption {
	return func(c *indexConfig) { c.settings = s }
}

// AsDefault marks this index as the one ForModel resolves to when a model
// is registered in several indices.
func AsDefault() IndexOption {
	return func(c *indexConfig) { c.isDefault = true }
}

// IndexIf sets the indexing condition. Records failing it are removed from
// the index during bulk updates.
func IndexIf(p Predicate) IndexOption {
	return func(c *indexConfig) { c.indexIf = p }
}

// Index binds a record type to an engine index: a unique-by-name field set,
// the id and updated columns, the fetch list and the indexing condition.
// Immutable after construction and safe for concurrent use.
type Index struct {
	name       string
	model      *ModelMeta
	fields     map[string]Field
	fetch      []string
	idColumn   string
	updatedCol string
	settings   map[string]any
	indexIf    Predicate
	prepares   map[string]PrepareFunc
	isDefault  bool
}

// NewIndex builds an index descriptor for the model type T. An empty name
// defaults to the lowercased model name.
func NewIndex[T any](name string, opts ...IndexOption) (*Index, error) {
	meta, err := ParseModel[T]()
	if err != nil {
		return nil, err
	}
	return buildIndex(name, meta, opts)
}

// NewIndexFromColumns builds an index descriptor from introspected source
// columns. Pairs with Client.Introspect for models that exist only as
// database tables.
func NewIndexFromColumns(name, model, table string, cols []source.Column, opts ...IndexOption) (*Index, error) {
	if model == "" {
		return nil, fmt.Errorf("bungiesearch: index %q: empty model name", name)
	}
	return buildIndex(name, ModelMetaFromColumns(model, table, cols), opts)
}

// NewIndexFromMeta builds an index descriptor from model metadata, as
// returned by Client.Introspect.
func NewIndexFromMeta(name string, meta *ModelMeta, opts ...IndexOption) (*Index, error) {
	if meta == nil || meta.Name == "" {
		return nil, fmt.Errorf("bungiesearch: index %q: empty model name", name)
	}
	m := *meta
	return buildIndex(name, &m, opts)
}

func buildIndex(name string, meta *ModelMeta, opts []IndexOption) (*Index, error) {
	cfg := &indexConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.table != "" {
		meta.Table = cfg.table
	}
	if name == "" {
		name = strings.ToLower(meta.Name)
	}
	if !validIndexName(name) {
		return nil, fmt.Errorf("bungiesearch: invalid index name %q", name)
	}

	fields := make(map[string]Field)
	for _, col := range meta.Columns {
		if col.Relation || !cfg.wantColumn(col.Name) {
			continue
		}
		f, err := FieldForColumn(col, cfg.hotfixes[col.Name]...)
		if err != nil {
			return nil, fmt.Errorf("bungiesearch: index %q: column %q: %w", name, col.Name, err)
		}
		fields[col.Name] = f
	}

	// The fetch list is fixed before explicit fields merge in: explicit
	// fields resolve off attributes and expressions, not fetched columns.
	fetch := make([]string, 0, len(fields)+len(cfg.additional))
	for n := range fields {
		fetch = append(fetch, n)
	}
	for _, n := range cfg.additional {
		if _, ok := fields[n]; !ok {
			fetch = append(fetch, n)
		}
	}
	sort.Strings(fetch)

	for n, f := range cfg.explicit {
		if f == nil {
			return nil, fmt.Errorf("bungiesearch: index %q: nil field %q", name, n)
		}
		fields[n] = f
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("bungiesearch: index %q: %w", name, ErrNoFields)
	}

	idColumn := cfg.idColumn
	if idColumn == "" {
		idColumn = meta.PrimaryColumn()
	}
	if idColumn == "" {
		idColumn = "id"
	}
	idField, ok := fields[idColumn]
	if !ok {
		return nil, fmt.Errorf("bungiesearch: index %q: %w: %q", name, ErrNoIDField, idColumn)
	}
	fields["_id"] = idField

	return &Index{
		name:       name,
		model:      meta,
		fields:     fields,
		fetch:      fetch,
		idColumn:   idColumn,
		updatedCol: cfg.updatedCol,
		settings:   cfg.settings,
		indexIf:    cfg.indexIf,
		prepares:   cfg.prepares,
		isDefault:  cfg.isDefault,
	}, nil
}

func (c *indexConfig) wantColumn(name string) bool {
	if len(c.include) > 0 && !containsName(c.include, name) {
		return false
	}
	return !containsName(c.exclude, name)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// validIndexName reports whether a name is acceptable to the engine:
// lowercase, no spaces, not starting with -, _, + or a dot.
func validIndexName(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '-', '_', '+', '.':
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// Name returns the engine index name.
func (ix *Index) Name() string { return ix.name }

// Model returns the model metadata.
func (ix *Index) Model() *ModelMeta { return ix.model }

// ModelName returns the model's name.
func (ix *Index) ModelName() string { return ix.model.Name }

// Table returns the source table records are fetched from.
func (ix *Index) Table() string { return ix.model.Table }

// IDColumn returns the column backing the document id.
func (ix *Index) IDColumn() string { return ix.idColumn }

// UpdatedColumn returns the timestamp column for ranged updates, empty when
// none is configured.
func (ix *Index) UpdatedColumn() string { return ix.updatedCol }

// IsDefault reports whether the index wins ForModel resolution.
func (ix *Index) IsDefault() bool { return ix.isDefault }

// Settings returns the engine settings fragment contributed at creation.
func (ix *Index) Settings() map[string]any { return ix.settings }

// Fields returns a copy of the field set, the "_id" alias included.
func (ix *Index) Fields() map[string]Field {
	out := make(map[string]Field, len(ix.fields))
	for n, f := range ix.fields {
		out[n] = f
	}
	return out
}

// FieldNames returns the sorted declared field names, meta fields included.
func (ix *Index) FieldNames() []string {
	names := make([]string, 0, len(ix.fields))
	for n := range ix.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FieldsToFetch returns the source columns bulk updates select.
func (ix *Index) FieldsToFetch() []string {
	out := make([]string, len(ix.fetch))
	copy(out, ix.fetch)
	return out
}

// Mapping returns the engine mapping body. Reserved meta fields are
// excluded unless withMeta is set.
func (ix *Index) Mapping(withMeta bool) map[string]any {
	props := make(map[string]any, len(ix.fields))
	for name, f := range ix.fields {
		if !withMeta && isMetaField(name) {
			continue
		}
		props[name] = f.Mapping()
	}
	return map[string]any{"properties": props}
}

// Analysis collects the custom analyzer definitions referenced by the
// index's fields, each exactly once.
func (ix *Index) Analysis() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, f := range ix.fields {
		mergeAnalysis(out, f.Analysis())
	}
	return out
}

// Serialize renders a record into a document whose keys are exactly the
// declared field names. Prepare overrides take precedence over field value
// resolution.
func (ix *Index) Serialize(obj any) (map[string]any, error) {
	doc := make(map[string]any, len(ix.fields))
	for name, f := range ix.fields {
		v, err := ix.fieldValue(name, f, obj)
		if err != nil {
			return nil, fmt.Errorf("bungiesearch: serialize %s.%s: %w", ix.model.Name, name, err)
		}
		doc[name] = v
	}
	return doc, nil
}

func (ix *Index) fieldValue(name string, f Field, obj any) (any, error) {
	if fn, ok := ix.prepares[name]; ok {
		return fn(obj)
	}
	return f.Value(obj)
}

// DocID serializes the record's document id.
func (ix *Index) DocID(obj any) (string, error) {
	v, err := ix.fieldValue("_id", ix.fields["_id"], obj)
	if err != nil {
		return "", fmt.Errorf("bungiesearch: %s id: %w", ix.model.Name, err)
	}
	if v == nil {
		return "", fmt.Errorf("bungiesearch: %s: %w", ix.model.Name, ErrMissingID)
	}
	id := fmt.Sprintf("%v", v)
	if id == "" {
		return "", fmt.Errorf("bungiesearch: %s: %w", ix.model.Name, ErrMissingID)
	}
	return id, nil
}

// Matches reports whether a record passes the indexing condition. True when
// none is configured.
func (ix *Index) Matches(obj any) bool {
	return ix.indexIf == nil || ix.indexIf(obj)
}
