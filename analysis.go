package bungiesearch

// Sections of the analysis block in engine index settings.
const (
	sectionAnalyzer   = "analyzer"
	sectionNormalizer = "normalizer"
	sectionTokenizer  = "tokenizer"
	sectionFilter     = "filter"
	sectionCharFilter = "char_filter"
)

// analysisProvider is implemented by analysis components that contribute
// custom definitions to engine index settings. Built-in components are
// referenced by plain string names and contribute nothing.
type analysisProvider interface {
	Definition() map[string]map[string]any
}

// Tokenizer is a named custom tokenizer definition.
type Tokenizer struct {
	name   string
	typ    string
	params map[string]any
}

// NewTokenizer defines a custom tokenizer of the given engine type.
func NewTokenizer(name, typ string, params map[string]any) Tokenizer {
	return Tokenizer{name: name, typ: typ, params: params}
}

// Name returns the name the tokenizer is referenced by.
func (t Tokenizer) Name() string { return t.name }

// Definition returns the settings fragment declaring the tokenizer.
func (t Tokenizer) Definition() map[string]map[string]any {
	return map[string]map[string]any{
		sectionTokenizer: {t.name: withType(t.typ, t.params)},
	}
}

// TokenFilter is a named custom token filter definition.
type TokenFilter struct {
	name   string
	typ    string
	params map[string]any
}

// NewTokenFilter defines a custom token filter of the given engine type.
func NewTokenFilter(name, typ string, params map[string]any) TokenFilter {
	return TokenFilter{name: name, typ: typ, params: params}
}

// Name returns the name the filter is referenced by.
func (f TokenFilter) Name() string { return f.name }

// Definition returns the settings fragment declaring the filter.
func (f TokenFilter) Definition() map[string]map[string]any {
	return map[string]map[string]any{
		sectionFilter: {f.name: withType(f.typ, f.params)},
	}
}

// CharFilter is a named custom character filter definition.
type CharFilter struct {
	name   string
	typ    string
	params map[string]any
}

// NewCharFilter defines a custom character filter of the given engine type.
func NewCharFilter(name, typ string, params map[string]any) CharFilter {
	return CharFilter{name: name, typ: typ, params: params}
}

// Name returns the name the filter is referenced by.
func (f CharFilter) Name() string { return f.name }

// Definition returns the settings fragment declaring the filter.
func (f CharFilter) Definition() map[string]map[string]any {
	return map[string]map[string]any{
		sectionCharFilter: {f.name: withType(f.typ, f.params)},
	}
}

// analysisSpec holds the shared configuration of custom analyzers and
// normalizers.
type analysisSpec struct {
	typ         string
	tokenizer   any // string or Tokenizer
	filters     []any
	charFilters []any
	params      map[string]any
}

// AnalyzerOption configures a custom analyzer or normalizer.
type AnalyzerOption func(*analysisSpec)

// WithTokenizer sets the tokenizer: a built-in name or a custom Tokenizer.
func WithTokenizer(t any) AnalyzerOption {
	return func(s *analysisSpec) { s.tokenizer = t }
}

// WithTokenFilters appends token filters: built-in names or custom
// TokenFilter values, applied in order.
func WithTokenFilters(filters ...any) AnalyzerOption {
	return func(s *analysisSpec) { s.filters = append(s.filters, filters...) }
}

// WithCharFilters appends character filters: built-in names or custom
// CharFilter values, applied in order.
func WithCharFilters(filters ...any) AnalyzerOption {
	return func(s *analysisSpec) { s.charFilters = append(s.charFilters, filters...) }
}

// WithAnalyzerType overrides the analyzer type (default "custom").
func WithAnalyzerType(typ string) AnalyzerOption {
	return func(s *analysisSpec) { s.typ = typ }
}

// WithAnalyzerParam sets an extra engine parameter on the definition.
func WithAnalyzerParam(name string, value any) AnalyzerOption {
	return func(s *analysisSpec) {
		if s.params == nil {
			s.params = make(map[string]any)
		}
		s.params[name] = value
	}
}

// CustomAnalyzer is a named analyzer whose definition is rendered into
// engine index settings. Fields referencing it by value get its Name in
// their mapping and its Definition collected once per index.
type CustomAnalyzer struct {
	name string
	spec analysisSpec
}

// NewCustomAnalyzer defines a custom analyzer.
func NewCustomAnalyzer(name string, opts ...AnalyzerOption) *CustomAnalyzer {
	a := &CustomAnalyzer{name: name, spec: analysisSpec{typ: "custom"}}
	for _, opt := range opts {
		opt(&a.spec)
	}
	return a
}

// Name returns the name the analyzer is referenced by in field mappings.
func (a *CustomAnalyzer) Name() string { return a.name }

// Definition returns the settings fragments declaring the analyzer and any
// custom components it references.
func (a *CustomAnalyzer) Definition() map[string]map[string]any {
	out := make(map[string]map[string]any)

	def := map[string]any{"type": a.spec.typ}
	if a.spec.tokenizer != nil {
		def["tokenizer"] = componentName(a.spec.tokenizer)
		collectComponent(out, a.spec.tokenizer)
	}
	applyComponents(out, def, "filter", a.spec.filters)
	applyComponents(out, def, "char_filter", a.spec.charFilters)
	for k, v := range a.spec.params {
		def[k] = v
	}

	mergeAnalysis(out, map[string]map[string]any{sectionAnalyzer: {a.name: def}})
	return out
}

// CustomNormalizer is a named keyword normalizer rendered into engine index
// settings. Tokenizer options do not apply to normalizers and are ignored.
type CustomNormalizer struct {
	name string
	spec analysisSpec
}

// NewCustomNormalizer defines a custom normalizer.
func NewCustomNormalizer(name string, opts ...AnalyzerOption) *CustomNormalizer {
	n := &CustomNormalizer{name: name, spec: analysisSpec{typ: "custom"}}
	for _, opt := range opts {
		opt(&n.spec)
	}
	return n
}

// Name returns the name the normalizer is referenced by in field mappings.
func (n *CustomNormalizer) Name() string { return n.name }

// Definition returns the settings fragments declaring the normalizer and any
// custom components it references.
func (n *CustomNormalizer) Definition() map[string]map[string]any {
	out := make(map[string]map[string]any)

	def := map[string]any{"type": n.spec.typ}
	applyComponents(out, def, "filter", n.spec.filters)
	applyComponents(out, def, "char_filter", n.spec.charFilters)
	for k, v := range n.spec.params {
		def[k] = v
	}

	mergeAnalysis(out, map[string]map[string]any{sectionNormalizer: {n.name: def}})
	return out
}

// applyComponents renders a component list into a definition key and collects
// custom component definitions.
func applyComponents(out map[string]map[string]any, def map[string]any, key string, components []any) {
	if len(components) == 0 {
		return
	}
	names := make([]string, 0, len(components))
	for _, c := range components {
		names = append(names, componentName(c))
		collectComponent(out, c)
	}
	def[key] = names
}

func componentName(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case Tokenizer:
		return c.Name()
	case TokenFilter:
		return c.Name()
	case CharFilter:
		return c.Name()
	case *CustomAnalyzer:
		return c.Name()
	case *CustomNormalizer:
		return c.Name()
	default:
		return ""
	}
}

func collectComponent(out map[string]map[string]any, v any) {
	if p, ok := v.(analysisProvider); ok {
		mergeAnalysis(out, p.Definition())
	}
}

// withType copies params and sets the component type.
func withType(typ string, params map[string]any) map[string]any {
	def := make(map[string]any, len(params)+1)
	def["type"] = typ
	for k, v := range params {
		def[k] = v
	}
	return def
}

// mergeAnalysis merges src definitions into dst. The first definition seen
// for a name wins, so indices collect each analyzer exactly once even when
// several fields reference it.
func mergeAnalysis(dst, src map[string]map[string]any) {
	for section, defs := range src {
		if dst[section] == nil {
			dst[section] = make(map[string]any, len(defs))
		}
		for name, def := range defs {
			if _, ok := dst[section][name]; !ok {
				dst[section][name] = def
			}
		}
	}
}
