package bungiesearch

import (
	"fmt"
	"html"
	"reflect"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/microcosm-cc/bluemonday"
)

// metaFields are the engine-reserved names excluded from mappings unless
// meta fields are explicitly requested.
var metaFields = []string{"_index", "_uid", "_type", "_id"}

func isMetaField(name string) bool {
	for _, m := range metaFields {
		if name == m {
			return true
		}
	}
	return false
}

// commonOptions are accepted by every field type.
var commonOptions = []string{
	"index_name", "store", "index", "boost", "null_value", "copy_to", "fields",
}

// typeOptions are the extra engine options each field type accepts.
var typeOptions = map[string][]string{
	"text": {
		"analyzer", "search_analyzer", "search_quote_analyzer", "term_vector",
		"norms", "index_options", "position_increment_gap",
		"eager_global_ordinals", "fielddata", "fielddata_frequency_filter",
		"similarity",
	},
	"keyword": {
		"normalizer", "ignore_above", "eager_global_ordinals", "norms",
		"similarity", "doc_values",
	},
	"date":    {"format", "ignore_malformed", "doc_values"},
	"boolean": {"doc_values"},
	"number":  {"coerce", "ignore_malformed", "doc_values", "precision_step"},
	"nested":  {"dynamic", "include_in_parent", "include_in_root"},
}

// coretypes are the numeric mapping types a number field can serialize to.
var coretypes = []string{"float", "double", "byte", "short", "integer", "long"}

// Field describes one document property: how its value is resolved from a
// record, how the value is serialized, and its engine mapping fragment.
// Fields are immutable after construction and safe for concurrent use.
type Field interface {
	// Type returns the engine mapping type.
	Type() string
	// Mapping returns the mapping fragment, type defaults merged with
	// configured options.
	Mapping() map[string]any
	// Value resolves and serializes the field's value from a record.
	Value(obj any) (any, error)
	// Analysis returns custom analyzer definitions referenced by the field.
	Analysis() map[string]map[string]any
}

// stripPolicy removes HTML markup from text and keyword values.
var stripPolicy = bluemonday.StrictPolicy()

// fieldSpec accumulates options before validation.
type fieldSpec struct {
	modelAttr string
	hasAttr   bool
	exprSrc   string
	hasExpr   bool
	tmpl      *template.Template
	tmplSrc   string
	hasTmpl   bool

	coretype  string
	options   map[string]any
	subFields map[string]Field
	props     map[string]Field
	multi     bool
}

func (s *fieldSpec) setOption(name string, value any) {
	if s.options == nil {
		s.options = make(map[string]any)
	}
	s.options[name] = value
}

// FieldOption configures a field descriptor. Validation happens in the
// constructor, not in the option.
type FieldOption func(*fieldSpec)

// ModelAttr resolves the value by reading the named attribute from the
// record. Niladic methods and func values are invoked.
func ModelAttr(name string) FieldOption {
	return func(s *fieldSpec) {
		s.modelAttr = name
		s.hasAttr = true
	}
}

// EvalAs resolves the value by evaluating an expression with the record
// bound as "object". The expression is compiled at construction time.
func EvalAs(src string) FieldOption {
	return func(s *fieldSpec) {
		s.exprSrc = src
		s.hasExpr = true
	}
}

// Template resolves the value by rendering the given template with the
// record bound as "object".
func Template(t *template.Template) FieldOption {
	return func(s *fieldSpec) {
		s.tmpl = t
		s.hasTmpl = true
	}
}

// TemplateString is Template with inline source, parsed at construction time.
func TemplateString(src string) FieldOption {
	return func(s *fieldSpec) {
		s.tmplSrc = src
		s.hasTmpl = true
	}
}

// Coretype selects the numeric mapping type of a number field:
// float, double, byte, short, integer or long.
func Coretype(ct string) FieldOption {
	return func(s *fieldSpec) { s.coretype = ct }
}

// Store controls whether the engine stores the raw value.
func Store(b bool) FieldOption {
	return func(s *fieldSpec) { s.setOption("store", b) }
}

// Indexed controls whether the value is searchable.
func Indexed(b bool) FieldOption {
	return func(s *fieldSpec) { s.setOption("index", b) }
}

// Boost sets the query-time weight of the field.
func Boost(v float64) FieldOption {
	return func(s *fieldSpec) { s.setOption("boost", v) }
}

// NullValue substitutes a value for nil at index time.
func NullValue(v any) FieldOption {
	return func(s *fieldSpec) { s.setOption("null_value", v) }
}

// CopyTo copies the value into the named fields.
func CopyTo(names ...string) FieldOption {
	return func(s *fieldSpec) {
		if len(names) == 1 {
			s.setOption("copy_to", names[0])
			return
		}
		s.setOption("copy_to", names)
	}
}

// IndexName sets the legacy index_name mapping attribute.
func IndexName(name string) FieldOption {
	return func(s *fieldSpec) { s.setOption("index_name", name) }
}

// SubFields declares multi-fields indexed alongside the main value.
func SubFields(fields map[string]Field) FieldOption {
	return func(s *fieldSpec) { s.subFields = fields }
}

// Analyzer sets the index-time analyzer: a built-in name or *CustomAnalyzer.
func Analyzer(v any) FieldOption {
	return func(s *fieldSpec) { s.setOption("analyzer", v) }
}

// SearchAnalyzer sets the query-time analyzer.
func SearchAnalyzer(v any) FieldOption {
	return func(s *fieldSpec) { s.setOption("search_analyzer", v) }
}

// SearchQuoteAnalyzer sets the analyzer for quoted phrases.
func SearchQuoteAnalyzer(v any) FieldOption {
	return func(s *fieldSpec) { s.setOption("search_quote_analyzer", v) }
}

// Normalizer sets the keyword normalizer: a built-in name or
// *CustomNormalizer.
func Normalizer(v any) FieldOption {
	return func(s *fieldSpec) { s.setOption("normalizer", v) }
}

// Format sets the date format pattern.
func Format(f string) FieldOption {
	return func(s *fieldSpec) { s.setOption("format", f) }
}

// IgnoreAbove skips indexing keyword values longer than n characters.
func IgnoreAbove(n int) FieldOption {
	return func(s *fieldSpec) { s.setOption("ignore_above", n) }
}

// IgnoreMalformed tolerates values the engine cannot parse.
func IgnoreMalformed(b bool) FieldOption {
	return func(s *fieldSpec) { s.setOption("ignore_malformed", b) }
}

// Coerce controls engine-side coercion of strings to numbers.
func Coerce(b bool) FieldOption {
	return func(s *fieldSpec) { s.setOption("coerce", b) }
}

// DocValues controls columnar storage of the field.
func DocValues(b bool) FieldOption {
	return func(s *fieldSpec) { s.setOption("doc_values", b) }
}

// Norms controls index-time scoring norms.
func Norms(b bool) FieldOption {
	return func(s *fieldSpec) { s.setOption("norms", b) }
}

// Similarity selects the scoring algorithm.
func Similarity(name string) FieldOption {
	return func(s *fieldSpec) { s.setOption("similarity", name) }
}

// TermVector controls term vector storage.
func TermVector(v string) FieldOption {
	return func(s *fieldSpec) { s.setOption("term_vector", v) }
}

// IndexOptions controls what is stored in the inverted index.
func IndexOptions(v string) FieldOption {
	return func(s *fieldSpec) { s.setOption("index_options", v) }
}

// PositionIncrementGap sets the phrase gap between array values.
func PositionIncrementGap(n int) FieldOption {
	return func(s *fieldSpec) { s.setOption("position_increment_gap", n) }
}

// EagerGlobalOrdinals preloads global ordinals at refresh.
func EagerGlobalOrdinals(b bool) FieldOption {
	return func(s *fieldSpec) { s.setOption("eager_global_ordinals", b) }
}

// Fielddata enables in-memory fielddata on text fields.
func Fielddata(b bool) FieldOption {
	return func(s *fieldSpec) { s.setOption("fielddata", b) }
}

// FielddataFrequencyFilter bounds the terms loaded into fielddata.
func FielddataFrequencyFilter(f map[string]any) FieldOption {
	return func(s *fieldSpec) { s.setOption("fielddata_frequency_filter", f) }
}

// Properties declares the sub-fields of a nested field.
func Properties(fields map[string]Field) FieldOption {
	return func(s *fieldSpec) { s.props = fields }
}

// Multi marks a nested field as a list of objects.
func Multi() FieldOption {
	return func(s *fieldSpec) { s.multi = true }
}

// Dynamic sets the dynamic mapping mode of a nested field.
func Dynamic(v any) FieldOption {
	return func(s *fieldSpec) { s.setOption("dynamic", v) }
}

// Option sets a raw engine option by name. The per-type allowlist still
// applies.
func Option(name string, value any) FieldOption {
	return func(s *fieldSpec) { s.setOption(name, value) }
}

// field is the single implementation behind every field type.
type field struct {
	typ       string
	attr      string
	hasAttr   bool
	prog      *vm.Program
	exprSrc   string
	tmpl      *template.Template
	options   map[string]any
	subFields map[string]Field
	props     map[string]Field
	multi     bool
}

// NewText creates a text field. Unless overridden the analyzer defaults to
// snowball.
func NewText(opts ...FieldOption) (Field, error) {
	return newField("text", "text", opts)
}

// NewKeyword creates a keyword field indexed verbatim.
func NewKeyword(opts ...FieldOption) (Field, error) {
	return newField("keyword", "keyword", opts)
}

// NewDate creates a date field.
func NewDate(opts ...FieldOption) (Field, error) {
	return newField("date", "date", opts)
}

// NewBoolean creates a boolean field.
func NewBoolean(opts ...FieldOption) (Field, error) {
	return newField("boolean", "boolean", opts)
}

// NewNumber creates a numeric field. The Coretype option is required.
func NewNumber(opts ...FieldOption) (Field, error) {
	return newField("number", "", opts)
}

// NewNested creates an object field with its own Properties. Multi marks it
// as a list of objects.
func NewNested(opts ...FieldOption) (Field, error) {
	return newField("nested", "nested", opts)
}

func newField(kind, mappingType string, opts []FieldOption) (Field, error) {
	spec := &fieldSpec{}
	for _, opt := range opts {
		opt(spec)
	}

	if err := validateSources(spec); err != nil {
		return nil, fmt.Errorf("bungiesearch: %s field: %w", kind, err)
	}
	if err := validateOptions(kind, spec); err != nil {
		return nil, fmt.Errorf("bungiesearch: %s field: %w", kind, err)
	}

	f := &field{
		typ:       mappingType,
		attr:      spec.modelAttr,
		hasAttr:   spec.hasAttr,
		options:   spec.options,
		subFields: spec.subFields,
		props:     spec.props,
		multi:     spec.multi,
	}
	if f.options == nil {
		f.options = make(map[string]any)
	}

	switch kind {
	case "text":
		if _, ok := f.options["analyzer"]; !ok {
			f.options["analyzer"] = "snowball"
		}
	case "number":
		if !validCoretype(spec.coretype) {
			return nil, fmt.Errorf("bungiesearch: number field: %w: %q", ErrCoretype, spec.coretype)
		}
		f.typ = spec.coretype
	case "nested":
		if len(spec.props) == 0 {
			return nil, fmt.Errorf("bungiesearch: nested field: %w", ErrNoFields)
		}
	}

	if spec.hasExpr {
		prog, err := expr.Compile(spec.exprSrc)
		if err != nil {
			return nil, fmt.Errorf("bungiesearch: %s field: compile %q: %w", kind, spec.exprSrc, err)
		}
		f.prog = prog
		f.exprSrc = spec.exprSrc
	}
	if spec.hasTmpl {
		f.tmpl = spec.tmpl
		if f.tmpl == nil {
			t, err := template.New(kind).Parse(spec.tmplSrc)
			if err != nil {
				return nil, fmt.Errorf("bungiesearch: %s field: parse template: %w", kind, err)
			}
			f.tmpl = t
		}
	}

	return f, nil
}

// validateSources enforces the exactly-one value source invariant.
func validateSources(spec *fieldSpec) error {
	n := 0
	for _, set := range []bool{spec.hasAttr, spec.hasExpr, spec.hasTmpl} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: got %d of ModelAttr, EvalAs, Template", ErrValueSource, n)
	}
	return nil
}

func validateOptions(kind string, spec *fieldSpec) error {
	allowed := func(name string) bool {
		for _, o := range commonOptions {
			if o == name {
				return true
			}
		}
		for _, o := range typeOptions[kind] {
			if o == name {
				return true
			}
		}
		return false
	}
	for name := range spec.options {
		if !allowed(name) {
			return fmt.Errorf("%w: %q", ErrOptionNotAllowed, name)
		}
	}
	if spec.coretype != "" && kind != "number" {
		return fmt.Errorf("%w: %q", ErrOptionNotAllowed, "coretype")
	}
	if spec.props != nil && kind != "nested" {
		return fmt.Errorf("%w: %q", ErrOptionNotAllowed, "properties")
	}
	if spec.multi && kind != "nested" {
		return fmt.Errorf("%w: %q", ErrOptionNotAllowed, "multi")
	}
	return nil
}

func validCoretype(ct string) bool {
	for _, c := range coretypes {
		if c == ct {
			return true
		}
	}
	return false
}

func (f *field) Type() string { return f.typ }

func (f *field) Mapping() map[string]any {
	m := make(map[string]any, len(f.options)+2)
	m["type"] = f.typ
	for name, v := range f.options {
		m[name] = mappingValue(v)
	}
	if len(f.subFields) > 0 {
		sub := make(map[string]any, len(f.subFields))
		for name, sf := range f.subFields {
			sub[name] = sf.Mapping()
		}
		m["fields"] = sub
	}
	if f.typ == "nested" {
		props := make(map[string]any, len(f.props))
		for name, pf := range f.props {
			props[name] = pf.Mapping()
		}
		m["properties"] = props
	}
	return m
}

// mappingValue renders analyzer values by name; everything else passes
// through.
func mappingValue(v any) any {
	switch a := v.(type) {
	case *CustomAnalyzer:
		return a.Name()
	case *CustomNormalizer:
		return a.Name()
	default:
		return v
	}
}

func (f *field) Analysis() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, v := range f.options {
		collectComponent(out, v)
	}
	for _, sf := range f.subFields {
		mergeAnalysis(out, sf.Analysis())
	}
	for _, pf := range f.props {
		mergeAnalysis(out, pf.Analysis())
	}
	return out
}

func (f *field) Value(obj any) (any, error) {
	raw, err := f.resolve(obj)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return f.serialize(raw)
}

func (f *field) resolve(obj any) (any, error) {
	switch {
	case f.tmpl != nil:
		var buf strings.Builder
		if err := f.tmpl.Execute(&buf, map[string]any{"object": obj}); err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return buf.String(), nil
	case f.prog != nil:
		out, err := expr.Run(f.prog, map[string]any{"object": obj})
		if err != nil {
			return nil, fmt.Errorf("eval %q: %w", f.exprSrc, err)
		}
		return out, nil
	default:
		v, err := lookupAttr(obj, f.attr)
		if err != nil {
			return nil, fmt.Errorf("attr %q: %w", f.attr, err)
		}
		return v, nil
	}
}

func (f *field) serialize(raw any) (any, error) {
	switch f.typ {
	case "text", "keyword":
		return stripTags(toText(raw)), nil
	case "date":
		return serializeDate(raw)
	case "boolean":
		return serializeBool(raw)
	case "nested":
		return f.serializeNested(raw)
	case "float", "double":
		v, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	default: // byte, short, integer, long
		v, err := toInt(raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// stripTags drops HTML markup, keeping the text content intact.
func stripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	return html.UnescapeString(stripPolicy.Sanitize(s))
}

func toText(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadValue, v)
		}
		return f, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	default:
		return 0, fmt.Errorf("%w: %T is not numeric", ErrBadValue, raw)
	}
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadValue, v)
		}
		return n, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	default:
		return 0, fmt.Errorf("%w: %T is not numeric", ErrBadValue, raw)
	}
}

func serializeDate(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		return v, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		// Epoch millis pass through untouched.
		return rv.Int(), nil
	default:
		return nil, fmt.Errorf("%w: %T is not a date", ErrBadValue, raw)
	}
}

func serializeBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadValue, v)
		}
		return b, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a boolean", ErrBadValue, raw)
	}
}

func (f *field) serializeNested(raw any) (any, error) {
	if !f.multi {
		return f.nestedDoc(raw)
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: %T is not a list of objects", ErrBadValue, raw)
	}
	out := make([]map[string]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		doc, err := f.nestedDoc(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (f *field) nestedDoc(obj any) (map[string]any, error) {
	doc := make(map[string]any, len(f.props))
	for name, pf := range f.props {
		v, err := pf.Value(obj)
		if err != nil {
			return nil, fmt.Errorf("nested %q: %w", name, err)
		}
		doc[name] = v
	}
	return doc, nil
}
