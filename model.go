package bungiesearch

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/slated/bungiesearch/internal/source"
)

const tagKey = "search"

// ColumnType classifies a source column for field translation.
type ColumnType string

// Column type constants.
const (
	ColumnAuto     ColumnType = "auto"
	ColumnBigInt   ColumnType = "bigint"
	ColumnBlob     ColumnType = "blob"
	ColumnBoolean  ColumnType = "boolean"
	ColumnDate     ColumnType = "date"
	ColumnDateTime ColumnType = "datetime"
	ColumnDecimal  ColumnType = "decimal"
	ColumnDouble   ColumnType = "double"
	ColumnFloat    ColumnType = "float"
	ColumnInteger  ColumnType = "integer"
	ColumnJSON     ColumnType = "json"
	ColumnSmallInt ColumnType = "smallint"
	ColumnText     ColumnType = "text"
	ColumnUUID     ColumnType = "uuid"
	ColumnVarchar  ColumnType = "varchar"
	ColumnUnknown  ColumnType = "unknown"
)

var columnTypeNames = map[string]ColumnType{
	string(ColumnAuto):     ColumnAuto,
	string(ColumnBigInt):   ColumnBigInt,
	string(ColumnBlob):     ColumnBlob,
	string(ColumnBoolean):  ColumnBoolean,
	string(ColumnDate):     ColumnDate,
	string(ColumnDateTime): ColumnDateTime,
	string(ColumnDecimal):  ColumnDecimal,
	string(ColumnDouble):   ColumnDouble,
	string(ColumnFloat):    ColumnFloat,
	string(ColumnInteger):  ColumnInteger,
	string(ColumnJSON):     ColumnJSON,
	string(ColumnSmallInt): ColumnSmallInt,
	string(ColumnText):     ColumnText,
	string(ColumnUUID):     ColumnUUID,
	string(ColumnVarchar):  ColumnVarchar,
}

// ColumnMeta describes one source column of a model.
type ColumnMeta struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	HasDefault bool
	Default    any
	PrimaryKey bool
	Relation   bool
}

// ModelMeta describes a record type: its name, source table and columns in
// declaration order.
type ModelMeta struct {
	Name    string
	Table   string
	Columns []ColumnMeta
}

// Column finds a column by name.
func (m *ModelMeta) Column(name string) (ColumnMeta, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnMeta{}, false
}

// PrimaryColumn returns the marked primary key column name, empty when the
// model declares none or several.
func (m *ModelMeta) PrimaryColumn() string {
	name := ""
	for _, c := range m.Columns {
		if !c.PrimaryKey {
			continue
		}
		if name != "" {
			return ""
		}
		name = c.Name
	}
	return name
}

// ParseModel reflects on T and extracts `search` struct tag metadata.
// Tag format is "column_name[,modifier...]"; untagged fields and fields
// tagged "-" are skipped. Modifiers: a column type name forces the type,
// "pk" marks the primary key, "rel" marks a relation, "default=v" records
// the engine null_value substitute.
func ParseModel[T any]() (*ModelMeta, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("bungiesearch: type %s is not a struct", t)
	}

	meta := &ModelMeta{Name: t.Name(), Table: toSnake(t.Name())}
	seen := make(map[string]bool)

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get(tagKey)
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		col, err := parseColumnTag(f, tag)
		if err != nil {
			return nil, err
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("bungiesearch: %s: duplicate column %q", t, col.Name)
		}
		seen[col.Name] = true
		meta.Columns = append(meta.Columns, col)
	}

	if len(meta.Columns) == 0 {
		return nil, fmt.Errorf("bungiesearch: %s has no `search` tagged fields", t)
	}
	return meta, nil
}

// parseColumnTag builds column metadata from one struct field.
func parseColumnTag(f reflect.StructField, tag string) (ColumnMeta, error) {
	parts := strings.Split(tag, ",")
	col := ColumnMeta{Name: parts[0]}
	if col.Name == "" {
		col.Name = toSnake(f.Name)
	}

	col.Nullable = f.Type.Kind() == reflect.Pointer
	col.Type, col.Relation = columnTypeOf(f.Type)

	for _, mod := range parts[1:] {
		switch {
		case mod == "pk":
			col.PrimaryKey = true
		case mod == "rel":
			col.Relation = true
		case strings.HasPrefix(mod, "default="):
			col.HasDefault = true
			col.Default = parseDefault(strings.TrimPrefix(mod, "default="), col.Type)
		default:
			ct, ok := columnTypeNames[mod]
			if !ok {
				return ColumnMeta{}, fmt.Errorf("bungiesearch: unknown modifier %q on field %s", mod, f.Name)
			}
			col.Type = ct
			col.Relation = false
		}
	}
	return col, nil
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

// columnTypeOf maps a Go type onto a column type. The second result marks
// relation-like kinds that implicit fields skip.
func columnTypeOf(t reflect.Type) (ColumnType, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return ColumnDateTime, false
	}
	if t == bytesType {
		return ColumnBlob, false
	}
	switch t.Kind() {
	case reflect.String:
		return ColumnText, false
	case reflect.Bool:
		return ColumnBoolean, false
	case reflect.Int8, reflect.Int16:
		return ColumnSmallInt, false
	case reflect.Int, reflect.Int32, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return ColumnInteger, false
	case reflect.Int64, reflect.Uint, reflect.Uint64:
		return ColumnBigInt, false
	case reflect.Float32:
		return ColumnFloat, false
	case reflect.Float64:
		return ColumnDouble, false
	default:
		return ColumnUnknown, true
	}
}

// parseDefault interprets a tag default literal in the column's type.
// Unparseable literals stay strings.
func parseDefault(lit string, ct ColumnType) any {
	switch ct {
	case ColumnBoolean:
		if b, err := strconv.ParseBool(lit); err == nil {
			return b
		}
	case ColumnAuto, ColumnBigInt, ColumnInteger, ColumnSmallInt:
		if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return n
		}
	case ColumnDecimal, ColumnDouble, ColumnFloat:
		if f, err := strconv.ParseFloat(lit, 64); err == nil {
			return f
		}
	}
	return lit
}

// ColumnTypeFromSQL normalizes an SQL type name. Both postgres
// information_schema spellings and sqlite declared types are covered.
func ColumnTypeFromSQL(s string) ColumnType {
	t := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch {
	case t == "serial" || t == "bigserial" || t == "smallserial":
		return ColumnAuto
	case t == "smallint" || t == "int2" || t == "tinyint":
		return ColumnSmallInt
	case t == "bigint" || t == "int8":
		return ColumnBigInt
	case strings.Contains(t, "int"):
		return ColumnInteger
	case t == "boolean" || t == "bool":
		return ColumnBoolean
	case t == "date":
		return ColumnDate
	case strings.HasPrefix(t, "timestamp") || t == "datetime":
		return ColumnDateTime
	case t == "numeric" || t == "decimal":
		return ColumnDecimal
	case t == "real" || t == "float4" || t == "float":
		return ColumnFloat
	case t == "double precision" || t == "float8" || t == "double":
		return ColumnDouble
	case strings.HasPrefix(t, "character varying") || strings.HasPrefix(t, "varchar") ||
		strings.HasPrefix(t, "character") || strings.HasPrefix(t, "char") || t == "nvarchar":
		return ColumnVarchar
	case t == "text" || strings.Contains(t, "clob"):
		return ColumnText
	case t == "json" || t == "jsonb":
		return ColumnJSON
	case t == "uuid":
		return ColumnUUID
	case t == "bytea" || t == "blob":
		return ColumnBlob
	default:
		return ColumnUnknown
	}
}

// ModelMetaFromColumns adapts introspected source columns into model
// metadata. Pairs with Client.Introspect and NewIndexFromColumns.
func ModelMetaFromColumns(name, table string, cols []source.Column) *ModelMeta {
	meta := &ModelMeta{Name: name, Table: table}
	for _, c := range cols {
		meta.Columns = append(meta.Columns, ColumnMeta{
			Name:       c.Name,
			Type:       ColumnTypeFromSQL(c.DataType),
			Nullable:   c.Nullable,
			HasDefault: c.HasDefault,
			Default:    c.Default,
			PrimaryKey: c.PrimaryKey,
			Relation:   c.ForeignKey,
		})
	}
	return meta
}

// FieldForColumn builds the field a column translates to. The field reads
// the column attribute; a recorded default becomes the engine null_value.
// Extra options are appended after the generated ones and override them.
func FieldForColumn(col ColumnMeta, extra ...FieldOption) (Field, error) {
	opts := make([]FieldOption, 0, len(extra)+3)
	opts = append(opts, ModelAttr(col.Name))
	if col.HasDefault && col.Default != nil {
		opts = append(opts, NullValue(col.Default))
	}
	if ct := coretypeFor(col.Type); ct != "" {
		opts = append(opts, Coretype(ct))
	}
	opts = append(opts, extra...)

	switch col.Type {
	case ColumnDate, ColumnDateTime:
		return NewDate(opts...)
	case ColumnBoolean:
		return NewBoolean(opts...)
	case ColumnDecimal, ColumnFloat, ColumnDouble, ColumnSmallInt, ColumnAuto, ColumnInteger, ColumnBigInt:
		return NewNumber(opts...)
	default:
		return NewText(opts...)
	}
}

// coretypeFor maps numeric column types to the engine core type.
func coretypeFor(ct ColumnType) string {
	switch ct {
	case ColumnDecimal, ColumnFloat:
		return "float"
	case ColumnDouble:
		return "double"
	case ColumnSmallInt:
		return "short"
	case ColumnAuto, ColumnInteger:
		return "integer"
	case ColumnBigInt:
		return "long"
	default:
		return ""
	}
}

// toSnake converts CamelCase names to snake_case.
func toSnake(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
