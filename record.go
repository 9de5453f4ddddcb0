package bungiesearch

import (
	"fmt"
	"reflect"
	"strings"
)

// lookupAttr resolves a named attribute on a record. Records are either maps
// keyed by column name or structs carrying `search` tags; struct members are
// matched by tag name first, then by exported Go name, then by method name.
// A resolved niladic func or method is invoked and its first result used.
func lookupAttr(obj any, name string) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil record", ErrAttrNotFound)
	}
	if m, ok := obj.(map[string]any); ok {
		v, ok := m[name]
		if !ok {
			return nil, fmt.Errorf("%w: no key %q", ErrAttrNotFound, name)
		}
		return callableValue(v)
	}

	rv := reflect.ValueOf(obj)

	// Pointer-receiver methods are only visible before dereferencing.
	if mv := rv.MethodByName(name); mv.IsValid() {
		return callValue(mv)
	}

	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: nil record", ErrAttrNotFound)
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: record map not keyed by string", ErrAttrNotFound)
		}
		kv := rv.MapIndex(reflect.ValueOf(name))
		if !kv.IsValid() {
			return nil, fmt.Errorf("%w: no key %q", ErrAttrNotFound, name)
		}
		return callableValue(kv.Interface())
	case reflect.Struct:
		if fv, ok := structMember(rv, name); ok {
			return callableValue(fv.Interface())
		}
		if mv := rv.MethodByName(name); mv.IsValid() {
			return callValue(mv)
		}
		return nil, fmt.Errorf("%w: %s has no attribute %q", ErrAttrNotFound, rv.Type(), name)
	default:
		return nil, fmt.Errorf("%w: record kind %s", ErrAttrNotFound, rv.Kind())
	}
}

// structMember finds an exported struct field by tag name or Go name.
func structMember(rv reflect.Value, name string) (reflect.Value, bool) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tagName, _, _ := strings.Cut(f.Tag.Get(tagKey), ",")
		if tagName == name {
			return rv.Field(i), true
		}
	}
	if sf, ok := t.FieldByName(name); ok && sf.IsExported() {
		return rv.FieldByName(name), true
	}
	return reflect.Value{}, false
}

// callableValue invokes func values and normalizes the result.
func callableValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func {
		return callValue(rv)
	}
	return normalizeValue(rv), nil
}

func callValue(fn reflect.Value) (any, error) {
	t := fn.Type()
	if t.NumIn() != 0 {
		return nil, fmt.Errorf("%w: callable attribute takes arguments", ErrBadValue)
	}
	if t.NumOut() == 0 {
		return nil, fmt.Errorf("%w: callable attribute returns nothing", ErrBadValue)
	}
	out := fn.Call(nil)
	if len(out) == 2 {
		if err, ok := out[1].Interface().(error); ok && err != nil {
			return nil, err
		}
	}
	return normalizeValue(out[0]), nil
}

// normalizeValue unwraps pointers and interfaces so downstream serialization
// sees either nil or a concrete value.
func normalizeValue(rv reflect.Value) any {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}
