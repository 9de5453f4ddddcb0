package bungiesearch

import (
	"errors"

	"github.com/slated/bungiesearch/internal/syncer"
)

// Sentinel errors returned by descriptor construction, serialization and
// registry lookups. Use errors.Is to check.
var (
	// ErrValueSource is returned when a field is built with zero or more
	// than one of ModelAttr, EvalAs and Template.
	ErrValueSource = errors.New("exactly one value source required")

	// ErrOptionNotAllowed is returned when an engine option is set on a
	// field type that does not accept it.
	ErrOptionNotAllowed = errors.New("option not allowed for field type")

	// ErrCoretype is returned when a number field is built without a valid
	// core type.
	ErrCoretype = errors.New("invalid number core type")

	// ErrAttrNotFound is returned when a model attribute cannot be resolved
	// on a record.
	ErrAttrNotFound = errors.New("attribute not found")

	// ErrBadValue is returned when a resolved value cannot be serialized
	// for the field's target type.
	ErrBadValue = errors.New("value not serializable for field type")

	// ErrNoFields is returned when an index ends up with an empty field set.
	ErrNoFields = errors.New("index has no fields")

	// ErrNoIDField is returned when the id column is absent from the
	// index's fields.
	ErrNoIDField = errors.New("id column missing from index fields")

	// ErrMissingID is returned when a record serializes to an empty
	// document id.
	ErrMissingID = errors.New("record has no document id")

	// ErrNotRegistered is returned on lookups of unknown indices or models.
	ErrNotRegistered = errors.New("not registered")

	// ErrAlreadyRegistered is returned when a model is registered twice
	// under the same engine index.
	ErrAlreadyRegistered = errors.New("model already registered for index")

	// ErrAmbiguousModel is returned when a model maps to several indices
	// and none of them is marked as default.
	ErrAmbiguousModel = errors.New("model maps to several indices and none is default")

	// ErrNoSource is returned by operations that need a record source on a
	// client built without one.
	ErrNoSource = errors.New("no record source configured")
)

// ErrMappingConflict is returned when two models of one engine index declare
// the same property with different mappings.
var ErrMappingConflict = syncer.ErrMappingConflict
