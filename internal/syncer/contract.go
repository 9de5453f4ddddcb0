package syncer

import (
	"context"

	"github.com/slated/bungiesearch/internal/source"
)

// ModelIndex is the view of a registered index the syncer needs. The root
// Index type satisfies it.
type ModelIndex interface {
	Name() string
	ModelName() string
	Table() string
	IDColumn() string
	UpdatedColumn() string
	FieldsToFetch() []string
	Settings() map[string]any
	Mapping(withMeta bool) map[string]any
	Analysis() map[string]map[string]any
	Serialize(obj any) (map[string]any, error)
	DocID(obj any) (string, error)
	Matches(obj any) bool
}

// RecordSource streams records out of backing storage.
type RecordSource interface {
	Fetch(ctx context.Context, q source.Query) (source.Iterator, error)
}
