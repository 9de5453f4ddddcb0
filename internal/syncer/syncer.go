// Package syncer drives index lifecycle and record synchronization between
// a record source and the search engine.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/slated/bungiesearch/internal/engine"
	"github.com/slated/bungiesearch/internal/metrics"
	"github.com/slated/bungiesearch/internal/source"
)

// ErrMappingConflict is returned when two models of one engine index declare
// the same property with different mappings.
var ErrMappingConflict = errors.New("conflicting property mappings for engine index")

// DefaultBulkSize is the number of records sent per bulk session.
const DefaultBulkSize = 100

// Reserved document keys that never travel to the engine as properties.
var reservedMeta = []string{"_index", "_uid", "_type", "_id"}

// IndexGroup is the set of model indices feeding one engine index.
type IndexGroup struct {
	Name    string
	Indices []ModelIndex
}

// UpdateOptions narrows a bulk update run.
type UpdateOptions struct {
	// Start and End bound the updated column when the index declares one.
	Start *time.Time
	End   *time.Time
	// NumDocs caps fetched records per model index. Zero or negative
	// means no limit.
	NumDocs int64
}

// Stats aggregates the outcome of a bulk update.
type Stats struct {
	Fetched           uint64
	Indexed           uint64
	Deleted           uint64
	Failed            uint64
	SerializeFailures uint64
}

func (a *Stats) add(b Stats) {
	a.Fetched += b.Fetched
	a.Indexed += b.Indexed
	a.Deleted += b.Deleted
	a.Failed += b.Failed
	a.SerializeFailures += b.SerializeFailures
}

// Service synchronizes registered indices with the engine.
type Service struct {
	engine engine.Engine
	source RecordSource
	log    *zap.Logger

	bulkSize   int
	waitStatus string
	timeout    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithBulkSize sets how many records one bulk session carries.
func WithBulkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkSize = n
		}
	}
}

// WithWaitStatus sets the cluster health status CreateIndices waits for.
func WithWaitStatus(status string) Option {
	return func(s *Service) {
		if status != "" {
			s.waitStatus = status
		}
	}
}

// WithTimeout bounds health waits after index creation.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a syncer. The source may be nil for clients that only manage
// index lifecycle; Update then fails.
func New(eng engine.Engine, src RecordSource, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		engine:     eng,
		source:     src,
		log:        log,
		bulkSize:   DefaultBulkSize,
		waitStatus: "green",
		timeout:    30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateIndices creates every engine index in the groups from the merged
// mappings and analysis of its model indices, then waits for the cluster to
// reach the configured health status.
func (s *Service) CreateIndices(ctx context.Context, groups []IndexGroup) error {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		body, err := buildCreateBody(g)
		if err != nil {
			return err
		}
		if err := s.engine.CreateIndex(ctx, g.Name, body); err != nil {
			return err
		}
		s.log.Info("index created",
			zap.String("index", g.Name),
			zap.Int("models", len(g.Indices)),
		)
		names = append(names, g.Name)
	}
	if len(names) == 0 {
		return nil
	}
	return s.engine.WaitForStatus(ctx, names, s.waitStatus, s.timeout)
}

// UpdateMappings pushes the merged property mappings of every group to its
// engine index.
func (s *Service) UpdateMappings(ctx context.Context, groups []IndexGroup) error {
	for _, g := range groups {
		mapping, err := mergeMappings(g)
		if err != nil {
			return err
		}
		if err := s.engine.PutMapping(ctx, g.Name, mapping); err != nil {
			return err
		}
		s.log.Info("mapping updated", zap.String("index", g.Name))
	}
	return nil
}

// DeleteIndices removes the named engine indices.
func (s *Service) DeleteIndices(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := s.engine.DeleteIndex(ctx, name); err != nil {
			return err
		}
		s.log.Info("index deleted", zap.String("index", name))
	}
	return nil
}

// Clear deletes and recreates every engine index in the groups.
func (s *Service) Clear(ctx context.Context, groups []IndexGroup) error {
	for _, g := range groups {
		if err := s.engine.DeleteIndex(ctx, g.Name); err != nil {
			return err
		}
	}
	return s.CreateIndices(ctx, groups)
}

// Update streams records of every model index in the groups into its engine
// index. Records rejected by the indexing condition are deleted instead.
// Records that fail to serialize are logged and skipped.
func (s *Service) Update(ctx context.Context, groups []IndexGroup, opts UpdateOptions) (Stats, error) {
	var total Stats
	for _, g := range groups {
		for _, ix := range g.Indices {
			st, err := s.updateIndex(ctx, g.Name, ix, opts)
			total.add(st)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// UpdateRecord saves one record into the index, removing it when the
// indexing condition rejects it.
func (s *Service) UpdateRecord(ctx context.Context, ix ModelIndex, obj any) error {
	docID, err := ix.DocID(obj)
	if err != nil {
		return err
	}
	if !ix.Matches(obj) {
		return s.engine.DeleteDocument(ctx, ix.Name(), docID)
	}
	doc, err := ix.Serialize(obj)
	if err != nil {
		return err
	}
	return s.engine.IndexDocument(ctx, ix.Name(), docID, stripMeta(doc))
}

// DeleteRecord removes one record's document from the index.
func (s *Service) DeleteRecord(ctx context.Context, ix ModelIndex, obj any) error {
	docID, err := ix.DocID(obj)
	if err != nil {
		return err
	}
	return s.engine.DeleteDocument(ctx, ix.Name(), docID)
}

func (s *Service) updateIndex(ctx context.Context, engineIndex string, ix ModelIndex, opts UpdateOptions) (Stats, error) {
	var st Stats
	if s.source == nil {
		return st, fmt.Errorf("update %q: no record source", engineIndex)
	}

	it, err := s.source.Fetch(ctx, source.Query{
		Table:         ix.Table(),
		Columns:       ix.FieldsToFetch(),
		PKColumn:      ix.IDColumn(),
		UpdatedColumn: ix.UpdatedColumn(),
		Start:         opts.Start,
		End:           opts.End,
		Limit:         opts.NumDocs,
	})
	if err != nil {
		return st, fmt.Errorf("fetch %q: %w", ix.Table(), err)
	}
	defer it.Close()

	batch := make([]map[string]any, 0, s.bulkSize)
	for {
		row, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("iterate %q: %w", ix.Table(), err)
		}
		st.Fetched++
		batch = append(batch, row)
		if len(batch) >= s.bulkSize {
			if err := s.flushBatch(ctx, engineIndex, ix, batch, &st); err != nil {
				return st, err
			}
			batch = batch[:0]
		}
	}
	if err := s.flushBatch(ctx, engineIndex, ix, batch, &st); err != nil {
		return st, err
	}

	s.log.Info("index updated",
		zap.String("index", engineIndex),
		zap.String("model", ix.ModelName()),
		zap.Uint64("fetched", st.Fetched),
		zap.Uint64("indexed", st.Indexed),
		zap.Uint64("deleted", st.Deleted),
		zap.Uint64("failed", st.Failed+st.SerializeFailures),
	)
	return st, nil
}

// flushBatch runs one bulk session over the batch and folds its stats in.
func (s *Service) flushBatch(ctx context.Context, engineIndex string, ix ModelIndex, rows []map[string]any, st *Stats) error {
	if len(rows) == 0 {
		return nil
	}
	bk, err := s.engine.Bulker(engineIndex)
	if err != nil {
		return fmt.Errorf("bulker %q: %w", engineIndex, err)
	}

	addErr := s.addBatch(ctx, bk, engineIndex, ix, rows, st)
	bs, closeErr := bk.Close(ctx)
	st.Indexed += bs.Indexed
	st.Deleted += bs.Deleted
	st.Failed += bs.Failed

	if addErr != nil {
		return fmt.Errorf("bulk %q: %w", engineIndex, addErr)
	}
	if closeErr != nil {
		return fmt.Errorf("flush %q: %w", engineIndex, closeErr)
	}
	return nil
}

func (s *Service) addBatch(ctx context.Context, bk engine.Bulker, engineIndex string, ix ModelIndex, rows []map[string]any, st *Stats) error {
	for _, row := range rows {
		docID, err := ix.DocID(row)
		if err != nil {
			s.skipRecord(engineIndex, ix, "document id", err, st)
			continue
		}
		if !ix.Matches(row) {
			if err := bk.Delete(ctx, docID); err != nil {
				return err
			}
			continue
		}
		doc, err := ix.Serialize(row)
		if err != nil {
			s.skipRecord(engineIndex, ix, "serialize", err, st)
			continue
		}
		if err := bk.Index(ctx, docID, stripMeta(doc)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) skipRecord(engineIndex string, ix ModelIndex, stage string, err error, st *Stats) {
	st.SerializeFailures++
	metrics.SerializeFailuresTotal.WithLabelValues(engineIndex, ix.ModelName()).Inc()
	s.log.Warn("record skipped",
		zap.String("index", engineIndex),
		zap.String("model", ix.ModelName()),
		zap.String("stage", stage),
		zap.Error(err),
	)
}

// buildCreateBody assembles the index creation body from the group's merged
// mappings, settings and field analysis.
func buildCreateBody(g IndexGroup) (map[string]any, error) {
	mapping, err := mergeMappings(g)
	if err != nil {
		return nil, err
	}

	settings := mergeSettings(g)
	// Field analyzers own the analysis section.
	if analysis := mergeGroupAnalysis(g); len(analysis) > 0 {
		settings["analysis"] = analysis
	}

	body := map[string]any{"mappings": mapping}
	if len(settings) > 0 {
		body["settings"] = settings
	}
	return body, nil
}

// mergeMappings folds the property mappings of all model indices of one
// engine index, rejecting properties declared twice with different bodies.
func mergeMappings(g IndexGroup) (map[string]any, error) {
	props := make(map[string]any)
	for _, ix := range g.Indices {
		m, _ := ix.Mapping(false)["properties"].(map[string]any)
		for name, def := range m {
			prev, ok := props[name]
			if !ok {
				props[name] = def
				continue
			}
			if !reflect.DeepEqual(prev, def) {
				return nil, fmt.Errorf("index %q: property %q: %w", g.Name, name, ErrMappingConflict)
			}
		}
	}
	return map[string]any{"properties": props}, nil
}

// mergeSettings folds per-index settings, first declaration winning.
func mergeSettings(g IndexGroup) map[string]any {
	out := make(map[string]any)
	for _, ix := range g.Indices {
		for k, v := range ix.Settings() {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}

// mergeGroupAnalysis folds the analyzer definitions of all model indices,
// first definition of a name winning within each section.
func mergeGroupAnalysis(g IndexGroup) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, ix := range g.Indices {
		for section, defs := range ix.Analysis() {
			dst, ok := out[section]
			if !ok {
				dst = make(map[string]any, len(defs))
				out[section] = dst
			}
			for name, def := range defs {
				if _, ok := dst[name]; !ok {
					dst[name] = def
				}
			}
		}
	}
	return out
}

// stripMeta copies a serialized document without the reserved meta keys.
func stripMeta(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if isReservedMeta(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func isReservedMeta(name string) bool {
	for _, m := range reservedMeta {
		if name == m {
			return true
		}
	}
	return false
}
