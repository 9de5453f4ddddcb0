package bungiesearch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slated/bungiesearch/internal/engine"
	"github.com/slated/bungiesearch/internal/engine/elastic"
	"github.com/slated/bungiesearch/internal/metrics"
	"github.com/slated/bungiesearch/internal/source"
	srcpostgres "github.com/slated/bungiesearch/internal/source/postgres"
	srcsqlite "github.com/slated/bungiesearch/internal/source/sqlite"
	"github.com/slated/bungiesearch/internal/syncer"
)

// Client is the bungiesearch entry point. It owns the engine connection,
// the optional record source, the index registry and the syncer driving
// them.
type Client struct {
	engine   engine.Engine
	source   source.Source
	registry *Registry
	syncer   *syncer.Service
	log      *zap.Logger
}

// UpdateOptions narrows a bulk update run.
type UpdateOptions struct {
	// Indices limits the run to these engine indices. Empty means all
	// registered ones.
	Indices []string
	// Models limits the run to indices of these models.
	Models []string
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

// New creates a Client and connects it to the search engine.
func New(opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		addresses: []string{"http://localhost:9200"},
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}
	if cfg.metrics {
		metrics.RegisterIndexingMetrics()
	}

	eng, err := elastic.New(elastic.Config{
		Addresses:  cfg.addresses,
		Username:   cfg.username,
		Password:   cfg.password,
		Timeout:    cfg.timeout,
		FlushBytes: cfg.flushBytes,
		Workers:    cfg.workers,
	}, cfg.log)
	if err != nil {
		return nil, fmt.Errorf("bungiesearch: %w", err)
	}

	src, err := openSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("bungiesearch: %w", err)
	}

	return newClient(eng, src, cfg), nil
}

func openSource(cfg *clientConfig) (source.Source, error) {
	switch cfg.sourceDriver {
	case "":
		return noopSource{}, nil
	case "postgres":
		return srcpostgres.New(srcpostgres.Config{DSN: cfg.dsn}, cfg.log)
	case "sqlite":
		return srcsqlite.New(srcsqlite.Config{Path: cfg.dsn}, cfg.log)
	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.sourceDriver)
	}
}

// newClient wires a Client from ready collaborators.
func newClient(eng engine.Engine, src source.Source, cfg *clientConfig) *Client {
	return &Client{
		engine:   eng,
		source:   src,
		registry: NewRegistry(),
		syncer: syncer.New(eng, src, cfg.log,
			syncer.WithBulkSize(cfg.bulkSize),
			syncer.WithWaitStatus(cfg.waitStatus),
			syncer.WithTimeout(cfg.timeout),
		),
		log: cfg.log,
	}
}

// Register adds indices to the client's registry.
func (c *Client) Register(indices ...*Index) error {
	for _, ix := range indices {
		if err := c.registry.Register(ix); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the client's index registry.
func (c *Client) Registry() *Registry { return c.registry }

// CreateIndices creates the named engine indices from the registered
// mappings and waits for the cluster to settle. Empty names means all
// registered indices.
func (c *Client) CreateIndices(ctx context.Context, names ...string) error {
	groups, err := c.groups(names...)
	if err != nil {
		return err
	}
	return c.syncer.CreateIndices(ctx, groups)
}

// UpdateMappings pushes the registered mappings to the named engine
// indices. Empty names means all registered indices.
func (c *Client) UpdateMappings(ctx context.Context, names ...string) error {
	groups, err := c.groups(names...)
	if err != nil {
		return err
	}
	return c.syncer.UpdateMappings(ctx, groups)
}

// DeleteIndices removes the named engine indices. Empty names means all
// registered indices.
func (c *Client) DeleteIndices(ctx context.Context, names ...string) error {
	groups, err := c.groups(names...)
	if err != nil {
		return err
	}
	list := make([]string, len(groups))
	for i, g := range groups {
		list[i] = g.Name
	}
	return c.syncer.DeleteIndices(ctx, list)
}

// ClearIndices deletes and recreates the named engine indices. Empty names
// means all registered indices.
func (c *Client) ClearIndices(ctx context.Context, names ...string) error {
	groups, err := c.groups(names...)
	if err != nil {
		return err
	}
	return c.syncer.Clear(ctx, groups)
}

// Update streams records from the source into the engine.
func (c *Client) Update(ctx context.Context, opts UpdateOptions) (Stats, error) {
	groups, err := c.groups(opts.Indices...)
	if err != nil {
		return Stats{}, err
	}
	if len(opts.Models) > 0 {
		groups = filterModels(groups, opts.Models)
	}
	st, err := c.syncer.Update(ctx, groups, syncer.UpdateOptions{
		Start:   opts.Start,
		End:     opts.End,
		NumDocs: opts.NumDocs,
	})
	return Stats(st), err
}

// UpdateRecord saves one record into the index registered for its model,
// removing it when the indexing condition rejects it.
func (c *Client) UpdateRecord(ctx context.Context, model string, obj any) error {
	ix, err := c.registry.ForModel(model)
	if err != nil {
		return err
	}
	return c.syncer.UpdateRecord(ctx, ix, obj)
}

// DeleteRecord removes one record's document from the index registered for
// its model.
func (c *Client) DeleteRecord(ctx context.Context, model string, obj any) error {
	ix, err := c.registry.ForModel(model)
	if err != nil {
		return err
	}
	return c.syncer.DeleteRecord(ctx, ix, obj)
}

// SerializeRecord renders a record through the index registered for its
// model without touching the engine.
func (c *Client) SerializeRecord(model string, obj any) (map[string]any, error) {
	ix, err := c.registry.ForModel(model)
	if err != nil {
		return nil, err
	}
	return ix.Serialize(obj)
}

// Introspect reads a table's schema from the record source and adapts it
// into model metadata. Pair with NewIndexFromColumns.
func (c *Client) Introspect(ctx context.Context, model, table string) (*ModelMeta, error) {
	cols, err := c.source.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("bungiesearch: introspect %s: %w", table, err)
	}
	return ModelMetaFromColumns(model, table, cols), nil
}

// Ping checks search engine connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.engine.Ping(ctx)
}

// WaitForReady polls the engine until it answers or the timeout passes.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return c.engine.WaitForReady(ctx, timeout)
}

// Close releases the record source connection.
func (c *Client) Close() error {
	return c.source.Close()
}

// groups resolves engine index names into syncer groups. Empty names means
// every registered index.
func (c *Client) groups(names ...string) ([]syncer.IndexGroup, error) {
	if len(names) == 0 {
		names = c.registry.IndexNames()
	}
	out := make([]syncer.IndexGroup, 0, len(names))
	for _, name := range names {
		indices, err := c.registry.Indexes(name)
		if err != nil {
			return nil, err
		}
		g := syncer.IndexGroup{Name: name}
		for _, ix := range indices {
			g.Indices = append(g.Indices, ix)
		}
		out = append(out, g)
	}
	return out, nil
}

func filterModels(groups []syncer.IndexGroup, models []string) []syncer.IndexGroup {
	want := make(map[string]bool, len(models))
	for _, m := range models {
		want[m] = true
	}
	out := make([]syncer.IndexGroup, 0, len(groups))
	for _, g := range groups {
		kept := syncer.IndexGroup{Name: g.Name}
		for _, ix := range g.Indices {
			if want[ix.ModelName()] {
				kept.Indices = append(kept.Indices, ix)
			}
		}
		if len(kept.Indices) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// noopSource serves clients built without a record source. Every read
// reports ErrNoSource.
type noopSource struct{}

func (noopSource) Fetch(context.Context, source.Query) (source.Iterator, error) {
	return nil, ErrNoSource
}

func (noopSource) FetchOne(context.Context, string, string, any, []string) (map[string]any, error) {
	return nil, ErrNoSource
}

func (noopSource) Columns(context.Context, string) ([]source.Column, error) {
	return nil, ErrNoSource
}

func (noopSource) Ping(context.Context) error { return ErrNoSource }

func (noopSource) Close() error { return nil }
