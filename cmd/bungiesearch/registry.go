package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/slated/bungiesearch"
	"github.com/slated/bungiesearch/internal/config"
)

// buildClient translates file configuration into client options.
func buildClient(cfg config.Config, log *zap.Logger) (*bungiesearch.Client, error) {
	opts := []bungiesearch.ClientOption{
		bungiesearch.WithAddresses(cfg.Elasticsearch.Addresses...),
		bungiesearch.WithRequestTimeout(time.Duration(cfg.Elasticsearch.TimeoutSec) * time.Second),
		bungiesearch.WithWaitStatus(cfg.Elasticsearch.WaitForStatus),
		bungiesearch.WithBulkSize(cfg.Indexing.BulkSize),
		bungiesearch.WithLogger(log),
		bungiesearch.WithMetrics(),
	}
	if cfg.Elasticsearch.Username != "" {
		opts = append(opts, bungiesearch.WithBasicAuth(cfg.Elasticsearch.Username, cfg.Elasticsearch.Password))
	}
	if cfg.Indexing.Workers > 0 {
		opts = append(opts, bungiesearch.WithWorkers(cfg.Indexing.Workers))
	}
	if cfg.Indexing.FlushBytes > 0 {
		opts = append(opts, bungiesearch.WithFlushBytes(cfg.Indexing.FlushBytes))
	}
	if cfg.Database.DSN != "" {
		switch cfg.Database.Driver {
		case "sqlite":
			opts = append(opts, bungiesearch.WithSQLite(cfg.Database.DSN))
		default:
			opts = append(opts, bungiesearch.WithPostgres(cfg.Database.DSN))
		}
	}
	return bungiesearch.New(opts...)
}

// registerIndexes introspects every configured table and registers the
// resulting model indices with the client.
func registerIndexes(ctx context.Context, c *bungiesearch.Client, cfg config.Config, log *zap.Logger) error {
	names := make([]string, 0, len(cfg.Indexes))
	for name := range cfg.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := cfg.Indexes[name]
		for i, m := range spec.Models {
			meta, err := c.Introspect(ctx, m.Model, m.Table)
			if err != nil {
				return err
			}
			opts, err := indexOptions(m)
			if err != nil {
				return fmt.Errorf("indexes.%s: model %s: %w", name, m.Model, err)
			}
			// Settings are per engine index; the first model carries them.
			if i == 0 && len(spec.Settings) > 0 {
				opts = append(opts, bungiesearch.WithSettings(spec.Settings))
			}
			ix, err := bungiesearch.NewIndexFromMeta(name, meta, opts...)
			if err != nil {
				return err
			}
			if err := c.Register(ix); err != nil {
				return err
			}
			log.Debug("index registered",
				zap.String("index", name),
				zap.String("model", m.Model),
				zap.String("table", m.Table),
			)
		}
	}
	return nil
}

// indexOptions translates one model declaration into index options.
func indexOptions(m config.ModelSpec) ([]bungiesearch.IndexOption, error) {
	var opts []bungiesearch.IndexOption
	if len(m.Fields) > 0 {
		opts = append(opts, bungiesearch.IncludeColumns(m.Fields...))
	}
	if len(m.Exclude) > 0 {
		opts = append(opts, bungiesearch.ExcludeColumns(m.Exclude...))
	}
	if len(m.AdditionalFields) > 0 {
		opts = append(opts, bungiesearch.AdditionalColumns(m.AdditionalFields...))
	}
	if m.IDColumn != "" {
		opts = append(opts, bungiesearch.WithIDColumn(m.IDColumn))
	}
	if m.UpdatedColumn != "" {
		opts = append(opts, bungiesearch.WithUpdatedColumn(m.UpdatedColumn))
	}
	if m.Default {
		opts = append(opts, bungiesearch.AsDefault())
	}

	for _, name := range sortedKeys(m.Hotfixes) {
		spec := m.Hotfixes[name]
		if spec.Type == "" {
			opts = append(opts, bungiesearch.Hotfix(name, fieldOptions(spec)...))
			continue
		}
		// A typed hotfix replaces the generated field outright.
		f, err := buildField(spec.Type, append(fieldOptions(spec), strategyOptions(name, spec)...))
		if err != nil {
			return nil, fmt.Errorf("hotfix %q: %w", name, err)
		}
		opts = append(opts, bungiesearch.WithField(name, f))
	}

	for _, name := range sortedKeys(m.Extra) {
		spec := m.Extra[name]
		f, err := buildField(spec.Type, append(fieldOptions(spec), strategyOptions(name, spec)...))
		if err != nil {
			return nil, fmt.Errorf("extra field %q: %w", name, err)
		}
		opts = append(opts, bungiesearch.WithField(name, f))
	}
	return opts, nil
}

// strategyOptions translates the value-resolution part of a field
// declaration. Every declared strategy is passed through, leaving the
// exactly-one check to the field constructor. A declaration without one
// reads the attribute of the field's own name.
func strategyOptions(name string, spec config.FieldSpec) []bungiesearch.FieldOption {
	var opts []bungiesearch.FieldOption
	if spec.Attr != "" {
		opts = append(opts, bungiesearch.ModelAttr(spec.Attr))
	}
	if spec.EvalAs != "" {
		opts = append(opts, bungiesearch.EvalAs(spec.EvalAs))
	}
	if spec.Template != "" {
		opts = append(opts, bungiesearch.TemplateString(spec.Template))
	}
	if len(opts) == 0 {
		opts = append(opts, bungiesearch.ModelAttr(name))
	}
	return opts
}

// fieldOptions translates the tuning part of a field declaration.
func fieldOptions(spec config.FieldSpec) []bungiesearch.FieldOption {
	var opts []bungiesearch.FieldOption
	if spec.Coretype != "" {
		opts = append(opts, bungiesearch.Coretype(spec.Coretype))
	}
	if spec.Analyzer != "" {
		opts = append(opts, bungiesearch.Analyzer(spec.Analyzer))
	}
	if spec.Boost != 0 {
		opts = append(opts, bungiesearch.Boost(spec.Boost))
	}
	if spec.NullValue != nil {
		opts = append(opts, bungiesearch.NullValue(spec.NullValue))
	}
	if spec.Format != "" {
		opts = append(opts, bungiesearch.Format(spec.Format))
	}
	if spec.Store != nil {
		opts = append(opts, bungiesearch.Store(*spec.Store))
	}
	if spec.Index != nil {
		opts = append(opts, bungiesearch.Indexed(*spec.Index))
	}
	return opts
}

func buildField(typ string, opts []bungiesearch.FieldOption) (bungiesearch.Field, error) {
	switch typ {
	case "", "text":
		return bungiesearch.NewText(opts...)
	case "keyword":
		return bungiesearch.NewKeyword(opts...)
	case "date":
		return bungiesearch.NewDate(opts...)
	case "boolean":
		return bungiesearch.NewBoolean(opts...)
	case "number":
		return bungiesearch.NewNumber(opts...)
	case "nested":
		return bungiesearch.NewNested(opts...)
	default:
		return nil, fmt.Errorf("unknown field type %q", typ)
	}
}

func sortedKeys(m map[string]config.FieldSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
