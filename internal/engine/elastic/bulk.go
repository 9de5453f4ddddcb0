package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esutil"
	"go.uber.org/zap"

	"github.com/slated/bungiesearch/internal/engine"
	"github.com/slated/bungiesearch/internal/metrics"
)

var _ engine.Bulker = (*bulker)(nil)

// bulker wraps an esutil.BulkIndexer as one ingestion session.
type bulker struct {
	bi    esutil.BulkIndexer
	index string
	log   *zap.Logger
	start time.Time
}

// Bulker opens a bulk session against one index. The session buffers
// items and flushes them in batches until Close.
func (d *Driver) Bulker(index string) (engine.Bulker, error) {
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         index,
		Client:        d.es,
		NumWorkers:    d.workers,
		FlushBytes:    d.flushBytes,
		FlushInterval: 5 * time.Second,
		OnError: func(_ context.Context, err error) {
			d.log.Error("bulk indexer", zap.String("index", index), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bulk indexer %q: %w", index, err)
	}
	return &bulker{bi: bi, index: index, log: d.log, start: time.Now()}, nil
}

func (b *bulker) Index(ctx context.Context, docID string, doc map[string]any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("bulk index %q: encode %q: %w", b.index, docID, err)
	}
	return b.add(ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: docID,
		Body:       bytes.NewReader(payload),
	})
}

func (b *bulker) Delete(ctx context.Context, docID string) error {
	return b.add(ctx, esutil.BulkIndexerItem{
		Action:     "delete",
		DocumentID: docID,
	})
}

func (b *bulker) add(ctx context.Context, item esutil.BulkIndexerItem) error {
	item.OnSuccess = func(_ context.Context, item esutil.BulkIndexerItem, _ esutil.BulkIndexerResponseItem) {
		metrics.DocumentsIndexedTotal.WithLabelValues(b.index, item.Action).Inc()
	}
	item.OnFailure = func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
		if err == nil {
			err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
		}
		b.log.Warn("bulk item failed",
			zap.String("index", b.index),
			zap.String("action", item.Action),
			zap.String("doc_id", item.DocumentID),
			zap.Error(err),
		)
	}
	if err := b.bi.Add(ctx, item); err != nil {
		return fmt.Errorf("bulk add %q: %w", b.index, err)
	}
	return nil
}

// Close flushes outstanding items and reports session totals.
func (b *bulker) Close(ctx context.Context) (engine.BulkStats, error) {
	err := b.bi.Close(ctx)
	st := b.bi.Stats()
	stats := engine.BulkStats{
		Indexed: st.NumIndexed,
		Deleted: st.NumDeleted,
		Failed:  st.NumFailed,
	}
	metrics.BulkSessionDuration.WithLabelValues(b.index).Observe(time.Since(b.start).Seconds())
	if err != nil {
		return stats, fmt.Errorf("bulk close %q: %w", b.index, err)
	}
	return stats, nil
}
