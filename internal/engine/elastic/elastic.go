// Package elastic implements the engine contract over the Elasticsearch
// HTTP API.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/slated/bungiesearch/internal/engine"
	"github.com/slated/bungiesearch/internal/metrics"
)

// Compile-time check: Driver implements engine.Engine.
var _ engine.Engine = (*Driver)(nil)

// Config holds connection parameters for an Elasticsearch driver.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	// Timeout bounds health waits when the caller passes none.
	Timeout time.Duration
	// FlushBytes triggers bulk flushes; the indexer default when zero.
	FlushBytes int
	// Workers is the bulk indexer concurrency; the indexer default when
	// zero.
	Workers int
}

// Driver implements engine.Engine via go-elasticsearch.
type Driver struct {
	es         *elasticsearch.Client
	log        *zap.Logger
	timeout    time.Duration
	flushBytes int
	workers    int
}

// New creates an Elasticsearch driver.
func New(cfg Config, log *zap.Logger) (*Driver, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("addresses is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Driver{
		es:         es,
		log:        log,
		timeout:    timeout,
		flushBytes: cfg.FlushBytes,
		workers:    cfg.Workers,
	}, nil
}

// CreateIndex creates an index from a mappings+settings body.
func (d *Driver) CreateIndex(ctx context.Context, name string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("create index %q: encode body: %w", name, err)
	}
	res, err := d.es.Indices.Create(
		name,
		d.es.Indices.Create.WithBody(bytes.NewReader(payload)),
		d.es.Indices.Create.WithContext(ctx),
	)
	return d.finish("create_index", name, res, err)
}

// DeleteIndex removes an index. Missing indices are tolerated.
func (d *Driver) DeleteIndex(ctx context.Context, name string) error {
	res, err := d.es.Indices.Delete(
		[]string{name},
		d.es.Indices.Delete.WithIgnoreUnavailable(true),
		d.es.Indices.Delete.WithContext(ctx),
	)
	return d.finish("delete_index", name, res, err)
}

// PutMapping updates property mappings of an existing index.
func (d *Driver) PutMapping(ctx context.Context, name string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("put mapping %q: encode body: %w", name, err)
	}
	res, err := d.es.Indices.PutMapping(
		[]string{name},
		bytes.NewReader(payload),
		d.es.Indices.PutMapping.WithContext(ctx),
	)
	return d.finish("put_mapping", name, res, err)
}

// IndexExists reports whether the index is present.
func (d *Driver) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := d.es.Indices.Exists(
		[]string{name},
		d.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		metrics.EngineRequestsTotal.WithLabelValues("index_exists", "error").Inc()
		return false, fmt.Errorf("index exists %q: %w", name, err)
	}
	defer res.Body.Close()
	drain(res.Body)

	switch res.StatusCode {
	case 200:
		metrics.EngineRequestsTotal.WithLabelValues("index_exists", "ok").Inc()
		return true, nil
	case 404:
		metrics.EngineRequestsTotal.WithLabelValues("index_exists", "ok").Inc()
		return false, nil
	default:
		metrics.EngineRequestsTotal.WithLabelValues("index_exists", "error").Inc()
		return false, fmt.Errorf("index exists %q: %s", name, res.Status())
	}
}

// IndexDocument writes one document under the given id.
func (d *Driver) IndexDocument(ctx context.Context, index, docID string, doc map[string]any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("index document %q: encode %q: %w", index, docID, err)
	}
	res, err := d.es.Index(
		index,
		bytes.NewReader(payload),
		d.es.Index.WithDocumentID(docID),
		d.es.Index.WithContext(ctx),
	)
	if err := d.finish("index_document", index, res, err); err != nil {
		return err
	}
	metrics.DocumentsIndexedTotal.WithLabelValues(index, "index").Inc()
	return nil
}

// DeleteDocument removes one document. Missing documents are tolerated.
func (d *Driver) DeleteDocument(ctx context.Context, index, docID string) error {
	res, err := d.es.Delete(index, docID, d.es.Delete.WithContext(ctx))
	if err != nil {
		metrics.EngineRequestsTotal.WithLabelValues("delete_document", "error").Inc()
		return fmt.Errorf("delete document %q: %w", index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		drain(res.Body)
		metrics.EngineRequestsTotal.WithLabelValues("delete_document", "ok").Inc()
		return nil
	}
	if res.IsError() {
		metrics.EngineRequestsTotal.WithLabelValues("delete_document", "error").Inc()
		return fmt.Errorf("delete document %q: %s: %s", index, res.Status(), excerpt(res.Body))
	}
	drain(res.Body)
	metrics.EngineRequestsTotal.WithLabelValues("delete_document", "ok").Inc()
	metrics.DocumentsIndexedTotal.WithLabelValues(index, "delete").Inc()
	return nil
}

// Ping checks connectivity.
func (d *Driver) Ping(ctx context.Context) error {
	res, err := d.es.Ping(d.es.Ping.WithContext(ctx))
	if err != nil {
		metrics.EngineRequestsTotal.WithLabelValues("ping", "error").Inc()
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()
	drain(res.Body)

	if res.IsError() {
		metrics.EngineRequestsTotal.WithLabelValues("ping", "error").Inc()
		return fmt.Errorf("ping: %s", res.Status())
	}
	metrics.EngineRequestsTotal.WithLabelValues("ping", "ok").Inc()
	return nil
}

// WaitForStatus blocks until the named indices reach the wanted cluster
// health status. An empty status waits for yellow.
func (d *Driver) WaitForStatus(ctx context.Context, indices []string, status string, timeout time.Duration) error {
	if status == "" {
		status = "yellow"
	}
	if timeout <= 0 {
		timeout = d.timeout
	}

	opts := []func(*esapi.ClusterHealthRequest){
		d.es.Cluster.Health.WithContext(ctx),
		d.es.Cluster.Health.WithWaitForStatus(status),
		d.es.Cluster.Health.WithTimeout(timeout),
	}
	if len(indices) > 0 {
		opts = append(opts, d.es.Cluster.Health.WithIndex(indices...))
	}

	res, err := d.es.Cluster.Health(opts...)
	if err != nil {
		metrics.EngineRequestsTotal.WithLabelValues("cluster_health", "error").Inc()
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.EngineRequestsTotal.WithLabelValues("cluster_health", "error").Inc()
		return fmt.Errorf("cluster health: wait for %q: %s: %s", status, res.Status(), excerpt(res.Body))
	}

	var health struct {
		Status   string `json:"status"`
		TimedOut bool   `json:"timed_out"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		metrics.EngineRequestsTotal.WithLabelValues("cluster_health", "error").Inc()
		return fmt.Errorf("cluster health: decode: %w", err)
	}
	if health.TimedOut {
		metrics.EngineRequestsTotal.WithLabelValues("cluster_health", "error").Inc()
		return fmt.Errorf("cluster health: wait for %q timed out, status is %q", status, health.Status)
	}

	metrics.EngineRequestsTotal.WithLabelValues("cluster_health", "ok").Inc()
	d.log.Debug("cluster health reached",
		zap.String("status", health.Status),
		zap.Strings("indices", indices),
	)
	return nil
}

// WaitForReady polls Ping until the engine responds or timeout expires.
func (d *Driver) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for engine: %w", ctx.Err())
		case <-ticker.C:
			if err := d.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// finish applies the shared response handling: wrap transport errors,
// surface API errors with a body excerpt, count the request.
func (d *Driver) finish(op, name string, res *esapi.Response, err error) error {
	if err != nil {
		metrics.EngineRequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s %q: %w", op, name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.EngineRequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s %q: %s: %s", op, name, res.Status(), excerpt(res.Body))
	}
	drain(res.Body)
	metrics.EngineRequestsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

// drain consumes a response body so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}

// excerpt reads the start of an error body for diagnostics.
func excerpt(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	if len(b) == 0 {
		return "no response body"
	}
	return string(bytes.TrimSpace(b))
}
