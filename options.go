package bungiesearch

import (
	"time"

	"go.uber.org/zap"
)

type clientConfig struct {
	addresses []string
	username  string
	password  string
	timeout   time.Duration

	sourceDriver string // "", "postgres" or "sqlite"
	dsn          string

	bulkSize   int
	flushBytes int
	workers    int
	waitStatus string

	log     *zap.Logger
	metrics bool
}

// ClientOption configures the Client.
type ClientOption func(*clientConfig)

// WithAddresses sets the search engine node addresses.
// Default is http://localhost:9200.
func WithAddresses(addrs ...string) ClientOption {
	return func(c *clientConfig) {
		c.addresses = addrs
	}
}

// WithBasicAuth sets search engine credentials.
func WithBasicAuth(username, password string) ClientOption {
	return func(c *clientConfig) {
		c.username = username
		c.password = password
	}
}

// WithRequestTimeout bounds engine health waits. Default is 30s.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithPostgres reads records from a PostgreSQL database.
func WithPostgres(dsn string) ClientOption {
	return func(c *clientConfig) {
		c.sourceDriver = "postgres"
		c.dsn = dsn
	}
}

// WithSQLite reads records from a SQLite database file.
func WithSQLite(path string) ClientOption {
	return func(c *clientConfig) {
		c.sourceDriver = "sqlite"
		c.dsn = path
	}
}

// WithBulkSize sets how many records one bulk session carries. Default is 100.
func WithBulkSize(n int) ClientOption {
	return func(c *clientConfig) {
		c.bulkSize = n
	}
}

// WithFlushBytes sets the bulk flush threshold in bytes.
func WithFlushBytes(n int) ClientOption {
	return func(c *clientConfig) {
		c.flushBytes = n
	}
}

// WithWorkers sets the bulk indexer concurrency.
func WithWorkers(n int) ClientOption {
	return func(c *clientConfig) {
		c.workers = n
	}
}

// WithWaitStatus sets the cluster health status index creation waits for.
// Default is green.
func WithWaitStatus(status string) ClientOption {
	return func(c *clientConfig) {
		c.waitStatus = status
	}
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *clientConfig) {
		c.log = log
	}
}

// WithMetrics registers the prometheus collectors for indexing activity.
func WithMetrics() ClientOption {
	return func(c *clientConfig) {
		c.metrics = true
	}
}
