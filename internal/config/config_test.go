package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	return Config{
		Elasticsearch: ElasticsearchConfig{
			Addresses:     []string{"http://localhost:9200"},
			WaitForStatus: "green",
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
	}
}

func TestValidate_MissingAddresses(t *testing.T) {
	cfg := validConfig()
	cfg.Elasticsearch.Addresses = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing elasticsearch addresses")
	}
}

func TestValidate_InvalidWaitForStatus(t *testing.T) {
	cfg := validConfig()
	cfg.Elasticsearch.WaitForStatus = "purple"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid wait_for_status")
	}

	expected := `elasticsearch.wait_for_status must be "green" or "yellow", got "purple"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_InvalidDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "mysql"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid database driver")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_IndexWithoutModels(t *testing.T) {
	cfg := validConfig()
	cfg.Indexes = map[string]IndexSpec{"blog": {}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for index without models")
	}
}

func TestValidate_ModelWithoutTable(t *testing.T) {
	cfg := validConfig()
	cfg.Indexes = map[string]IndexSpec{
		"blog": {Models: []ModelSpec{{Model: "BlogPost"}}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for model without table")
	}
}

func TestValidate_UnknownFieldType(t *testing.T) {
	cfg := validConfig()
	cfg.Indexes = map[string]IndexSpec{
		"blog": {Models: []ModelSpec{{
			Model: "BlogPost",
			Table: "blog_posts",
			Hotfixes: map[string]FieldSpec{
				"title": {Type: "geo_point"},
			},
		}}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown field type")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Elasticsearch.TimeoutSec != 30 {
		t.Errorf("expected TimeoutSec=30, got %d", cfg.Elasticsearch.TimeoutSec)
	}
	if cfg.Elasticsearch.WaitForStatus != "green" {
		t.Errorf("expected WaitForStatus=green, got %q", cfg.Elasticsearch.WaitForStatus)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected Driver=postgres, got %q", cfg.Database.Driver)
	}
	if cfg.Indexing.BulkSize != 100 {
		t.Errorf("expected BulkSize=100, got %d", cfg.Indexing.BulkSize)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		Elasticsearch: ElasticsearchConfig{TimeoutSec: 5, WaitForStatus: "yellow"},
		Database:      DatabaseConfig{Driver: "sqlite"},
		Indexing:      IndexingConfig{BulkSize: 500},
	}
	cfg.ApplyDefaults()

	if cfg.Elasticsearch.TimeoutSec != 5 {
		t.Errorf("expected TimeoutSec=5, got %d", cfg.Elasticsearch.TimeoutSec)
	}
	if cfg.Elasticsearch.WaitForStatus != "yellow" {
		t.Errorf("expected WaitForStatus=yellow, got %q", cfg.Elasticsearch.WaitForStatus)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected Driver=sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Indexing.BulkSize != 500 {
		t.Errorf("expected BulkSize=500, got %d", cfg.Indexing.BulkSize)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("BS_TEST_ES_ADDR", "http://search:9200")

	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	raw := `
env: test
elasticsearch:
  addresses: ["${BS_TEST_ES_ADDR}"]
  wait_for_status: ${BS_TEST_WAIT:-yellow}
database:
  driver: sqlite
  dsn: ":memory:"
indexing:
  bulk_size: 250
ops:
  addr: "127.0.0.1:9102"
  auth_tokens: ["${BS_TEST_OPS_TOKEN:-scrape-me}"]
indexes:
  blog:
    settings:
      number_of_shards: 1
    models:
      - model: BlogPost
        table: blog_posts
        id_column: id
        updated_column: updated_at
        exclude: [secret]
        hotfixes:
          title:
            boost: 1.75
            analyzer: snowball
        extra:
          summary:
            type: text
            eval_as: 'object.description + " " + object.link'
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if got := cfg.Elasticsearch.Addresses[0]; got != "http://search:9200" {
		t.Errorf("env expansion: got %q", got)
	}
	if cfg.Elasticsearch.WaitForStatus != "yellow" {
		t.Errorf("default expansion: got %q", cfg.Elasticsearch.WaitForStatus)
	}
	if cfg.Indexing.BulkSize != 250 {
		t.Errorf("expected BulkSize=250, got %d", cfg.Indexing.BulkSize)
	}
	if cfg.Ops.Addr != "127.0.0.1:9102" {
		t.Errorf("ops addr: got %q", cfg.Ops.Addr)
	}
	if len(cfg.Ops.AuthTokens) != 1 || cfg.Ops.AuthTokens[0] != "scrape-me" {
		t.Errorf("ops auth tokens: got %v", cfg.Ops.AuthTokens)
	}

	spec, ok := cfg.Indexes["blog"]
	if !ok {
		t.Fatal("blog index spec missing")
	}
	if len(spec.Models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(spec.Models))
	}
	m := spec.Models[0]
	if m.Table != "blog_posts" || m.IDColumn != "id" || m.UpdatedColumn != "updated_at" {
		t.Errorf("model spec mismatch: %+v", m)
	}
	if hf := m.Hotfixes["title"]; hf.Boost != 1.75 || hf.Analyzer != "snowball" {
		t.Errorf("hotfix mismatch: %+v", hf)
	}
	if ex := m.Extra["summary"]; ex.Type != "text" || ex.EvalAs == "" {
		t.Errorf("extra field mismatch: %+v", ex)
	}
}

func TestLoadFile_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	raw := `
database:
  driver: sqlite
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected validation error for config without addresses")
	}
}
