package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the bungiesearch runtime configuration.
type Config struct {
	Env           string               `yaml:"env"`
	Logging       LoggingConfig        `yaml:"logging"`
	Elasticsearch ElasticsearchConfig  `yaml:"elasticsearch"`
	Database      DatabaseConfig       `yaml:"database"`
	Indexing      IndexingConfig       `yaml:"indexing"`
	Ops           OpsConfig            `yaml:"ops"`
	Indexes       map[string]IndexSpec `yaml:"indexes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// ElasticsearchConfig holds search engine connection settings.
type ElasticsearchConfig struct {
	Addresses     []string `yaml:"addresses"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	TimeoutSec    int      `yaml:"timeout_sec"`
	WaitForStatus string   `yaml:"wait_for_status"` // green, yellow (default: green)
}

// DatabaseConfig holds record source settings.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite (default: postgres)
	DSN    string `yaml:"dsn"`
}

// IndexingConfig holds bulk indexing settings.
type IndexingConfig struct {
	BulkSize   int `yaml:"bulk_size"`
	Workers    int `yaml:"workers"`
	FlushBytes int `yaml:"flush_bytes"`
}

// OpsConfig holds the optional metrics and health listener settings.
type OpsConfig struct {
	Addr       string   `yaml:"addr"`        // empty disables the listener
	AuthTokens []string `yaml:"auth_tokens"` // empty disables authentication
}

// IndexSpec declares one engine index and the models feeding it.
type IndexSpec struct {
	Settings map[string]any `yaml:"settings"`
	Models   []ModelSpec    `yaml:"models"`
}

// ModelSpec declares how one table maps into an engine index.
type ModelSpec struct {
	Model            string               `yaml:"model"`
	Table            string               `yaml:"table"`
	IDColumn         string               `yaml:"id_column"`
	UpdatedColumn    string               `yaml:"updated_column"`
	Fields           []string             `yaml:"fields"`
	Exclude          []string             `yaml:"exclude"`
	AdditionalFields []string             `yaml:"additional_fields"`
	Hotfixes         map[string]FieldSpec `yaml:"hotfixes"`
	Extra            map[string]FieldSpec `yaml:"extra"`
	Default          bool                 `yaml:"default"`
}

// FieldSpec tunes one generated field, or declares an extra one under
// "extra". An extra field reads the attribute of its own name unless attr,
// eval_as or template says otherwise.
type FieldSpec struct {
	Type      string  `yaml:"type"` // text, keyword, date, boolean, number, nested
	Attr      string  `yaml:"attr"`
	EvalAs    string  `yaml:"eval_as"`
	Template  string  `yaml:"template"`
	Coretype  string  `yaml:"coretype"`
	Analyzer  string  `yaml:"analyzer"`
	Boost     float64 `yaml:"boost"`
	NullValue any     `yaml:"null_value"`
	Format    string  `yaml:"format"`
	Store     *bool   `yaml:"store"`
	Index     *bool   `yaml:"index"`
}

// Load reads configuration from a YAML file by environment name (local,
// dev, prod), searching config/ directories upward from the working
// directory.
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the BUNGIESEARCH_ENV
// variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("BUNGIESEARCH_ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = GetEnv()
	}
	if c.Elasticsearch.TimeoutSec <= 0 {
		c.Elasticsearch.TimeoutSec = 30
	}
	if c.Elasticsearch.WaitForStatus == "" {
		c.Elasticsearch.WaitForStatus = "green"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Indexing.BulkSize <= 0 {
		c.Indexing.BulkSize = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch.addresses is required")
	}
	switch c.Elasticsearch.WaitForStatus {
	case "green", "yellow":
	default:
		return fmt.Errorf(
			"elasticsearch.wait_for_status must be \"green\" or \"yellow\", got %q",
			c.Elasticsearch.WaitForStatus,
		)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf(
			"database.driver must be \"postgres\" or \"sqlite\", got %q",
			c.Database.Driver,
		)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}

	for name, spec := range c.Indexes {
		if len(spec.Models) == 0 {
			return fmt.Errorf("indexes.%s: at least one model is required", name)
		}
		for i, m := range spec.Models {
			if m.Model == "" {
				return fmt.Errorf("indexes.%s.models[%d]: model is required", name, i)
			}
			if m.Table == "" {
				return fmt.Errorf("indexes.%s.models[%d]: table is required", name, i)
			}
			if err := validateFieldSpecs(name, m.Hotfixes); err != nil {
				return err
			}
			if err := validateFieldSpecs(name, m.Extra); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateFieldSpecs(index string, specs map[string]FieldSpec) error {
	for field, spec := range specs {
		switch spec.Type {
		case "", "text", "keyword", "date", "boolean", "number", "nested":
		default:
			return fmt.Errorf(
				"indexes.%s: field %q has unknown type %q",
				index, field, spec.Type,
			)
		}
	}
	return nil
}

// findConfigPath locates config/{env}.yaml walking up from the working
// directory.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	dir, err := os.Getwd()
	if err == nil {
		for {
			path := filepath.Join(dir, "config", filename)
			if fileExists(path) {
				return path
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
