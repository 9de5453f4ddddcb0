package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/slated/bungiesearch"
	"github.com/slated/bungiesearch/internal/config"
	"github.com/slated/bungiesearch/internal/source"
)

// --- Fixtures ---

func testColumns() []source.Column {
	return []source.Column{
		{Name: "id", DataType: "serial", PrimaryKey: true},
		{Name: "title", DataType: "character varying(255)"},
		{Name: "views", DataType: "integer"},
		{Name: "internal_notes", DataType: "text", Nullable: true},
		{Name: "updated_at", DataType: "timestamp with time zone", Nullable: true},
	}
}

func boolPtr(b bool) *bool { return &b }

// --- Tests ---

func TestIndexOptions_Translation(t *testing.T) {
	spec := config.ModelSpec{
		Model:         "Article",
		Table:         "articles",
		UpdatedColumn: "updated_at",
		Exclude:       []string{"internal_notes"},
		Hotfixes: map[string]config.FieldSpec{
			"title": {Boost: 1.75},
		},
		Extra: map[string]config.FieldSpec{
			"summary": {Type: "keyword", Attr: "title"},
		},
	}

	opts, err := indexOptions(spec)
	if err != nil {
		t.Fatalf("indexOptions failed: %v", err)
	}

	meta := bungiesearch.ModelMetaFromColumns("Article", "articles", testColumns())
	ix, err := bungiesearch.NewIndexFromMeta("content", meta, opts...)
	if err != nil {
		t.Fatalf("NewIndexFromMeta failed: %v", err)
	}

	if ix.UpdatedColumn() != "updated_at" {
		t.Errorf("updated column = %q, want updated_at", ix.UpdatedColumn())
	}

	props := ix.Mapping(false)["properties"].(map[string]any)
	if _, ok := props["internal_notes"]; ok {
		t.Error("excluded column internal_notes leaked into the mapping")
	}
	summary, ok := props["summary"].(map[string]any)
	if !ok {
		t.Fatal("extra field summary is missing from the mapping")
	}
	if summary["type"] != "keyword" {
		t.Errorf("summary type = %v, want keyword", summary["type"])
	}
	title := props["title"].(map[string]any)
	if title["boost"] != 1.75 {
		t.Errorf("title boost = %v, want 1.75", title["boost"])
	}

	doc, err := ix.Serialize(map[string]any{"id": 1, "title": "Hello", "views": 2, "updated_at": nil})
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if doc["summary"] != "Hello" {
		t.Errorf("summary = %v, want Hello", doc["summary"])
	}
}

func TestIndexOptions_TypedHotfixReplacesField(t *testing.T) {
	spec := config.ModelSpec{
		Model: "Article",
		Table: "articles",
		Hotfixes: map[string]config.FieldSpec{
			"title": {Type: "keyword"},
		},
	}

	opts, err := indexOptions(spec)
	if err != nil {
		t.Fatalf("indexOptions failed: %v", err)
	}

	meta := bungiesearch.ModelMetaFromColumns("Article", "articles", testColumns())
	ix, err := bungiesearch.NewIndexFromMeta("content", meta, opts...)
	if err != nil {
		t.Fatalf("NewIndexFromMeta failed: %v", err)
	}

	props := ix.Mapping(false)["properties"].(map[string]any)
	title := props["title"].(map[string]any)
	if title["type"] != "keyword" {
		t.Errorf("title type = %v, want keyword", title["type"])
	}
}

func TestIndexOptions_DoubleStrategyRejected(t *testing.T) {
	spec := config.ModelSpec{
		Model: "Article",
		Table: "articles",
		Extra: map[string]config.FieldSpec{
			"byline": {Attr: "author", EvalAs: "object.author"},
		},
	}

	_, err := indexOptions(spec)
	if !errors.Is(err, bungiesearch.ErrValueSource) {
		t.Fatalf("expected ErrValueSource, got %v", err)
	}
}

func TestStrategyOptions_DefaultsToOwnName(t *testing.T) {
	f, err := buildField("text", strategyOptions("headline", config.FieldSpec{}))
	if err != nil {
		t.Fatalf("buildField failed: %v", err)
	}

	v, err := f.Value(map[string]any{"headline": "hi"})
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if v != "hi" {
		t.Errorf("value = %v, want hi", v)
	}
}

func TestFieldOptions_Tuning(t *testing.T) {
	spec := config.FieldSpec{
		Analyzer: "standard",
		Boost:    2,
		Store:    boolPtr(true),
	}

	f, err := buildField("text", append(fieldOptions(spec), bungiesearch.ModelAttr("title")))
	if err != nil {
		t.Fatalf("buildField failed: %v", err)
	}

	m := f.Mapping()
	if m["analyzer"] != "standard" {
		t.Errorf("analyzer = %v, want standard", m["analyzer"])
	}
	if m["boost"] != 2.0 {
		t.Errorf("boost = %v, want 2", m["boost"])
	}
	if m["store"] != true {
		t.Errorf("store = %v, want true", m["store"])
	}
}

func TestBuildField_UnknownType(t *testing.T) {
	_, err := buildField("geo", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown field type") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}
