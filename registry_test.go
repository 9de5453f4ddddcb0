package bungiesearch

import (
	"errors"
	"reflect"
	"testing"
)

type comment struct {
	ID   int64  `search:"id,pk"`
	Text string `search:"text"`
}

func mustIndex[T any](t *testing.T, name string, opts ...IndexOption) *Index {
	t.Helper()
	ix, err := NewIndex[T](name, opts...)
	if err != nil {
		t.Fatalf("index %q: %v", name, err)
	}
	return ix
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	articles := mustIndex[article](t, "content")
	comments := mustIndex[comment](t, "content")
	pages := mustIndex[comment](t, "pages")

	for _, ix := range []*Index{articles, comments, pages} {
		if err := r.Register(ix); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	if got := r.IndexNames(); !reflect.DeepEqual(got, []string{"content", "pages"}) {
		t.Errorf("names = %v, want [content pages]", got)
	}

	list, err := r.Indexes("content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len = %d, want 2", len(list))
	}

	if got := len(r.All()); got != 3 {
		t.Errorf("all = %d, want 3", got)
	}
}

func TestRegistry_DuplicateModel(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(mustIndex[article](t, "content")); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.Register(mustIndex[article](t, "content"))
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegistry_UnknownIndex(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Indexes("nope"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("error = %v, want ErrNotRegistered", err)
	}
}

func TestRegistry_ForModel(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(mustIndex[article](t, "content")); err != nil {
		t.Fatalf("register: %v", err)
	}

	ix, err := r.ForModel("article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ix.Name() != "content" {
		t.Errorf("index = %q, want content", ix.Name())
	}

	if _, err := r.ForModel("ghost"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("error = %v, want ErrNotRegistered", err)
	}
}

func TestRegistry_ForModel_AmbiguousNeedsDefault(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(mustIndex[article](t, "content")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(mustIndex[article](t, "archive")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := r.ForModel("article"); !errors.Is(err, ErrAmbiguousModel) {
		t.Fatalf("error = %v, want ErrAmbiguousModel", err)
	}
}

func TestRegistry_ForModel_DefaultWins(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(mustIndex[article](t, "content")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(mustIndex[article](t, "archive", AsDefault())); err != nil {
		t.Fatalf("register: %v", err)
	}

	ix, err := r.ForModel("article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ix.Name() != "archive" {
		t.Errorf("index = %q, want archive", ix.Name())
	}
}

func TestRegistry_RegisterNil(t *testing.T) {
	if err := NewRegistry().Register(nil); err == nil {
		t.Fatal("expected error for nil index")
	}
}
