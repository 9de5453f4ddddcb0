package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/slated/bungiesearch/internal/engine"
	"github.com/slated/bungiesearch/internal/source"
)

// --- Mocks ---

type fakeIndex struct {
	name       string
	model      string
	table      string
	idCol      string
	updatedCol string
	fetch      []string
	settings   map[string]any
	props      map[string]any
	analysis   map[string]map[string]any
	matches    func(obj any) bool
	docIDErr   error
	serialize  func(obj any) (map[string]any, error)
}

var _ ModelIndex = (*fakeIndex)(nil)

func newFakeIndex(name, model string) *fakeIndex {
	return &fakeIndex{
		name:  name,
		model: model,
		table: model + "s",
		idCol: "id",
		fetch: []string{"id", "title"},
		props: map[string]any{
			"title": map[string]any{"type": "text"},
		},
	}
}

func (f *fakeIndex) Name() string             { return f.name }
func (f *fakeIndex) ModelName() string        { return f.model }
func (f *fakeIndex) Table() string            { return f.table }
func (f *fakeIndex) IDColumn() string         { return f.idCol }
func (f *fakeIndex) UpdatedColumn() string    { return f.updatedCol }
func (f *fakeIndex) FieldsToFetch() []string  { return f.fetch }
func (f *fakeIndex) Settings() map[string]any { return f.settings }

func (f *fakeIndex) Mapping(bool) map[string]any {
	return map[string]any{"properties": f.props}
}

func (f *fakeIndex) Analysis() map[string]map[string]any { return f.analysis }

func (f *fakeIndex) Serialize(obj any) (map[string]any, error) {
	if f.serialize != nil {
		return f.serialize(obj)
	}
	row, _ := obj.(map[string]any)
	doc := map[string]any{"_id": row["id"], "title": row["title"]}
	return doc, nil
}

func (f *fakeIndex) DocID(obj any) (string, error) {
	if f.docIDErr != nil {
		return "", f.docIDErr
	}
	row, _ := obj.(map[string]any)
	return fmt.Sprintf("%v", row["id"]), nil
}

func (f *fakeIndex) Matches(obj any) bool {
	return f.matches == nil || f.matches(obj)
}

type fakeEngine struct {
	created  map[string]map[string]any
	mappings map[string]map[string]any
	deleted  []string
	docs     map[string]map[string]any
	removed  []string
	bulkers  []*fakeBulker
	waited   [][]string
	bulkErr  error
	err      error
}

var _ engine.Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		created:  make(map[string]map[string]any),
		mappings: make(map[string]map[string]any),
		docs:     make(map[string]map[string]any),
	}
}

func (e *fakeEngine) CreateIndex(_ context.Context, name string, body map[string]any) error {
	if e.err != nil {
		return e.err
	}
	e.created[name] = body
	return nil
}

func (e *fakeEngine) DeleteIndex(_ context.Context, name string) error {
	if e.err != nil {
		return e.err
	}
	e.deleted = append(e.deleted, name)
	return nil
}

func (e *fakeEngine) PutMapping(_ context.Context, name string, body map[string]any) error {
	if e.err != nil {
		return e.err
	}
	e.mappings[name] = body
	return nil
}

func (e *fakeEngine) IndexExists(_ context.Context, name string) (bool, error) {
	_, ok := e.created[name]
	return ok, e.err
}

func (e *fakeEngine) IndexDocument(_ context.Context, index, docID string, doc map[string]any) error {
	if e.err != nil {
		return e.err
	}
	e.docs[index+"/"+docID] = doc
	return nil
}

func (e *fakeEngine) DeleteDocument(_ context.Context, index, docID string) error {
	if e.err != nil {
		return e.err
	}
	e.removed = append(e.removed, index+"/"+docID)
	return nil
}

func (e *fakeEngine) Bulker(string) (engine.Bulker, error) {
	if e.err != nil {
		return nil, e.err
	}
	bk := &fakeBulker{docs: make(map[string]map[string]any), err: e.bulkErr}
	e.bulkers = append(e.bulkers, bk)
	return bk, nil
}

func (e *fakeEngine) Ping(context.Context) error { return e.err }

func (e *fakeEngine) WaitForReady(context.Context, time.Duration) error { return e.err }

func (e *fakeEngine) WaitForStatus(_ context.Context, indices []string, _ string, _ time.Duration) error {
	e.waited = append(e.waited, indices)
	return e.err
}

type fakeBulker struct {
	docs     map[string]map[string]any
	removed  []string
	closed   bool
	err      error
	closeErr error
}

func (b *fakeBulker) Index(_ context.Context, docID string, doc map[string]any) error {
	if b.err != nil {
		return b.err
	}
	b.docs[docID] = doc
	return nil
}

func (b *fakeBulker) Delete(_ context.Context, docID string) error {
	if b.err != nil {
		return b.err
	}
	b.removed = append(b.removed, docID)
	return nil
}

func (b *fakeBulker) Close(context.Context) (engine.BulkStats, error) {
	b.closed = true
	return engine.BulkStats{
		Indexed: uint64(len(b.docs)),
		Deleted: uint64(len(b.removed)),
	}, b.closeErr
}

type fakeSource struct {
	rows    map[string][]map[string]any
	queries []source.Query
	err     error
	iterErr error
}

func (s *fakeSource) Fetch(_ context.Context, q source.Query) (source.Iterator, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.queries = append(s.queries, q)
	return &fakeIterator{rows: s.rows[q.Table], err: s.iterErr}, nil
}

type fakeIterator struct {
	rows []map[string]any
	pos  int
	err  error
}

func (it *fakeIterator) Next() (map[string]any, error) {
	if it.pos >= len(it.rows) {
		if it.err != nil {
			return nil, it.err
		}
		return nil, io.EOF
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

func (it *fakeIterator) Close() error { return nil }

func rowsFor(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, map[string]any{"id": i, "title": fmt.Sprintf("row %d", i)})
	}
	return out
}

// --- Tests ---

func TestCreateIndices_BodyShape(t *testing.T) {
	eng := newFakeEngine()
	a := newFakeIndex("content", "article")
	a.settings = map[string]any{"number_of_shards": 3}
	a.analysis = map[string]map[string]any{
		"analyzer": {"auto": map[string]any{"type": "custom"}},
	}
	b := newFakeIndex("content", "comment")
	b.props = map[string]any{"text": map[string]any{"type": "text"}}

	s := New(eng, nil, nil)
	err := s.CreateIndices(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{a, b}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := eng.created["content"]
	if body == nil {
		t.Fatalf("created = %v, want content", eng.created)
	}

	props := body["mappings"].(map[string]any)["properties"].(map[string]any)
	if _, ok := props["title"]; !ok {
		t.Errorf("properties = %v, want title", props)
	}
	if _, ok := props["text"]; !ok {
		t.Errorf("properties = %v, want text", props)
	}

	settings := body["settings"].(map[string]any)
	if settings["number_of_shards"] != 3 {
		t.Errorf("settings = %v, want number_of_shards 3", settings)
	}
	analysis := settings["analysis"].(map[string]map[string]any)
	if _, ok := analysis["analyzer"]["auto"]; !ok {
		t.Errorf("analysis = %v, want auto analyzer", analysis)
	}

	if len(eng.waited) != 1 || !reflect.DeepEqual(eng.waited[0], []string{"content"}) {
		t.Errorf("waited = %v, want [[content]]", eng.waited)
	}
}

func TestCreateIndices_NoSettingsOmitted(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng, nil, nil)
	err := s.CreateIndices(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{newFakeIndex("content", "article")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := eng.created["content"]["settings"]; ok {
		t.Error("settings should be omitted when empty")
	}
}

func TestCreateIndices_MappingConflict(t *testing.T) {
	a := newFakeIndex("content", "article")
	b := newFakeIndex("content", "comment")
	b.props = map[string]any{"title": map[string]any{"type": "keyword"}}

	s := New(newFakeEngine(), nil, nil)
	err := s.CreateIndices(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{a, b}},
	})
	if !errors.Is(err, ErrMappingConflict) {
		t.Fatalf("error = %v, want ErrMappingConflict", err)
	}
}

func TestCreateIndices_SameMappingNoConflict(t *testing.T) {
	a := newFakeIndex("content", "article")
	b := newFakeIndex("content", "comment")

	s := New(newFakeEngine(), nil, nil)
	err := s.CreateIndices(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{a, b}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateMappings(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng, nil, nil)
	err := s.UpdateMappings(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{newFakeIndex("content", "article")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	props := eng.mappings["content"]["properties"].(map[string]any)
	if _, ok := props["title"]; !ok {
		t.Errorf("mapping = %v, want title", props)
	}
}

func TestClear_DeletesThenRecreates(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng, nil, nil)
	err := s.Clear(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{newFakeIndex("content", "article")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(eng.deleted, []string{"content"}) {
		t.Errorf("deleted = %v, want [content]", eng.deleted)
	}
	if _, ok := eng.created["content"]; !ok {
		t.Error("index should be recreated after clear")
	}
}

func TestUpdate_Batches(t *testing.T) {
	eng := newFakeEngine()
	src := &fakeSource{rows: map[string][]map[string]any{"articles": rowsFor(5)}}
	s := New(eng, src, nil, WithBulkSize(2))

	st, err := s.Update(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{newFakeIndex("content", "article")}},
	}, UpdateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.Fetched != 5 {
		t.Errorf("fetched = %d, want 5", st.Fetched)
	}
	if st.Indexed != 5 {
		t.Errorf("indexed = %d, want 5", st.Indexed)
	}
	if len(eng.bulkers) != 3 {
		t.Errorf("bulk sessions = %d, want 3", len(eng.bulkers))
	}
	for i, bk := range eng.bulkers {
		if !bk.closed {
			t.Errorf("session %d left open", i)
		}
	}
}

func TestUpdate_QueryCarriesWindow(t *testing.T) {
	src := &fakeSource{rows: map[string][]map[string]any{"articles": nil}}
	s := New(newFakeEngine(), src, nil)

	ix := newFakeIndex("content", "article")
	ix.updatedCol = "updated_at"
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	_, err := s.Update(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{ix}},
	}, UpdateOptions{Start: &start, End: &end, NumDocs: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := src.queries[0]
	if q.Table != "articles" || q.PKColumn != "id" || q.UpdatedColumn != "updated_at" {
		t.Errorf("query = %+v", q)
	}
	if q.Start == nil || !q.Start.Equal(start) || q.End == nil || !q.End.Equal(end) {
		t.Errorf("window = %v..%v, want %v..%v", q.Start, q.End, start, end)
	}
	if q.Limit != 50 {
		t.Errorf("limit = %d, want 50", q.Limit)
	}
	if !reflect.DeepEqual(q.Columns, []string{"id", "title"}) {
		t.Errorf("columns = %v", q.Columns)
	}
}

func TestUpdate_StripsMetaKeys(t *testing.T) {
	eng := newFakeEngine()
	src := &fakeSource{rows: map[string][]map[string]any{"articles": rowsFor(1)}}
	s := New(eng, src, nil)

	_, err := s.Update(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{newFakeIndex("content", "article")}},
	}, UpdateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := eng.bulkers[0].docs["1"]
	if doc == nil {
		t.Fatalf("docs = %v, want id 1", eng.bulkers[0].docs)
	}
	if _, ok := doc["_id"]; ok {
		t.Error("_id should be stripped before the engine write")
	}
	if doc["title"] != "row 1" {
		t.Errorf("title = %v", doc["title"])
	}
}

func TestUpdate_UnindexesRejected(t *testing.T) {
	eng := newFakeEngine()
	src := &fakeSource{rows: map[string][]map[string]any{"articles": rowsFor(2)}}
	ix := newFakeIndex("content", "article")
	ix.matches = func(obj any) bool {
		row, _ := obj.(map[string]any)
		return row["id"] != 2
	}
	s := New(eng, src, nil)

	st, err := s.Update(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{ix}},
	}, UpdateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Indexed != 1 || st.Deleted != 1 {
		t.Errorf("stats = %+v, want 1 indexed 1 deleted", st)
	}
	if !reflect.DeepEqual(eng.bulkers[0].removed, []string{"2"}) {
		t.Errorf("removed = %v, want [2]", eng.bulkers[0].removed)
	}
}

func TestUpdate_SkipsFailedRecords(t *testing.T) {
	eng := newFakeEngine()
	src := &fakeSource{rows: map[string][]map[string]any{"articles": rowsFor(3)}}
	ix := newFakeIndex("content", "article")
	ix.serialize = func(obj any) (map[string]any, error) {
		row, _ := obj.(map[string]any)
		if row["id"] == 2 {
			return nil, errors.New("bad record")
		}
		return map[string]any{"title": row["title"]}, nil
	}
	s := New(eng, src, nil)

	st, err := s.Update(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{ix}},
	}, UpdateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.SerializeFailures != 1 {
		t.Errorf("serialize failures = %d, want 1", st.SerializeFailures)
	}
	if st.Indexed != 2 {
		t.Errorf("indexed = %d, want 2", st.Indexed)
	}
}

func TestUpdate_SkipsBadDocID(t *testing.T) {
	eng := newFakeEngine()
	src := &fakeSource{rows: map[string][]map[string]any{"articles": rowsFor(1)}}
	ix := newFakeIndex("content", "article")
	ix.docIDErr = errors.New("no id")
	s := New(eng, src, nil)

	st, err := s.Update(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{ix}},
	}, UpdateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.SerializeFailures != 1 {
		t.Errorf("serialize failures = %d, want 1", st.SerializeFailures)
	}
	if st.Indexed != 0 {
		t.Errorf("indexed = %d, want 0", st.Indexed)
	}
}

func TestUpdate_NoSource(t *testing.T) {
	s := New(newFakeEngine(), nil, nil)
	_, err := s.Update(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{newFakeIndex("content", "article")}},
	}, UpdateOptions{})
	if err == nil {
		t.Fatal("expected error without a record source")
	}
}

func TestUpdate_IteratorError(t *testing.T) {
	src := &fakeSource{
		rows:    map[string][]map[string]any{"articles": rowsFor(1)},
		iterErr: errors.New("conn reset"),
	}
	s := New(newFakeEngine(), src, nil)

	_, err := s.Update(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{newFakeIndex("content", "article")}},
	}, UpdateOptions{})
	if err == nil {
		t.Fatal("expected iterator error to abort the run")
	}
}

func TestUpdate_BulkerAddErrorAborts(t *testing.T) {
	eng := newFakeEngine()
	eng.bulkErr = errors.New("queue full")
	src := &fakeSource{rows: map[string][]map[string]any{"articles": rowsFor(1)}}
	s := New(eng, src, nil)

	_, err := s.Update(context.Background(), []IndexGroup{
		{Name: "content", Indices: []ModelIndex{newFakeIndex("content", "article")}},
	}, UpdateOptions{})
	if err == nil {
		t.Fatal("expected bulk add error to abort the run")
	}
	// The session is still closed so queued actions are not leaked.
	if !eng.bulkers[0].closed {
		t.Error("bulk session should be closed after add error")
	}
}

func TestUpdateRecord(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng, nil, nil)
	ix := newFakeIndex("content", "article")

	err := s.UpdateRecord(context.Background(), ix, map[string]any{"id": 1, "title": "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := eng.docs["content/1"]
	if doc == nil {
		t.Fatalf("docs = %v, want content/1", eng.docs)
	}
	if _, ok := doc["_id"]; ok {
		t.Error("_id should be stripped")
	}
}

func TestUpdateRecord_RejectedIsRemoved(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng, nil, nil)
	ix := newFakeIndex("content", "article")
	ix.matches = func(any) bool { return false }

	err := s.UpdateRecord(context.Background(), ix, map[string]any{"id": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(eng.removed, []string{"content/1"}) {
		t.Errorf("removed = %v, want [content/1]", eng.removed)
	}
	if len(eng.docs) != 0 {
		t.Errorf("docs = %v, want none", eng.docs)
	}
}

func TestDeleteRecord(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng, nil, nil)

	err := s.DeleteRecord(context.Background(), newFakeIndex("content", "article"), map[string]any{"id": 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(eng.removed, []string{"content/9"}) {
		t.Errorf("removed = %v, want [content/9]", eng.removed)
	}
}

func TestDeleteIndices(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng, nil, nil)
	if err := s.DeleteIndices(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(eng.deleted, []string{"a", "b"}) {
		t.Errorf("deleted = %v, want [a b]", eng.deleted)
	}
}

func TestStripMeta(t *testing.T) {
	doc := map[string]any{"_id": 1, "_type": "x", "title": "t"}
	out := stripMeta(doc)
	if len(out) != 1 || out["title"] != "t" {
		t.Errorf("stripped = %v, want title only", out)
	}
	if _, ok := doc["_id"]; !ok {
		t.Error("input document should not be mutated")
	}
}

func TestOptions_GuardInvalidValues(t *testing.T) {
	s := New(newFakeEngine(), nil, nil,
		WithBulkSize(0), WithWaitStatus(""), WithTimeout(-time.Second))
	if s.bulkSize != DefaultBulkSize {
		t.Errorf("bulk size = %d, want default", s.bulkSize)
	}
	if s.waitStatus != "green" {
		t.Errorf("wait status = %q, want green", s.waitStatus)
	}
	if s.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", s.timeout)
	}
}
