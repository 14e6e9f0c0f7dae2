package turtle

import (
	"path/filepath"
	"testing"

	"tradeatlas/internal/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "base.ttl"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return st
}

func someTriples() []graph.Triple {
	return []graph.Triple{
		{Subject: "http://x/FRA", Predicate: graph.RDFType, Object: graph.IRI("http://x/Country")},
		{Subject: "http://x/FRA", Predicate: "http://x/isoCode", Object: graph.Literal("FRA")},
	}
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPurgeThenAppendEmpty(t *testing.T) {
	st := newTestStore(t)
	if err := st.Purge(); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if err := st.Append(nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	triples, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(triples) != 0 {
		t.Fatalf("expected empty graph, got %d triples", len(triples))
	}
}

func TestPurgeIdempotent(t *testing.T) {
	st := newTestStore(t)
	if err := st.Append(someTriples()); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Purge(); err != nil {
		t.Fatalf("first purge: %v", err)
	}
	if err := st.Purge(); err != nil {
		t.Fatalf("second purge: %v", err)
	}
	triples, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(triples) != 0 {
		t.Fatalf("expected empty graph after double purge, got %d triples", len(triples))
	}
}

func TestAppendAccumulates(t *testing.T) {
	st := newTestStore(t)
	triples := someTriples()
	if err := st.Append(triples[:1]); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := st.Append(triples[1:]); err != nil {
		t.Fatalf("second append: %v", err)
	}
	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 triples, got %d", len(loaded))
	}
	for i := range triples {
		if loaded[i] != triples[i] {
			t.Fatalf("triple %d mismatch: %+v vs %+v", i, loaded[i], triples[i])
		}
	}
}

func TestLoadMissingFileIsError(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "absent.ttl"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := st.Load(); err == nil {
		t.Fatal("expected error loading missing file")
	}
}

func TestPurgeMissingDirIsError(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "missing", "base.ttl"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := st.Purge(); err == nil {
		t.Fatal("expected purge error when parent directory is missing")
	}
	if err := st.Append(someTriples()); err == nil {
		t.Fatal("expected append error when parent directory is missing")
	}
}
