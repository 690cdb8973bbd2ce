package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*QdrantStore, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	store := NewQdrantStore(Config{BaseURL: srv.URL, RetryAttempts: 1})
	return store, srv.Close
}

func TestEnsureCollection_CreatesWhenMissing(t *testing.T) {
	var sawPut bool
	store, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut:
			sawPut = true
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"result":true}`))
		}
	})
	defer closeFn()

	if err := store.EnsureCollection(context.Background(), "docs", 384); err != nil {
		t.Fatal(err)
	}
	if !sawPut {
		t.Fatal("expected collection creation PUT request")
	}
}

func TestEnsureCollection_SkipsWhenPresent(t *testing.T) {
	var putCalls int
	store, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"result":{"status":"green","points_count":10,"indexed_vectors_count":10}}`))
		case http.MethodPut:
			putCalls++
			w.WriteHeader(http.StatusOK)
		}
	})
	defer closeFn()

	if err := store.EnsureCollection(context.Background(), "docs", 384); err != nil {
		t.Fatal(err)
	}
	if putCalls != 0 {
		t.Fatalf("expected no PUT call for existing collection, got %d", putCalls)
	}
}

func TestUpsert_SplitsIntoBatches(t *testing.T) {
	var batches int
	store, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req qdrantUpsertReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		batches++
		if len(req.Points) > 2 {
			t.Fatalf("expected batch size <= 2, got %d", len(req.Points))
		}
		w.WriteHeader(http.StatusOK)
	})
	defer closeFn()
	store.cfg.MaxBatchSize = 2

	points := []driven.EmbeddingPoint{
		{ID: "a", Embedding: []float32{0.1}},
		{ID: "b", Embedding: []float32{0.2}},
		{ID: "c", Embedding: []float32{0.3}},
	}

	if err := store.Upsert(context.Background(), "docs", points); err != nil {
		t.Fatal(err)
	}
	if batches != 2 {
		t.Fatalf("expected 2 batches, got %d", batches)
	}
}

func TestSearch_AppliesFilterAndParsesHits(t *testing.T) {
	store, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req qdrantSearchReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Filter == nil || len(req.Filter.Must) != 1 {
			t.Fatalf("expected one filter condition, got %+v", req.Filter)
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":0.92,"payload":{"chunk_id":"p1","content":"hello"}}]}`))
	})
	defer closeFn()

	filters := &domain.SearchFilters{GroupID: "group-1"}
	results, err := store.Search(context.Background(), "docs", []float32{0.1, 0.2}, 5, filters)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ChunkID != "p1" || results[0].CosineScore != 0.92 {
		t.Fatalf("unexpected search results: %+v", results)
	}
}

func TestDelete_NoOpOnEmptyInput(t *testing.T) {
	var called bool
	store, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	defer closeFn()

	if err := store.Delete(context.Background(), "docs", nil); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("expected no request for empty chunk ID list")
	}
}

func TestCollectionInfo_ParsesStatusAndCounts(t *testing.T) {
	store, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"status":"green","points_count":42,"indexed_vectors_count":40}}`))
	})
	defer closeFn()

	info, err := store.CollectionInfo(context.Background(), "docs")
	if err != nil {
		t.Fatal(err)
	}
	if info.VectorCount != 42 || info.IndexedVectors != 40 || info.Status != "green" {
		t.Fatalf("unexpected collection info: %+v", info)
	}
}

func TestExists_ReportsOnlyFoundIDs(t *testing.T) {
	store, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req qdrantRetrieveReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.IDs) != 2 {
			t.Fatalf("expected 2 requested ids, got %d", len(req.IDs))
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"a"}]}`))
	})
	defer closeFn()

	found, err := store.Exists(context.Background(), "docs", []string{"a", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if !found["a"] || found["missing"] {
		t.Fatalf("unexpected existence map: %+v", found)
	}
}

func TestExists_EmptyInputReturnsEmptyMapWithoutRequest(t *testing.T) {
	var called bool
	store, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	defer closeFn()

	found, err := store.Exists(context.Background(), "docs", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Fatalf("expected empty map, got %+v", found)
	}
	if called {
		t.Fatal("expected no request for empty id list")
	}
}
