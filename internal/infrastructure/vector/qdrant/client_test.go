package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avolkov/graphrag/internal/core/domain"
)

func TestSearchMapsFilterAndThreshold(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/chunks/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"score":0.91,"payload":{"document_id":"doc-1","chunk_id":"c1","text":"diffraction grating","title":"Lightfield Backlight","doc_type":"patent","published_at":"2021-03-01T00:00:00Z"}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	filter := domain.SearchFilter{
		DocTypes: []string{"patent"},
		DateFrom: &from,
	}
	results, err := client.Search(context.Background(), []float32{0.1, 0.2}, 5, 0.35, filter)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].DocumentID != "doc-1" || results[0].Score != 0.91 {
		t.Fatalf("unexpected result: %+v", results[0])
	}
	if results[0].PublishedAt.IsZero() {
		t.Fatalf("expected published_at parsed")
	}

	if captured["score_threshold"] != 0.35 {
		t.Fatalf("expected score_threshold in request, got %v", captured["score_threshold"])
	}
	rawFilter, _ := json.Marshal(captured["filter"])
	if !strings.Contains(string(rawFilter), "doc_type") || !strings.Contains(string(rawFilter), "published_at") {
		t.Fatalf("expected doc_type and date conditions, got %s", rawFilter)
	}
}

func TestSearchWithoutDateRangeOmitsDateCondition(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"score":0.8,"payload":{"document_id":"doc-1","chunk_id":"c1","text":"t","pages":12}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	results, err := client.Search(context.Background(), []float32{0.1}, 5, 0, domain.SearchFilter{DocTypes: []string{"patent"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	rawFilter, _ := json.Marshal(captured["filter"])
	if strings.Contains(string(rawFilter), "published_at") {
		t.Fatalf("expected no date condition, got %s", rawFilter)
	}
	// Scalar payload fields land in metadata as strings.
	if results[0].Metadata["pages"] != "12" || results[0].Metadata["document_id"] != "doc-1" {
		t.Fatalf("unexpected metadata: %+v", results[0].Metadata)
	}
}

func TestSearchLexicalDerivesScoresFromRank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"score":14.2,"payload":{"document_id":"doc-1","chunk_id":"c1","text":"a"}},
			{"score":9.8,"payload":{"document_id":"doc-2","chunk_id":"c2","text":"b"}},
			{"score":2.1,"payload":{"document_id":"doc-3","chunk_id":"c3","text":"c"}},
			{"score":0.4,"payload":{"document_id":"doc-4","chunk_id":"c4","text":"d"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	results, err := client.SearchLexical(context.Background(), "lightfield display", 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("SearchLexical() error = %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].Score != 1.0 {
		t.Fatalf("expected top rank score 1.0, got %v", results[0].Score)
	}
	if results[3].Score != 0.25 {
		t.Fatalf("expected last rank score 0.25, got %v", results[3].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("rank scores not monotonic at %d", i)
		}
	}
}

func TestSearchLexicalEmptyQueryReturnsNothing(t *testing.T) {
	client := New("http://unused", "chunks")
	results, err := client.SearchLexical(context.Background(), "  ...  ", 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("SearchLexical() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestSearchIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection missing", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	_, err := client.Search(context.Background(), []float32{0.1}, 5, 0, domain.SearchFilter{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "collection missing") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
