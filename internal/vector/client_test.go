package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/odoovec":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": map[string]any{"error": "not found"}})
		case r.Method == http.MethodPut && r.URL.Path == "/collections/odoovec":
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				t.Fatalf("decoding create body: %v", err)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": true})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Collection: "odoovec"})
	if err := c.EnsureCollection(context.Background(), 1536); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	vectors := created["vectors"].(map[string]any)
	if vectors["size"].(float64) != 1536 || vectors["distance"] != "Cosine" {
		t.Errorf("create body = %v", created)
	}
}

func TestEnsureCollectionSkipsExisting(t *testing.T) {
	puts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			puts++
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Collection: "odoovec"})
	if err := c.EnsureCollection(context.Background(), 1536); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if puts != 0 {
		t.Errorf("existing collection must not be recreated, got %d PUTs", puts)
	}
}

func TestUpsertAndDelete(t *testing.T) {
	var upserted, deleted json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points json.RawMessage `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		switch r.URL.Path {
		case "/collections/odoovec/points":
			if r.URL.Query().Get("wait") != "true" {
				t.Error("upsert must wait for application")
			}
			upserted = body.Points
		case "/collections/odoovec/points/delete":
			deleted = body.Points
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Collection: "odoovec"})
	ctx := context.Background()

	points := []Point{{
		ID:     3440012345,
		Vector: []float32{0.1, 0.2},
		Payload: Payload{
			Kind: KindData, Model: "crm.lead", ModelID: 344,
			RecordID: 12345, Encoded: "344^6320*12345",
		},
	}}
	if err := c.UpsertPoints(ctx, points); err != nil {
		t.Fatalf("UpsertPoints: %v", err)
	}
	var sent []Point
	if err := json.Unmarshal(upserted, &sent); err != nil {
		t.Fatalf("unmarshaling upserted points: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != 3440012345 || sent[0].Payload.Kind != KindData {
		t.Errorf("upserted = %+v", sent)
	}

	if err := c.DeletePoints(ctx, []uint64{6330}); err != nil {
		t.Fatalf("DeletePoints: %v", err)
	}
	var ids []uint64
	if err := json.Unmarshal(deleted, &ids); err != nil {
		t.Fatalf("unmarshaling deleted ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != 6330 {
		t.Errorf("deleted = %v", ids)
	}
}

func TestUpsertNothingIsNoop(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Collection: "odoovec"})
	if err := c.UpsertPoints(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := c.DeletePoints(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("empty upsert/delete made %d requests", calls)
	}
}

func TestSearchFilter(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/odoovec/points/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding search body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"result": []map[string]any{{
				"id":    3440012345,
				"score": 0.87,
				"payload": map[string]any{
					"kind": "data", "model": "crm.lead", "model_id": 344,
					"record_id": 12345, "encoded": "344^6320*12345",
				},
			}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Collection: "odoovec"})
	hits, err := c.Search(context.Background(), []float32{0.1}, 5, Filter{Kind: KindData, Model: "crm.lead"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 3440012345 || hits[0].Payload.Model != "crm.lead" {
		t.Errorf("hits = %+v", hits)
	}

	if !got.WithPayload {
		t.Error("search must request payloads")
	}
	must := got.Filter["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("filter must clauses = %v", got.Filter)
	}
}

func TestSearchNoFilterOmitsClause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		_ = json.NewDecoder(r.Body).Decode(&raw)
		if _, ok := raw["filter"]; ok {
			t.Error("empty filter must be omitted from the request")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": []any{}})
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Collection: "odoovec"})
	if _, err := c.Search(context.Background(), []float32{0.1}, 5, Filter{}); err != nil {
		t.Fatal(err)
	}
}
