// Package vector is a thin REST client for a Qdrant-compatible vector
// store. Points carry either a schema payload (one per field descriptor)
// or a data payload (one per encoded record).
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Payload kinds. Every point carries exactly one kind so searches can
// scope to schema or data.
const (
	KindSchema = "schema"
	KindData   = "data"
)

// Payload is the structured payload stored next to each vector.
// Schema points set FieldID and Description; data points set RecordID
// and Encoded.
type Payload struct {
	Kind        string `json:"kind"`
	Model       string `json:"model"`
	ModelID     int64  `json:"model_id"`
	FieldID     int64  `json:"field_id,omitempty"`
	Coordinate  string `json:"coordinate,omitempty"`
	Description string `json:"description,omitempty"`
	RecordID    int64  `json:"record_id,omitempty"`
	Encoded     string `json:"encoded,omitempty"`
}

// Point is one upsertable vector with its payload.
type Point struct {
	ID      uint64    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      uint64  `json:"id"`
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

// Filter narrows a search. Zero values match everything.
type Filter struct {
	Kind  string
	Model string
}

// Store is the capability the sync engine and tools need.
type Store interface {
	EnsureCollection(ctx context.Context, size int) error
	UpsertPoints(ctx context.Context, points []Point) error
	DeletePoints(ctx context.Context, ids []uint64) error
	Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]ScoredPoint, error)
}

// Config holds connection settings for the vector store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	Timeout    time.Duration
}

// Client talks to one collection of a Qdrant-compatible store.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ Store = (*Client)(nil)

// NewClient creates a vector store client.
func NewClient(cfg Config) *Client {
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

type apiResponse struct {
	Status json.RawMessage `json:"status"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling vector store: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response (status %s): %w", resp.Status, err)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("vector store %s %s: status %s: %s", method, path, resp.Status, string(envelope.Status))
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding %s result: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

// EnsureCollection creates the collection if it does not exist yet.
// An existing collection is left untouched, whatever its parameters.
func (c *Client) EnsureCollection(ctx context.Context, size int) error {
	status, err := c.do(ctx, http.MethodGet, "/collections/"+c.cfg.Collection, nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("checking collection %s: %w", c.cfg.Collection, err)
	}

	body := map[string]any{
		"vectors": map[string]any{"size": size, "distance": c.cfg.Distance},
	}
	if _, err := c.do(ctx, http.MethodPut, "/collections/"+c.cfg.Collection, body, nil); err != nil {
		return fmt.Errorf("creating collection %s: %w", c.cfg.Collection, err)
	}
	return nil
}

// UpsertPoints writes points, waiting for the store to apply them.
func (c *Client) UpsertPoints(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	if _, err := c.do(ctx, http.MethodPut, "/collections/"+c.cfg.Collection+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}
	return nil
}

// DeletePoints removes points by id, waiting for the store to apply.
func (c *Client) DeletePoints(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	if _, err := c.do(ctx, http.MethodPost, "/collections/"+c.cfg.Collection+"/points/delete?wait=true", body, nil); err != nil {
		return fmt.Errorf("deleting %d points: %w", len(ids), err)
	}
	return nil
}

type searchRequest struct {
	Vector      []float32      `json:"vector"`
	Limit       int            `json:"limit"`
	WithPayload bool           `json:"with_payload"`
	Filter      map[string]any `json:"filter,omitempty"`
}

// Search returns the nearest points, optionally filtered by payload
// kind and model.
func (c *Client) Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]ScoredPoint, error) {
	req := searchRequest{Vector: vector, Limit: limit, WithPayload: true}

	var must []map[string]any
	if filter.Kind != "" {
		must = append(must, map[string]any{"key": "kind", "match": map[string]any{"value": filter.Kind}})
	}
	if filter.Model != "" {
		must = append(must, map[string]any{"key": "model", "match": map[string]any{"value": filter.Model}})
	}
	if must != nil {
		req.Filter = map[string]any{"must": must}
	}

	var hits []ScoredPoint
	if _, err := c.do(ctx, http.MethodPost, "/collections/"+c.cfg.Collection+"/points/search", req, &hits); err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", c.cfg.Collection, err)
	}
	return hits, nil
}
