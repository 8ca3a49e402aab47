// Package embed turns text into vectors through an OpenAI-compatible
// embeddings endpoint.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// DefaultMaxBatchSize bounds how many inputs go into one request.
// Most hosted endpoints cap the batch well above this.
const DefaultMaxBatchSize = 96

// Config holds settings for the embeddings endpoint.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Dimensions   int
	MaxBatchSize int
	Timeout      time.Duration
}

// Embedder is the capability the sync engine needs from this package.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Client calls the /v1/embeddings endpoint, splitting large input sets
// into batches transparently.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates an embeddings client.
func NewClient(cfg Config) *Client {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed returns one vector per input, in input order. Inputs beyond the
// batch limit are sent in successive requests; a failure in any batch
// fails the whole call.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += c.cfg.MaxBatchSize {
		end := start + c.cfg.MaxBatchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch, err := c.embedBatch(ctx, inputs[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch at offset %d: %w", start, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (c *Client) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{
		Model:      c.cfg.Model,
		Input:      inputs,
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embeddings endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response (status %s): %w", resp.Status, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("embeddings endpoint: %s: %s", out.Error.Type, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings endpoint: unexpected status %s", resp.Status)
	}
	if len(out.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings endpoint returned %d vectors for %d inputs", len(out.Data), len(inputs))
	}

	// The API may return entries out of order; index is authoritative.
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		if d.Index != i {
			return nil, fmt.Errorf("embeddings endpoint returned duplicate or missing index %d", d.Index)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
