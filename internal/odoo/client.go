// Package odoo is a thin JSON-RPC client for an Odoo-style ERP, plus the
// error classifier and the resilient field-restriction retry loop that
// wrap bulk record fetches.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Config holds connection settings for the source system.
type Config struct {
	URL      string
	Database string
	Username string
	APIKey   string
	Timeout  time.Duration
}

// Client is a thin execute_kw JSON-RPC client. Transport and auth errors
// are fatal for the current operation; the client itself never retries.
type Client struct {
	cfg  Config
	http *http.Client
	uid  int64
	seq  atomic.Int64
}

// NewClient creates a client. Authenticate must be called before any
// model method.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// RPCError is a structured error returned by the source system, as
// opposed to a transport failure.
type RPCError struct {
	Name    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	}
	return e.Message
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
		Data    struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"data"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, service, method string, args []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.seq.Add(1),
	})
	if err != nil {
		return fmt.Errorf("marshaling rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s.%s: %w", service, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calling %s.%s: unexpected status %s", service, method, resp.Status)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding rpc response: %w", err)
	}
	if envelope.Error != nil {
		msg := envelope.Error.Data.Message
		if msg == "" {
			msg = envelope.Error.Message
		}
		return &RPCError{Name: envelope.Error.Data.Name, Message: msg}
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decoding %s.%s result: %w", service, method, err)
		}
	}
	return nil
}

// Authenticate resolves the user id for the configured credentials.
func (c *Client) Authenticate(ctx context.Context) error {
	var uid int64
	err := c.call(ctx, "common", "authenticate",
		[]any{c.cfg.Database, c.cfg.Username, c.cfg.APIKey, map[string]any{}}, &uid)
	if err != nil {
		return fmt.Errorf("authenticating against %s: %w", c.cfg.URL, err)
	}
	if uid == 0 {
		return fmt.Errorf("authentication rejected for %s on %s", c.cfg.Username, c.cfg.Database)
	}
	c.uid = uid
	return nil
}

// ExecuteKw invokes one model method.
func (c *Client) ExecuteKw(ctx context.Context, model, method string, args []any, kw map[string]any, result any) error {
	if kw == nil {
		kw = map[string]any{}
	}
	return c.call(ctx, "object", "execute_kw",
		[]any{c.cfg.Database, c.uid, c.cfg.APIKey, model, method, args, kw}, result)
}

// SearchRead fetches records of a model with the given fields. A nil or
// empty fields slice asks for every readable field.
func (c *Client) SearchRead(ctx context.Context, model string, domain []any, fields []string, offset, limit int) ([]map[string]any, error) {
	if domain == nil {
		domain = []any{}
	}
	kw := map[string]any{"offset": offset, "limit": limit}
	if len(fields) > 0 {
		kw["fields"] = fields
	}
	var records []map[string]any
	if err := c.ExecuteKw(ctx, model, "search_read", []any{domain}, kw, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SearchCount returns the number of records matching a domain.
func (c *Client) SearchCount(ctx context.Context, model string, domain []any) (int, error) {
	if domain == nil {
		domain = []any{}
	}
	var n int
	if err := c.ExecuteKw(ctx, model, "search_count", []any{domain}, nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// FieldInfo is the metadata fields_get returns per field.
type FieldInfo struct {
	Type     string `json:"type"`
	String   string `json:"string"`
	Relation string `json:"relation"`
	Store    bool   `json:"store"`
}

// FieldsGet fetches field metadata for a model.
func (c *Client) FieldsGet(ctx context.Context, model string) (map[string]FieldInfo, error) {
	kw := map[string]any{"attributes": []string{"type", "string", "relation", "store"}}
	var fields map[string]FieldInfo
	if err := c.ExecuteKw(ctx, model, "fields_get", []any{}, kw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
