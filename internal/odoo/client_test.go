package odoo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// rpcStub serves canned JSON-RPC responses through the caller's handler.
func rpcStub(t *testing.T, handler func(service, method string, args []any) (any, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jsonrpc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Params struct {
				Service string `json:"service"`
				Method  string `json:"method"`
				Args    []any  `json:"args"`
			} `json:"params"`
			ID int64 `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}

		result, rpcErr := handler(req.Params.Service, req.Params.Method, req.Params.Args)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = map[string]any{
				"message": "Odoo Server Error",
				"data":    map[string]any{"name": rpcErr.Name, "message": rpcErr.Message},
			}
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestAuthenticateAndSearchRead(t *testing.T) {
	srv := rpcStub(t, func(service, method string, args []any) (any, *RPCError) {
		switch service + "." + method {
		case "common.authenticate":
			return 7, nil
		case "object.execute_kw":
			// args: db, uid, key, model, method, args, kw
			if args[1].(float64) != 7 {
				t.Errorf("uid = %v, want 7", args[1])
			}
			if args[3] != "crm.lead" || args[4] != "search_read" {
				t.Errorf("model/method = %v/%v", args[3], args[4])
			}
			return []map[string]any{{"id": 1, "name": "Lead"}}, nil
		default:
			t.Errorf("unexpected call %s.%s", service, method)
			return nil, nil
		}
	})
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Database: "prod", Username: "bot", APIKey: "k"})
	ctx := context.Background()

	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	records, err := c.SearchRead(ctx, "crm.lead", nil, []string{"id", "name"}, 0, 10)
	if err != nil {
		t.Fatalf("SearchRead: %v", err)
	}
	if len(records) != 1 || records[0]["name"] != "Lead" {
		t.Errorf("records = %v", records)
	}
}

func TestAuthenticateRejected(t *testing.T) {
	srv := rpcStub(t, func(service, method string, args []any) (any, *RPCError) {
		return false, nil // Odoo returns false on bad credentials
	})
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Database: "prod", Username: "bot", APIKey: "bad"})
	if err := c.Authenticate(context.Background()); err == nil {
		t.Error("rejected credentials must error")
	}
}

func TestRPCErrorSurfaced(t *testing.T) {
	srv := rpcStub(t, func(service, method string, args []any) (any, *RPCError) {
		if method == "authenticate" {
			return 7, nil
		}
		return nil, &RPCError{Name: "odoo.exceptions.AccessError", Message: `You do not have access to the field "phone" on crm.lead`}
	})
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	ctx := context.Background()
	if err := c.Authenticate(ctx); err != nil {
		t.Fatal(err)
	}

	_, err := c.SearchRead(ctx, "crm.lead", nil, []string{"phone"}, 0, 10)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *RPCError", err)
	}
	if rpcErr.Name != "odoo.exceptions.AccessError" {
		t.Errorf("Name = %q", rpcErr.Name)
	}
	// The classifier consumes exactly this shape.
	if got := (Classifier{}).Classify(err); got.Kind != KindSecurity {
		t.Errorf("classified as %s, want security", got.Kind)
	}
}

func TestSearchCount(t *testing.T) {
	srv := rpcStub(t, func(service, method string, args []any) (any, *RPCError) {
		if method == "authenticate" {
			return 7, nil
		}
		return 42, nil
	})
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	ctx := context.Background()
	_ = c.Authenticate(ctx)

	n, err := c.SearchCount(ctx, "crm.lead", nil)
	if err != nil || n != 42 {
		t.Errorf("SearchCount = (%d, %v), want 42", n, err)
	}
}
