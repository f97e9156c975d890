package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/steward-labs/steward/internal/adapter/llm"
	"github.com/steward-labs/steward/internal/config"
	"github.com/steward-labs/steward/internal/port/reasoner"
)

func TestProposeActionsParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Fatalf("unexpected auth: %q", auth)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != "test-model" {
			t.Fatalf("model = %v, want test-model", req["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "Booking it now.",
					"tool_calls": [{
						"id": "call_1",
						"function": {"name": "update_package", "arguments": "{\"tier\":\"gold\"}"}
					}]
				}
			}]
		}`))
	}))
	defer srv.Close()

	c := llm.NewClient(config.Reasoner{URL: srv.URL, APIKey: "test-key", Model: "test-model"})
	resp, err := c.ProposeActions(context.Background(), reasoner.Request{
		History: []reasoner.HistoryEntry{{Role: "user", Content: "upgrade me"}},
	})
	if err != nil {
		t.Fatalf("ProposeActions: %v", err)
	}

	if resp.ReplyText != "Booking it now." {
		t.Errorf("reply = %q", resp.ReplyText)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ToolName != "update_package" {
		t.Errorf("tool = %q, want update_package", resp.ToolCalls[0].ToolName)
	}
	if string(resp.ToolCalls[0].Params) != `{"tier":"gold"}` {
		t.Errorf("params = %s", resp.ToolCalls[0].Params)
	}
}

func TestProposeActionsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := llm.NewClient(config.Reasoner{URL: srv.URL, Model: "test-model"})
	resp, err := c.ProposeActions(context.Background(), reasoner.Request{})
	if err != nil {
		t.Fatalf("ProposeActions: %v", err)
	}
	if resp.ReplyText != "" || len(resp.ToolCalls) != 0 {
		t.Errorf("expected empty response, got %+v", resp)
	}
}

func TestProposeActionsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := llm.NewClient(config.Reasoner{URL: srv.URL, Model: "test-model"})
	if _, err := c.ProposeActions(context.Background(), reasoner.Request{}); err == nil {
		t.Fatal("expected error for 503 upstream")
	}
}
