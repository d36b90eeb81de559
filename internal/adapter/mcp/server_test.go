package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/service"
)

// --- Mocks ---

type mockPool struct {
	clients []lspDomain.ClientInfo
}

func (m *mockPool) Clients() []lspDomain.ClientInfo { return m.clients }

// --- Helpers ---

func callReq(args map[string]any) mcplib.CallToolRequest {
	var req mcplib.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return tc.Text
}

// --- Tests ---

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(ServerConfig{Name: "test", Version: "0.1.0"}, ServerDeps{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}

	want := []string{
		"rename.plan", "move.plan", "extract.plan", "inline.plan",
		"reorder.plan", "transform.plan", "delete.plan",
		"workspace.apply_edit", "health_check",
	}
	tools := s.MCPServer().ListTools()
	if len(tools) != len(want) {
		t.Fatalf("registered %d tools, want %d", len(tools), len(want))
	}
	for _, name := range want {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestHandlersWithNilDeps(t *testing.T) {
	s := NewServer(ServerConfig{Name: "test", Version: "0.1.0"}, ServerDeps{})

	res, err := s.handleRenamePlan(context.Background(), callReq(map[string]any{"args": map[string]any{}}))
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	if !res.IsError {
		t.Error("nil planner must yield a tool error, not success")
	}

	res, err = s.handleApplyEdit(context.Background(), callReq(map[string]any{"args": map[string]any{}}))
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	if !res.IsError {
		t.Error("nil applier must yield a tool error, not success")
	}
}

func TestHealthCheck(t *testing.T) {
	pool := &mockPool{clients: []lspDomain.ClientInfo{
		{Key: "k1", Language: "typescript", State: lspDomain.StateReady, PID: 42},
	}}
	s := NewServer(ServerConfig{Name: "test", Version: "0.1.0"}, ServerDeps{Pool: pool})

	res, err := s.handleHealthCheck(context.Background(), callReq(map[string]any{"include_details": true}))
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Status   string                 `json:"status"`
		PoolSize int                    `json:"pool_size"`
		Clients  []lspDomain.ClientInfo `json:"clients"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Status != "ok" || payload.PoolSize != 1 || len(payload.Clients) != 1 {
		t.Errorf("health payload = %+v", payload)
	}
	if payload.Clients[0].Language != "typescript" {
		t.Errorf("client detail = %+v", payload.Clients[0])
	}
}

func TestDecodeArgsRejectsUnknownFields(t *testing.T) {
	var out service.RenameRequest
	err := decodeArgs(callReq(map[string]any{"args": map[string]any{
		"new_name":      "x",
		"target":        map[string]any{"kind": "symbol"},
		"definitely_no": true,
	}}), &out)
	if refactor.KindOf(err) != refactor.KindInvalidRequest {
		t.Fatalf("expected invalid_request for unknown field, got %v", err)
	}
}

func TestDecodeArgsMissingArgs(t *testing.T) {
	var out service.RenameRequest
	err := decodeArgs(callReq(map[string]any{}), &out)
	if refactor.KindOf(err) != refactor.KindInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestErrorResultEnvelope(t *testing.T) {
	err := refactor.NewError(refactor.KindStaleSnapshot, "file changed").WithDetail("path", "/a.ts")
	res := errorResult(err)
	if !res.IsError {
		t.Fatal("errorResult did not mark the result as error")
	}

	text := resultText(t, res)
	var envelope struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	if jsonErr := json.Unmarshal([]byte(text), &envelope); jsonErr != nil {
		t.Fatalf("envelope is not JSON: %q", text)
	}
	if envelope.Code != "stale_snapshot" {
		t.Errorf("code = %s", envelope.Code)
	}
	if !strings.Contains(envelope.Message, "file changed") {
		t.Errorf("message = %s", envelope.Message)
	}
	if envelope.Details["path"] != "/a.ts" {
		t.Errorf("details = %+v", envelope.Details)
	}
}

func TestApplyUnknownPlanID(t *testing.T) {
	store := service.NewPlanStore(4)
	s := NewServer(ServerConfig{Name: "test", Version: "0.1.0"},
		ServerDeps{Applier: &service.Applier{}, Plans: store})

	res, err := s.handleApplyEdit(context.Background(), callReq(map[string]any{
		"args": map[string]any{"plan_id": "nope"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("unknown plan_id must fail")
	}
	if !strings.Contains(resultText(t, res), "invalid_request") {
		t.Errorf("error envelope = %s", resultText(t, res))
	}
}
