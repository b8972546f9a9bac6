package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"testing"

	"msgmcp/internal/model"
	"msgmcp/internal/protocol"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestDispatcher(tools ...*stubTool) *Dispatcher {
	r := NewRegistry()
	for _, tool := range tools {
		r.Register(tool)
	}
	return NewDispatcher(r)
}

func callParams(name string, args map[string]interface{}) map[string]interface{} {
	params := map[string]interface{}{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	return params
}

func TestDispatcher_HandleRaw_ParseError(t *testing.T) {
	d := newTestDispatcher()
	resp := d.HandleRaw(context.Background(), []byte("{not json"))
	if resp.Error == nil || resp.Error.Code != protocol.CodeParseError {
		t.Fatalf("expected PARSE_ERROR, got %#v", resp)
	}
	if resp.ID != "" {
		t.Fatalf("unrecoverable id must be empty, got %q", resp.ID)
	}
	if resp.Result != nil {
		t.Fatal("error response must not carry a result")
	}
}

func TestDispatcher_InvalidVersion(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Handle(context.Background(), Request{JSONRPC: "1.0", ID: "1", Method: protocol.MethodToolsList})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %#v", resp)
	}
	if resp.ID != "1" {
		t.Fatalf("response id mismatch: %q", resp.ID)
	}
}

func TestDispatcher_UnknownMethod(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: "2", Method: "tools/destroy"})
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("expected METHOD_NOT_FOUND, got %#v", resp)
	}
}

func TestDispatcher_ToolsList(t *testing.T) {
	d := newTestDispatcher(
		&stubTool{name: "first"},
		&stubTool{name: "second"},
	)
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: "3", Method: protocol.MethodToolsList})
	if resp.Error != nil {
		t.Fatalf("tools/list failed: %#v", resp.Error)
	}
	body, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape: %#v", resp.Result)
	}
	defs, ok := body["tools"].([]ToolDefinition)
	if !ok || len(defs) != 2 || defs[0].Name != "first" {
		t.Fatalf("unexpected tool list: %#v", body["tools"])
	}

	again := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: "4", Method: protocol.MethodToolsList})
	defs2 := again.Result.(map[string]interface{})["tools"].([]ToolDefinition)
	if len(defs2) != len(defs) {
		t.Fatalf("repeated tools/list changed length: %d vs %d", len(defs2), len(defs))
	}
	for i := range defs {
		if defs2[i].Name != defs[i].Name {
			t.Fatalf("repeated tools/list changed order at %d: %q vs %q", i, defs2[i].Name, defs[i].Name)
		}
	}
}

func TestDispatcher_ToolsCall_Success(t *testing.T) {
	tool := &stubTool{name: "echo", result: model.OKResult(map[string]interface{}{"ok": true})}
	d := newTestDispatcher(tool)

	resp := d.Handle(context.Background(), Request{
		JSONRPC: "2.0", ID: "4", Method: protocol.MethodToolsCall,
		Params: callParams("echo", map[string]interface{}{"x": 1.0}),
	})
	if resp.Error != nil {
		t.Fatalf("call failed: %#v", resp.Error)
	}
	result, ok := resp.Result.(model.ToolResult)
	if !ok || !result.Success {
		t.Fatalf("unexpected result: %#v", resp.Result)
	}
	if tool.executed != 1 || tool.lastArgs["x"] != 1.0 {
		t.Fatalf("tool not executed with args: %d %#v", tool.executed, tool.lastArgs)
	}
}

func TestDispatcher_ToolsCall_UnknownTool(t *testing.T) {
	d := newTestDispatcher(&stubTool{name: "known"})
	resp := d.Handle(context.Background(), Request{
		JSONRPC: "2.0", ID: "5", Method: protocol.MethodToolsCall,
		Params: callParams("unknown", nil),
	})
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("expected METHOD_NOT_FOUND for unknown tool, got %#v", resp)
	}
}

func TestDispatcher_ToolsCall_ParamValidation(t *testing.T) {
	tool := &stubTool{name: "needy", params: []ToolParameter{
		{Name: "alpha", Type: ParamString, Required: true},
		{Name: "beta", Type: ParamNumber, Required: true},
		{Name: "gamma", Type: ParamString, Required: false},
	}}
	d := newTestDispatcher(tool)

	cases := []struct {
		name    string
		params  map[string]interface{}
		wantMsg string
	}{
		{"nil params", nil, "params is required"},
		{"missing name", map[string]interface{}{}, "params.name is required"},
		{"blank name", map[string]interface{}{"name": "  "}, "params.name must be a non-empty string"},
		{"bad arguments type", map[string]interface{}{"name": "needy", "arguments": "nope"}, "params.arguments must be an object"},
		{"missing required", callParams("needy", map[string]interface{}{"gamma": "x"}), "missing required parameters: alpha, beta"},
		{"one missing", callParams("needy", map[string]interface{}{"alpha": "x"}), "missing required parameters: beta"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := d.Handle(context.Background(), Request{
				JSONRPC: "2.0", ID: "6", Method: protocol.MethodToolsCall, Params: tc.params,
			})
			if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
				t.Fatalf("expected INVALID_PARAMS, got %#v", resp)
			}
			if resp.Error.Message != tc.wantMsg {
				t.Fatalf("message = %q, want %q", resp.Error.Message, tc.wantMsg)
			}
		})
	}
	if tool.executed != 0 {
		t.Fatalf("Execute must never run on validation failure, ran %d times", tool.executed)
	}
}

func TestDispatcher_ToolsCall_FailureWrapsInternalError(t *testing.T) {
	tool := &stubTool{name: "flaky", result: model.FailResult("store unavailable")}
	d := newTestDispatcher(tool)

	resp := d.Handle(context.Background(), Request{
		JSONRPC: "2.0", ID: "7", Method: protocol.MethodToolsCall,
		Params: callParams("flaky", nil),
	})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInternalError {
		t.Fatalf("expected INTERNAL_ERROR, got %#v", resp)
	}
	if resp.Error.Message != "store unavailable" {
		t.Fatalf("tool error not preserved: %q", resp.Error.Message)
	}
	if resp.Result != nil {
		t.Fatal("failed call must not carry a result")
	}
}

func TestDispatcher_PanicContainment(t *testing.T) {
	tool := &stubTool{name: "bomb", panics: true}
	d := newTestDispatcher(tool)
	d.Logger = discardLogger()

	resp := d.Handle(context.Background(), Request{
		JSONRPC: "2.0", ID: "8", Method: protocol.MethodToolsCall,
		Params: callParams("bomb", nil),
	})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInternalError {
		t.Fatalf("panic must map to INTERNAL_ERROR, got %#v", resp)
	}
	if !strings.Contains(resp.Error.Message, "tool exploded") {
		t.Fatalf("panic value lost: %q", resp.Error.Message)
	}
	if resp.ID != "8" {
		t.Fatalf("panic response lost request id: %q", resp.ID)
	}
}

func TestDispatcher_RequestRoundTrip(t *testing.T) {
	tool := &stubTool{name: "echo", result: model.OKResult(map[string]interface{}{"value": "hi"})}
	d := newTestDispatcher(tool)

	raw := []byte(`{"jsonrpc":"2.0","id":"42","method":"tools/call","params":{"name":"echo","arguments":{}}}`)
	resp := d.HandleRaw(context.Background(), raw)

	encoded, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("response must be serializable: %v", err)
	}
	var decoded struct {
		JSONRPC string                 `json:"jsonrpc"`
		ID      string                 `json:"id"`
		Result  map[string]interface{} `json:"result"`
		Error   *RPCError              `json:"error"`
	}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("decode round trip: %v", err)
	}
	if decoded.JSONRPC != "2.0" || decoded.ID != "42" || decoded.Error != nil {
		t.Fatalf("unexpected wire response: %s", encoded)
	}
	if decoded.Result["success"] != true {
		t.Fatalf("tool result not on the wire: %s", encoded)
	}
}

func TestDispatcher_CallTool_DirectPath(t *testing.T) {
	tool := &stubTool{
		name:   "needy",
		params: []ToolParameter{{Name: "q", Type: ParamString, Required: true}},
		result: model.OKResult(nil),
	}
	d := newTestDispatcher(tool)
	d.Logger = discardLogger()

	if res := d.CallTool(context.Background(), "missing", nil); res.Success || !strings.Contains(res.Error, "unknown tool") {
		t.Fatalf("unexpected result for unknown tool: %#v", res)
	}
	if res := d.CallTool(context.Background(), "needy", nil); res.Success || res.Error != "missing required parameters: q" {
		t.Fatalf("unexpected result for missing params: %#v", res)
	}
	if tool.executed != 0 {
		t.Fatal("Execute ran despite validation failure")
	}

	res := d.CallTool(context.Background(), "needy", map[string]interface{}{"q": "x"})
	if !res.Success || tool.executed != 1 {
		t.Fatalf("direct call failed: %#v executed=%d", res, tool.executed)
	}

	tool.panics = true
	res = d.CallTool(context.Background(), "needy", map[string]interface{}{"q": "x"})
	if res.Success || !strings.Contains(res.Error, "tool exploded") {
		t.Fatalf("panic not contained on direct path: %#v", res)
	}
}
