package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"msgmcp/internal/model"
	"msgmcp/internal/protocol"
)

// Request is the wire-format envelope for one protocol call. ID correlates
// the response and is never reused across concurrent in-flight requests.
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response carries exactly one of Result or Error.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Dispatcher parses wire requests, routes them through the registry, and
// produces wire responses. It is stateless per request and keeps no
// cross-request memory; a tool failure never propagates as a transport
// failure.
type Dispatcher struct {
	registry *Registry

	// Logger is optional; when nil the standard library's log package is
	// used. Only recovered panics are logged.
	Logger *log.Logger
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// HandleRaw decodes one request from raw bytes and dispatches it. Malformed
// JSON yields PARSE_ERROR; the response ID is empty because the request ID
// could not be recovered.
func (d *Dispatcher) HandleRaw(ctx context.Context, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("", protocol.CodeParseError, fmt.Sprintf("parse error: %v", err))
	}
	return d.Handle(ctx, req)
}

// Handle routes a decoded request. Any panic below this point is contained
// and converted to INTERNAL_ERROR; the caller always receives a well-formed
// response object.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logf("dispatcher: recovered panic in %s: %v", req.Method, r)
			resp = errorResponse(req.ID, protocol.CodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if req.JSONRPC != protocol.JSONRPCVersion {
		return errorResponse(req.ID, protocol.CodeInvalidRequest, `jsonrpc must be "2.0"`)
	}

	switch req.Method {
	case protocol.MethodToolsList:
		return okResponse(req.ID, map[string]interface{}{
			"tools": d.registry.List(),
		})
	case protocol.MethodToolsCall:
		return d.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, protocol.CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req Request) Response {
	name, args, rpcErr := parseCallParams(req.Params)
	if rpcErr != nil {
		return Response{JSONRPC: protocol.JSONRPCVersion, ID: req.ID, Error: rpcErr}
	}

	tool, ok := d.registry.Get(name)
	if !ok {
		return errorResponse(req.ID, protocol.CodeMethodNotFound, fmt.Sprintf("unknown tool: %s", name))
	}

	if missing := missingRequired(tool, args); len(missing) > 0 {
		return errorResponse(req.ID, protocol.CodeInvalidParams,
			"missing required parameters: "+strings.Join(missing, ", "))
	}

	result := tool.Execute(ctx, args)
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "tool execution failed"
		}
		return errorResponse(req.ID, protocol.CodeInternalError, msg)
	}
	return okResponse(req.ID, result)
}

// CallTool is the direct-call path for local callers such as the
// orchestrator: no JSON-RPC envelope, but identical validation and error
// semantics, returned as a ToolResult.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]interface{}) (result model.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logf("dispatcher: recovered panic in tool %s: %v", name, r)
			result = model.FailResult(fmt.Sprintf("internal error: %v", r))
		}
	}()

	if args == nil {
		args = map[string]interface{}{}
	}
	tool, ok := d.registry.Get(name)
	if !ok {
		return model.FailResult(fmt.Sprintf("unknown tool: %s", name))
	}
	if missing := missingRequired(tool, args); len(missing) > 0 {
		return model.FailResult("missing required parameters: " + strings.Join(missing, ", "))
	}
	return tool.Execute(ctx, args)
}

func parseCallParams(params map[string]interface{}) (string, map[string]interface{}, *RPCError) {
	if params == nil {
		return "", nil, &RPCError{Code: protocol.CodeInvalidParams, Message: "params is required"}
	}
	rawName, ok := params["name"]
	if !ok {
		return "", nil, &RPCError{Code: protocol.CodeInvalidParams, Message: "params.name is required"}
	}
	name, ok := rawName.(string)
	if !ok || strings.TrimSpace(name) == "" {
		return "", nil, &RPCError{Code: protocol.CodeInvalidParams, Message: "params.name must be a non-empty string"}
	}

	args := map[string]interface{}{}
	if rawArgs, ok := params["arguments"]; ok && rawArgs != nil {
		typed, ok := rawArgs.(map[string]interface{})
		if !ok {
			return "", nil, &RPCError{Code: protocol.CodeInvalidParams, Message: "params.arguments must be an object"}
		}
		args = typed
	}
	return strings.TrimSpace(name), args, nil
}

// missingRequired returns the required parameter names absent from args, in
// declaration order. The tool's Execute is never invoked when this is
// non-empty.
func missingRequired(tool Tool, args map[string]interface{}) []string {
	var missing []string
	for _, param := range tool.Parameters() {
		if !param.Required {
			continue
		}
		if _, ok := args[param.Name]; !ok {
			missing = append(missing, param.Name)
		}
	}
	return missing
}

func okResponse(id string, result interface{}) Response {
	return Response{JSONRPC: protocol.JSONRPCVersion, ID: id, Result: result}
}

func errorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d != nil && d.Logger != nil {
		d.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
