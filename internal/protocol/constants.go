package protocol

const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
)

// ToolNamespace prefixes the canonical wire name of every built-in tool.
// Bare names are registered as aliases for clients that skip the prefix.
const ToolNamespace = "msgmcp."

const (
	ToolNameListThreads    = ToolNamespace + "list_threads"
	ToolNameListMessages   = ToolNamespace + "list_messages"
	ToolNameSendMessage    = ToolNamespace + "send_message"
	ToolNameSearchMessages = ToolNamespace + "search_messages"
)

// JSON-RPC 2.0 reserved error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

const (
	JSONRPCVersion  = "2.0"
	ProtocolVersion = "2025-06-18"
)
