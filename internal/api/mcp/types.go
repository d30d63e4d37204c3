// Package mcp implements the Model Context Protocol (MCP) server for Mnemo.
// It exposes the memory orchestrator as JSON-RPC 2.0 tools for storing
// conversations, retrieving context and searching across the memory tiers.
package mcp

import "github.com/mnemolabs/mnemo/internal/orchestrator"

// StoreConversationArgs contains arguments for the store_conversation tool.
type StoreConversationArgs struct {
	Input   string                 `json:"input"`             // User message (required)
	Output  string                 `json:"output"`            // Assistant response (required)
	Context map[string]interface{} `json:"context,omitempty"` // Arbitrary turn context
}

// StoreConversationResult contains the result of storing a conversation turn.
type StoreConversationResult struct {
	ID          string   `json:"id"`           // Interaction ID
	Importance  float64  `json:"importance"`   // Computed importance score
	Promoted    bool     `json:"promoted"`     // Whether the turn reached the durable store
	EventStored bool     `json:"event_stored"` // Whether an episodic event was recorded
	Concepts    []string `json:"concepts"`     // Extracted concept names
	Message     string   `json:"message"`      // Status message
}

// RetrieveContextArgs contains arguments for the retrieve_context tool.
type RetrieveContextArgs struct {
	Query string `json:"query"` // Text to retrieve context for (required)
}

// RetrieveContextResult carries the per-tier retrieval results plus a
// ready-to-use prompt rendering of them.
type RetrieveContextResult struct {
	orchestrator.RetrievedContext
	Formatted string `json:"formatted"` // Prompt-ready rendering of the context
}

// SearchMemoriesArgs contains arguments for the search_memories tool.
type SearchMemoriesArgs struct {
	Query string `json:"query"` // Search text (required)
}

// SearchMemoriesResult contains the per-tier search results.
type SearchMemoriesResult struct {
	Results      orchestrator.RetrievedContext `json:"results"`
	TotalMatches int                           `json:"total_matches"`
}

// GetMemoryStatsResult is the aggregate tier statistics.
type GetMemoryStatsResult = orchestrator.StatsReport

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Must be "2.0"
	Method  string      `json:"method"`  // Method name
	Params  interface{} `json:"params"`  // Method parameters
	ID      interface{} `json:"id"`      // Request ID (string, number, or null)
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`          // Must be "2.0"
	Result  interface{}   `json:"result,omitempty"` // Result (if successful)
	Error   *JSONRPCError `json:"error,omitempty"`  // Error (if failed)
	ID      interface{}   `json:"id"`               // Request ID
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional error data
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters sent by an MCP client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the MCP tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text" for now
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
