package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mnemolabs/mnemo/internal/orchestrator"
)

// serverVersion is reported in the MCP initialize handshake.
const serverVersion = "1.0.0"

// Memory is the orchestrator surface the server exposes as tools.
type Memory interface {
	StoreConversation(ctx context.Context, input, output string, turnCtx map[string]interface{}) orchestrator.TurnResult
	RetrieveContext(ctx context.Context, query string) orchestrator.RetrievedContext
	SearchMemories(ctx context.Context, query string) orchestrator.RetrievedContext
	MemoryStats(ctx context.Context) orchestrator.StatsReport
}

// Server handles JSON-RPC 2.0 requests and routes them to the memory
// orchestrator.
type Server struct {
	memory Memory
}

// NewServer creates an MCP server over the given memory orchestrator.
func NewServer(memory Memory) *Server {
	return &Server{memory: memory}
}

// HandleRequest parses one JSON-RPC 2.0 request and returns the serialized
// response.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	// Standard MCP protocol methods
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "initialized":
		// Notification, no response body required.
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)

	// Native JSON-RPC methods for direct callers
	case "store_conversation":
		result, err = s.handleStoreConversation(ctx, req.Params)
	case "retrieve_context":
		result, err = s.handleRetrieveContext(ctx, req.Params)
	case "search_memories":
		result, err = s.handleSearchMemories(ctx, req.Params)
	case "get_memory_stats":
		result, err = s.handleGetMemoryStats(ctx, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

// StoreConversation records one conversation turn across the memory tiers.
func (s *Server) StoreConversation(ctx context.Context, args StoreConversationArgs) (*StoreConversationResult, error) {
	if strings.TrimSpace(args.Input) == "" {
		return nil, fmt.Errorf("input is required")
	}
	if strings.TrimSpace(args.Output) == "" {
		return nil, fmt.Errorf("output is required")
	}

	turn := s.memory.StoreConversation(ctx, args.Input, args.Output, args.Context)

	msg := "Conversation stored"
	if turn.Promoted {
		msg += "; promoted to long-term memory"
	}
	if turn.EventStored {
		msg += "; recorded as a significant event"
	}
	return &StoreConversationResult{
		ID:          turn.Interaction.ID,
		Importance:  turn.Importance,
		Promoted:    turn.Promoted,
		EventStored: turn.EventStored,
		Concepts:    turn.Concepts,
		Message:     msg,
	}, nil
}

// RetrieveContext gathers context for a query from every memory tier.
func (s *Server) RetrieveContext(ctx context.Context, args RetrieveContextArgs) (*RetrieveContextResult, error) {
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	retrieved := s.memory.RetrieveContext(ctx, args.Query)
	return &RetrieveContextResult{
		RetrievedContext: retrieved,
		Formatted:        orchestrator.ComposePrompt(retrieved, args.Query),
	}, nil
}

// SearchMemories searches every memory tier with the same text.
func (s *Server) SearchMemories(ctx context.Context, args SearchMemoriesArgs) (*SearchMemoriesResult, error) {
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	results := s.memory.SearchMemories(ctx, args.Query)
	total := len(results.Recent) + len(results.Concepts) + len(results.Episodes) + len(results.Durable)
	return &SearchMemoriesResult{Results: results, TotalMatches: total}, nil
}

// GetMemoryStats returns aggregate statistics for all tiers.
func (s *Server) GetMemoryStats(ctx context.Context) (*GetMemoryStatsResult, error) {
	report := s.memory.MemoryStats(ctx)
	return &report, nil
}

// ---------------------------------------------------------------------------
// JSON-RPC param adapters
// ---------------------------------------------------------------------------

func (s *Server) handleStoreConversation(ctx context.Context, params interface{}) (interface{}, error) {
	var args StoreConversationArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.StoreConversation(ctx, args)
}

func (s *Server) handleRetrieveContext(ctx context.Context, params interface{}) (interface{}, error) {
	var args RetrieveContextArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.RetrieveContext(ctx, args)
}

func (s *Server) handleSearchMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args SearchMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.SearchMemories(ctx, args)
}

func (s *Server) handleGetMemoryStats(ctx context.Context, params interface{}) (interface{}, error) {
	return s.GetMemoryStats(ctx)
}

// ---------------------------------------------------------------------------
// Standard MCP protocol handlers
// ---------------------------------------------------------------------------

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    "mnemo",
			Version: serverVersion,
		},
	}, nil
}

// handleToolsList returns the list of all tools this server exposes.
func (s *Server) handleToolsList(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: s.buildToolsList()}, nil
}

// handleToolsCall dispatches a tools/call request and wraps the result in the
// MCP content envelope. Tool-level failures are reported inside the envelope
// rather than as JSON-RPC errors.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	var result interface{}
	var handlerErr error

	switch p.Name {
	case "store_conversation":
		result, handlerErr = s.handleStoreConversation(ctx, p.Arguments)
	case "retrieve_context":
		result, handlerErr = s.handleRetrieveContext(ctx, p.Arguments)
	case "search_memories":
		result, handlerErr = s.handleSearchMemories(ctx, p.Arguments)
	case "get_memory_stats":
		result, handlerErr = s.handleGetMemoryStats(ctx, p.Arguments)
	default:
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	if handlerErr != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

// buildToolsList returns the canonical list of MCP tool definitions.
func (s *Server) buildToolsList() []MCPTool {
	return []MCPTool{
		{
			Name:        "store_conversation",
			Description: "Store one conversation turn in memory. The turn always enters the short-term buffer; sufficiently important turns are promoted to long-term memory, and significant turns are recorded as episodic events.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"input", "output"},
				"properties": map[string]interface{}{
					"input":   map[string]interface{}{"type": "string", "description": "The user message (required)"},
					"output":  map[string]interface{}{"type": "string", "description": "The assistant response (required)"},
					"context": map[string]interface{}{"type": "object", "description": "Arbitrary turn context. Set significant=true or priority=\"high\" to raise event importance."},
				},
			},
		},
		{
			Name:        "retrieve_context",
			Description: "Retrieve context for a query from all memory tiers: recent conversation, related concepts, significant past events, and similar long-term interactions. Includes a prompt-ready rendering.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "Text to retrieve context for (required)"},
				},
			},
		},
		{
			Name:        "search_memories",
			Description: "Search every memory tier with the same text. Recent conversation is matched by substring; concepts, events, and long-term interactions by semantic similarity.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "Search text (required)"},
				},
			},
		},
		{
			Name:        "get_memory_stats",
			Description: "Get aggregate statistics for every memory tier: short-term buffer utilization, concept graph size, episodic event counts, and long-term store totals.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// unmarshalParams unmarshals JSON-RPC parameters into a typed struct.
func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}

// successResponse creates a JSON-RPC success response.
func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	return json.Marshal(resp)
}

// errorResponse creates a JSON-RPC error response.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	return json.Marshal(resp)
}
