package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/oxhq/docserve/core"
)

// ServerName and ServerVersion identify this server in the initialize
// handshake.
const (
	ServerName      = "docserve"
	ServerVersion   = "1.0.0"
	ProtocolVersion = "2024-11-05"
)

// ToolHandler represents a function that handles one tool call.
type ToolHandler func(params json.RawMessage) (any, error)

// StdioServer handles MCP communication over stdio: line-delimited JSON-RPC
// requests on stdin, responses on stdout, optional debug logging on stderr.
type StdioServer struct {
	config Config

	reader *bufio.Reader
	writer *bufio.Writer

	ix      *core.Index
	editor  *core.Editor
	watcher *core.Watcher

	// Tool registry
	tools map[string]ToolHandler
	mu    sync.RWMutex

	initialized bool
	shutdown    bool

	httpServer *HTTPServer

	debugLog func(format string, args ...any)
}

// NewStdioServer builds the index, wires the editor and watcher together,
// and registers the built-in tools. The initial index build runs here, so a
// nonexistent project root fails fast.
func NewStdioServer(config Config) (*StdioServer, error) {
	server := &StdioServer{
		config: config,
		reader: bufio.NewReader(os.Stdin),
		writer: bufio.NewWriter(os.Stdout),
		tools:  make(map[string]ToolHandler),
	}

	if config.Debug {
		server.debugLog = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
		}
	} else {
		server.debugLog = func(format string, args ...any) {}
	}

	ix, err := core.NewIndex(config.ProjectRoot, server.debugLog)
	if err != nil {
		return nil, err
	}
	if err := ix.Build(); err != nil {
		return nil, err
	}
	server.ix = ix
	server.editor = core.NewEditor(ix)
	server.watcher = core.NewWatcher(ix, server.debugLog)
	server.editor.OnWrite = server.watcher.Suppress

	if err := server.watcher.Start(); err != nil {
		// Editing and explicit refreshes still work without the watch.
		server.debugLog("file watcher unavailable: %v", err)
		server.watcher = nil
		server.editor.OnWrite = nil
	}

	// The HTTP API binds at startup, not at initialize: with no free port
	// in the probe range the process must fail instead of running without
	// its configured surface.
	if config.EnableWebserver {
		httpSrv, err := NewHTTPServer(config, ix, server.debugLog)
		if err != nil {
			if server.watcher != nil {
				server.watcher.Stop()
			}
			return nil, err
		}
		server.httpServer = httpSrv
		go httpSrv.Serve()
		server.debugLog("HTTP API listening on port %d", httpSrv.Port())
	}

	server.registerBuiltinTools()
	server.debugLog("indexed %d sections under %s", ix.SectionCount(), ix.Root())
	return server, nil
}

// Index exposes the project index, mainly for the HTTP server and tests.
func (s *StdioServer) Index() *core.Index {
	return s.ix
}

// Start processes JSON-RPC requests from stdin until EOF or shutdown.
func (s *StdioServer) Start() error {
	s.debugLog("MCP server started for %s", s.ix.Root())

	decoder := json.NewDecoder(s.reader)
	for {
		var req Request
		err := decoder.Decode(&req)

		if err == io.EOF {
			s.debugLog("EOF received, shutting down gracefully")
			return nil
		}
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				s.debugLog("unexpected EOF, waiting for more data")
				continue
			}
			errMsg := fmt.Sprintf("JSON decode error: %v", err)
			if syntaxErr, ok := err.(*json.SyntaxError); ok {
				errMsg = fmt.Sprintf("JSON syntax error at position %d: %v", syntaxErr.Offset, err)
			}
			s.debugLog("%s", errMsg)
			s.sendResponse(ErrorResponse(nil, ParseError, errMsg))
			decoder = json.NewDecoder(s.reader)
			continue
		}

		reqLog := fmt.Sprintf("%v", req)
		if len(reqLog) > 200 {
			reqLog = reqLog[:200] + "..."
		}
		s.debugLog("received: %s", reqLog)

		response := s.handleRequest(req)
		if req.ID != nil {
			s.sendResponse(response)
		}

		if s.shutdown {
			s.debugLog("shutdown requested")
			return nil
		}
	}
}

// handleRequest routes one request to its handler. tools/call is rejected
// until the initialize handshake has happened.
func (s *StdioServer) handleRequest(req Request) Response {
	if err := ensureVersion(req.JSONRPC); err != nil {
		return ErrorResponse(req.ID, InvalidRequest, err.Error())
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		s.debugLog("initialization complete")
		return Response{}
	case "ping":
		return SuccessResponse(req.ID, map[string]any{})
	case "tools/list":
		return SuccessResponse(req.ID, map[string]any{
			"tools": GetToolDefinitions(),
		})
	case "tools/call":
		if !s.initialized {
			return ErrorResponse(req.ID, InvalidRequest, "server not initialized")
		}
		return s.handleCallTool(req)
	case "shutdown":
		s.shutdown = true
		return SuccessResponse(req.ID, map[string]any{})
	default:
		return ErrorResponse(req.ID, MethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method))
	}
}

// handleInitialize answers the handshake.
func (s *StdioServer) handleInitialize(req Request) Response {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
		s.debugLog("client: %s v%s, protocol: %s",
			params.ClientInfo.Name, params.ClientInfo.Version, params.ProtocolVersion)
	}

	s.initialized = true

	return SuccessResponse(req.ID, map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{
				"listChanged": false,
			},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": ServerVersion,
		},
	})
}

// handleCallTool executes a registered tool.
func (s *StdioServer) handleCallTool(req Request) Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParams, "invalid params structure")
	}

	s.debugLog("calling tool: %s", params.Name)

	s.mu.RLock()
	handler, exists := s.tools[params.Name]
	s.mu.RUnlock()
	if !exists {
		return ErrorResponse(req.ID, MethodNotFound,
			fmt.Sprintf("tool not found: %s", params.Name))
	}

	result, err := handler(params.Arguments)
	if err != nil {
		if mcpErr, ok := err.(*MCPError); ok {
			return ErrorResponse(req.ID, mcpErr.Code, mcpErr.Message, mcpErr.Data)
		}
		return ErrorResponse(req.ID, InternalError, err.Error())
	}
	return SuccessResponse(req.ID, result)
}

// sendResponse writes one response line to stdout.
func (s *StdioServer) sendResponse(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.debugLog("failed to marshal response: %v", err)
		return
	}
	s.debugLog("sending: %s", string(data))
	fmt.Fprintf(s.writer, "%s\n", data)
	s.writer.Flush()
}

// RegisterTool adds a tool handler.
func (s *StdioServer) RegisterTool(name string, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[name] = handler
}

// Close stops the watcher and the HTTP server.
func (s *StdioServer) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown()
	}
	return nil
}
