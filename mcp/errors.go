package mcp

import (
	"fmt"

	"github.com/oxhq/docserve/core"
)

// Error codes following JSON-RPC 2.0 standard plus custom domain errors
const (
	// JSON-RPC 2.0 standard error codes
	ParseError     = -32700 // Invalid JSON was received
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist
	InvalidParams  = -32602 // Invalid method parameters
	InternalError  = -32603 // Internal JSON-RPC error

	// Custom domain error codes (10xxx range)
	SectionNotFound = 10001 // Identifier not in index
	StaleSection    = 10002 // File on disk no longer matches the index
	IOFailure       = 10003 // Read or write failed
	ParseFailure    = 10004 // Unrecoverable parser failure
	IncludeCycle    = 10005 // Include cycle detected
	EditConflict    = 10006 // Mutation would produce a duplicate identifier
	ServerBusy      = 10007 // Exclusive lock unavailable
)

// MCPError represents a structured error for the MCP protocol. Data always
// carries the domain error kind so clients can branch on it.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// NewMCPError creates an MCP error with optional data.
func NewMCPError(code int, message string, data ...any) *MCPError {
	err := &MCPError{Code: code, Message: message}
	if len(data) > 0 {
		err.Data = data[0]
	}
	return err
}

// kindCodes maps domain error kinds onto protocol codes.
var kindCodes = map[string]int{
	core.KindNotFound:        SectionNotFound,
	core.KindInvalidArgument: InvalidParams,
	core.KindStale:           StaleSection,
	core.KindIOError:         IOFailure,
	core.KindParseError:      ParseFailure,
	core.KindCycle:           IncludeCycle,
	core.KindConflict:        EditConflict,
	core.KindServerBusy:      ServerBusy,
}

// wrapDomainError converts a core error into a protocol error. The kind
// travels in error.data.kind.
func wrapDomainError(err error) *MCPError {
	kind := core.KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		code = InternalError
	}
	detail := err.Error()
	if oe, isOp := err.(*core.OpError); isOp {
		detail = oe.Detail
	}
	return &MCPError{
		Code:    code,
		Message: detail,
		Data:    map[string]any{"kind": kind, "detail": detail},
	}
}

// invalidArgs builds the standard schema-violation error.
func invalidArgs(format string, args ...any) *MCPError {
	detail := fmt.Sprintf(format, args...)
	return &MCPError{
		Code:    InvalidParams,
		Message: detail,
		Data:    map[string]any{"kind": core.KindInvalidArgument, "detail": detail},
	}
}
