package core

import "fmt"

// Section is the central entity of the project index: one heading plus the
// text that follows it, addressed by a stable dotted identifier.
type Section struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Level      int      `json:"level"` // 1..6
	Content    string   `json:"content"`
	SourceFile string   `json:"source_file"` // project-relative origin file
	LineStart  int      `json:"line_start"`  // 0-based heading line in SourceFile
	LineEnd    int      `json:"line_end"`    // 0-based last content line, inclusive
	ParentID   string   `json:"parent_id,omitempty"`
	Children   []string `json:"children"` // child ids in source order
}

// Record is a single heading discovered by the parser, before identifiers
// and parent/child relationships are assigned.
type Record struct {
	Level       int
	Title       string
	OriginFile  string // project-relative path the heading physically resides in
	HeadingLine int    // 0-based, within OriginFile
	BodyStart   int    // HeadingLine+1 even when the body is empty
	BodyEnd     int    // inclusive; == HeadingLine for an empty section
	Content     string
}

// Dialect selects the heading and fence syntax for a file.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectAsciiDoc
	DialectMarkdown
)

// Warning kinds accumulated during parsing. These surface through
// validate_structure, never as terminal errors.
const (
	WarnMissingInclude   = "missing_include"
	WarnIncludeReadError = "include_read_error"
	WarnCycle            = "cycle"
	WarnDepthExceeded    = "depth_exceeded"
)

// Warning records a non-fatal parse observation.
type Warning struct {
	Kind    string `json:"kind"`
	File    string `json:"file"` // includer
	Line    int    `json:"line"` // 0-based line of the directive
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
}

// Error kinds surfaced in tool results and JSON-RPC error data.
const (
	KindNotFound        = "not_found"
	KindInvalidArgument = "invalid_argument"
	KindStale           = "stale"
	KindIOError         = "io_error"
	KindParseError      = "parse_error"
	KindCycle           = "cycle"
	KindConflict        = "conflict"
	KindServerBusy      = "server_busy"
)

// OpError is a domain error carrying one of the kind constants above.
type OpError struct {
	Kind   string
	Detail string
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Errf builds an OpError with a formatted detail message.
func Errf(kind, format string, args ...any) *OpError {
	return &OpError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, defaulting to io_error for plain errors.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	if oe, ok := err.(*OpError); ok {
		return oe.Kind
	}
	return KindIOError
}
