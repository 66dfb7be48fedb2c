package mcp

import (
	"encoding/json"
)

// ToolDefinition describes a tool for the client.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// Pagination is the windowing metadata the listing tools return alongside
// their results.
type Pagination struct {
	Total       int  `json:"total"`
	Limit       int  `json:"limit"`
	Offset      int  `json:"offset"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// paginate windows items by limit and offset. A zero limit returns the full
// list.
func paginate[T any](items []T, limit, offset int) ([]T, Pagination) {
	total := len(items)
	if limit == 0 {
		return items, Pagination{Total: total}
	}
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return items[start:end], Pagination{
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		HasNext:     end < total,
		HasPrevious: offset > 0,
	}
}

func checkPageArgs(limit, offset int) error {
	if limit < 0 {
		return invalidArgs("limit must not be negative: %d", limit)
	}
	if offset < 0 {
		return invalidArgs("offset must not be negative: %d", offset)
	}
	return nil
}

// GetToolDefinitions returns all available tool definitions.
func GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "get_structure",
			Description: "Get the document structure as an ordered list of sections",
			InputSchema: objectSchema(map[string]any{
				"max_depth": intProp("Prune sections deeper than this level (default unlimited)"),
				"parent_id": stringProp("Restrict output to the subtree of this section"),
				"limit":     intProp("Maximum results to return (default all)"),
				"offset":    intProp("Number of results to skip"),
			}),
		},
		{
			Name:        "get_section",
			Description: "Get a single section with its full content",
			InputSchema: objectSchema(map[string]any{
				"path": stringProp("Dotted section identifier, e.g. introduction.goals"),
			}, "path"),
		},
		{
			Name:        "get_sections",
			Description: "List all sections of a given heading level in source order",
			InputSchema: objectSchema(map[string]any{
				"level":  intProp("Heading level, 1..6"),
				"limit":  intProp("Maximum results to return (default all)"),
				"offset": intProp("Number of results to skip"),
			}, "level"),
		},
		{
			Name:        "get_sections_by_level",
			Description: "List all sections of a given heading level in source order",
			InputSchema: objectSchema(map[string]any{
				"level":  intProp("Heading level, 1..6"),
				"limit":  intProp("Maximum results to return (default all)"),
				"offset": intProp("Number of results to skip"),
			}, "level"),
		},
		{
			Name:        "get_root_files_structure",
			Description: "Get sections grouped by root file, excluding included files",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "get_main_chapters",
			Description: "Get numbered main chapters of arc42-style documentation",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "search_content",
			Description: "Full-text search over section titles and content",
			InputSchema: objectSchema(map[string]any{
				"query":  stringProp("Case-insensitive substring to search for"),
				"limit":  intProp("Maximum results to return (default all)"),
				"offset": intProp("Number of results to skip"),
			}, "query"),
		},
		{
			Name:        "get_metadata",
			Description: "Get metadata for one section, or project-wide totals without a path",
			InputSchema: objectSchema(map[string]any{
				"path": stringProp("Dotted section identifier (optional)"),
			}),
		},
		{
			Name:        "get_dependencies",
			Description: "Get include relationships, cross references, and orphaned sections",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "validate_structure",
			Description: "Check index invariants and report accumulated parser warnings",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "refresh_index",
			Description: "Force a full re-discovery and re-parse of the project",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "update_section",
			Description: "Replace the body of a section in its source file",
			InputSchema: objectSchema(map[string]any{
				"path":    stringProp("Dotted section identifier"),
				"content": stringProp("New section body"),
			}, "path", "content"),
		},
		{
			Name:        "insert_section",
			Description: "Insert a new section as a child of an existing one",
			InputSchema: objectSchema(map[string]any{
				"parent_path": stringProp("Dotted identifier of the parent section"),
				"title":       stringProp("Heading text of the new section"),
				"content":     stringProp("Initial section body (optional)"),
				"position": map[string]any{
					"type":        "string",
					"enum":        []string{"before", "after", "append"},
					"description": "Where to place the section among the parent's children (default append)",
				},
			}, "parent_path", "title"),
		},
	}
}

// registerBuiltinTools wires every tool name to its query or editor
// operation.
func (s *StdioServer) registerBuiltinTools() {
	s.RegisterTool("get_structure", s.handleGetStructure)
	s.RegisterTool("get_section", s.handleGetSection)
	s.RegisterTool("get_sections", s.handleGetSectionsByLevel)
	s.RegisterTool("get_sections_by_level", s.handleGetSectionsByLevel)
	s.RegisterTool("get_root_files_structure", s.handleGetRootFilesStructure)
	s.RegisterTool("get_main_chapters", s.handleGetMainChapters)
	s.RegisterTool("search_content", s.handleSearchContent)
	s.RegisterTool("get_metadata", s.handleGetMetadata)
	s.RegisterTool("get_dependencies", s.handleGetDependencies)
	s.RegisterTool("validate_structure", s.handleValidateStructure)
	s.RegisterTool("refresh_index", s.handleRefreshIndex)
	s.RegisterTool("update_section", s.handleUpdateSection)
	s.RegisterTool("insert_section", s.handleInsertSection)
}

func decodeArgs(params json.RawMessage, into any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, into); err != nil {
		return invalidArgs("malformed arguments: %v", err)
	}
	return nil
}

func (s *StdioServer) handleGetStructure(params json.RawMessage) (any, error) {
	var args struct {
		MaxDepth int    `json:"max_depth"`
		ParentID string `json:"parent_id"`
		Limit    int    `json:"limit"`
		Offset   int    `json:"offset"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	if args.MaxDepth < 0 {
		return nil, invalidArgs("max_depth must not be negative: %d", args.MaxDepth)
	}
	if err := checkPageArgs(args.Limit, args.Offset); err != nil {
		return nil, err
	}
	entries, page := paginate(s.ix.Structure(args.MaxDepth, args.ParentID),
		args.Limit, args.Offset)
	return map[string]any{
		"structure":  entries,
		"total":      len(entries),
		"pagination": page,
	}, nil
}

func (s *StdioServer) handleGetSection(params json.RawMessage) (any, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		return nil, invalidArgs("path is required")
	}
	sec, err := s.ix.GetSection(args.Path)
	if err != nil {
		return nil, wrapDomainError(err)
	}
	return sec, nil
}

func (s *StdioServer) handleGetSectionsByLevel(params json.RawMessage) (any, error) {
	var args struct {
		Level  *int `json:"level"`
		Limit  int  `json:"limit"`
		Offset int  `json:"offset"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	if args.Level == nil {
		return nil, invalidArgs("level is required")
	}
	if err := checkPageArgs(args.Limit, args.Offset); err != nil {
		return nil, err
	}
	sections, err := s.ix.SectionsByLevel(*args.Level)
	if err != nil {
		return nil, wrapDomainError(err)
	}
	sections, page := paginate(sections, args.Limit, args.Offset)
	return map[string]any{
		"level":      *args.Level,
		"sections":   sections,
		"total":      len(sections),
		"pagination": page,
	}, nil
}

func (s *StdioServer) handleGetRootFilesStructure(json.RawMessage) (any, error) {
	files := s.ix.RootFilesStructure()
	return map[string]any{
		"files": files,
		"total": len(files),
	}, nil
}

func (s *StdioServer) handleGetMainChapters(json.RawMessage) (any, error) {
	chapters := s.ix.MainChapters()
	return map[string]any{
		"chapters": chapters,
		"total":    len(chapters),
	}, nil
}

func (s *StdioServer) handleSearchContent(params json.RawMessage) (any, error) {
	var args struct {
		Query  string `json:"query"`
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	if err := checkPageArgs(args.Limit, args.Offset); err != nil {
		return nil, err
	}
	hits, err := s.ix.Search(args.Query)
	if err != nil {
		return nil, wrapDomainError(err)
	}
	hits, page := paginate(hits, args.Limit, args.Offset)
	return map[string]any{
		"query":      args.Query,
		"results":    hits,
		"total":      len(hits),
		"pagination": page,
	}, nil
}

func (s *StdioServer) handleGetMetadata(params json.RawMessage) (any, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		return s.ix.ProjectMetadata(), nil
	}
	meta, err := s.ix.SectionMetadata(args.Path)
	if err != nil {
		return nil, wrapDomainError(err)
	}
	return meta, nil
}

func (s *StdioServer) handleGetDependencies(json.RawMessage) (any, error) {
	return s.ix.Dependencies(), nil
}

func (s *StdioServer) handleValidateStructure(json.RawMessage) (any, error) {
	return s.ix.Validate(), nil
}

func (s *StdioServer) handleRefreshIndex(json.RawMessage) (any, error) {
	oldCount := s.ix.SectionCount()
	if err := s.ix.Build(); err != nil {
		return nil, wrapDomainError(err)
	}
	return map[string]any{
		"success":           true,
		"old_section_count": oldCount,
		"new_section_count": s.ix.SectionCount(),
		"metadata":          s.ix.ProjectMetadata(),
	}, nil
}

func (s *StdioServer) handleUpdateSection(params json.RawMessage) (any, error) {
	var args struct {
		Path    string  `json:"path"`
		Content *string `json:"content"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		return nil, invalidArgs("path is required")
	}
	if args.Content == nil {
		return nil, invalidArgs("content is required")
	}
	return s.editor.UpdateSection(args.Path, *args.Content), nil
}

func (s *StdioServer) handleInsertSection(params json.RawMessage) (any, error) {
	var args struct {
		ParentPath string `json:"parent_path"`
		Title      string `json:"title"`
		Content    string `json:"content"`
		Position   string `json:"position"`
	}
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}
	if args.ParentPath == "" {
		return nil, invalidArgs("parent_path is required")
	}
	if args.Title == "" {
		return nil, invalidArgs("title is required")
	}
	if args.Position == "" {
		args.Position = "append"
	}
	return s.editor.InsertSection(args.ParentPath, args.Title, args.Content, args.Position), nil
}
