package core

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// StructureEntry is one row of the depth-first table of contents.
type StructureEntry struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Level         int    `json:"level"`
	ChildrenCount int    `json:"children_count"`
}

// SectionDetail is the full view of a single section.
type SectionDetail struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Level      int      `json:"level"`
	Content    string   `json:"content"`
	SourceFile string   `json:"source_file"`
	LineStart  int      `json:"line_start"`
	LineEnd    int      `json:"line_end"`
	Children   []string `json:"children"`
}

// SectionSummary is the abbreviated per-level listing entry.
type SectionSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Level   int    `json:"level"`
	Content string `json:"content"`
}

// SectionNode is a recursive tree node used by the root-file structure view.
type SectionNode struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Level         int            `json:"level"`
	ChildrenCount int            `json:"children_count"`
	LineStart     int            `json:"line_start"`
	LineEnd       int            `json:"line_end"`
	SourceFile    string         `json:"source_file"`
	Children      []*SectionNode `json:"children"`
}

// RootFileStructure groups one root file with its section subtrees.
type RootFileStructure struct {
	Path         string         `json:"path"`
	Filename     string         `json:"filename"`
	SectionCount int            `json:"section_count"`
	Sections     []*SectionNode `json:"sections"`
}

// ChapterEntry is one entry of the arc42-style main chapter listing.
type ChapterEntry struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Level         int    `json:"level"`
	ChapterNumber int    `json:"chapter_number"`
	ChildrenCount int    `json:"children_count"`
}

// SearchHit is one ranked full-text search result.
type SearchHit struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// SectionMetadata summarizes one section without its content.
type SectionMetadata struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Level         int    `json:"level"`
	WordCount     int    `json:"word_count"`
	ChildrenCount int    `json:"children_count"`
	HasContent    bool   `json:"has_content"`
}

// FileInfo describes one root file on disk.
type FileInfo struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// ProjectMetadata summarizes the whole index.
type ProjectMetadata struct {
	ProjectRoot   string     `json:"project_root"`
	TotalSections int        `json:"total_sections"`
	TotalWords    int        `json:"total_words"`
	RootFiles     []FileInfo `json:"root_files"`
}

// CrossReference is one AsciiDoc xref (<<target>>) found in section content.
type CrossReference struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Dependencies reports the include graph and reference information.
type Dependencies struct {
	Includes         map[string][]string `json:"includes"`
	CrossReferences  []CrossReference    `json:"cross_references"`
	OrphanedSections []string            `json:"orphaned_sections"`
}

// ValidationReport carries invariant violations and accumulated warnings.
type ValidationReport struct {
	Valid         bool      `json:"valid"`
	Issues        []string  `json:"issues"`
	Warnings      []Warning `json:"warnings"`
	TotalSections int       `json:"total_sections"`
}

var (
	chapterNumRe = regexp.MustCompile(`^(\d+)[.)]?\s`)
	xrefRe       = regexp.MustCompile(`<<([^>,]+)(?:,[^>]*)?>>`)
)

// Structure returns the table of contents in depth-first source order,
// pruned to level <= maxDepth (0 means unlimited) and optionally restricted
// to the subtree of parentID.
func (ix *Index) Structure(maxDepth int, parentID string) []StructureEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := []StructureEntry{}
	prefix := ""
	if parentID != "" {
		prefix = parentID + "."
	}
	for _, id := range ix.ordered {
		sec := ix.sections[id]
		if maxDepth > 0 && sec.Level > maxDepth {
			continue
		}
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			continue
		}
		out = append(out, StructureEntry{
			ID:            sec.ID,
			Title:         sec.Title,
			Level:         sec.Level,
			ChildrenCount: len(sec.Children),
		})
	}
	return out
}

// GetSection returns the full section view or a not_found error.
func (ix *Index) GetSection(id string) (*SectionDetail, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	sec, ok := ix.sections[id]
	if !ok {
		return nil, Errf(KindNotFound, "section not found: %s", id)
	}
	return &SectionDetail{
		ID:         sec.ID,
		Title:      sec.Title,
		Level:      sec.Level,
		Content:    sec.Content,
		SourceFile: sec.SourceFile,
		LineStart:  sec.LineStart,
		LineEnd:    sec.LineEnd,
		Children:   append([]string{}, sec.Children...),
	}, nil
}

// SectionsByLevel lists sections of one heading level in source order.
func (ix *Index) SectionsByLevel(level int) ([]SectionSummary, error) {
	if level < 1 || level > 6 {
		return nil, Errf(KindInvalidArgument, "level must be 1..6, got %d", level)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := []SectionSummary{}
	for _, id := range ix.ordered {
		sec := ix.sections[id]
		if sec.Level != level {
			continue
		}
		out = append(out, SectionSummary{
			ID:      sec.ID,
			Title:   sec.Title,
			Level:   sec.Level,
			Content: sec.Content,
		})
	}
	return out, nil
}

// RootFilesStructure groups sections by root file, excluding included
// files, each root carrying its recursive section subtrees.
func (ix *Index) RootFilesStructure() []RootFileStructure {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := []RootFileStructure{}
	for _, root := range ix.rootFiles {
		span := ix.rootSpans[root]
		ids := ix.ordered[span[0]:span[1]]

		nodes := make(map[string]*SectionNode, len(ids))
		var top []*SectionNode
		for _, id := range ids {
			sec := ix.sections[id]
			node := &SectionNode{
				ID:            sec.ID,
				Title:         sec.Title,
				Level:         sec.Level,
				ChildrenCount: len(sec.Children),
				LineStart:     sec.LineStart,
				LineEnd:       sec.LineEnd,
				SourceFile:    sec.SourceFile,
				Children:      []*SectionNode{},
			}
			nodes[id] = node
			if parent, ok := nodes[sec.ParentID]; ok {
				parent.Children = append(parent.Children, node)
			} else {
				top = append(top, node)
			}
		}

		out = append(out, RootFileStructure{
			Path:         root,
			Filename:     filepath.Base(root),
			SectionCount: len(ids),
			Sections:     top,
		})
	}
	return out
}

// MainChapters returns numbered level-2 chapters plus unnumbered top-level
// documents, the latter sorted after every numbered chapter.
func (ix *Index) MainChapters() []ChapterEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := []ChapterEntry{}
	for _, id := range ix.ordered {
		sec := ix.sections[id]
		m := chapterNumRe.FindStringSubmatch(sec.Title)
		switch {
		case sec.Level == 2 && m != nil:
			num, _ := strconv.Atoi(m[1])
			out = append(out, ChapterEntry{
				ID: sec.ID, Title: sec.Title, Level: sec.Level,
				ChapterNumber: num, ChildrenCount: len(sec.Children),
			})
		case sec.Level == 1 && m == nil:
			out = append(out, ChapterEntry{
				ID: sec.ID, Title: sec.Title, Level: sec.Level,
				ChapterNumber: 999, ChildrenCount: len(sec.Children),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ChapterNumber < out[j].ChapterNumber
	})
	return out
}

// Search finds sections whose title or content contains the query,
// case-insensitive. Title matches rank before content matches, earlier
// matches before later ones, shallower sections before deeper ones. The
// score weighs title occurrences double.
func (ix *Index) Search(query string) ([]SearchHit, error) {
	if query == "" {
		return nil, Errf(KindInvalidArgument, "query must not be empty")
	}
	q := strings.ToLower(query)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type candidate struct {
		hit      SearchHit
		inTitle  bool
		position int
		level    int
	}
	var found []candidate
	for _, id := range ix.ordered {
		sec := ix.sections[id]
		titleIdx := strings.Index(strings.ToLower(sec.Title), q)
		contentIdx := strings.Index(strings.ToLower(sec.Content), q)
		if titleIdx < 0 && contentIdx < 0 {
			continue
		}
		pos := contentIdx
		if titleIdx >= 0 {
			pos = titleIdx
		}
		score := float64(2*strings.Count(strings.ToLower(sec.Title), q) +
			strings.Count(strings.ToLower(sec.Content), q))
		found = append(found, candidate{
			hit: SearchHit{
				ID:      sec.ID,
				Title:   sec.Title,
				Score:   score,
				Snippet: snippet(sec.Content, contentIdx, len(q)),
			},
			inTitle:  titleIdx >= 0,
			position: pos,
			level:    sec.Level,
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.inTitle != b.inTitle {
			return a.inTitle
		}
		if a.position != b.position {
			return a.position < b.position
		}
		return a.level < b.level
	})

	hits := make([]SearchHit, len(found))
	for i, c := range found {
		hits[i] = c.hit
	}
	return hits, nil
}

// snippet cuts a window of 40 characters on each side of the first content
// match. Without a content match it falls back to the content head.
func snippet(content string, matchIdx, matchLen int) string {
	const window = 40
	if matchIdx < 0 {
		if len(content) > 2*window {
			return content[:2*window] + "..."
		}
		return content
	}
	start := matchIdx - window
	if start < 0 {
		start = 0
	}
	end := matchIdx + matchLen + window
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}

// SectionMetadata returns per-section metadata or a not_found error.
func (ix *Index) SectionMetadata(id string) (*SectionMetadata, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	sec, ok := ix.sections[id]
	if !ok {
		return nil, Errf(KindNotFound, "section not found: %s", id)
	}
	return &SectionMetadata{
		ID:            sec.ID,
		Title:         sec.Title,
		Level:         sec.Level,
		WordCount:     len(strings.Fields(sec.Content)),
		ChildrenCount: len(sec.Children),
		HasContent:    strings.TrimSpace(sec.Content) != "",
	}, nil
}

// ProjectMetadata returns project-wide totals and root file information.
func (ix *Index) ProjectMetadata() *ProjectMetadata {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	totalWords := 0
	for _, sec := range ix.sections {
		totalWords += len(strings.Fields(sec.Content))
	}

	files := []FileInfo{}
	for _, root := range ix.rootFiles {
		info := FileInfo{Path: root}
		if st, err := os.Stat(ix.Abs(root)); err == nil {
			info.Size = st.Size()
			info.LastModified = st.ModTime().Format(time.RFC3339)
		}
		files = append(files, info)
	}

	return &ProjectMetadata{
		ProjectRoot:   ix.root,
		TotalSections: len(ix.sections),
		TotalWords:    totalWords,
		RootFiles:     files,
	}
}

// Dependencies reports include edges, cross references, and orphaned
// sections. The orphan list is empty whenever the index invariants hold;
// it is computed rather than assumed so validation can observe drift.
func (ix *Index) Dependencies() *Dependencies {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	includes := make(map[string][]string, len(ix.includeEdges))
	for k, v := range ix.includeEdges {
		includes[k] = append([]string{}, v...)
	}

	xrefs := []CrossReference{}
	for _, id := range ix.ordered {
		sec := ix.sections[id]
		if DialectOf(sec.SourceFile) != DialectAsciiDoc {
			continue
		}
		for _, m := range xrefRe.FindAllStringSubmatch(sec.Content, -1) {
			xrefs = append(xrefs, CrossReference{From: id, To: strings.TrimSpace(m[1])})
		}
	}

	topLevel := make(map[string]bool)
	for _, span := range ix.rootSpans {
		for _, id := range ix.ordered[span[0]:span[1]] {
			if ix.sections[id].ParentID == "" {
				topLevel[id] = true
			}
		}
	}
	orphans := []string{}
	for _, id := range ix.ordered {
		if ix.sections[id].ParentID == "" && !topLevel[id] {
			orphans = append(orphans, id)
		}
	}

	return &Dependencies{
		Includes:         includes,
		CrossReferences:  xrefs,
		OrphanedSections: orphans,
	}
}

// Validate checks every index invariant and returns accumulated parser
// warnings from the last build.
func (ix *Index) Validate() *ValidationReport {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	issues := []string{}
	warnings := append([]Warning{}, ix.allWarnings()...)

	for _, id := range ix.ordered {
		sec := ix.sections[id]

		if sec.ParentID != "" {
			parent, ok := ix.sections[sec.ParentID]
			if !ok {
				issues = append(issues, "missing parent section: "+sec.ParentID+" (referenced by "+id+")")
			} else {
				count := 0
				for _, c := range parent.Children {
					if c == id {
						count++
					}
				}
				if count != 1 {
					issues = append(issues, "child "+id+" listed "+strconv.Itoa(count)+" times under "+parent.ID)
				}
				if sec.Level <= parent.Level {
					issues = append(issues, "section "+id+" level must be deeper than parent "+parent.ID)
				}
			}
		}

		if sec.LineStart > sec.LineEnd {
			issues = append(issues, "section "+id+" has line_start after line_end")
		}

		for _, c := range sec.Children {
			if _, ok := ix.sections[c]; !ok {
				issues = append(issues, "missing child section: "+c+" (referenced by "+id+")")
			}
		}

		if strings.TrimSpace(sec.Content) == "" && len(sec.Children) == 0 {
			warnings = append(warnings, Warning{
				Kind: "empty_section", File: sec.SourceFile, Line: sec.LineStart,
				Message: "empty section: " + id,
			})
		}
	}

	// Children must appear in source order within one origin file.
	for _, id := range ix.ordered {
		sec := ix.sections[id]
		last := -1
		lastFile := ""
		for _, c := range sec.Children {
			child, ok := ix.sections[c]
			if !ok {
				continue
			}
			if child.SourceFile == lastFile && child.LineStart < last {
				issues = append(issues, "children of "+id+" out of source order")
				break
			}
			last = child.LineStart
			lastFile = child.SourceFile
		}
	}

	for f := range ix.includedFiles {
		for _, r := range ix.rootFiles {
			if f == r {
				issues = append(issues, "path "+f+" is both root and included")
			}
		}
	}

	return &ValidationReport{
		Valid:         len(issues) == 0,
		Issues:        issues,
		Warnings:      warnings,
		TotalSections: len(ix.sections),
	}
}
