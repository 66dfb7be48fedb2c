package core

import (
	"os"
	"strings"
	"sync"
)

const tempSuffix = ".docserve.tmp"

// Editor performs section-scoped rewrites of source files. Writes go
// through a sibling temp file and an atomic rename; a reader opening the
// file concurrently sees either the old or the new bytes, never a torn
// write. Edits are serialized: each one reads the index, checks staleness,
// writes, and refreshes under a single mutex, so a concurrent edit cannot
// overwrite another based on line numbers it has already invalidated.
type Editor struct {
	ix *Index
	mu sync.Mutex

	// OnWrite, when set, is called with the project-relative path just
	// before the index refresh. The watcher hooks in here to suppress the
	// echo event of our own write.
	OnWrite func(relPath string)
}

// EditResult is the outcome of one editor operation.
type EditResult struct {
	Success   bool        `json:"success"`
	SectionID string      `json:"section_id,omitempty"`
	Diff      *DiffResult `json:"diff,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// NewEditor creates an editor bound to an index.
func NewEditor(ix *Index) *Editor {
	return &Editor{ix: ix}
}

func failResult(err error) *EditResult {
	res := &EditResult{Success: false, ErrorKind: KindOf(err)}
	if oe, ok := err.(*OpError); ok {
		res.Detail = oe.Detail
	} else {
		res.Detail = err.Error()
	}
	return res
}

// UpdateSection replaces the body of the identified section with content,
// leaving the heading line untouched. The written body always ends with a
// single trailing newline.
func (e *Editor) UpdateSection(id, content string) *EditResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	sec, ok := e.ix.GetSectionCopy(id)
	if !ok {
		return failResult(Errf(KindNotFound, "section not found: %s", id))
	}

	lines, err := e.readLines(sec.SourceFile)
	if err != nil {
		return failResult(err)
	}
	if err := checkHeading(lines, &sec); err != nil {
		return failResult(err)
	}

	// The body window starts after the heading; a single blank separator
	// line directly under the heading stays in place, mirroring the
	// parser's one-blank trim.
	bodyLo := sec.LineStart + 1
	if bodyLo <= sec.LineEnd && bodyLo < len(lines) && strings.TrimSpace(lines[bodyLo]) == "" {
		bodyLo++
	}

	newBody := bodyLines(content)
	if sec.LineEnd == sec.LineStart && len(newBody) > 0 {
		// Previously empty section: open the body with a separator blank.
		newBody = append([]string{""}, newBody...)
	}

	var out []string
	out = append(out, lines[:bodyLo]...)
	out = append(out, newBody...)
	if sec.LineEnd+1 < len(lines) {
		out = append(out, lines[sec.LineEnd+1:]...)
	}

	if err := e.writeAtomic(sec.SourceFile, out); err != nil {
		return failResult(err)
	}
	if err := e.ix.RefreshPaths([]string{sec.SourceFile}); err != nil {
		return failResult(err)
	}

	return &EditResult{
		Success:   true,
		SectionID: id,
		Diff:      CompareSections(sec.Content, strings.TrimRight(content, "\n")),
	}
}

// InsertSection adds a new section under parentID at level parent.level+1,
// written in the dialect of the parent's source file. Position is one of
// "before" (before the parent's first child), "after", or "append" (both:
// after the parent's last descendant).
func (e *Editor) InsertSection(parentID, title, content, position string) *EditResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch position {
	case "before", "after", "append":
	default:
		return failResult(Errf(KindInvalidArgument,
			"position must be before, after, or append: %q", position))
	}
	if strings.TrimSpace(title) == "" {
		return failResult(Errf(KindInvalidArgument, "title must not be empty"))
	}

	parent, ok := e.ix.GetSectionCopy(parentID)
	if !ok {
		return failResult(Errf(KindNotFound, "section not found: %s", parentID))
	}
	if parent.Level >= 6 {
		return failResult(Errf(KindInvalidArgument,
			"cannot nest below level-6 section %s", parentID))
	}

	lines, err := e.readLines(parent.SourceFile)
	if err != nil {
		return failResult(err)
	}
	if err := checkHeading(lines, &parent); err != nil {
		return failResult(err)
	}

	at := e.insertionLine(&parent, position)
	if at > len(lines) {
		at = len(lines)
	}

	heading := headingMarker(DialectOf(parent.SourceFile), parent.Level+1) + " " + title
	block := []string{heading}
	if body := bodyLines(content); len(body) > 0 {
		block = append(block, "")
		block = append(block, body...)
	}
	// One blank line on each side, unless the neighbor is already blank
	// or a file edge.
	if at > 0 && strings.TrimSpace(lines[at-1]) != "" {
		block = append([]string{""}, block...)
	}
	if at < len(lines) && strings.TrimSpace(lines[at]) != "" {
		block = append(block, "")
	}

	var out []string
	out = append(out, lines[:at]...)
	out = append(out, block...)
	out = append(out, lines[at:]...)

	if err := e.writeAtomic(parent.SourceFile, out); err != nil {
		return failResult(err)
	}
	if err := e.ix.RefreshPaths([]string{parent.SourceFile}); err != nil {
		return failResult(err)
	}

	return &EditResult{
		Success:   true,
		SectionID: e.findChildID(parentID, title, position),
		Diff:      CompareSections("", strings.Join(block, "\n")),
	}
}

// insertionLine picks the 0-based line index the new block goes before.
func (e *Editor) insertionLine(parent *Section, position string) int {
	if position == "before" {
		for _, c := range parent.Children {
			child, ok := e.ix.GetSectionCopy(c)
			if ok && child.SourceFile == parent.SourceFile {
				return child.LineStart
			}
		}
	}
	return e.subtreeEnd(parent) + 1
}

// subtreeEnd returns the last line (inclusive) occupied by the section and
// its descendants within the section's own source file.
func (e *Editor) subtreeEnd(sec *Section) int {
	end := sec.LineEnd
	for _, c := range sec.Children {
		child, ok := e.ix.GetSectionCopy(c)
		if !ok || child.SourceFile != sec.SourceFile {
			continue
		}
		if ce := e.subtreeEnd(&child); ce > end {
			end = ce
		}
	}
	return end
}

// findChildID locates the freshly indexed child whose title matches, after
// the refresh has run. With duplicate titles the insertion position decides
// which match is ours: "before" placed the new section first, the other
// positions placed it last.
func (e *Editor) findChildID(parentID, title, position string) string {
	parent, ok := e.ix.GetSectionCopy(parentID)
	if !ok {
		return ""
	}
	var last string
	for _, c := range parent.Children {
		child, ok := e.ix.GetSectionCopy(c)
		if ok && child.Title == title {
			if position == "before" {
				return c
			}
			last = c
		}
	}
	return last
}

// checkHeading verifies the on-disk heading line still matches the indexed
// section. A mismatch means the file changed under us.
func checkHeading(lines []string, sec *Section) error {
	if sec.LineStart >= len(lines) {
		return Errf(KindStale, "file %s shrank below section %s", sec.SourceFile, sec.ID)
	}
	level, title, ok := matchHeading(annLine{text: lines[sec.LineStart], origin: sec.SourceFile})
	if !ok || level != sec.Level || title != sec.Title {
		return Errf(KindStale, "heading for %s no longer at line %d of %s",
			sec.ID, sec.LineStart, sec.SourceFile)
	}
	return nil
}

func headingMarker(d Dialect, level int) string {
	if d == DialectAsciiDoc {
		return strings.Repeat("=", level)
	}
	return strings.Repeat("#", level)
}

// bodyLines normalizes content into file lines: trailing newlines dropped,
// empty content contributes no lines.
func bodyLines(content string) []string {
	content = strings.TrimRight(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// readLines reads a project-relative file and splits it into lines without
// the trailing newline artifact.
func (e *Editor) readLines(rel string) ([]string, error) {
	data, err := os.ReadFile(e.ix.Abs(rel))
	if err != nil {
		return nil, Errf(KindIOError, "reading %s: %v", rel, err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}

// writeAtomic writes lines to a sibling temp file, syncs, and renames over
// the original. On any failure the original file is untouched.
func (e *Editor) writeAtomic(rel string, lines []string) error {
	path := e.ix.Abs(rel)

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}

	tmp := path + tempSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return Errf(KindIOError, "creating temp file for %s: %v", rel, err)
	}
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		f.Close()
		os.Remove(tmp)
		return Errf(KindIOError, "writing %s: %v", rel, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return Errf(KindIOError, "syncing %s: %v", rel, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return Errf(KindIOError, "closing %s: %v", rel, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Errf(KindIOError, "renaming over %s: %v", rel, err)
	}

	if e.OnWrite != nil {
		e.OnWrite(rel)
	}
	return nil
}
