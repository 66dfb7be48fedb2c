package core

import (
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff record operations.
const (
	DiffEqual   = "equal"
	DiffRemoved = "removed"
	DiffAdded   = "added"
	DiffChanged = "changed"
)

// DiffRecord is one line-aligned entry of a section diff. OldText and
// NewText may span multiple physical lines when a blank-line run changed
// size. Line numbers are 1-based; zero means not applicable for that side.
type DiffRecord struct {
	Op      string `json:"op"`
	OldText string `json:"old_text,omitempty"`
	NewText string `json:"new_text,omitempty"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

// DiffResult is the full change report between two versions of a section
// body.
type DiffResult struct {
	Records    []DiffRecord `json:"records"`
	Added      int          `json:"added_lines"`
	Removed    int          `json:"removed_lines"`
	Changed    int          `json:"changed_lines"`
	HasChanges bool         `json:"has_changes"`
}

// chunk is one comparison unit: a single non-blank line, or a whole run of
// consecutive blank lines. Runs carry their length in the comparison key so
// a three-blank run against a one-blank run is a single changed record.
type chunk struct {
	key   string
	text  string
	line  int // 1-based first line
	lines int
}

// CompareSections produces the line-aligned diff between two versions of a
// section body. Lines compare byte-exact after trailing whitespace and line
// terminator normalization.
func CompareSections(oldText, newText string) *DiffResult {
	a := chunks(oldText)
	b := chunks(newText)

	keysA := make([]string, len(a))
	for i, c := range a {
		keysA[i] = c.key
	}
	keysB := make([]string, len(b))
	for i, c := range b {
		keysB[i] = c.key
	}

	res := &DiffResult{Records: []DiffRecord{}}
	m := difflib.NewMatcher(keysA, keysB)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for k := 0; op.I1+k < op.I2; k++ {
				ca, cb := a[op.I1+k], b[op.J1+k]
				res.Records = append(res.Records, DiffRecord{
					Op: DiffEqual, OldText: ca.text, NewText: cb.text,
					OldLine: ca.line, NewLine: cb.line,
				})
			}
		case 'd':
			for _, c := range a[op.I1:op.I2] {
				res.Records = append(res.Records, DiffRecord{
					Op: DiffRemoved, OldText: c.text, OldLine: c.line,
				})
				res.Removed += c.lines
			}
		case 'i':
			for _, c := range b[op.J1:op.J2] {
				res.Records = append(res.Records, DiffRecord{
					Op: DiffAdded, NewText: c.text, NewLine: c.line,
				})
				res.Added += c.lines
			}
		case 'r':
			// Pair replaced chunks positionally; the longer side's tail
			// degrades to plain removals or additions.
			na, nb := op.I2-op.I1, op.J2-op.J1
			k := 0
			for ; k < na && k < nb; k++ {
				ca, cb := a[op.I1+k], b[op.J1+k]
				res.Records = append(res.Records, DiffRecord{
					Op: DiffChanged, OldText: ca.text, NewText: cb.text,
					OldLine: ca.line, NewLine: cb.line,
				})
				res.Changed++
			}
			for ; k < na; k++ {
				c := a[op.I1+k]
				res.Records = append(res.Records, DiffRecord{
					Op: DiffRemoved, OldText: c.text, OldLine: c.line,
				})
				res.Removed += c.lines
			}
			for ; k < nb; k++ {
				c := b[op.J1+k]
				res.Records = append(res.Records, DiffRecord{
					Op: DiffAdded, NewText: c.text, NewLine: c.line,
				})
				res.Added += c.lines
			}
		}
	}

	res.HasChanges = res.Added > 0 || res.Removed > 0 || res.Changed > 0
	return res
}

// chunks splits text into comparison units. Blank-line runs collapse into
// one chunk keyed by their length; non-blank lines chunk individually,
// keyed by their trailing-whitespace-normalized form.
func chunks(text string) []chunk {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var out []chunk
	i := 0
	for i < len(lines) {
		norm := strings.TrimRight(lines[i], " \t")
		if norm == "" {
			j := i
			for j < len(lines) && strings.TrimRight(lines[j], " \t") == "" {
				j++
			}
			out = append(out, chunk{
				key:   "\x00blank:" + strconv.Itoa(j-i),
				text:  strings.Join(lines[i:j], "\n"),
				line:  i + 1,
				lines: j - i,
			})
			i = j
			continue
		}
		out = append(out, chunk{key: norm, text: lines[i], line: i + 1, lines: 1})
		i++
	}
	return out
}
