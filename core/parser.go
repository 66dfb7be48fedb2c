package core

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultMaxIncludeDepth caps include nesting. The root file sits at depth
// zero, so a chain of four includes succeeds and the fifth is skipped.
const DefaultMaxIncludeDepth = 4

var (
	mdHeadingRe   = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	adocHeadingRe = regexp.MustCompile(`^(=+)\s+(.+?)\s*$`)
	includeRe     = regexp.MustCompile(`^include::(.+?)\[.*?\]\s*$`)
)

// Parser extracts flat heading records from markup files, expanding AsciiDoc
// include directives inline while preserving per-line origin attribution.
// A Parser is reentrant and holds no state between ParseFile calls.
type Parser struct {
	root            string
	MaxIncludeDepth int
}

// ParseResult carries everything one ParseFile call discovered.
type ParseResult struct {
	Records  []Record
	Includes map[string][]string // includer -> ordered includee paths
	Warnings []Warning
}

// NewParser creates a parser rooted at the given project directory. All
// paths in results are project-relative with forward slashes.
func NewParser(root string) *Parser {
	return &Parser{root: root, MaxIncludeDepth: DefaultMaxIncludeDepth}
}

// annLine is one line of expanded text annotated with its physical origin.
type annLine struct {
	text   string
	origin string
	line   int // 0-based within origin
	fenced bool
}

// ParseFile parses a single project-relative file. With expand set, AsciiDoc
// include directives are resolved recursively; either way every include
// target is recorded in Includes. A read failure on the file itself is an
// error; failures on include targets degrade to warnings.
func (p *Parser) ParseFile(relPath string, expand bool) (*ParseResult, error) {
	res := &ParseResult{Includes: make(map[string][]string)}
	rel := filepath.ToSlash(filepath.Clean(relPath))

	lines, err := p.expand(rel, 0, []string{}, res, expand)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Errf(KindNotFound, "file not found: %s", rel)
		}
		return nil, Errf(KindParseError, "reading %s: %v", rel, err)
	}

	res.Records = scanRecords(lines)
	return res, nil
}

// expand reads relPath and returns its annotated lines, splicing in include
// targets when expanding. The stack holds currently-open files for cycle
// detection; depth counts include nesting below the root file.
func (p *Parser) expand(relPath string, depth int, stack []string, res *ParseResult, expandIncludes bool) ([]annLine, error) {
	data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}

	stack = append(stack, relPath)
	dialect := DialectOf(relPath)
	raw := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	// A final newline terminates the last line; it is not an extra empty
	// line. Left in place it would surface as a spurious blank wherever an
	// includee is spliced into its includer.
	if n := len(raw); n > 0 && raw[n-1] == "" {
		raw = raw[:n-1]
	}

	var out []annLine
	var fence fenceState
	for i, text := range raw {
		delimiter := fence.update(dialect, text)
		fenced := delimiter || fence.active

		// Include directives are AsciiDoc-only and inert inside fences.
		if dialect == DialectAsciiDoc && !fenced {
			if m := includeRe.FindStringSubmatch(text); m != nil {
				target := filepath.ToSlash(filepath.Clean(
					filepath.Join(filepath.Dir(relPath), filepath.FromSlash(m[1]))))
				res.Includes[relPath] = append(res.Includes[relPath], target)

				if !expandIncludes {
					continue
				}
				if onStack(stack, target) {
					res.Warnings = append(res.Warnings, Warning{
						Kind: WarnCycle, File: relPath, Line: i, Target: target,
						Message: "include cycle detected, directive skipped",
					})
					continue
				}
				if depth+1 > p.MaxIncludeDepth {
					res.Warnings = append(res.Warnings, Warning{
						Kind: WarnDepthExceeded, File: relPath, Line: i, Target: target,
						Message: "include nesting depth exceeded, directive skipped",
					})
					continue
				}
				sub, err := p.expand(target, depth+1, stack, res, true)
				if err != nil {
					kind := WarnIncludeReadError
					if errors.Is(err, fs.ErrNotExist) {
						kind = WarnMissingInclude
					}
					res.Warnings = append(res.Warnings, Warning{
						Kind: kind, File: relPath, Line: i, Target: target,
						Message: err.Error(),
					})
					continue
				}
				out = append(out, sub...)
				continue
			}
		}

		out = append(out, annLine{text: text, origin: relPath, line: i, fenced: fenced})
	}
	return out, nil
}

func onStack(stack []string, path string) bool {
	for _, s := range stack {
		if s == path {
			return true
		}
	}
	return false
}

// scanRecords walks annotated lines and cuts them into heading records.
// Text before the first heading is preamble and contributes no record.
func scanRecords(lines []annLine) []Record {
	var records []Record
	var open *Record
	var body []annLine

	flush := func() {
		if open != nil {
			closeRecord(open, body)
			records = append(records, *open)
		}
		open = nil
		body = nil
	}

	for _, l := range lines {
		if l.fenced {
			if open != nil {
				body = append(body, l)
			}
			continue
		}
		if level, title, ok := matchHeading(l); ok {
			flush()
			open = &Record{
				Level:       level,
				Title:       title,
				OriginFile:  l.origin,
				HeadingLine: l.line,
				BodyStart:   l.line + 1,
				BodyEnd:     l.line,
			}
			continue
		}
		if open != nil {
			body = append(body, l)
		}
	}
	flush()
	return records
}

func matchHeading(l annLine) (int, string, bool) {
	switch DialectOf(l.origin) {
	case DialectMarkdown:
		if m := mdHeadingRe.FindStringSubmatch(l.text); m != nil {
			return len(m[1]), m[2], true
		}
	case DialectAsciiDoc:
		if m := adocHeadingRe.FindStringSubmatch(l.text); m != nil && len(m[1]) <= 6 {
			return len(m[1]), m[2], true
		}
	}
	return 0, "", false
}

// closeRecord trims the body window and fixes the record's content and line
// extent. At most one leading and one trailing blank line are dropped; inner
// blank lines and fence contents stay verbatim.
func closeRecord(rec *Record, body []annLine) {
	if len(body) > 0 && strings.TrimSpace(body[0].text) == "" {
		body = body[1:]
	}
	if len(body) > 0 && strings.TrimSpace(body[len(body)-1].text) == "" {
		body = body[:len(body)-1]
	}

	texts := make([]string, len(body))
	rec.BodyEnd = rec.HeadingLine
	for i, l := range body {
		texts[i] = l.text
		if l.origin == rec.OriginFile {
			rec.BodyEnd = l.line
		}
	}
	rec.Content = strings.Join(texts, "\n")
}

// fenceState tracks one file's open fenced block, if any. Delimiters must
// match the opening run's character; AsciiDoc closers also match its length,
// Markdown closers may be longer.
type fenceState struct {
	active bool
	char   byte
	length int
}

func (f *fenceState) update(dialect Dialect, line string) bool {
	t := strings.TrimRight(line, " \t")
	switch dialect {
	case DialectMarkdown:
		n := runLen(t, '`')
		if n < 3 {
			return false
		}
		if !f.active {
			f.active, f.char, f.length = true, '`', n
			return true
		}
		if f.char == '`' && n >= f.length && len(t) == n {
			f.active = false
			return true
		}
	case DialectAsciiDoc:
		for _, c := range []byte{'-', '.'} {
			n := runLen(t, c)
			if n >= 4 && len(t) == n {
				if !f.active {
					f.active, f.char, f.length = true, c, n
					return true
				}
				if f.char == c && f.length == n {
					f.active = false
					return true
				}
			}
		}
	}
	return false
}

func runLen(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}
