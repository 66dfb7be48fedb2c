package core

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func TestParseFile_MarkdownHeadings(t *testing.T) {
	root := writeProject(t, map[string]string{
		"doc.md": "preamble text\n\n# Intro\n\nBody.\n\n## Overview ##\n\nDetails here.\n",
	})
	p := NewParser(root)

	res, err := p.ParseFile("doc.md", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}

	intro := res.Records[0]
	if intro.Level != 1 || intro.Title != "Intro" {
		t.Errorf("record 0 = level %d title %q", intro.Level, intro.Title)
	}
	if intro.HeadingLine != 2 {
		t.Errorf("Intro heading line = %d, want 2", intro.HeadingLine)
	}
	if intro.Content != "Body." {
		t.Errorf("Intro content = %q", intro.Content)
	}

	// Trailing hashes are decoration, not part of the title.
	over := res.Records[1]
	if over.Level != 2 || over.Title != "Overview" {
		t.Errorf("record 1 = level %d title %q", over.Level, over.Title)
	}
	if over.Content != "Details here." {
		t.Errorf("Overview content = %q", over.Content)
	}
}

func TestParseFile_AsciiDocHeadings(t *testing.T) {
	root := writeProject(t, map[string]string{
		"doc.adoc": "= Top\n\ntext\n\n====== Deep\n\nmore\n\n======= NotAHeading\n",
	})
	p := NewParser(root)

	res, err := p.ParseFile("doc.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
	if res.Records[0].Level != 1 || res.Records[0].Title != "Top" {
		t.Errorf("record 0 = %+v", res.Records[0])
	}
	if res.Records[1].Level != 6 || res.Records[1].Title != "Deep" {
		t.Errorf("record 1 = %+v", res.Records[1])
	}
	// The seven-equals line stays inside Deep's content.
	if res.Records[1].Content != "more\n\n======= NotAHeading" {
		t.Errorf("Deep content = %q", res.Records[1].Content)
	}
}

func TestParseFile_ContentTrimsOneBlankEachSide(t *testing.T) {
	root := writeProject(t, map[string]string{
		"doc.md": "# A\n\n\nline\n\n\n# B\n",
	})
	p := NewParser(root)

	res, err := p.ParseFile("doc.md", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	// One blank trimmed per side; the inner extra blanks survive.
	if res.Records[0].Content != "\nline\n" {
		t.Errorf("content = %q, want %q", res.Records[0].Content, "\nline\n")
	}
}

func TestParseFile_FencedHeadingsIgnored(t *testing.T) {
	cases := []struct {
		name string
		file string
		text string
	}{
		{
			name: "markdown backticks",
			file: "doc.md",
			text: "# Real\n\n```\n# not a heading\n```\n\ntail\n",
		},
		{
			name: "asciidoc listing block",
			file: "doc.adoc",
			text: "= Real\n\n----\n== not a heading\n----\n\ntail\n",
		},
		{
			name: "asciidoc literal block",
			file: "doc.adoc",
			text: "= Real\n\n....\n== not a heading\n....\n\ntail\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := writeProject(t, map[string]string{tc.file: tc.text})
			res, err := NewParser(root).ParseFile(tc.file, true)
			if err != nil {
				t.Fatalf("ParseFile: %v", err)
			}
			if len(res.Records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(res.Records))
			}
			if res.Records[0].Title != "Real" {
				t.Errorf("title = %q", res.Records[0].Title)
			}
		})
	}
}

func TestParseFile_AsciiDocFenceCloserMatchesLength(t *testing.T) {
	// A five-dash line does not close a four-dash block.
	root := writeProject(t, map[string]string{
		"doc.adoc": "= Top\n\n----\n== hidden\n-----\nstill inside\n----\n\nafter\n",
	})
	res, err := NewParser(root).ParseFile("doc.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
}

func TestParseFile_IncludeResolution(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.adoc":  "= Main\n\ninclude::_chap.adoc[]\n",
		"_chap.adoc": "== Chap\n\ntext\n",
	})
	p := NewParser(root)

	res, err := p.ParseFile("main.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}

	chap := res.Records[1]
	if chap.Title != "Chap" || chap.Level != 2 {
		t.Errorf("chap record = %+v", chap)
	}
	if chap.OriginFile != "_chap.adoc" {
		t.Errorf("chap origin = %q, want _chap.adoc", chap.OriginFile)
	}
	if chap.HeadingLine != 0 {
		t.Errorf("chap heading line = %d, want 0 (within origin)", chap.HeadingLine)
	}
	if chap.Content != "text" {
		t.Errorf("chap content = %q", chap.Content)
	}

	got := res.Includes["main.adoc"]
	if len(got) != 1 || got[0] != "_chap.adoc" {
		t.Errorf("includes = %v", res.Includes)
	}
}

func TestParseFile_IncludeContentStaysFlush(t *testing.T) {
	// Both the includer and the includees end with a newline; the splice
	// must not turn those terminators into trailing blank lines.
	root := writeProject(t, map[string]string{
		"main.adoc": "= Main\n\ninclude::_a.adoc[]\ninclude::_b.adoc[]\n",
		"_a.adoc":   "== A\n\nalpha\n",
		"_b.adoc":   "== B\n\nbeta\n",
	})
	res, err := NewParser(root).ParseFile("main.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}
	if res.Records[1].Content != "alpha" {
		t.Errorf("A content = %q, want %q", res.Records[1].Content, "alpha")
	}
	if res.Records[2].Content != "beta" {
		t.Errorf("B content = %q, want %q", res.Records[2].Content, "beta")
	}
}

func TestParseFile_NoTrailingNewline(t *testing.T) {
	root := writeProject(t, map[string]string{
		"doc.md": "# A\n\nlast line",
	})
	res, err := NewParser(root).ParseFile("doc.md", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if res.Records[0].Content != "last line" {
		t.Errorf("content = %q", res.Records[0].Content)
	}
}

func TestParseFile_IncludeRelativeToIncluder(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.adoc":        "= Main\n\ninclude::sub/part.adoc[]\n",
		"sub/part.adoc":    "== Part\n\ninclude::deeper.adoc[]\n",
		"sub/deeper.adoc":  "=== Deeper\n\nend\n",
	})
	res, err := NewParser(root).ParseFile("main.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}
	if res.Records[2].OriginFile != "sub/deeper.adoc" {
		t.Errorf("origin = %q", res.Records[2].OriginFile)
	}
	if got := res.Includes["sub/part.adoc"]; len(got) != 1 || got[0] != "sub/deeper.adoc" {
		t.Errorf("includes from sub/part.adoc = %v", got)
	}
}

func TestParseFile_IncludeCycle(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.adoc": "= A\n\ninclude::b.adoc[]\n",
		"b.adoc": "== B\n\ninclude::a.adoc[]\n",
	})
	res, err := NewParser(root).ParseFile("a.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	// Both headings survive; the back edge is skipped with a warning.
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
	var cycle *Warning
	for i := range res.Warnings {
		if res.Warnings[i].Kind == WarnCycle {
			cycle = &res.Warnings[i]
		}
	}
	if cycle == nil {
		t.Fatal("expected a cycle warning")
	}
	if cycle.File != "b.adoc" || cycle.Target != "a.adoc" {
		t.Errorf("cycle warning = %+v", cycle)
	}
}

func TestParseFile_SelfInclude(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.adoc": "= A\n\ninclude::a.adoc[]\n",
	})
	res, err := NewParser(root).ParseFile("a.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != WarnCycle {
		t.Errorf("warnings = %+v", res.Warnings)
	}
}

func TestParseFile_IncludeDepthLimit(t *testing.T) {
	files := map[string]string{
		"d0.adoc": "= D0\n\ninclude::d1.adoc[]\n",
		"d1.adoc": "== D1\n\ninclude::d2.adoc[]\n",
		"d2.adoc": "=== D2\n\ninclude::d3.adoc[]\n",
		"d3.adoc": "==== D3\n\ninclude::d4.adoc[]\n",
		"d4.adoc": "===== D4\n\ninclude::d5.adoc[]\n",
		"d5.adoc": "====== D5\n\nnever reached\n",
	}
	root := writeProject(t, files)
	res, err := NewParser(root).ParseFile("d0.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	// Four levels of nesting succeed; the fifth is cut off.
	if len(res.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(res.Records))
	}
	for _, rec := range res.Records {
		if rec.Title == "D5" {
			t.Error("depth-5 include should not have been expanded")
		}
	}
	var depthWarn bool
	for _, w := range res.Warnings {
		if w.Kind == WarnDepthExceeded && w.Target == "d5.adoc" {
			depthWarn = true
		}
	}
	if !depthWarn {
		t.Errorf("expected depth_exceeded warning, got %+v", res.Warnings)
	}
}

func TestParseFile_MissingInclude(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.adoc": "= Main\ninclude::gone.adoc[]\nrest\n",
	})
	res, err := NewParser(root).ParseFile("main.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != WarnMissingInclude {
		t.Fatalf("warnings = %+v", res.Warnings)
	}
	// The directive line vanishes; surrounding content stays.
	if res.Records[0].Content != "rest" {
		t.Errorf("content = %q", res.Records[0].Content)
	}
	// The target is still recorded for classification.
	if got := res.Includes["main.adoc"]; len(got) != 1 || got[0] != "gone.adoc" {
		t.Errorf("includes = %v", res.Includes)
	}
}

func TestParseFile_MarkdownIncludeIsLiteral(t *testing.T) {
	root := writeProject(t, map[string]string{
		"doc.md":     "# Doc\n\ninclude::_chap.adoc[]\n",
		"_chap.adoc": "== Chap\n",
	})
	res, err := NewParser(root).ParseFile("doc.md", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if res.Records[0].Content != "include::_chap.adoc[]" {
		t.Errorf("content = %q", res.Records[0].Content)
	}
	if len(res.Includes) != 0 {
		t.Errorf("markdown must not resolve includes: %v", res.Includes)
	}
}

func TestParseFile_IncludeInsideFenceIsLiteral(t *testing.T) {
	root := writeProject(t, map[string]string{
		"doc.adoc":   "= Doc\n\n----\ninclude::_chap.adoc[]\n----\n",
		"_chap.adoc": "== Chap\n",
	})
	res, err := NewParser(root).ParseFile("doc.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if len(res.Includes) != 0 {
		t.Errorf("fenced include must stay literal: %v", res.Includes)
	}
}

func TestParseFile_NestedIncludeOrder(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.adoc": "= Main\n\ninclude::_a.adoc[]\ninclude::_b.adoc[]\n",
		"_a.adoc":   "== A\n\ninclude::_a1.adoc[]\n",
		"_a1.adoc":  "=== A1\n",
		"_b.adoc":   "== B\n",
	})
	res, err := NewParser(root).ParseFile("main.adoc", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	// Depth-first, left to right: the nested include finishes before the
	// next sibling directive runs.
	want := []string{"Main", "A", "A1", "B"}
	if len(res.Records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(res.Records))
	}
	for i, title := range want {
		if res.Records[i].Title != title {
			t.Errorf("record %d = %q, want %q", i, res.Records[i].Title, title)
		}
	}
}

func TestParseFile_NoHeadings(t *testing.T) {
	root := writeProject(t, map[string]string{
		"notes.md": "just prose\n\nno headings anywhere\n",
	})
	res, err := NewParser(root).ParseFile("notes.md", true)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("expected no records, got %d", len(res.Records))
	}
}

func TestParseFile_NotFound(t *testing.T) {
	root := t.TempDir()
	_, err := NewParser(root).ParseFile("missing.md", true)
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("kind = %q, want %q", KindOf(err), KindNotFound)
	}
}

func TestParseFile_NoExpandStillCollectsIncludes(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.adoc":  "= Main\n\ninclude::_chap.adoc[]\n",
		"_chap.adoc": "== Chap\n",
	})
	res, err := NewParser(root).ParseFile("main.adoc", false)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record without expansion, got %d", len(res.Records))
	}
	if got := res.Includes["main.adoc"]; len(got) != 1 || got[0] != "_chap.adoc" {
		t.Errorf("includes = %v", res.Includes)
	}
}
