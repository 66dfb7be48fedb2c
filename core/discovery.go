package core

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// markupExts maps recognized extensions (lowercase) to their dialect.
var markupExts = map[string]Dialect{
	".adoc":     DialectAsciiDoc,
	".ad":       DialectAsciiDoc,
	".asciidoc": DialectAsciiDoc,
	".md":       DialectMarkdown,
	".markdown": DialectMarkdown,
}

// excludedDirNames are skipped during traversal in addition to any
// dot-prefixed directory.
var excludedDirNames = map[string]bool{
	".git":         true,
	".venv":        true,
	"venv":         true,
	"node_modules": true,
}

// DialectOf returns the markup dialect for a path based on its extension.
func DialectOf(path string) Dialect {
	return markupExts[strings.ToLower(filepath.Ext(path))]
}

// IsMarkupFile reports whether the path carries a recognized markup
// extension (case-insensitive).
func IsMarkupFile(path string) bool {
	return DialectOf(path) != DialectUnknown
}

// Discoverer enumerates markup files under a project root. Files matching
// any exclude pattern are skipped; the default pattern set hides partials
// whose name begins with an underscore.
type Discoverer struct {
	Root            string
	ExcludePatterns []string
}

// NewDiscoverer creates a discoverer with the default exclusions.
func NewDiscoverer(root string) *Discoverer {
	return &Discoverer{
		Root:            root,
		ExcludePatterns: []string{"_*"},
	}
}

// Discover walks the root and returns sorted project-relative paths of all
// discoverable markup files. Unreadable directories are skipped silently.
func (d *Discoverer) Discover() ([]string, error) {
	if info, err := os.Stat(d.Root); err != nil {
		return nil, Errf(KindIOError, "cannot access project root %s: %v", d.Root, err)
	} else if !info.IsDir() {
		return nil, Errf(KindInvalidArgument, "project root %s is not a directory", d.Root)
	}

	var files []string
	d.scanDir(d.Root, &files)
	sort.Strings(files)
	return files, nil
}

func (d *Discoverer) scanDir(dir string, files *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)

		if entry.IsDir() {
			if excludedDirNames[name] || strings.HasPrefix(name, ".") {
				continue
			}
			d.scanDir(full, files)
			continue
		}
		if !IsMarkupFile(name) {
			continue
		}
		rel, err := filepath.Rel(d.Root, full)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if d.isExcluded(rel) {
			continue
		}
		*files = append(*files, rel)
	}
}

// isExcluded matches the relative path against the exclude globs, falling
// back to basename matching for patterns without a path separator.
func (d *Discoverer) isExcluded(rel string) bool {
	base := filepath.Base(rel)
	for _, pattern := range d.ExcludePatterns {
		if matched, err := doublestar.PathMatch(pattern, rel); err == nil && matched {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if matched, err := doublestar.PathMatch(pattern, base); err == nil && matched {
				return true
			}
		}
	}
	return false
}
