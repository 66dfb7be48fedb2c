package core

import (
	"regexp"
	"strconv"
	"strings"
)

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify normalizes a heading title into an identifier segment: lowercase,
// non-alphanumeric runs collapsed to single dashes, edges trimmed. An empty
// result falls back to "section".
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = slugStripRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "section"
	}
	return s
}

// idBuilder assembles Sections from flat parser records across one or more
// documents. The nesting stack resets per document; the disambiguation
// table is shared so identical top-level titles in different root files
// still yield unique identifiers.
type idBuilder struct {
	sections map[string]*Section
	ordered  []string
	// used counts slug occurrences per parent scope ("" for top level).
	used map[string]map[string]int
}

func newIDBuilder() *idBuilder {
	return &idBuilder{
		sections: make(map[string]*Section),
		used:     make(map[string]map[string]int),
	}
}

// AddDocument folds one document's records into the section map. Records
// must be in source order; children order follows record order.
func (b *idBuilder) AddDocument(records []Record) {
	type frame struct {
		level int
		id    string
	}
	var stack []frame

	for _, rec := range records {
		for len(stack) > 0 && stack[len(stack)-1].level >= rec.Level {
			stack = stack[:len(stack)-1]
		}

		parentID := ""
		if len(stack) > 0 {
			parentID = stack[len(stack)-1].id
		}

		slug := Slugify(rec.Title)
		scope := b.used[parentID]
		if scope == nil {
			scope = make(map[string]int)
			b.used[parentID] = scope
		}
		// Candidate identifiers already taken in this scope get a numeric
		// suffix; the first duplicate becomes "-2".
		candidate := slug
		for n := 2; scope[candidate] > 0; n++ {
			candidate = slug + "-" + strconv.Itoa(n)
		}
		scope[candidate] = 1
		slug = candidate

		id := slug
		if parentID != "" {
			id = parentID + "." + slug
		}

		sec := &Section{
			ID:         id,
			Title:      rec.Title,
			Level:      rec.Level,
			Content:    rec.Content,
			SourceFile: rec.OriginFile,
			LineStart:  rec.HeadingLine,
			LineEnd:    rec.BodyEnd,
			ParentID:   parentID,
			Children:   []string{},
		}
		b.sections[id] = sec
		b.ordered = append(b.ordered, id)
		if parentID != "" {
			parent := b.sections[parentID]
			parent.Children = append(parent.Children, id)
		}

		stack = append(stack, frame{level: rec.Level, id: id})
	}
}
