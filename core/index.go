package core

import (
	"path/filepath"
	"sync"
)

// Index is the process-wide project index. All mutation happens under the
// exclusive lock; every reader takes the shared lock for the span of one
// operation and never caches sections across a refresh boundary.
type Index struct {
	mu     sync.RWMutex
	root   string
	parser *Parser
	disc   *Discoverer

	debugLog func(format string, args ...any)

	// Per-file and per-root parse caches, keyed by project-relative path.
	discovered     []string
	includeTargets map[string][]string
	fileWarnings   map[string][]Warning
	recordsByRoot  map[string][]Record
	includesByRoot map[string]map[string][]string
	warningsByRoot map[string][]Warning

	// Derived state, rebuilt wholesale after any parse.
	sections      map[string]*Section
	ordered       []string
	rootFiles     []string
	rootSpans     map[string][2]int // half-open index range into ordered
	includedFiles map[string]bool
	includeEdges  map[string][]string
}

// NewIndex creates an index rooted at the given directory. The debug logger
// may be nil. No parsing happens until Build is called.
func NewIndex(root string, debugLog func(format string, args ...any)) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, Errf(KindInvalidArgument, "resolving project root: %v", err)
	}
	if debugLog == nil {
		debugLog = func(string, ...any) {}
	}
	return &Index{
		root:     abs,
		parser:   NewParser(abs),
		disc:     NewDiscoverer(abs),
		debugLog: debugLog,
	}, nil
}

// Root returns the absolute project root directory.
func (ix *Index) Root() string {
	return ix.root
}

// Build discovers and parses the whole project from scratch.
func (ix *Index) Build() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.rebuild(nil, true)
}

// RefreshPaths re-indexes in response to a set of changed paths. Paths may
// be absolute or project-relative. Known roots and their include closures
// are re-parsed; unknown paths force a full re-discovery. Applying the same
// notification twice is a no-op the second time.
func (ix *Index) RefreshPaths(paths []string) error {
	changed := make(map[string]bool, len(paths))
	for _, p := range paths {
		changed[ix.Rel(p)] = true
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.rebuild(changed, false)
}

// Rel converts a possibly-absolute path to the project-relative slash form
// used as index keys.
func (ix *Index) Rel(path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(ix.root, path); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// Abs converts a project-relative path back to an absolute one.
func (ix *Index) Abs(rel string) string {
	return filepath.Join(ix.root, filepath.FromSlash(rel))
}

// rebuild runs discovery, root classification, and the parse passes, reusing
// cached per-root results where the change set allows. Callers hold the
// exclusive lock.
func (ix *Index) rebuild(changed map[string]bool, full bool) error {
	discovered, err := ix.disc.Discover()
	if err != nil {
		return err
	}

	if ix.includeTargets == nil {
		full = true
	}
	if !full {
		// A changed path the index has never seen means discovery state
		// shifted in ways the caches cannot describe.
		known := make(map[string]bool, len(ix.includeTargets))
		for f := range ix.includeTargets {
			known[f] = true
		}
		for p := range changed {
			if !known[p] {
				full = true
				break
			}
		}
	}

	// Pass one: collect include targets per discovered file.
	targets := make(map[string][]string, len(discovered))
	fileWarnings := make(map[string][]Warning)
	kept := discovered[:0]
	for _, f := range discovered {
		if !full && !changed[f] {
			if cached, ok := ix.includeTargets[f]; ok {
				targets[f] = cached
				kept = append(kept, f)
				continue
			}
		}
		res, err := ix.parser.ParseFile(f, false)
		if err != nil {
			ix.debugLog("pass-1 parse failed for %s: %v", f, err)
			fileWarnings[f] = []Warning{{
				Kind: KindParseError, File: f, Message: err.Error(),
			}}
			continue
		}
		targets[f] = res.Includes[f]
		kept = append(kept, f)
	}
	discovered = kept

	// Classification: a discovered file is a root iff nothing includes it.
	included := make(map[string]bool)
	for _, f := range discovered {
		for _, t := range targets[f] {
			included[t] = true
		}
	}
	var roots []string
	for _, f := range discovered {
		if !included[f] {
			roots = append(roots, f)
		}
	}

	// Mutually-including files would otherwise vanish from the index
	// entirely; promote the first unreachable file of each cycle to a root
	// so its group still gets parsed (and its cycle warning recorded).
	reach := make(map[string]bool)
	for _, r := range roots {
		ix.addReachable(r, targets, reach)
	}
	for _, f := range discovered {
		if included[f] && !reach[f] {
			roots = append(roots, f)
			delete(included, f)
			ix.addReachable(f, targets, reach)
		}
	}

	// Pass two: full parse per root, reusing cached results when neither
	// the root nor anything in its previous include closure changed.
	records := make(map[string][]Record, len(roots))
	includes := make(map[string]map[string][]string, len(roots))
	warnings := make(map[string][]Warning, len(roots))
	for _, r := range roots {
		if !full && !ix.rootNeedsParse(r, changed) {
			records[r] = ix.recordsByRoot[r]
			includes[r] = ix.includesByRoot[r]
			warnings[r] = ix.warningsByRoot[r]
			continue
		}
		res, err := ix.parser.ParseFile(r, true)
		if err != nil {
			ix.debugLog("parse failed for root %s: %v", r, err)
			warnings[r] = []Warning{{
				Kind: KindParseError, File: r, Message: err.Error(),
			}}
			records[r] = nil
			includes[r] = nil
			continue
		}
		records[r] = res.Records
		includes[r] = res.Includes
		warnings[r] = res.Warnings
	}

	ix.discovered = discovered
	ix.includeTargets = targets
	ix.fileWarnings = fileWarnings
	ix.rootFiles = roots
	ix.recordsByRoot = records
	ix.includesByRoot = includes
	ix.warningsByRoot = warnings
	ix.includedFiles = included
	ix.rebuildDerived()

	ix.debugLog("index rebuilt: %d roots, %d sections, %d included files",
		len(roots), len(ix.sections), len(included))
	return nil
}

// rootNeedsParse reports whether any changed path touches the root itself,
// its previous include closure, or a previously unresolvable include target.
func (ix *Index) rootNeedsParse(root string, changed map[string]bool) bool {
	if _, ok := ix.recordsByRoot[root]; !ok {
		return true
	}
	if changed[root] {
		return true
	}
	closure := make(map[string]bool)
	ix.addReachable(root, flattenEdges(ix.includesByRoot[root]), closure)
	for p := range changed {
		if closure[p] {
			return true
		}
	}
	for _, w := range ix.warningsByRoot[root] {
		if w.Target != "" && changed[w.Target] {
			return true
		}
	}
	return false
}

func flattenEdges(edges map[string][]string) map[string][]string {
	if edges == nil {
		return map[string][]string{}
	}
	return edges
}

// addReachable walks include edges transitively from start, marking every
// visited path in seen.
func (ix *Index) addReachable(start string, edges map[string][]string, seen map[string]bool) {
	for _, t := range edges[start] {
		if !seen[t] {
			seen[t] = true
			ix.addReachable(t, edges, seen)
		}
	}
}

// rebuildDerived reconstructs the section map, ordering, and include edges
// from the per-root caches. Cheap relative to parsing; rebuilding wholesale
// keeps identifier assignment deterministic across refreshes.
func (ix *Index) rebuildDerived() {
	b := newIDBuilder()
	spans := make(map[string][2]int, len(ix.rootFiles))
	for _, r := range ix.rootFiles {
		start := len(b.ordered)
		b.AddDocument(ix.recordsByRoot[r])
		spans[r] = [2]int{start, len(b.ordered)}
	}
	ix.sections = b.sections
	ix.ordered = b.ordered
	ix.rootSpans = spans

	edges := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	add := func(includer, target string) {
		if seen[includer] == nil {
			seen[includer] = make(map[string]bool)
		}
		if !seen[includer][target] {
			seen[includer][target] = true
			edges[includer] = append(edges[includer], target)
		}
	}
	for _, r := range ix.rootFiles {
		for includer, ts := range ix.includesByRoot[r] {
			for _, t := range ts {
				add(includer, t)
			}
		}
	}
	for _, f := range ix.discovered {
		for _, t := range ix.includeTargets[f] {
			add(f, t)
		}
	}
	ix.includeEdges = edges
}

// allWarnings concatenates parse warnings in deterministic order. Callers
// hold at least the shared lock.
func (ix *Index) allWarnings() []Warning {
	var out []Warning
	for _, r := range ix.rootFiles {
		out = append(out, ix.warningsByRoot[r]...)
	}
	for _, f := range ix.discovered {
		out = append(out, ix.fileWarnings[f]...)
	}
	return out
}

// GetSectionCopy returns a value copy of a section for use outside the
// lock. The Children slice is copied as well.
func (ix *Index) GetSectionCopy(id string) (Section, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	sec, ok := ix.sections[id]
	if !ok {
		return Section{}, false
	}
	cp := *sec
	cp.Children = append([]string(nil), sec.Children...)
	return cp, true
}

// SectionCount returns the number of indexed sections.
func (ix *Index) SectionCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.sections)
}
