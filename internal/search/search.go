// Package search answers filtered and free-text queries over the content
// store's snapshot without re-reading entity files.
package search

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/store"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

// Store is the content-store surface the search service reads from.
type Store interface {
	Tasks() []*types.Task
	Documents() []*types.Document
	Decisions() []*types.Decision
	Config() *config.Config
	Subscribe(store.Handler) func()
}

// Service maintains a query index over the content store, rebuilt on
// every change notification. Safe for concurrent use.
type Service struct {
	st     Store
	logger *log.Logger
	idx    atomic.Pointer[index]
	unsub  func()
}

// index is an immutable view built from one store snapshot.
type index struct {
	tasks     []*types.Task
	documents []*types.Document
	decisions []*types.Decision
}

// New builds a search service over st and subscribes it to change
// notifications so queries always see the latest coalesced state.
func New(st Store) *Service {
	s := &Service{
		st:     st,
		logger: log.WithPrefix("search"),
	}
	s.rebuild()
	s.unsub = st.Subscribe(func(ev store.Event) {
		switch ev.Type {
		case store.ChangeReady, store.ChangeTask, store.ChangeDocument, store.ChangeDecision:
			s.rebuild()
		}
	})
	return s
}

// Close detaches the service from the store's notification feed.
func (s *Service) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

func (s *Service) rebuild() {
	s.idx.Store(&index{
		tasks:     s.st.Tasks(),
		documents: s.st.Documents(),
		decisions: s.st.Decisions(),
	})
}

// Request describes one search query. Zero values mean "unrestricted".
type Request struct {
	Query   string             `json:"query,omitempty"`
	Limit   int                `json:"limit,omitempty"`
	Types   []types.EntityKind `json:"types,omitempty"`
	Filters Filters            `json:"filters,omitempty"`
}

// Filters narrow results per dimension. A result must match every
// provided dimension, and any value within a dimension.
type Filters struct {
	Status    OneOrMany `json:"status,omitempty"`
	Priority  OneOrMany `json:"priority,omitempty"`
	Labels    OneOrMany `json:"labels,omitempty"`
	Milestone OneOrMany `json:"milestone,omitempty"`
}

func (f Filters) empty() bool {
	return len(f.Status) == 0 && len(f.Priority) == 0 && len(f.Labels) == 0 && len(f.Milestone) == 0
}

// taskOnly reports whether any task-specific dimension is set, which
// implicitly excludes kinds that lack those fields.
func (f Filters) taskOnly() bool {
	return !f.empty()
}

// Result is one typed search hit. Exactly one entity pointer is set,
// matching Kind.
type Result struct {
	Kind     types.EntityKind `json:"kind"`
	Task     *types.Task      `json:"task,omitempty"`
	Document *types.Document  `json:"document,omitempty"`
	Decision *types.Decision  `json:"decision,omitempty"`
	Score    int              `json:"score"`
}

// ID returns the hit entity's identifier.
func (r Result) ID() string {
	switch r.Kind {
	case types.KindTask:
		return r.Task.ID
	case types.KindDocument:
		return r.Document.ID
	case types.KindDecision:
		return r.Decision.ID
	}
	return ""
}

// Title returns the hit entity's title.
func (r Result) Title() string {
	switch r.Kind {
	case types.KindTask:
		return r.Task.Title
	case types.KindDocument:
		return r.Document.Title
	case types.KindDecision:
		return r.Decision.Title
	}
	return ""
}

func (r Result) body() string {
	switch r.Kind {
	case types.KindTask:
		return r.Task.Body
	case types.KindDocument:
		return r.Document.Body
	case types.KindDecision:
		return r.Decision.Body
	}
	return ""
}

func (r Result) updatedAt() time.Time {
	switch r.Kind {
	case types.KindTask:
		return r.Task.UpdatedAt()
	case types.KindDocument:
		return r.Document.UpdatedAt()
	case types.KindDecision:
		return r.Decision.UpdatedAt()
	}
	return time.Time{}
}

// candidate pairs a result with internal ranking state.
type candidate struct {
	Result
	titleHit bool
}

// Search runs one query against the current index. Matching entities
// are ranked exact-ID first, then by relevance score, ties broken by
// most recent update. No matches yields an empty slice, not an error.
func (s *Service) Search(req Request) []Result {
	idx := s.idx.Load()
	if idx == nil {
		return []Result{}
	}

	kinds := requestedKinds(req)
	cands := idx.candidates(kinds, req.Filters)
	query := strings.TrimSpace(req.Query)

	if query == "" {
		results := make([]Result, len(cands))
		for i, c := range cands {
			results[i] = c.Result
		}
		sortByIDDesc(results)
		// Filter-only listings return every match; only an explicit
		// limit truncates them.
		return truncate(results, req.Limit)
	}

	// An exact full-ID match is unambiguous: short-circuit to a single hit.
	for _, c := range cands {
		if strings.EqualFold(c.ID(), query) {
			c.Score = exactIDScore
			return []Result{c.Result}
		}
	}

	matched := rank(cands, query)
	results := make([]Result, len(matched))
	for i, c := range matched {
		results[i] = c.Result
	}
	return s.cap(results, req.Limit)
}

// exactIDScore is above any score the fuzzy matcher produces, marking
// identifier hits as maximally relevant.
const exactIDScore = 1 << 20

func requestedKinds(req Request) map[types.EntityKind]bool {
	kinds := make(map[types.EntityKind]bool, 3)
	if len(req.Types) == 0 {
		kinds[types.KindTask] = true
		kinds[types.KindDocument] = true
		kinds[types.KindDecision] = true
		return kinds
	}
	for _, k := range req.Types {
		if k.IsValid() {
			kinds[k] = true
		}
	}
	return kinds
}

// candidates collects the entities of the requested kinds that pass the
// filters. Task-specific filters exclude documents and decisions, which
// have none of the filtered fields.
func (idx *index) candidates(kinds map[types.EntityKind]bool, f Filters) []candidate {
	var out []candidate
	if kinds[types.KindTask] {
		for _, t := range idx.tasks {
			if matchesFilters(t, f) {
				out = append(out, candidate{Result: Result{Kind: types.KindTask, Task: t}})
			}
		}
	}
	if f.taskOnly() {
		return out
	}
	if kinds[types.KindDocument] {
		for _, d := range idx.documents {
			out = append(out, candidate{Result: Result{Kind: types.KindDocument, Document: d}})
		}
	}
	if kinds[types.KindDecision] {
		for _, d := range idx.decisions {
			out = append(out, candidate{Result: Result{Kind: types.KindDecision, Decision: d}})
		}
	}
	return out
}

// matchesFilters applies AND across dimensions, OR within each.
func matchesFilters(t *types.Task, f Filters) bool {
	if len(f.Status) > 0 && !f.Status.containsFold(t.Status) {
		return false
	}
	if len(f.Priority) > 0 && !f.Priority.containsFold(string(t.Priority)) {
		return false
	}
	if len(f.Milestone) > 0 && !f.Milestone.containsFold(t.Milestone) {
		return false
	}
	if len(f.Labels) > 0 {
		hit := false
		for _, l := range t.Labels {
			if f.Labels.containsFold(l) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// rank scores candidates against the query. Titles are matched fuzzily;
// entities whose title misses fall back to a substring scan of body and
// labels. Order: title hits by score, then content hits, recency last.
func rank(cands []candidate, query string) []candidate {
	titles := make([]string, len(cands))
	for i, c := range cands {
		titles[i] = c.Title()
	}

	var matched []candidate
	seen := make(map[int]bool, len(cands))
	for _, m := range fuzzy.Find(query, titles) {
		c := cands[m.Index]
		c.titleHit = true
		c.Score = m.Score
		matched = append(matched, c)
		seen[m.Index] = true
	}

	lower := strings.ToLower(query)
	for i, c := range cands {
		if seen[i] {
			continue
		}
		if containsFold(c.body(), lower) || labelContains(c, lower) {
			matched = append(matched, c)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.titleHit != b.titleHit {
			return a.titleHit
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.updatedAt().After(b.updatedAt())
	})
	return matched
}

func containsFold(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

func labelContains(c candidate, lowerNeedle string) bool {
	if c.Kind != types.KindTask {
		return false
	}
	for _, l := range c.Task.Labels {
		if strings.Contains(strings.ToLower(l), lowerNeedle) {
			return true
		}
	}
	return false
}

// sortByIDDesc orders filter-only results by descending numeric ID so
// the newest entities come first.
func sortByIDDesc(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return types.CompareIDsDesc(results[i].ID(), results[j].ID())
	})
}

// cap applies the request limit to ranked results, falling back to the
// configured maximum when the caller did not set one.
func (s *Service) cap(results []Result, limit int) []Result {
	if limit <= 0 {
		if cfg := s.st.Config(); cfg != nil && cfg.MaxSearchResults > 0 {
			limit = cfg.MaxSearchResults
		}
	}
	return truncate(results, limit)
}

// truncate applies an explicit limit; zero or negative means unbounded.
func truncate(results []Result, limit int) []Result {
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []Result{}
	}
	return results
}
