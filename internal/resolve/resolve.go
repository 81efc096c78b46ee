// Package resolve canonicalizes loose, abbreviated, or aliased entity
// references. Task lookups tolerate missing prefixes and bare numeric
// segments; milestone references resolve IDs, aliases, and unique titles
// while refusing to guess between ambiguous candidates.
package resolve

import (
	"strconv"
	"strings"

	"github.com/Wilson-G/Backlog.md/internal/types"
)

// FindTaskByLooseID matches input against tasks. An exact
// case-insensitive full-ID match wins immediately; otherwise both input
// and candidate IDs are stripped of their letter prefix and compared as
// dot-separated numeric segments, which must agree in count and value.
// Returns nil when nothing matches.
func FindTaskByLooseID(tasks []*types.Task, input string) *types.Task {
	in := strings.TrimSpace(input)
	if in == "" {
		return nil
	}

	for _, t := range tasks {
		if strings.EqualFold(t.ID, in) {
			return t
		}
	}

	want, ok := types.NumericSegments(types.StripIDPrefix(in))
	if !ok {
		return nil
	}
	for _, t := range tasks {
		got, ok := types.NumericSegments(types.StripIDPrefix(t.ID))
		if ok && segmentsEqual(want, got) {
			return t
		}
	}
	return nil
}

func segmentsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EnsureTaskPrefix prepends prefix to an identifier that carries no
// letter prefix, so "12" becomes "task-12" while "task-12" and "bug-7"
// pass through unchanged.
func EnsureTaskPrefix(id, prefix string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return trimmed
	}
	if types.StripIDPrefix(trimmed) != trimmed {
		return trimmed
	}
	return prefix + "-" + trimmed
}

// ResolveMilestoneInput maps free text to a canonical milestone ID.
// Active milestones are consulted before archived ones. Input shaped
// like an ID (a bare number or "m-<n>") prefers the ID path even when a
// title also matches; any other input tries titles first. An ambiguous
// title (shared by more than one active milestone) and a miss both
// return the trimmed input unchanged, letting the caller keep it as a
// free-text label. Resolution is idempotent: feeding a result back in
// yields the same result.
func ResolveMilestoneInput(input string, active, archived []*types.Milestone) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	aliases := milestoneAliases(trimmed)

	if looksLikeMilestoneID(trimmed) {
		if m := matchByID(active, trimmed, aliases); m != nil {
			return m.ID
		}
		if m := matchByID(archived, trimmed, aliases); m != nil {
			return m.ID
		}
		if id, ok := matchByTitle(active, archived, trimmed); ok {
			return id
		}
		return trimmed
	}

	if id, ok := matchByTitle(active, archived, trimmed); ok {
		return id
	}
	if m := matchByID(active, trimmed, aliases); m != nil {
		return m.ID
	}
	if m := matchByID(archived, trimmed, aliases); m != nil {
		return m.ID
	}
	return trimmed
}

// FindMilestone resolves input to a milestone entity for read paths
// that need a concrete record. Unlike ResolveMilestoneInput it fails
// loudly: ErrNotFound when nothing matches and AmbiguousError when a
// title is shared by multiple milestones.
func FindMilestone(input string, active, archived []*types.Milestone) (*types.Milestone, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, types.ErrNotFound
	}
	aliases := milestoneAliases(trimmed)

	if m := matchByID(active, trimmed, aliases); m != nil {
		return m, nil
	}
	if m := matchByID(archived, trimmed, aliases); m != nil {
		return m, nil
	}

	var found *types.Milestone
	var matches []string
	for _, m := range append(append([]*types.Milestone(nil), active...), archived...) {
		if strings.EqualFold(m.Title, trimmed) {
			found = m
			matches = append(matches, m.ID)
		}
	}
	switch len(matches) {
	case 0:
		return nil, types.ErrNotFound
	case 1:
		return found, nil
	default:
		return nil, &types.AmbiguousError{Input: trimmed, Matches: matches}
	}
}

// milestoneAliases builds the key set an input can be known by: the
// lowercase literal, plus the bare numeric and canonical "m-<n>" forms
// when the input is numeric or already canonical-shaped.
func milestoneAliases(input string) map[string]bool {
	lower := strings.ToLower(input)
	aliases := map[string]bool{lower: true}

	if n, err := strconv.Atoi(lower); err == nil {
		aliases[strconv.Itoa(n)] = true
		aliases["m-"+strconv.Itoa(n)] = true
	}
	if rest, ok := strings.CutPrefix(lower, "m-"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			aliases[strconv.Itoa(n)] = true
			aliases["m-"+strconv.Itoa(n)] = true
		}
	}
	return aliases
}

// looksLikeMilestoneID reports whether input is a bare number or m-<n>.
func looksLikeMilestoneID(input string) bool {
	lower := strings.ToLower(input)
	if _, err := strconv.Atoi(lower); err == nil {
		return true
	}
	if rest, ok := strings.CutPrefix(lower, "m-"); ok {
		if _, err := strconv.Atoi(rest); err == nil {
			return true
		}
	}
	return false
}

// matchByID checks exact raw ID, then canonical/alias forms.
func matchByID(ms []*types.Milestone, raw string, aliases map[string]bool) *types.Milestone {
	for _, m := range ms {
		if m.ID == raw {
			return m
		}
	}
	for _, m := range ms {
		if aliases[strings.ToLower(m.ID)] {
			return m
		}
	}
	return nil
}

// matchByTitle looks for a case-insensitive unique title match, active
// collection first. Two active milestones sharing the title make the
// key ambiguous: ok is false and the caller falls back to the raw input.
func matchByTitle(active, archived []*types.Milestone, title string) (id string, ok bool) {
	var found *types.Milestone
	for _, m := range active {
		if strings.EqualFold(m.Title, title) {
			if found != nil {
				return "", false
			}
			found = m
		}
	}
	if found != nil {
		return found.ID, true
	}
	for _, m := range archived {
		if strings.EqualFold(m.Title, title) {
			if found != nil {
				return "", false
			}
			found = m
		}
	}
	if found != nil {
		return found.ID, true
	}
	return "", false
}
