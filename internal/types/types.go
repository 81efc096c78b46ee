// Package types defines core data structures for the backlog content store.
package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the timestamp format used in entity frontmatter.
const DateLayout = "2006-01-02 15:04"

// Task represents a trackable work item backed by a single markdown file.
type Task struct {
	// ===== Core identification =====
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`

	// ===== Workflow =====
	Status   string   `yaml:"status" json:"status"`
	Priority Priority `yaml:"priority,omitempty" json:"priority,omitempty"`

	// ===== Assignment & classification =====
	Assignee     []string `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	Labels       []string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	// Milestone holds the raw milestone reference as typed by the user.
	// It may be a canonical milestone ID, a title, or an unresolved
	// free-text label; resolution happens in the resolve package.
	Milestone string `yaml:"milestone,omitempty" json:"milestone,omitempty"`

	// Sequence is an opaque ordering key within the task's
	// (status, milestone) bucket. Nil means unsequenced.
	Sequence *int `yaml:"sequence,omitempty" json:"sequence,omitempty"`

	// Branch is non-empty when the task was loaded from a non-current git
	// branch. Such tasks are read-only snapshots: visible in read paths,
	// rejected by every mutation.
	Branch string `yaml:"-" json:"branch,omitempty"`

	// ===== Timestamps (store-assigned on write) =====
	CreatedDate string `yaml:"created_date,omitempty" json:"created_date,omitempty"`
	UpdatedDate string `yaml:"updated_date,omitempty" json:"updated_date,omitempty"`

	// Body is the freeform markdown content after the frontmatter block.
	Body string `yaml:"-" json:"body,omitempty"`
}

// IsCrossBranch reports whether the task is a read-only snapshot from
// another git branch.
func (t *Task) IsCrossBranch() bool {
	return t.Branch != ""
}

// Clone returns a deep copy of the task. Mutating the copy never
// affects the original, including the slice and pointer fields.
func (t *Task) Clone() *Task {
	c := *t
	c.Assignee = append([]string(nil), t.Assignee...)
	c.Labels = append([]string(nil), t.Labels...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	if t.Sequence != nil {
		seq := *t.Sequence
		c.Sequence = &seq
	}
	return &c
}

// UpdatedAt parses the task's updated date. Returns the zero time when the
// field is missing or malformed; callers treat zero as "oldest".
func (t *Task) UpdatedAt() time.Time {
	ts, err := time.Parse(DateLayout, t.UpdatedDate)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Validate checks the task's field values against the configured status set.
// An empty statuses slice accepts any status.
func (t *Task) Validate(statuses []string) error {
	if t.ID == "" {
		return &ValidationError{Msg: "id is required"}
	}
	if t.Title == "" {
		return &ValidationError{Msg: "title is required"}
	}
	if !t.Priority.IsValid() {
		return &ValidationError{Msg: fmt.Sprintf("invalid priority: %s", t.Priority)}
	}
	if len(statuses) > 0 && t.Status != "" {
		for _, s := range statuses {
			if t.Status == s {
				return nil
			}
		}
		return &ValidationError{Msg: fmt.Sprintf("invalid status: %s", t.Status)}
	}
	return nil
}

// StripIDPrefix removes a leading "<letters>-" prefix from an identifier,
// e.g. "task-12.3" -> "12.3". Identifiers without such a prefix are
// returned unchanged.
func StripIDPrefix(id string) string {
	dash := strings.Index(id, "-")
	if dash <= 0 {
		return id
	}
	for _, r := range id[:dash] {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return id
		}
	}
	return id[dash+1:]
}

// NumericSegments parses a dot-separated numeric string like "12.3" into
// its integer components. ok is false if any segment is non-numeric.
func NumericSegments(s string) ([]int, bool) {
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, ".")
	segs := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		segs[i] = n
	}
	return segs, true
}

// CompareIDsDesc orders two entity IDs by descending numeric suffix,
// falling back to reverse lexical order for non-numeric IDs. Used for the
// stable "newest first" ordering of filter-only query results and for
// breaking sequence ties.
func CompareIDsDesc(a, b string) bool {
	as, aok := NumericSegments(StripIDPrefix(a))
	bs, bok := NumericSegments(StripIDPrefix(b))
	if aok && bok {
		for i := 0; i < len(as) && i < len(bs); i++ {
			if as[i] != bs[i] {
				return as[i] > bs[i]
			}
		}
		return len(as) > len(bs)
	}
	return a > b
}

// SortTasksDescByID sorts tasks in place by descending numeric ID suffix.
func SortTasksDescByID(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return CompareIDsDesc(tasks[i].ID, tasks[j].ID)
	})
}

// Priority represents task urgency.
type Priority string

// Priority constants. The empty string means "unset".
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid checks the priority value; empty is valid (unset).
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow, "":
		return true
	}
	return false
}

// Milestone groups tasks toward a delivery target.
type Milestone struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Archived milestones live in a separate collection and are never
	// merged into the active one.
	Archived bool `yaml:"archived,omitempty" json:"archived,omitempty"`
}

// Clone returns a copy of the milestone.
func (m *Milestone) Clone() *Milestone {
	c := *m
	return &c
}

// Document is a freeform markdown document with metadata.
type Document struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	CreatedDate string `yaml:"created_date,omitempty" json:"created_date,omitempty"`
	UpdatedDate string `yaml:"updated_date,omitempty" json:"updated_date,omitempty"`
	Body        string `yaml:"-" json:"body,omitempty"`
}

// Clone returns a copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	return &c
}

// UpdatedAt parses the document's updated date (zero time on failure).
func (d *Document) UpdatedAt() time.Time {
	ts, err := time.Parse(DateLayout, d.UpdatedDate)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Decision records an architectural or product decision.
type Decision struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Status      string `yaml:"status,omitempty" json:"status,omitempty"`
	CreatedDate string `yaml:"created_date,omitempty" json:"created_date,omitempty"`
	UpdatedDate string `yaml:"updated_date,omitempty" json:"updated_date,omitempty"`
	Body        string `yaml:"-" json:"body,omitempty"`
}

// Clone returns a copy of the decision.
func (d *Decision) Clone() *Decision {
	c := *d
	return &c
}

// UpdatedAt parses the decision's updated date (zero time on failure).
func (d *Decision) UpdatedAt() time.Time {
	ts, err := time.Parse(DateLayout, d.UpdatedDate)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// EntityKind identifies an entity collection.
type EntityKind string

// Entity kind constants.
const (
	KindTask     EntityKind = "task"
	KindDocument EntityKind = "document"
	KindDecision EntityKind = "decision"
)

// IsValid checks the entity kind value.
func (k EntityKind) IsValid() bool {
	switch k {
	case KindTask, KindDocument, KindDecision:
		return true
	}
	return false
}

// Sequence is a named, milestone-independent ordered list of task IDs.
type Sequence struct {
	Index int      `yaml:"index" json:"index"`
	Tasks []string `yaml:"tasks" json:"tasks"`
}

// ResolvedSequence pairs a sequence with the tasks resolved from the
// content store. Task IDs that no longer resolve are dropped.
type ResolvedSequence struct {
	Index int     `json:"index"`
	Tasks []*Task `json:"tasks"`
}
