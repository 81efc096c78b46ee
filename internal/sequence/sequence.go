// Package sequence maintains stable task orderings: per-status ordering
// keys on the tasks themselves, named sequence lists persisted beside
// them, and the read-only overlay of tasks from other git branches.
package sequence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/resolve"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

// Store is the content-store surface the sequencer mutates through.
// All task writes go through UpsertTask so cache and disk stay in step.
type Store interface {
	Tasks() []*types.Task
	Task(id string) (*types.Task, bool)
	UpsertTask(ctx context.Context, t *types.Task) error
	Milestones() []*types.Milestone
	ArchivedMilestones() []*types.Milestone
	Config() *config.Config
}

// Persister reads and writes the sequence list file.
type Persister interface {
	LoadSequences(ctx context.Context) ([]types.Sequence, error)
	SaveSequences(ctx context.Context, seqs []types.Sequence) error
}

// Sequencer computes and mutates task orderings. Mutations are
// serialized; reads go straight to the store snapshot.
type Sequencer struct {
	st     Store
	ld     Persister
	logger *log.Logger

	mu sync.Mutex // serializes reorder and sequence-list mutations
}

// New builds a Sequencer over the given store and sequence persister.
func New(st Store, ld Persister) *Sequencer {
	return &Sequencer{
		st:     st,
		ld:     ld,
		logger: log.WithPrefix("sequence"),
	}
}

// sequenceStep spaces assigned ordering keys so later inserts can land
// between neighbors without rewriting the whole partition.
const sequenceStep = 100

// ReorderRequest describes one reorder mutation. OrderedTaskIDs is the
// full intended order of the target (status, milestone) bucket and must
// contain TaskID.
type ReorderRequest struct {
	TaskID          string   `json:"taskId"`
	TargetStatus    string   `json:"targetStatus"`
	OrderedTaskIDs  []string `json:"orderedTaskIds"`
	TargetMilestone string   `json:"targetMilestone,omitempty"`
}

// ReorderTask moves a task into a status (and optionally a milestone)
// and rewrites the ordering keys of every listed task to match the
// requested order. All validation happens before the first write, so a
// rejected request leaves disk and cache untouched. Cross-branch tasks
// are rejected outright; cross-branch IDs appearing in the ordered list
// are skipped rather than mutated.
func (s *Sequencer) ReorderTask(ctx context.Context, req ReorderRequest) error {
	if req.TaskID == "" {
		return &types.ValidationError{Msg: "taskId is required"}
	}
	if req.TargetStatus == "" {
		return &types.ValidationError{Msg: "targetStatus is required"}
	}
	if cfg := s.st.Config(); cfg != nil && !cfg.IsValidStatus(req.TargetStatus) {
		return &types.ValidationError{Msg: fmt.Sprintf("invalid status %q, must be one of %v", req.TargetStatus, cfg.Statuses)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.st.Task(req.TaskID)
	if !ok {
		return fmt.Errorf("task %s: %w", req.TaskID, types.ErrNotFound)
	}
	if target.IsCrossBranch() {
		return &types.ValidationError{Msg: fmt.Sprintf("cannot reorder task %s: it lives on branch %s", target.ID, target.Branch)}
	}

	listed := false
	for _, id := range req.OrderedTaskIDs {
		if id == req.TaskID {
			listed = true
			break
		}
	}
	if !listed {
		return &types.ValidationError{Msg: fmt.Sprintf("orderedTaskIds does not contain %s", req.TaskID)}
	}

	milestone := req.TargetMilestone
	if milestone != "" {
		milestone = resolve.ResolveMilestoneInput(milestone, s.st.Milestones(), s.st.ArchivedMilestones())
	}

	for i, id := range req.OrderedTaskIDs {
		t, ok := s.st.Task(id)
		if !ok {
			// The list may be slightly stale; unknown IDs are skipped
			// and the remaining keys keep their listed order.
			s.logger.Warn("skipping unknown task in reorder", "id", id)
			continue
		}
		if t.IsCrossBranch() {
			continue
		}

		key := (i + 1) * sequenceStep
		isTarget := t.ID == req.TaskID
		if !isTarget && sameSequence(t.Sequence, key) {
			continue
		}
		updated := *t
		updated.Sequence = &key
		if isTarget {
			updated.Status = req.TargetStatus
			if req.TargetMilestone != "" {
				updated.Milestone = milestone
			}
		}
		if err := s.st.UpsertTask(ctx, &updated); err != nil {
			return err
		}
	}
	return nil
}

func sameSequence(cur *int, key int) bool {
	return cur != nil && *cur == key
}

// OrderForBucket returns the tasks of one (status, milestone) bucket in
// their stable order: ascending sequence key, unkeyed tasks last,
// ties broken by descending numeric ID so the order is total.
func OrderForBucket(tasks []*types.Task, status, milestone string) []*types.Task {
	var bucket []*types.Task
	for _, t := range tasks {
		if t.Status == status && t.Milestone == milestone {
			bucket = append(bucket, t)
		}
	}
	sort.SliceStable(bucket, func(i, j int) bool {
		a, b := bucket[i], bucket[j]
		switch {
		case a.Sequence != nil && b.Sequence != nil:
			if *a.Sequence != *b.Sequence {
				return *a.Sequence < *b.Sequence
			}
		case a.Sequence != nil:
			return true
		case b.Sequence != nil:
			return false
		}
		return types.CompareIDsDesc(a.ID, b.ID)
	})
	return bucket
}

// MoveRequest describes a sequence-list membership change.
type MoveRequest struct {
	TaskID              string `json:"taskId"`
	Unsequenced         bool   `json:"unsequenced"`
	TargetSequenceIndex int    `json:"targetSequenceIndex,omitempty"`
}

// MoveTaskInSequences moves a task into the sequence with the target
// index, first removing it from every sequence it currently belongs to.
// Unsequenced removes it from all membership without reinserting. Empty
// sequences left behind are dropped.
func (s *Sequencer) MoveTaskInSequences(ctx context.Context, req MoveRequest) error {
	if req.TaskID == "" {
		return &types.ValidationError{Msg: "taskId is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.st.Task(req.TaskID)
	if !ok {
		return fmt.Errorf("task %s: %w", req.TaskID, types.ErrNotFound)
	}
	if t.IsCrossBranch() {
		return &types.ValidationError{Msg: fmt.Sprintf("cannot sequence task %s: it lives on branch %s", t.ID, t.Branch)}
	}

	seqs, err := s.ld.LoadSequences(ctx)
	if err != nil {
		return err
	}

	var next []types.Sequence
	for _, seq := range seqs {
		kept := removeID(seq.Tasks, req.TaskID)
		if len(kept) == 0 {
			continue
		}
		next = append(next, types.Sequence{Index: seq.Index, Tasks: kept})
	}

	if !req.Unsequenced {
		inserted := false
		for i, seq := range next {
			if seq.Index == req.TargetSequenceIndex {
				next[i].Tasks = append(seq.Tasks, req.TaskID)
				inserted = true
				break
			}
		}
		if !inserted {
			next = append(next, types.Sequence{
				Index: req.TargetSequenceIndex,
				Tasks: []string{req.TaskID},
			})
		}
	}

	sort.SliceStable(next, func(i, j int) bool { return next[i].Index < next[j].Index })
	return s.ld.SaveSequences(ctx, next)
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// ListActiveSequences resolves the persisted sequences against the
// store. Task IDs that no longer resolve are skipped, not errors;
// sequences left with no resolvable tasks are omitted.
func (s *Sequencer) ListActiveSequences(ctx context.Context) ([]types.ResolvedSequence, error) {
	seqs, err := s.ld.LoadSequences(ctx)
	if err != nil {
		return nil, err
	}

	resolved := make([]types.ResolvedSequence, 0, len(seqs))
	for _, seq := range seqs {
		var tasks []*types.Task
		for _, id := range seq.Tasks {
			if t, ok := s.st.Task(id); ok {
				tasks = append(tasks, t)
			}
		}
		if len(tasks) == 0 {
			continue
		}
		resolved = append(resolved, types.ResolvedSequence{Index: seq.Index, Tasks: tasks})
	}
	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].Index < resolved[j].Index })
	return resolved, nil
}

// Overlay merges the current branch's tasks with read-only snapshots
// from other branches. The current branch wins every ID collision;
// cross-branch entries keep their Branch tag so mutations reject them.
func Overlay(current, crossBranch []*types.Task) []*types.Task {
	seen := make(map[string]bool, len(current))
	merged := make([]*types.Task, 0, len(current)+len(crossBranch))
	for _, t := range current {
		seen[t.ID] = true
		merged = append(merged, t)
	}
	for _, t := range crossBranch {
		if seen[t.ID] || !t.IsCrossBranch() {
			continue
		}
		seen[t.ID] = true
		merged = append(merged, t)
	}
	types.SortTasksDescByID(merged)
	return merged
}
