package search

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/loader"
	"github.com/Wilson-G/Backlog.md/internal/store"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

func newTestService(t *testing.T, tasks []*types.Task) (*Service, *store.ContentStore) {
	t.Helper()
	root := t.TempDir()
	ld := loader.New(root)
	if err := ld.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := context.Background()
	for _, task := range tasks {
		if err := ld.WriteTask(ctx, task); err != nil {
			t.Fatalf("WriteTask: %v", err)
		}
	}
	cfg, err := config.Load(root)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	st := store.New(ld, cfg, root, store.WithDebounceWindow(10*time.Millisecond))
	t.Cleanup(st.Dispose)
	if err := st.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	svc := New(st)
	t.Cleanup(svc.Close)
	return svc, st
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID()
	}
	return ids
}

func TestScenarioAuthAndMilestone(t *testing.T) {
	svc, _ := newTestService(t, []*types.Task{
		{ID: "task-1", Title: "Setup auth", Status: "To Do", Milestone: "m-1"},
		{ID: "task-2", Title: "Deploy", Status: "To Do", Milestone: "m-1"},
	})

	got := svc.Search(Request{Query: "auth"})
	if len(got) != 1 || got[0].ID() != "task-1" {
		t.Errorf("query auth = %v, want exactly task-1", resultIDs(got))
	}

	got = svc.Search(Request{Filters: Filters{Milestone: OneOrMany{"m-1"}}})
	ids := resultIDs(got)
	if len(ids) != 2 || ids[0] != "task-2" || ids[1] != "task-1" {
		t.Errorf("milestone filter = %v, want [task-2 task-1]", ids)
	}
}

func TestFilterOnlyReturnsAllMatches(t *testing.T) {
	tasks := make([]*types.Task, 60)
	for i := range tasks {
		tasks[i] = &types.Task{
			ID:     fmt.Sprintf("task-%d", i+1),
			Title:  fmt.Sprintf("Task %d", i+1),
			Status: "To Do",
		}
	}
	svc, _ := newTestService(t, tasks)

	// The configured result cap applies to ranked queries only; a
	// filter-only listing returns every match.
	got := svc.Search(Request{Filters: Filters{Status: OneOrMany{"To Do"}}})
	if len(got) != 60 {
		t.Errorf("filter-only search returned %d results, want all 60", len(got))
	}

	got = svc.Search(Request{Filters: Filters{Status: OneOrMany{"To Do"}}, Limit: 5})
	if len(got) != 5 {
		t.Errorf("explicit limit returned %d results, want 5", len(got))
	}
}

func TestFilterANDAcrossORWithin(t *testing.T) {
	svc, _ := newTestService(t, []*types.Task{
		{ID: "task-1", Title: "A", Status: "To Do", Priority: types.PriorityHigh},
		{ID: "task-2", Title: "B", Status: "In Progress", Priority: types.PriorityHigh},
		{ID: "task-3", Title: "C", Status: "Done", Priority: types.PriorityHigh},
		{ID: "task-4", Title: "D", Status: "To Do", Priority: types.PriorityLow},
	})

	got := svc.Search(Request{Filters: Filters{
		Status:   OneOrMany{"To Do", "In Progress"},
		Priority: OneOrMany{"high"},
	}})
	ids := resultIDs(got)
	if len(ids) != 2 || ids[0] != "task-2" || ids[1] != "task-1" {
		t.Errorf("filtered = %v, want [task-2 task-1]", ids)
	}
}

func TestLabelFilter(t *testing.T) {
	svc, _ := newTestService(t, []*types.Task{
		{ID: "task-1", Title: "A", Status: "To Do", Labels: []string{"security", "backend"}},
		{ID: "task-2", Title: "B", Status: "To Do", Labels: []string{"frontend"}},
	})
	got := svc.Search(Request{Filters: Filters{Labels: OneOrMany{"security"}}})
	if len(got) != 1 || got[0].ID() != "task-1" {
		t.Errorf("label filter = %v, want task-1", resultIDs(got))
	}
}

func TestExactIDShortCircuit(t *testing.T) {
	svc, _ := newTestService(t, []*types.Task{
		{ID: "task-1", Title: "task-10 lookalike", Status: "To Do"},
		{ID: "task-10", Title: "Another", Status: "To Do"},
	})
	got := svc.Search(Request{Query: "TASK-10"})
	if len(got) != 1 || got[0].ID() != "task-10" {
		t.Errorf("exact ID query = %v, want single task-10", resultIDs(got))
	}
}

func TestBodyFallbackMatch(t *testing.T) {
	svc, _ := newTestService(t, []*types.Task{
		{ID: "task-1", Title: "Untitled work", Status: "To Do", Body: "needs kubernetes migration"},
		{ID: "task-2", Title: "Other", Status: "To Do"},
	})
	got := svc.Search(Request{Query: "kubernetes"})
	if len(got) != 1 || got[0].ID() != "task-1" {
		t.Errorf("body query = %v, want task-1", resultIDs(got))
	}
}

func TestNoMatchesIsEmptyNotError(t *testing.T) {
	svc, _ := newTestService(t, []*types.Task{
		{ID: "task-1", Title: "A", Status: "To Do"},
	})
	got := svc.Search(Request{Query: "zzzzzz"})
	if got == nil {
		t.Fatal("Search returned nil, want empty slice")
	}
	if len(got) != 0 {
		t.Errorf("Search = %v, want empty", resultIDs(got))
	}
}

func TestLimit(t *testing.T) {
	svc, _ := newTestService(t, []*types.Task{
		{ID: "task-1", Title: "A", Status: "To Do"},
		{ID: "task-2", Title: "B", Status: "To Do"},
		{ID: "task-3", Title: "C", Status: "To Do"},
	})
	got := svc.Search(Request{Limit: 2})
	if len(got) != 2 {
		t.Errorf("limited search returned %d results, want 2", len(got))
	}
}

func TestIndexReflectsMutationAfterNotify(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	if err := st.UpsertTask(ctx, &types.Task{ID: "task-1", Title: "Fresh", Status: "To Do"}); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := svc.Search(Request{Query: "fresh"}); len(got) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("index never reflected the upsert")
}

func TestTypeRestriction(t *testing.T) {
	svc, st := newTestService(t, []*types.Task{
		{ID: "task-1", Title: "Shared word", Status: "To Do"},
	})
	ctx := context.Background()
	if err := st.UpsertDocument(ctx, &types.Document{ID: "doc-1", Title: "Shared word"}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	got := svc.Search(Request{Query: "shared", Types: []types.EntityKind{types.KindDocument}})
	if len(got) != 1 || got[0].Kind != types.KindDocument {
		t.Errorf("type-restricted search = %v, want only doc-1", resultIDs(got))
	}
}

func TestOneOrManyJSON(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`"high"`, []string{"high"}},
		{`["a","b"]`, []string{"a", "b"}},
		{`null`, nil},
	}
	for _, tt := range tests {
		var o OneOrMany
		if err := json.Unmarshal([]byte(tt.in), &o); err != nil {
			t.Errorf("Unmarshal(%s): %v", tt.in, err)
			continue
		}
		if len(o) != len(tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, o, tt.want)
			continue
		}
		for i := range o {
			if o[i] != tt.want[i] {
				t.Errorf("Unmarshal(%s)[%d] = %q, want %q", tt.in, i, o[i], tt.want[i])
			}
		}
	}

	var f Filters
	payload := `{"status":"To Do","labels":["a","b"]}`
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		t.Fatalf("Unmarshal filters: %v", err)
	}
	if len(f.Status) != 1 || len(f.Labels) != 2 {
		t.Errorf("filters = %+v, want scalar and array both normalized", f)
	}
}
