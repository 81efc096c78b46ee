package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Wilson-G/Backlog.md/internal/types"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	fs := New(t.TempDir())
	if err := fs.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return fs
}

func TestEntityIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"backlog/tasks/task-12 - Setup auth.md", "task-12", true},
		{"backlog/tasks/task-12.md", "task-12", true},
		{"backlog/docs/doc-3 - API Notes.md", "doc-3", true},
		{"backlog/tasks/notes.txt", "", false},
	}
	for _, tt := range tests {
		got, ok := EntityIDFromPath(tt.path)
		if ok != tt.ok || got != tt.want {
			t.Errorf("EntityIDFromPath(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKindFromPath(t *testing.T) {
	tests := []struct {
		path string
		want types.EntityKind
		ok   bool
	}{
		{"backlog/tasks/task-1 - X.md", types.KindTask, true},
		{"backlog/docs/doc-1 - Y.md", types.KindDocument, true},
		{"backlog/decisions/decision-1 - Z.md", types.KindDecision, true},
		{"backlog/config.yml", "", false},
	}
	for _, tt := range tests {
		got, ok := KindFromPath(tt.path)
		if ok != tt.ok || got != tt.want {
			t.Errorf("KindFromPath(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTaskRoundTrip(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	task := &types.Task{
		ID:       "task-1",
		Title:    "Setup auth",
		Status:   "To Do",
		Priority: types.PriorityHigh,
		Labels:   []string{"security"},
		Body:     "Implement login flow.",
	}
	if err := fs.WriteTask(ctx, task); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}

	got, err := fs.LoadTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	if got == nil {
		t.Fatal("LoadTask returned nil for existing task")
	}
	if got.Title != task.Title || got.Status != task.Status || got.Priority != task.Priority {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Body != task.Body {
		t.Errorf("Body = %q, want %q", got.Body, task.Body)
	}

	tasks, err := fs.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("ListTasks returned %d tasks, want 1", len(tasks))
	}
}

func TestLoadTaskAbsent(t *testing.T) {
	fs := newTestStore(t)
	got, err := fs.LoadTask(context.Background(), "task-99")
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	if got != nil {
		t.Errorf("LoadTask for absent id = %+v, want nil", got)
	}
}

func TestWriteTaskRejectsCrossBranch(t *testing.T) {
	fs := newTestStore(t)
	err := fs.WriteTask(context.Background(), &types.Task{
		ID:     "task-1",
		Title:  "X",
		Branch: "feature/y",
	})
	if !types.IsValidationError(err) {
		t.Errorf("WriteTask on cross-branch task = %v, want ValidationError", err)
	}
}

func TestDeleteTaskAbsentIsNoop(t *testing.T) {
	fs := newTestStore(t)
	if err := fs.DeleteTask(context.Background(), "task-42"); err != nil {
		t.Errorf("DeleteTask on absent task = %v, want nil", err)
	}
}

func TestListTasksSkipsMalformedFile(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	if err := fs.WriteTask(ctx, &types.Task{ID: "task-1", Title: "Good"}); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}
	bad := filepath.Join(fs.Dir(), TasksDir, "task-2 - Bad.md")
	if err := os.WriteFile(bad, []byte("no frontmatter here"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	tasks, err := fs.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-1" {
		t.Errorf("ListTasks = %d tasks, want only task-1", len(tasks))
	}
}

func TestMilestoneCollectionsStaySeparate(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	active := &types.Milestone{ID: "m-1", Title: "Release 1"}
	archived := &types.Milestone{ID: "m-2", Title: "Old Release", Archived: true}
	if err := fs.WriteMilestone(ctx, active); err != nil {
		t.Fatalf("WriteMilestone active: %v", err)
	}
	if err := fs.WriteMilestone(ctx, archived); err != nil {
		t.Fatalf("WriteMilestone archived: %v", err)
	}

	got, err := fs.ListMilestones(ctx)
	if err != nil {
		t.Fatalf("ListMilestones: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m-1" {
		t.Errorf("active milestones = %+v, want only m-1", got)
	}

	arch, err := fs.ListArchivedMilestones(ctx)
	if err != nil {
		t.Fatalf("ListArchivedMilestones: %v", err)
	}
	if len(arch) != 1 || arch[0].ID != "m-2" {
		t.Errorf("archived milestones = %+v, want only m-2", arch)
	}
	if !arch[0].Archived {
		t.Error("archived milestone lost its flag on load")
	}
}

func TestSequencesRoundTrip(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	empty, err := fs.LoadSequences(ctx)
	if err != nil {
		t.Fatalf("LoadSequences on fresh project: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("fresh project has %d sequences, want 0", len(empty))
	}

	seqs := []types.Sequence{
		{Index: 1, Tasks: []string{"task-1", "task-2"}},
		{Index: 2, Tasks: []string{"task-3"}},
	}
	if err := fs.SaveSequences(ctx, seqs); err != nil {
		t.Fatalf("SaveSequences: %v", err)
	}
	got, err := fs.LoadSequences(ctx)
	if err != nil {
		t.Fatalf("LoadSequences: %v", err)
	}
	if len(got) != 2 || got[0].Index != 1 || len(got[0].Tasks) != 2 {
		t.Errorf("LoadSequences = %+v, want saved sequences", got)
	}
}

func TestParseEntityBytes(t *testing.T) {
	content := "---\nid: task-7\ntitle: From bytes\nstatus: Done\n---\n\nBody text.\n"
	var task types.Task
	body, err := ParseEntityBytes("branch:file.md", []byte(content), &task)
	if err != nil {
		t.Fatalf("ParseEntityBytes: %v", err)
	}
	if task.ID != "task-7" || task.Status != "Done" {
		t.Errorf("parsed task = %+v", task)
	}
	if body != "Body text.\n" {
		t.Errorf("body = %q", body)
	}

	var pe *types.ParseError
	_, err = ParseEntityBytes("x.md", []byte("not an entity"), &task)
	if !errors.As(err, &pe) {
		t.Errorf("malformed content error = %v, want ParseError", err)
	}
}

// A retitled task keeps its original backing file; the filename suffix
// is cosmetic and the frontmatter is authoritative.
func TestRetitleKeepsSingleFile(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	if err := fs.WriteTask(ctx, &types.Task{ID: "task-1", Title: "Old title"}); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}
	if err := fs.WriteTask(ctx, &types.Task{ID: "task-1", Title: "New title"}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	tasks, err := fs.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d task files after retitle, want 1", len(tasks))
	}
	if tasks[0].Title != "New title" {
		t.Errorf("Title = %q, want %q", tasks[0].Title, "New title")
	}
}
