package rpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/loader"
	"github.com/Wilson-G/Backlog.md/internal/search"
	"github.com/Wilson-G/Backlog.md/internal/sequence"
	"github.com/Wilson-G/Backlog.md/internal/store"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

func startTestServer(t *testing.T, tasks []*types.Task) (*Client, *store.ContentStore) {
	t.Helper()
	root := t.TempDir()
	ld := loader.New(root)
	if err := ld.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

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

	svc := search.New(st)
	t.Cleanup(svc.Close)
	seq := sequence.New(st, ld)

	srv := NewServer(st, svc, seq, nil, WithSkipInitialReady())
	t.Cleanup(srv.Close)

	socket := filepath.Join(root, "test.sock")
	go func() {
		_ = srv.Serve(ctx, socket)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(socket); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server socket never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}

	client, err := Dial(socket)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, st
}

func TestPing(t *testing.T) {
	client, _ := startTestServer(t, nil)
	if err := client.Call(OpPing, nil, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestListAndGetTask(t *testing.T) {
	client, _ := startTestServer(t, []*types.Task{
		{ID: "task-1", Title: "Setup auth", Status: "To Do"},
		{ID: "task-2", Title: "Deploy", Status: "To Do"},
	})

	var tasks []*types.Task
	if err := client.Call(OpListTasks, nil, &tasks); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("list returned %d tasks, want 2", len(tasks))
	}

	var task types.Task
	if err := client.Call(OpGetTask, GetTaskArgs{ID: "2"}, &task); err != nil {
		t.Fatalf("get by loose id: %v", err)
	}
	if task.ID != "task-2" {
		t.Errorf("loose get = %s, want task-2", task.ID)
	}

	if err := client.Call(OpGetTask, GetTaskArgs{ID: "404"}, &task); err == nil {
		t.Error("get of absent task succeeded, want error")
	}
}

func TestSearchOverRPC(t *testing.T) {
	client, _ := startTestServer(t, []*types.Task{
		{ID: "task-1", Title: "Setup auth", Status: "To Do", Milestone: "m-1"},
		{ID: "task-2", Title: "Deploy", Status: "To Do", Milestone: "m-1"},
	})

	var results []search.Result
	req := search.Request{Query: "auth"}
	if err := client.Call(OpSearch, req, &results); err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID() != "task-1" {
		t.Errorf("search auth returned %d results, want task-1", len(results))
	}
}

func TestUpsertAndReorderOverRPC(t *testing.T) {
	client, st := startTestServer(t, []*types.Task{
		{ID: "task-1", Title: "A", Status: "To Do"},
	})

	var created types.Task
	err := client.Call(OpUpsertTask, &types.Task{ID: "task-2", Title: "B", Status: "To Do"}, &created)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, ok := st.Task("task-2"); !ok {
		t.Fatal("upserted task not in store")
	}

	err = client.Call(OpReorderTask, sequence.ReorderRequest{
		TaskID:         "task-2",
		TargetStatus:   "In Progress",
		OrderedTaskIDs: []string{"task-2", "task-1"},
	}, nil)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	moved, _ := st.Task("task-2")
	if moved.Status != "In Progress" {
		t.Errorf("status after reorder = %q, want In Progress", moved.Status)
	}

	// Validation failures come back as client errors, not dropped
	// connections.
	err = client.Call(OpReorderTask, sequence.ReorderRequest{TaskID: "task-2"}, nil)
	if err == nil {
		t.Error("invalid reorder succeeded, want error")
	}
	if err := client.Call(OpPing, nil, nil); err != nil {
		t.Errorf("connection unusable after client error: %v", err)
	}
}

func TestUnknownOperation(t *testing.T) {
	client, _ := startTestServer(t, nil)
	if err := client.Call("nonsense", nil, nil); err == nil {
		t.Error("unknown operation succeeded, want error")
	}
}

func TestResolveMilestoneOverRPC(t *testing.T) {
	client, st := startTestServer(t, nil)
	ctx := context.Background()
	if err := st.UpsertMilestone(ctx, &types.Milestone{ID: "m-1", Title: "Release 1"}); err != nil {
		t.Fatalf("UpsertMilestone: %v", err)
	}

	var res ResolveMilestoneResult
	if err := client.Call(OpResolveMilestone, ResolveMilestoneArgs{Input: "Release 1"}, &res); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Resolved != "m-1" {
		t.Errorf("resolved = %q, want m-1", res.Resolved)
	}
}
