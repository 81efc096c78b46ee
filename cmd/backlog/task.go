package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Wilson-G/Backlog.md/internal/resolve"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

var (
	taskStatus    string
	taskPriority  string
	taskAssignee  []string
	taskLabels    []string
	taskMilestone string
	taskBody      string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, edit, and view tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a task",
	Long: `Create a task with the next available ID.

Examples:
  backlog task create "Setup auth" --priority high --label security
  backlog task create "Deploy" --milestone "Release 1"`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCreate,
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a task",
	Long: `Update fields of an existing task. The ID may be loose: "12" and
"task-12" refer to the same task.

Examples:
  backlog task edit 12 --status Done
  backlog task edit task-12 --milestone m-2 --priority low`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskEdit,
}

var taskViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskView,
}

func init() {
	for _, c := range []*cobra.Command{taskCreateCmd, taskEditCmd} {
		c.Flags().StringVarP(&taskStatus, "status", "s", "", "Task status")
		c.Flags().StringVarP(&taskPriority, "priority", "p", "", "Priority (high, medium, low)")
		c.Flags().StringSliceVarP(&taskAssignee, "assignee", "a", nil, "Assignees")
		c.Flags().StringSliceVarP(&taskLabels, "label", "l", nil, "Labels")
		c.Flags().StringVarP(&taskMilestone, "milestone", "m", "", "Milestone (ID or title)")
		c.Flags().StringVarP(&taskBody, "description", "d", "", "Markdown description")
	}
	taskCmd.AddCommand(taskCreateCmd, taskEditCmd, taskViewCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	t := &types.Task{
		ID:       nextTaskID(rt),
		Title:    args[0],
		Status:   taskStatus,
		Priority: types.Priority(taskPriority),
		Assignee: taskAssignee,
		Labels:   taskLabels,
		Body:     taskBody,
	}
	if taskMilestone != "" {
		t.Milestone = resolve.ResolveMilestoneInput(taskMilestone, rt.st.Milestones(), rt.st.ArchivedMilestones())
	}
	if err := rt.st.UpsertTask(ctx, t); err != nil {
		return err
	}
	fmt.Printf("Created %s: %s\n", t.ID, t.Title)
	return nil
}

// nextTaskID scans existing IDs for the highest numeric suffix. Tasks
// are sorted ascending, so the last parseable ID wins.
func nextTaskID(rt *runtime) string {
	max := 0
	for _, t := range rt.st.Tasks() {
		segs, ok := types.NumericSegments(types.StripIDPrefix(t.ID))
		if ok && len(segs) == 1 && segs[0] > max {
			max = segs[0]
		}
	}
	return rt.cfg.TaskPrefix + "-" + strconv.Itoa(max+1)
}

func runTaskEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	t := resolve.FindTaskByLooseID(rt.st.Tasks(), args[0])
	if t == nil {
		return fmt.Errorf("task %s: %w", args[0], types.ErrNotFound)
	}

	updated := *t
	if cmd.Flags().Changed("status") {
		updated.Status = taskStatus
	}
	if cmd.Flags().Changed("priority") {
		updated.Priority = types.Priority(taskPriority)
	}
	if cmd.Flags().Changed("assignee") {
		updated.Assignee = taskAssignee
	}
	if cmd.Flags().Changed("label") {
		updated.Labels = taskLabels
	}
	if cmd.Flags().Changed("milestone") {
		updated.Milestone = resolve.ResolveMilestoneInput(taskMilestone, rt.st.Milestones(), rt.st.ArchivedMilestones())
	}
	if cmd.Flags().Changed("description") {
		updated.Body = taskBody
	}

	if err := rt.st.UpsertTask(ctx, &updated); err != nil {
		return err
	}
	fmt.Printf("Updated %s\n", updated.ID)
	return nil
}

func runTaskView(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	t := resolve.FindTaskByLooseID(rt.st.Tasks(), args[0])
	if t == nil {
		canonical := resolve.EnsureTaskPrefix(args[0], rt.cfg.TaskPrefix)
		loaded, err := rt.st.LoadTask(ctx, canonical)
		if err != nil {
			return err
		}
		if loaded == nil {
			return fmt.Errorf("task %s: %w", args[0], types.ErrNotFound)
		}
		t = loaded
	}

	fmt.Printf("%s  %s\n", t.ID, t.Title)
	fmt.Printf("Status:    %s\n", t.Status)
	if t.Priority != "" {
		fmt.Printf("Priority:  %s\n", t.Priority)
	}
	if len(t.Assignee) > 0 {
		fmt.Printf("Assignee:  %s\n", strings.Join(t.Assignee, ", "))
	}
	if len(t.Labels) > 0 {
		fmt.Printf("Labels:    %s\n", strings.Join(t.Labels, ", "))
	}
	if t.Milestone != "" {
		fmt.Printf("Milestone: %s\n", t.Milestone)
	}
	if t.IsCrossBranch() {
		fmt.Printf("Branch:    %s (read-only)\n", t.Branch)
	}
	if t.Body != "" {
		fmt.Printf("\n%s\n", t.Body)
	}
	return nil
}
