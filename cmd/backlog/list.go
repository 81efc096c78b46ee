package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Wilson-G/Backlog.md/internal/sequence"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

var (
	listStatus      string
	listMilestone   string
	listCrossBranch bool
	listPlain       bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks grouped by status in their stable order.

Examples:
  backlog list                          # all tasks, grouped by status
  backlog list --status "In Progress"   # one status
  backlog list --milestone m-2          # one milestone
  backlog list --cross-branch           # include tasks from other branches`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Filter by status")
	listCmd.Flags().StringVarP(&listMilestone, "milestone", "m", "", "Filter by milestone")
	listCmd.Flags().BoolVar(&listCrossBranch, "cross-branch", false, "Include read-only tasks from other git branches")
	listCmd.Flags().BoolVar(&listPlain, "plain", false, "Plain output, one task per line")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	tasks := rt.st.Tasks()
	if listCrossBranch {
		remote, err := rt.branches.CrossBranchTasks(ctx)
		if err != nil {
			return err
		}
		tasks = sequence.Overlay(tasks, remote)
	}

	if listMilestone != "" {
		want := listMilestone
		var filtered []*types.Task
		for _, t := range tasks {
			if strings.EqualFold(t.Milestone, want) {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	statuses := rt.cfg.Statuses
	if listStatus != "" {
		statuses = []string{listStatus}
	}

	width := outputWidth()
	printed := 0
	for _, status := range statuses {
		bucket := bucketForStatus(tasks, status, listMilestone)
		if len(bucket) == 0 {
			continue
		}
		if !listPlain {
			fmt.Printf("%s:\n", status)
		}
		for _, t := range bucket {
			printed++
			fmt.Println(truncateLine(formatTaskLine(t, listPlain), width))
		}
		if !listPlain {
			fmt.Println()
		}
	}
	if printed == 0 {
		fmt.Println("No tasks found.")
	}
	return nil
}

// bucketForStatus returns the tasks of one status in stable sequence
// order. With a milestone filter active every milestone value is in the
// bucket already, so ordering falls back to the per-milestone partition.
func bucketForStatus(tasks []*types.Task, status, milestone string) []*types.Task {
	if milestone != "" {
		return sequence.OrderForBucket(tasks, status, firstMilestoneValue(tasks, milestone))
	}
	var out []*types.Task
	seenMilestones := map[string]bool{}
	for _, t := range tasks {
		if t.Status == status && !seenMilestones[t.Milestone] {
			seenMilestones[t.Milestone] = true
			out = append(out, sequence.OrderForBucket(tasks, status, t.Milestone)...)
		}
	}
	return out
}

func firstMilestoneValue(tasks []*types.Task, filter string) string {
	for _, t := range tasks {
		if strings.EqualFold(t.Milestone, filter) {
			return t.Milestone
		}
	}
	return filter
}

func formatTaskLine(t *types.Task, plain bool) string {
	var b strings.Builder
	if !plain {
		b.WriteString("  ")
	}
	b.WriteString(t.ID)
	b.WriteString("  ")
	b.WriteString(t.Title)
	if t.Priority != "" {
		b.WriteString("  [")
		b.WriteString(string(t.Priority))
		b.WriteString("]")
	}
	if t.Milestone != "" {
		b.WriteString("  (")
		b.WriteString(t.Milestone)
		b.WriteString(")")
	}
	if t.IsCrossBranch() {
		b.WriteString("  @")
		b.WriteString(t.Branch)
	}
	return b.String()
}

// truncateLine fits line into width terminal cells, cutting on rune
// boundaries so multibyte titles stay valid UTF-8. Width 0 disables
// truncation.
func truncateLine(line string, width int) string {
	if width <= 0 {
		return line
	}
	runes := []rune(line)
	if len(runes) <= width {
		return line
	}
	return string(runes[:width-1]) + "…"
}

// outputWidth returns the terminal width, or 0 when stdout is not a TTY
// (pipes get untruncated lines).
func outputWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 0
	}
	return w
}
