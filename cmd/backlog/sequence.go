package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wilson-G/Backlog.md/internal/resolve"
	"github.com/Wilson-G/Backlog.md/internal/sequence"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

var (
	reorderStatus    string
	reorderMilestone string

	moveIndex       int
	moveUnsequenced bool
)

var sequenceCmd = &cobra.Command{
	Use:   "sequence",
	Short: "Manage ordered task sequences",
}

var sequenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show active sequences with their tasks",
	RunE:  runSequenceList,
}

var sequenceMoveCmd = &cobra.Command{
	Use:   "move <task-id>",
	Short: "Move a task between sequences",
	Long: `Move a task into the sequence with the given index, creating the
sequence when needed. --unsequenced removes the task from all sequences.

Examples:
  backlog sequence move task-12 --index 2
  backlog sequence move 12 --unsequenced`,
	Args: cobra.ExactArgs(1),
	RunE: runSequenceMove,
}

var reorderCmd = &cobra.Command{
	Use:   "reorder <task-id> <ordered-task-ids...>",
	Short: "Reorder a task within a status column",
	Long: `Move a task to a status and rewrite the ordering of the listed
tasks to match the given order. The moved task must appear in the list.

Examples:
  backlog reorder task-3 task-3 task-1 task-2 --status "In Progress"
  backlog reorder task-3 task-3 task-1 --status Done --milestone m-1`,
	Args: cobra.MinimumNArgs(2),
	RunE: runReorder,
}

func init() {
	reorderCmd.Flags().StringVarP(&reorderStatus, "status", "s", "", "Target status (required)")
	reorderCmd.Flags().StringVarP(&reorderMilestone, "milestone", "m", "", "Target milestone")
	_ = reorderCmd.MarkFlagRequired("status")

	sequenceMoveCmd.Flags().IntVarP(&moveIndex, "index", "i", 0, "Target sequence index")
	sequenceMoveCmd.Flags().BoolVar(&moveUnsequenced, "unsequenced", false, "Remove the task from all sequences")

	sequenceCmd.AddCommand(sequenceListCmd, sequenceMoveCmd)
	rootCmd.AddCommand(sequenceCmd, reorderCmd)
}

func runSequenceList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	seqs, err := rt.seq.ListActiveSequences(ctx)
	if err != nil {
		return err
	}
	if len(seqs) == 0 {
		fmt.Println("No sequences.")
		return nil
	}
	for _, s := range seqs {
		fmt.Printf("Sequence %d:\n", s.Index)
		for _, t := range s.Tasks {
			fmt.Printf("  %s  %s\n", t.ID, t.Title)
		}
	}
	return nil
}

func runSequenceMove(cmd *cobra.Command, args []string) error {
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

	err = rt.seq.MoveTaskInSequences(ctx, sequence.MoveRequest{
		TaskID:              t.ID,
		Unsequenced:         moveUnsequenced,
		TargetSequenceIndex: moveIndex,
	})
	if err != nil {
		return err
	}
	if moveUnsequenced {
		fmt.Printf("Removed %s from all sequences\n", t.ID)
	} else {
		fmt.Printf("Moved %s to sequence %d\n", t.ID, moveIndex)
	}
	return nil
}

func runReorder(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	tasks := rt.st.Tasks()
	canonical := make([]string, 0, len(args))
	for _, loose := range args {
		if t := resolve.FindTaskByLooseID(tasks, loose); t != nil {
			canonical = append(canonical, t.ID)
		} else {
			canonical = append(canonical, resolve.EnsureTaskPrefix(loose, rt.cfg.TaskPrefix))
		}
	}

	err = rt.seq.ReorderTask(ctx, sequence.ReorderRequest{
		TaskID:          canonical[0],
		TargetStatus:    reorderStatus,
		OrderedTaskIDs:  canonical[1:],
		TargetMilestone: reorderMilestone,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Reordered %s into %q\n", canonical[0], reorderStatus)
	return nil
}
