package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/resolve"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

var milestoneDescription string

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Manage milestones",
}

var milestoneCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a milestone",
	Args:  cobra.ExactArgs(1),
	RunE:  runMilestoneCreate,
}

var milestoneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List milestones",
	RunE:  runMilestoneList,
}

var milestoneViewCmd = &cobra.Command{
	Use:   "view <id-or-title>",
	Short: "Show a milestone and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runMilestoneView,
}

var milestoneArchiveCmd = &cobra.Command{
	Use:   "archive <id-or-title>",
	Short: "Move a milestone to the archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runMilestoneArchive,
}

func init() {
	milestoneCreateCmd.Flags().StringVarP(&milestoneDescription, "description", "d", "", "Milestone description")
	milestoneCmd.AddCommand(milestoneCreateCmd, milestoneListCmd, milestoneViewCmd, milestoneArchiveCmd)
	rootCmd.AddCommand(milestoneCmd)
}

func runMilestoneCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	max := 0
	for _, m := range append(rt.st.Milestones(), rt.st.ArchivedMilestones()...) {
		segs, ok := types.NumericSegments(types.StripIDPrefix(m.ID))
		if ok && len(segs) == 1 && segs[0] > max {
			max = segs[0]
		}
	}
	m := &types.Milestone{
		ID:          config.DefaultMilestonePrefix + "-" + strconv.Itoa(max+1),
		Title:       args[0],
		Description: milestoneDescription,
	}
	if err := rt.st.UpsertMilestone(ctx, m); err != nil {
		return err
	}
	fmt.Printf("Created %s: %s\n", m.ID, m.Title)
	return nil
}

func runMilestoneList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	active := rt.st.Milestones()
	archived := rt.st.ArchivedMilestones()
	if len(active) == 0 && len(archived) == 0 {
		fmt.Println("No milestones.")
		return nil
	}
	for _, m := range active {
		fmt.Printf("%-6s %s\n", m.ID, m.Title)
	}
	for _, m := range archived {
		fmt.Printf("%-6s %s (archived)\n", m.ID, m.Title)
	}
	return nil
}

func runMilestoneView(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	m, err := resolve.FindMilestone(args[0], rt.st.Milestones(), rt.st.ArchivedMilestones())
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", m.ID, m.Title)
	if m.Archived {
		fmt.Println("(archived)")
	}
	if m.Description != "" {
		fmt.Printf("\n%s\n", m.Description)
	}

	fmt.Println()
	for _, t := range rt.st.Tasks() {
		if t.Milestone == m.ID {
			fmt.Printf("  %s  %s  [%s]\n", t.ID, t.Title, t.Status)
		}
	}
	return nil
}

func runMilestoneArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	m, err := resolve.FindMilestone(args[0], rt.st.Milestones(), nil)
	if err != nil {
		return err
	}
	if err := rt.ld.ArchiveMilestone(ctx, m.ID); err != nil {
		return err
	}
	fmt.Printf("Archived %s\n", m.ID)
	return nil
}
