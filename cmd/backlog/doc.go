package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

var docBody string

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage project documents",
}

var docCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocCreate,
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE:  runDocList,
}

var decisionCmd = &cobra.Command{
	Use:   "decision",
	Short: "Manage decision records",
}

var decisionCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a decision record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecisionCreate,
}

var decisionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decision records",
	RunE:  runDecisionList,
}

func init() {
	docCreateCmd.Flags().StringVarP(&docBody, "content", "c", "", "Markdown content")
	decisionCreateCmd.Flags().StringVarP(&docBody, "content", "c", "", "Markdown content")
	docCmd.AddCommand(docCreateCmd, docListCmd)
	decisionCmd.AddCommand(decisionCreateCmd, decisionListCmd)
	rootCmd.AddCommand(docCmd, decisionCmd)
}

func nextNumericID(prefix string, existing []string) string {
	max := 0
	for _, id := range existing {
		segs, ok := types.NumericSegments(types.StripIDPrefix(id))
		if ok && len(segs) == 1 && segs[0] > max {
			max = segs[0]
		}
	}
	return prefix + "-" + strconv.Itoa(max+1)
}

func runDocCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	var ids []string
	for _, d := range rt.st.Documents() {
		ids = append(ids, d.ID)
	}
	d := &types.Document{
		ID:    nextNumericID(config.DefaultDocPrefix, ids),
		Title: args[0],
		Body:  docBody,
	}
	if err := rt.st.UpsertDocument(ctx, d); err != nil {
		return err
	}
	fmt.Printf("Created %s: %s\n", d.ID, d.Title)
	return nil
}

func runDocList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	docs := rt.st.Documents()
	if len(docs) == 0 {
		fmt.Println("No documents.")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%-8s %s\n", d.ID, d.Title)
	}
	return nil
}

func runDecisionCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	var ids []string
	for _, d := range rt.st.Decisions() {
		ids = append(ids, d.ID)
	}
	d := &types.Decision{
		ID:    nextNumericID(config.DefaultDecisionPrefix, ids),
		Title: args[0],
		Body:  docBody,
	}
	if err := rt.st.UpsertDecision(ctx, d); err != nil {
		return err
	}
	fmt.Printf("Created %s: %s\n", d.ID, d.Title)
	return nil
}

func runDecisionList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	decisions := rt.st.Decisions()
	if len(decisions) == 0 {
		fmt.Println("No decisions.")
		return nil
	}
	for _, d := range decisions {
		status := d.Status
		if status == "" {
			status = "proposed"
		}
		fmt.Printf("%-12s %-10s %s\n", d.ID, status, d.Title)
	}
	return nil
}
