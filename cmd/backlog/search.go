package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Wilson-G/Backlog.md/internal/search"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

var (
	searchLimit     int
	searchTypes     []string
	searchStatus    []string
	searchPriority  []string
	searchLabels    []string
	searchMilestone []string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search tasks, documents, and decisions",
	Long: `Fuzzy-search titles and content across the project, with optional
filters. Filters combine with AND across dimensions and OR within one.

Examples:
  backlog search auth
  backlog search --status "To Do" --status "In Progress" --priority high
  backlog search deploy --type task --limit 5
  backlog search --milestone m-1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum results (0 = configured cap for ranked queries, unlimited for filter listings)")
	searchCmd.Flags().StringSliceVar(&searchTypes, "type", nil, "Restrict to entity kinds (task, document, decision)")
	searchCmd.Flags().StringSliceVarP(&searchStatus, "status", "s", nil, "Filter by status")
	searchCmd.Flags().StringSliceVarP(&searchPriority, "priority", "p", nil, "Filter by priority")
	searchCmd.Flags().StringSliceVarP(&searchLabels, "label", "l", nil, "Filter by label")
	searchCmd.Flags().StringSliceVarP(&searchMilestone, "milestone", "m", nil, "Filter by milestone")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Emit results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	req := search.Request{
		Limit: searchLimit,
		Filters: search.Filters{
			Status:    searchStatus,
			Priority:  searchPriority,
			Labels:    searchLabels,
			Milestone: searchMilestone,
		},
	}
	if len(args) == 1 {
		req.Query = args[0]
	}
	for _, t := range searchTypes {
		kind := types.EntityKind(t)
		if !kind.IsValid() {
			return fmt.Errorf("unknown entity kind: %s", t)
		}
		req.Types = append(req.Types, kind)
	}

	results := rt.svc.Search(req)

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%-10s %-12s %s\n", r.Kind, r.ID(), r.Title())
	}
	return nil
}
