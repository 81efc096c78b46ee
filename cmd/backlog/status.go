package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/rpc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show project overview and daemon state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	tasks := rt.st.Tasks()
	counts := make(map[string]int)
	for _, t := range tasks {
		counts[t.Status]++
	}

	fmt.Printf("Project: %s\n", rt.cfg.ProjectName)
	fmt.Printf("Tasks:   %d\n", len(tasks))
	for _, s := range rt.cfg.Statuses {
		if counts[s] > 0 {
			fmt.Printf("  %-14s %d\n", s+":", counts[s])
		}
	}
	fmt.Printf("Docs:    %d\n", len(rt.st.Documents()))
	fmt.Printf("Decisions: %d\n", len(rt.st.Decisions()))
	fmt.Printf("Milestones: %d active, %d archived\n", len(rt.st.Milestones()), len(rt.st.ArchivedMilestones()))

	socket := filepath.Join(config.Path(rt.root), "backlog.sock")
	if c, err := rpc.Dial(socket); err == nil {
		defer c.Close()
		if err := c.Call(rpc.OpPing, nil, nil); err == nil {
			fmt.Printf("Daemon:  running (%s)\n", socket)
			return nil
		}
	}
	fmt.Println("Daemon:  not running")
	return nil
}
