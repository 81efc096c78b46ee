package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/loader"
)

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Initialize a backlog project in the current directory",
	Long: `Create the backlog/ directory layout and default configuration.

Examples:
  backlog init              # use the directory name as project name
  backlog init "My App"     # explicit project name`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}
	if config.Exists(root) {
		return fmt.Errorf("backlog project already initialized at %s", config.FilePath(root))
	}

	name := filepath.Base(root)
	if len(args) == 1 && args[0] != "" {
		name = args[0]
	}

	if err := loader.New(root).Init(); err != nil {
		return err
	}
	if err := config.Write(root, name); err != nil {
		return err
	}

	fmt.Printf("Initialized backlog project %q in %s\n", name, config.Path(root))
	return nil
}
