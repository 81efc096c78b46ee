// Command backlog manages a markdown-file-backed task tracker: tasks,
// milestones, documents, and decisions stored under backlog/ in a git
// repository.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/gitbranch"
	"github.com/Wilson-G/Backlog.md/internal/loader"
	"github.com/Wilson-G/Backlog.md/internal/search"
	"github.com/Wilson-G/Backlog.md/internal/sequence"
	"github.com/Wilson-G/Backlog.md/internal/store"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Markdown-native task manager",
	Long: `backlog manages project work items as plain markdown files inside
your git repository. Tasks, milestones, documents, and decisions live
under backlog/ and travel with your code.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.WarnLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// errNoProject is returned when no backlog project is found in the
// current directory or any parent.
var errNoProject = errors.New("no backlog project found (run 'backlog init' first)")

// findProjectRoot walks up from the working directory until it finds a
// backlog/config.yml.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if config.Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNoProject
		}
		dir = parent
	}
}

// runtime bundles the wired components for one in-process command.
type runtime struct {
	root     string
	cfg      *config.Config
	ld       *loader.FileStore
	st       *store.ContentStore
	svc      *search.Service
	seq      *sequence.Sequencer
	branches *gitbranch.Client
}

// openRuntime locates the project, hydrates the store, and wires the
// services on top of it.
func openRuntime(ctx context.Context) (*runtime, error) {
	root, err := findProjectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	ld := loader.New(root)
	st := store.New(ld, cfg, root)
	if err := st.Ensure(ctx); err != nil {
		st.Dispose()
		return nil, err
	}
	return &runtime{
		root:     root,
		cfg:      cfg,
		ld:       ld,
		st:       st,
		svc:      search.New(st),
		seq:      sequence.New(st, ld),
		branches: gitbranch.New(root),
	}, nil
}

func (r *runtime) Close() {
	if r.svc != nil {
		r.svc.Close()
	}
	r.st.Dispose()
}
