package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/rpc"
)

var (
	serveSocket    string
	serveAllEvents bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backlog daemon",
	Long: `Start a long-running server that keeps the project cache warm,
watches the file tree for changes, and answers client requests over a
unix socket. Connected subscribers receive change signals as files are
edited, whether through this process or externally (editors, git).

Examples:
  backlog serve
  backlog serve --socket /tmp/backlog.sock`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "Socket path (default backlog/backlog.sock)")
	serveCmd.Flags().BoolVar(&serveAllEvents, "all-events", false, "Also push the initial ready signal to subscribers")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.st.EnsureConfigWatcher(); err != nil {
		return err
	}

	socket := serveSocket
	if socket == "" {
		socket = filepath.Join(config.Path(rt.root), "backlog.sock")
	}

	opts := []rpc.ServerOption{}
	if !serveAllEvents {
		// Clients fetch full state right after connecting, so the
		// ready signal for the hydration they just observed is noise.
		opts = append(opts, rpc.WithSkipInitialReady())
	}

	srv := rpc.NewServer(rt.st, rt.svc, rt.seq, rt.branches, opts...)
	defer srv.Close()

	log.Info("backlog daemon starting", "project", rt.cfg.ProjectName, "socket", socket)
	return srv.Serve(ctx, socket)
}
