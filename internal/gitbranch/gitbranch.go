// Package gitbranch reads task snapshots from non-current git branches
// so they can be overlaid onto the active branch's view. Everything here
// is read-only: branch enumeration and object reads, never checkouts or
// commits.
package gitbranch

import (
	"context"
	"fmt"
	"os/exec"
	"path"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/loader"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

// Client runs read-only git queries against one repository.
type Client struct {
	root   string
	logger *log.Logger
}

// New creates a Client for the repository at root.
func New(root string) *Client {
	return &Client{
		root:   root,
		logger: log.WithPrefix("gitbranch"),
	}
}

func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.root
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentBranch returns the checked-out branch name. A detached HEAD
// reports "HEAD".
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	return c.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// ListBranches returns all local branch names.
func (c *Client) ListBranches(ctx context.Context) ([]string, error) {
	out, err := c.git(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// TasksOnBranch reads every task file committed on branch and parses it
// into a read-only snapshot tagged with the branch name. Files that fail
// to parse are logged and skipped, matching the loader's hydration
// policy.
func (c *Client) TasksOnBranch(ctx context.Context, branch string) ([]*types.Task, error) {
	tasksPath := path.Join(config.DirName, loader.TasksDir)
	out, err := c.git(ctx, "ls-tree", "-r", "--name-only", branch, "--", tasksPath)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var tasks []*types.Task
	for _, file := range strings.Split(out, "\n") {
		if !strings.HasSuffix(file, ".md") {
			continue
		}
		content, err := c.git(ctx, "show", branch+":"+file)
		if err != nil {
			c.logger.Warn("skipping unreadable task file", "branch", branch, "path", file, "err", err)
			continue
		}
		var t types.Task
		body, err := loader.ParseEntityBytes(branch+":"+file, []byte(content), &t)
		if err != nil {
			c.logger.Warn("skipping malformed task file", "branch", branch, "path", file, "err", err)
			continue
		}
		t.Body = body
		if t.ID == "" {
			if id, ok := loader.EntityIDFromPath(file); ok {
				t.ID = id
			} else {
				continue
			}
		}
		t.Branch = branch
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

// CrossBranchTasks gathers task snapshots from every branch except the
// current one. Branches that cannot be read are skipped with a warning
// so one broken ref never hides the rest.
func (c *Client) CrossBranchTasks(ctx context.Context) ([]*types.Task, error) {
	current, err := c.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	branches, err := c.ListBranches(ctx)
	if err != nil {
		return nil, err
	}

	var all []*types.Task
	for _, b := range branches {
		if b == current {
			continue
		}
		tasks, err := c.TasksOnBranch(ctx, b)
		if err != nil {
			c.logger.Warn("skipping unreadable branch", "branch", b, "err", err)
			continue
		}
		all = append(all, tasks...)
	}
	return all, nil
}
