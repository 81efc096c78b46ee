// Package config loads project configuration from backlog/config.yml.
//
// Unlike a process-wide singleton, each Config is scoped to one project
// directory so multiple projects can be open in the same process (tests,
// multi-project switching).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DirName is the name of the data directory at the project root.
const DirName = "backlog"

// FileName is the configuration file inside the data directory.
const FileName = "config.yml"

// Default identifier prefixes. Entity files are named "<prefix>-<n> - <title>.md".
const (
	DefaultTaskPrefix      = "task"
	DefaultMilestonePrefix = "m"
	DefaultDocPrefix       = "doc"
	DefaultDecisionPrefix  = "decision"
)

// DefaultStatuses is the ordered status set used when config.yml does not
// override it.
var DefaultStatuses = []string{"To Do", "In Progress", "Done"}

// Config holds the project settings consumed by the store and sequencer.
type Config struct {
	// ProjectName is a display name for the project.
	ProjectName string

	// Statuses is the ordered set of valid task statuses.
	Statuses []string

	// DefaultStatus is assigned to tasks created without one.
	DefaultStatus string

	// TaskPrefix is the canonical ID prefix for tasks.
	TaskPrefix string

	// MaxSearchResults caps search results when the caller gives no limit.
	MaxSearchResults int

	v *viper.Viper
}

// Path returns the data directory for a project root.
func Path(root string) string {
	return filepath.Join(root, DirName)
}

// FilePath returns the config file path for a project root.
func FilePath(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// Exists reports whether the project at root has been initialized.
func Exists(root string) bool {
	_, err := os.Stat(FilePath(root))
	return err == nil
}

// Load reads backlog/config.yml under root. A missing file yields the
// defaults; any other read error is returned.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(FilePath(root))
	v.SetConfigType("yaml")

	// Environment variables take precedence over the config file,
	// e.g. BACKLOG_DEFAULT_STATUS, BACKLOG_TASK_PREFIX.
	v.SetEnvPrefix("BACKLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("project_name", "")
	v.SetDefault("statuses", DefaultStatuses)
	v.SetDefault("default_status", DefaultStatuses[0])
	v.SetDefault("task_prefix", DefaultTaskPrefix)
	v.SetDefault("max_search_results", 50)

	// An uninitialized project has no config file yet; serve defaults
	// so the store can start before ensureConfigWatcher kicks in.
	if Exists(root) {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", FilePath(root), err)
		}
	}

	cfg := &Config{
		ProjectName:      v.GetString("project_name"),
		Statuses:         v.GetStringSlice("statuses"),
		DefaultStatus:    v.GetString("default_status"),
		TaskPrefix:       v.GetString("task_prefix"),
		MaxSearchResults: v.GetInt("max_search_results"),
		v:                v,
	}
	if len(cfg.Statuses) == 0 {
		cfg.Statuses = DefaultStatuses
	}
	if cfg.DefaultStatus == "" {
		cfg.DefaultStatus = cfg.Statuses[0]
	}
	if cfg.TaskPrefix == "" {
		cfg.TaskPrefix = DefaultTaskPrefix
	}
	return cfg, nil
}

// Write creates backlog/config.yml with defaults for a new project.
func Write(root, projectName string) error {
	if err := os.MkdirAll(Path(root), 0o755); err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigFile(FilePath(root))
	v.SetConfigType("yaml")
	v.Set("project_name", projectName)
	v.Set("statuses", DefaultStatuses)
	v.Set("default_status", DefaultStatuses[0])
	v.Set("task_prefix", DefaultTaskPrefix)
	v.Set("max_search_results", 50)
	return v.WriteConfig()
}

// IsValidStatus reports whether s is in the configured status set.
func (c *Config) IsValidStatus(s string) bool {
	for _, st := range c.Statuses {
		if st == s {
			return true
		}
	}
	return false
}
