// Package loader reads and writes individual entity files.
//
// Each entity is one markdown file with a YAML frontmatter block, named
// "<id> - <sanitized title>.md" inside the backlog data directory. The
// loader is the only writer-of-record for files on disk; the content
// store mirrors what the loader persists.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

// Subdirectories of the backlog data directory, one per entity collection.
const (
	TasksDir              = "tasks"
	DocsDir               = "docs"
	DecisionsDir          = "decisions"
	MilestonesDir         = "milestones"
	ArchivedMilestonesDir = "archive/milestones"
)

// SequencesFile holds the milestone-independent task sequences.
const SequencesFile = "sequences.yml"

// FileStore loads and persists entities under one project root.
type FileStore struct {
	dir    string // the backlog data directory
	logger *log.Logger
}

// New creates a FileStore for the project at root.
func New(root string) *FileStore {
	return &FileStore{
		dir:    config.Path(root),
		logger: log.WithPrefix("loader"),
	}
}

// Dir returns the backlog data directory the store operates on.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// Init creates the directory skeleton for an uninitialized project.
func (fs *FileStore) Init() error {
	for _, d := range []string{TasksDir, DocsDir, DecisionsDir, MilestonesDir, ArchivedMilestonesDir} {
		if err := os.MkdirAll(filepath.Join(fs.dir, d), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}

// EntityIDFromPath extracts the entity ID from a file path like
// "backlog/tasks/task-12 - Setup-auth.md". ok is false for paths that do
// not follow the naming convention; callers treat those as no-ops.
func EntityIDFromPath(path string) (id string, ok bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".md") {
		return "", false
	}
	base = strings.TrimSuffix(base, ".md")
	if i := strings.Index(base, " - "); i > 0 {
		base = base[:i]
	}
	if base == "" || !strings.Contains(base, "-") {
		return "", false
	}
	return base, true
}

// KindFromPath maps a file path to the entity collection it belongs to.
func KindFromPath(path string) (types.EntityKind, bool) {
	dir := filepath.Base(filepath.Dir(path))
	switch dir {
	case TasksDir:
		return types.KindTask, true
	case DocsDir:
		return types.KindDocument, true
	case DecisionsDir:
		return types.KindDecision, true
	}
	return "", false
}

// sanitizeTitle converts a title into the filename fragment after the ID.
func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r == ' ':
			b.WriteRune('-')
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			// skip characters that are unsafe in filenames
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

// findFileByID locates the file for an entity ID inside a collection
// directory, tolerating title changes (the filename suffix may be stale).
func (fs *FileStore) findFileByID(subdir, id string) string {
	matches, _ := filepath.Glob(filepath.Join(fs.dir, subdir, id+" - *.md"))
	if len(matches) > 0 {
		sort.Strings(matches)
		return matches[0]
	}
	bare := filepath.Join(fs.dir, subdir, id+".md")
	if _, err := os.Stat(bare); err == nil {
		return bare
	}
	return ""
}

func (fs *FileStore) entityPath(subdir, id, title string) string {
	if existing := fs.findFileByID(subdir, id); existing != "" {
		return existing
	}
	name := id + ".md"
	if frag := sanitizeTitle(title); frag != "" {
		name = id + " - " + frag + ".md"
	}
	return filepath.Join(fs.dir, subdir, name)
}

// writeEntity atomically persists frontmatter+body to path. The write is
// guarded by a sidecar flock so concurrent processes (CLI and daemon)
// do not interleave partial files.
func (fs *FileStore) writeEntity(path string, meta any, body string) error {
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n")
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// parseEntity splits a file into its YAML frontmatter and markdown body.
func parseEntity(path string, meta any) (body string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return ParseEntityBytes(path, data, meta)
}

// ParseEntityBytes parses raw entity file content: YAML frontmatter is
// decoded into meta and the markdown body is returned. path appears in
// errors only; the content may come from anywhere (a file, git show).
func ParseEntityBytes(path string, data []byte, meta any) (body string, err error) {
	content := string(data)
	if !strings.HasPrefix(content, "---\n") {
		return "", &types.ParseError{Path: path, Err: fmt.Errorf("missing frontmatter")}
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", &types.ParseError{Path: path, Err: fmt.Errorf("unterminated frontmatter")}
	}
	if err := yaml.Unmarshal([]byte(rest[:end+1]), meta); err != nil {
		return "", &types.ParseError{Path: path, Err: err}
	}
	body = rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")
	return body, nil
}

// listDir returns the markdown files of a collection directory, sorted by
// name. A missing directory is an empty collection, not an error.
func (fs *FileStore) listDir(subdir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dir, subdir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		files = append(files, filepath.Join(fs.dir, subdir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ---- Tasks ----

// ListTasks loads every task file. A file that fails to parse is logged
// and skipped so one corrupt file never aborts a cache build.
func (fs *FileStore) ListTasks(ctx context.Context) ([]*types.Task, error) {
	files, err := fs.listDir(TasksDir)
	if err != nil {
		return nil, err
	}
	tasks := make([]*types.Task, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var t types.Task
		body, err := parseEntity(f, &t)
		if err != nil {
			fs.logger.Warn("skipping malformed task file", "path", f, "err", err)
			continue
		}
		t.Body = body
		if t.ID == "" {
			if id, ok := EntityIDFromPath(f); ok {
				t.ID = id
			} else {
				fs.logger.Warn("skipping task file without id", "path", f)
				continue
			}
		}
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

// LoadTask loads one task by canonical ID. Returns (nil, nil) when no
// file exists for the ID.
func (fs *FileStore) LoadTask(ctx context.Context, id string) (*types.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := fs.findFileByID(TasksDir, id)
	if path == "" {
		return nil, nil
	}
	var t types.Task
	body, err := parseEntity(path, &t)
	if err != nil {
		return nil, err
	}
	t.Body = body
	if t.ID == "" {
		t.ID = id
	}
	return &t, nil
}

// WriteTask persists a task. Cross-branch snapshots are rejected: their
// authoritative copy lives on another branch.
func (fs *FileStore) WriteTask(ctx context.Context, t *types.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.IsCrossBranch() {
		return &types.ValidationError{Msg: fmt.Sprintf("task %s is read-only (branch %s)", t.ID, t.Branch)}
	}
	path := fs.entityPath(TasksDir, t.ID, t.Title)
	return fs.writeEntity(path, t, t.Body)
}

// DeleteTask removes a task's backing file. Deleting an absent task is a
// no-op.
func (fs *FileStore) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := fs.findFileByID(TasksDir, id)
	if path == "" {
		return nil
	}
	return os.Remove(path)
}

// ---- Documents ----

// ListDocuments loads every document file, skipping malformed ones.
func (fs *FileStore) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	files, err := fs.listDir(DocsDir)
	if err != nil {
		return nil, err
	}
	docs := make([]*types.Document, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var d types.Document
		body, err := parseEntity(f, &d)
		if err != nil {
			fs.logger.Warn("skipping malformed document file", "path", f, "err", err)
			continue
		}
		d.Body = body
		if d.ID == "" {
			if id, ok := EntityIDFromPath(f); ok {
				d.ID = id
			} else {
				continue
			}
		}
		docs = append(docs, &d)
	}
	return docs, nil
}

// WriteDocument persists a document.
func (fs *FileStore) WriteDocument(ctx context.Context, d *types.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fs.writeEntity(fs.entityPath(DocsDir, d.ID, d.Title), d, d.Body)
}

// ---- Decisions ----

// ListDecisions loads every decision file, skipping malformed ones.
func (fs *FileStore) ListDecisions(ctx context.Context) ([]*types.Decision, error) {
	files, err := fs.listDir(DecisionsDir)
	if err != nil {
		return nil, err
	}
	decisions := make([]*types.Decision, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var d types.Decision
		body, err := parseEntity(f, &d)
		if err != nil {
			fs.logger.Warn("skipping malformed decision file", "path", f, "err", err)
			continue
		}
		d.Body = body
		if d.ID == "" {
			if id, ok := EntityIDFromPath(f); ok {
				d.ID = id
			} else {
				continue
			}
		}
		decisions = append(decisions, &d)
	}
	return decisions, nil
}

// WriteDecision persists a decision.
func (fs *FileStore) WriteDecision(ctx context.Context, d *types.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fs.writeEntity(fs.entityPath(DecisionsDir, d.ID, d.Title), d, d.Body)
}

// ---- Milestones ----

func (fs *FileStore) listMilestones(ctx context.Context, subdir string, archived bool) ([]*types.Milestone, error) {
	files, err := fs.listDir(subdir)
	if err != nil {
		return nil, err
	}
	milestones := make([]*types.Milestone, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var m types.Milestone
		body, err := parseEntity(f, &m)
		if err != nil {
			fs.logger.Warn("skipping malformed milestone file", "path", f, "err", err)
			continue
		}
		if m.Description == "" {
			m.Description = strings.TrimSpace(body)
		}
		if m.ID == "" {
			if id, ok := EntityIDFromPath(f); ok {
				m.ID = id
			} else {
				continue
			}
		}
		m.Archived = archived
		milestones = append(milestones, &m)
	}
	return milestones, nil
}

// ListMilestones loads the active milestone collection.
func (fs *FileStore) ListMilestones(ctx context.Context) ([]*types.Milestone, error) {
	return fs.listMilestones(ctx, MilestonesDir, false)
}

// ListArchivedMilestones loads the archived milestone collection. It is
// kept separate from the active one and never merged into it.
func (fs *FileStore) ListArchivedMilestones(ctx context.Context) ([]*types.Milestone, error) {
	return fs.listMilestones(ctx, ArchivedMilestonesDir, true)
}

// WriteMilestone persists a milestone into the collection matching its
// archived flag.
func (fs *FileStore) WriteMilestone(ctx context.Context, m *types.Milestone) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subdir := MilestonesDir
	if m.Archived {
		subdir = ArchivedMilestonesDir
	}
	return fs.writeEntity(fs.entityPath(subdir, m.ID, m.Title), m, m.Description)
}

// ArchiveMilestone moves a milestone from the active collection into
// the archive, setting its archived flag. The active file is removed
// only after the archived copy is written.
func (fs *FileStore) ArchiveMilestone(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := fs.findFileByID(MilestonesDir, id)
	if path == "" {
		return fmt.Errorf("milestone %s: %w", id, types.ErrNotFound)
	}
	var m types.Milestone
	body, err := parseEntity(path, &m)
	if err != nil {
		return err
	}
	if m.Description == "" {
		m.Description = strings.TrimSpace(body)
	}
	if m.ID == "" {
		m.ID = id
	}
	m.Archived = true
	if err := fs.WriteMilestone(ctx, &m); err != nil {
		return err
	}
	return os.Remove(path)
}

// ---- Sequences ----

type sequencesFile struct {
	Sequences []types.Sequence `yaml:"sequences"`
}

// LoadSequences reads sequences.yml. A missing file is an empty list.
func (fs *FileStore) LoadSequences(ctx context.Context) ([]types.Sequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(fs.dir, SequencesFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f sequencesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &types.ParseError{Path: SequencesFile, Err: err}
	}
	return f.Sequences, nil
}

// SaveSequences atomically rewrites sequences.yml.
func (fs *FileStore) SaveSequences(ctx context.Context, seqs []types.Sequence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := yaml.Marshal(sequencesFile{Sequences: seqs})
	if err != nil {
		return err
	}
	path := filepath.Join(fs.dir, SequencesFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
