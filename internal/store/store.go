// Package store maintains the in-memory cache of all backlog entities,
// kept consistent with the on-disk file tree.
//
// The store is the single writer-of-record for the cache: mutations and
// watch-triggered rebuilds are serialized onto one logical update queue,
// while readers get lock-free immutable snapshots (a write replaces the
// snapshot pointer atomically rather than mutating in place). Change
// notifications are coalesced per entity kind.
package store

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/Wilson-G/Backlog.md/internal/config"
	"github.com/Wilson-G/Backlog.md/internal/loader"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

// Loader is the narrow interface the store consumes to hydrate and
// persist entities. *loader.FileStore satisfies it.
type Loader interface {
	ListTasks(ctx context.Context) ([]*types.Task, error)
	LoadTask(ctx context.Context, id string) (*types.Task, error)
	WriteTask(ctx context.Context, t *types.Task) error
	ListDocuments(ctx context.Context) ([]*types.Document, error)
	WriteDocument(ctx context.Context, d *types.Document) error
	ListDecisions(ctx context.Context) ([]*types.Decision, error)
	WriteDecision(ctx context.Context, d *types.Decision) error
	ListMilestones(ctx context.Context) ([]*types.Milestone, error)
	ListArchivedMilestones(ctx context.Context) ([]*types.Milestone, error)
	WriteMilestone(ctx context.Context, m *types.Milestone) error
}

// ChangeType tags a change notification with the entity kind it covers.
type ChangeType string

// Change types delivered to subscribers. Ready is emitted exactly once,
// after the first successful full hydration.
const (
	ChangeReady     ChangeType = "ready"
	ChangeTask      ChangeType = "task"
	ChangeDocument  ChangeType = "document"
	ChangeDecision  ChangeType = "decision"
	ChangeMilestone ChangeType = "milestone"
	ChangeConfig    ChangeType = "config"
)

// Event is delivered to subscribers on every coalesced change.
type Event struct {
	Type ChangeType
}

// Handler receives change events. Handlers run in registration order; a
// panicking handler does not prevent delivery to the rest.
type Handler func(Event)

// State describes the store lifecycle.
type State string

// Lifecycle states.
const (
	StateUninitialized State = "uninitialized"
	StateHydrating     State = "hydrating"
	StateReady         State = "ready"
	StateDisposed      State = "disposed"
)

// snapshot is an immutable point-in-time view of every collection.
// Replaced wholesale on change; never mutated in place.
type snapshot struct {
	tasks      []*types.Task
	taskByID   map[string]*types.Task
	documents  []*types.Document
	decisions  []*types.Decision
	milestones []*types.Milestone
	archived   []*types.Milestone
}

// DefaultDebounceWindow is the quiet period used to coalesce change
// notifications.
const DefaultDebounceWindow = 75 * time.Millisecond

// DefaultPollInterval is the watcher's polling fallback interval, also
// used while waiting for an uninitialized project's config file.
const DefaultPollInterval = 2 * time.Second

// ContentStore is the authoritative in-memory cache of all entities.
// Construct with New; lifecycle is caller-controlled via Ensure/Dispose.
type ContentStore struct {
	ld     Loader
	root   string
	logger *log.Logger

	cfg  atomic.Pointer[config.Config]
	snap atomic.Pointer[snapshot]

	mu         sync.Mutex // serializes mutations and state transitions
	state      State
	hydrated   chan struct{}
	hydrateErr error

	subMu sync.Mutex
	subs  []subscriber
	subID int

	window   time.Duration
	notifier *notifier

	watcher      *dirWatcher
	watchStarted bool
	cfgPolling   bool
	pollInterval time.Duration

	lifetime context.Context
	cancel   context.CancelFunc
}

type subscriber struct {
	id int
	h  Handler
}

// Option configures a ContentStore.
type Option func(*ContentStore)

// WithDebounceWindow overrides the notification coalescing window.
func WithDebounceWindow(d time.Duration) Option {
	return func(s *ContentStore) { s.window = d }
}

// WithPollInterval overrides the watcher poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *ContentStore) { s.pollInterval = d }
}

// New creates a ContentStore for the project at root, consuming entities
// through ld. The store starts uninitialized; call Ensure to hydrate.
func New(ld Loader, cfg *config.Config, root string, opts ...Option) *ContentStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &ContentStore{
		ld:           ld,
		root:         root,
		logger:       log.WithPrefix("store"),
		state:        StateUninitialized,
		window:       DefaultDebounceWindow,
		pollInterval: DefaultPollInterval,
		lifetime:     ctx,
		cancel:       cancel,
	}
	s.cfg.Store(cfg)
	for _, opt := range opts {
		opt(s)
	}
	s.notifier = newNotifier(ctx, s.window, s.flush)
	return s
}

// Config returns the current project configuration.
func (s *ContentStore) Config() *config.Config {
	return s.cfg.Load()
}

// State returns the current lifecycle state.
func (s *ContentStore) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ensure hydrates the cache on first call. Concurrent callers wait for
// the in-flight hydration; calls on a ready store are no-ops returning
// the existing cache. Emits exactly one ready event.
func (s *ContentStore) Ensure(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateDisposed:
		s.mu.Unlock()
		return types.ErrDisposed
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateHydrating:
		done := s.hydrated
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		err := s.hydrateErr
		s.mu.Unlock()
		return err
	}
	s.state = StateHydrating
	s.hydrated = make(chan struct{})
	done := s.hydrated
	s.mu.Unlock()

	snap, err := s.hydrate(ctx)

	s.mu.Lock()
	if s.state == StateDisposed {
		// Disposed mid-hydration: abandon silently, never invoke
		// callbacks on a disposed store.
		s.hydrateErr = types.ErrDisposed
		close(done)
		s.mu.Unlock()
		return types.ErrDisposed
	}
	if err != nil {
		s.state = StateUninitialized
		s.hydrateErr = err
		close(done)
		s.mu.Unlock()
		return err
	}
	s.snap.Store(snap)
	s.state = StateReady
	s.hydrateErr = nil
	close(done)
	s.mu.Unlock()

	s.broadcast(Event{Type: ChangeReady})
	return nil
}

// hydrate loads every collection concurrently. Individual malformed
// files were already skipped (and logged) by the loader; an error here
// means a whole collection could not be read.
func (s *ContentStore) hydrate(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tasks, err := s.ld.ListTasks(gctx)
		if err != nil {
			return err
		}
		snap.tasks = tasks
		return nil
	})
	g.Go(func() error {
		docs, err := s.ld.ListDocuments(gctx)
		if err != nil {
			return err
		}
		snap.documents = docs
		return nil
	})
	g.Go(func() error {
		decisions, err := s.ld.ListDecisions(gctx)
		if err != nil {
			return err
		}
		snap.decisions = decisions
		return nil
	})
	g.Go(func() error {
		ms, err := s.ld.ListMilestones(gctx)
		if err != nil {
			return err
		}
		snap.milestones = ms
		return nil
	})
	g.Go(func() error {
		ms, err := s.ld.ListArchivedMilestones(gctx)
		if err != nil {
			return err
		}
		snap.archived = ms
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortTasks(snap.tasks)
	snap.taskByID = indexTasks(snap.tasks)
	return snap, nil
}

func indexTasks(tasks []*types.Task) map[string]*types.Task {
	m := make(map[string]*types.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}

// sortTasks keeps the canonical snapshot order: ascending numeric ID.
func sortTasks(tasks []*types.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return types.CompareIDsDesc(tasks[j].ID, tasks[i].ID)
	})
}

// Tasks returns a point-in-time snapshot of all tasks. Never blocks;
// returns nil before the first hydration. Returned tasks are copies, so
// mutating them cannot corrupt the snapshot.
func (s *ContentStore) Tasks() []*types.Task {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]*types.Task, len(snap.tasks))
	for i, t := range snap.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Documents returns a point-in-time snapshot of all documents.
func (s *ContentStore) Documents() []*types.Document {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]*types.Document, len(snap.documents))
	for i, d := range snap.documents {
		out[i] = d.Clone()
	}
	return out
}

// Decisions returns a point-in-time snapshot of all decisions.
func (s *ContentStore) Decisions() []*types.Decision {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]*types.Decision, len(snap.decisions))
	for i, d := range snap.decisions {
		out[i] = d.Clone()
	}
	return out
}

// Milestones returns the active milestone collection.
func (s *ContentStore) Milestones() []*types.Milestone {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]*types.Milestone, len(snap.milestones))
	for i, m := range snap.milestones {
		out[i] = m.Clone()
	}
	return out
}

// ArchivedMilestones returns the archived milestone collection.
func (s *ContentStore) ArchivedMilestones() []*types.Milestone {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]*types.Milestone, len(snap.archived))
	for i, m := range snap.archived {
		out[i] = m.Clone()
	}
	return out
}

// Task looks up a task by canonical ID in the current snapshot. The
// returned task is a copy.
func (s *ContentStore) Task(id string) (*types.Task, bool) {
	snap := s.snap.Load()
	if snap == nil {
		return nil, false
	}
	t, ok := snap.taskByID[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// LoadTask returns the cached task for id, asking the loader to hydrate
// it when absent from the cache. A newly hydrated task is inserted into
// the snapshot without a change notification (nothing on disk changed).
func (s *ContentStore) LoadTask(ctx context.Context, id string) (*types.Task, error) {
	if t, ok := s.Task(id); ok {
		return t, nil
	}
	t, err := s.ld.LoadTask(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return nil, types.ErrDisposed
	}
	if cur := s.snap.Load(); cur != nil {
		if cached, ok := cur.taskByID[t.ID]; ok {
			return cached.Clone(), nil
		}
		// The snapshot keeps its own copy so the caller's pointer never
		// aliases cached state.
		s.snap.Store(cur.withTask(t.Clone()))
	}
	return t, nil
}

// withTask clones the snapshot with t inserted or replaced by ID.
func (old *snapshot) withTask(t *types.Task) *snapshot {
	next := &snapshot{
		documents:  old.documents,
		decisions:  old.decisions,
		milestones: old.milestones,
		archived:   old.archived,
	}
	next.tasks = make([]*types.Task, 0, len(old.tasks)+1)
	replaced := false
	for _, existing := range old.tasks {
		if existing.ID == t.ID {
			next.tasks = append(next.tasks, t)
			replaced = true
		} else {
			next.tasks = append(next.tasks, existing)
		}
	}
	if !replaced {
		next.tasks = append(next.tasks, t)
		sortTasks(next.tasks)
	}
	next.taskByID = indexTasks(next.tasks)
	return next
}

// UpsertTask inserts or replaces a task by ID. The loader write happens
// first so the cache never drifts ahead of disk; a write failure leaves
// the cache untouched. Emits a coalesced task notification.
func (s *ContentStore) UpsertTask(ctx context.Context, t *types.Task) error {
	if s.State() == StateDisposed {
		return types.ErrDisposed
	}
	if t.IsCrossBranch() {
		return &types.ValidationError{Msg: "cannot modify task " + t.ID + ": it lives on branch " + t.Branch}
	}
	cfg := s.cfg.Load()
	var statuses []string
	if cfg != nil {
		statuses = cfg.Statuses
		if t.Status == "" {
			t.Status = cfg.DefaultStatus
		}
	}
	if err := t.Validate(statuses); err != nil {
		return err
	}

	now := time.Now().Format(types.DateLayout)
	if t.CreatedDate == "" {
		t.CreatedDate = now
	}
	t.UpdatedDate = now

	if err := s.ld.WriteTask(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return types.ErrDisposed
	}
	if cur := s.snap.Load(); cur != nil {
		s.snap.Store(cur.withTask(t.Clone()))
	}
	s.mu.Unlock()

	s.notify(ChangeTask)
	return nil
}

// UpsertDocument inserts or replaces a document by ID.
func (s *ContentStore) UpsertDocument(ctx context.Context, d *types.Document) error {
	if s.State() == StateDisposed {
		return types.ErrDisposed
	}
	now := time.Now().Format(types.DateLayout)
	if d.CreatedDate == "" {
		d.CreatedDate = now
	}
	d.UpdatedDate = now

	if err := s.ld.WriteDocument(ctx, d); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return types.ErrDisposed
	}
	if cur := s.snap.Load(); cur != nil {
		next := *cur
		next.documents = replaceDocument(cur.documents, d.Clone())
		s.snap.Store(&next)
	}
	s.mu.Unlock()

	s.notify(ChangeDocument)
	return nil
}

func replaceDocument(docs []*types.Document, d *types.Document) []*types.Document {
	out := make([]*types.Document, 0, len(docs)+1)
	replaced := false
	for _, existing := range docs {
		if existing.ID == d.ID {
			out = append(out, d)
			replaced = true
		} else {
			out = append(out, existing)
		}
	}
	if !replaced {
		out = append(out, d)
	}
	return out
}

// UpsertDecision inserts or replaces a decision by ID.
func (s *ContentStore) UpsertDecision(ctx context.Context, d *types.Decision) error {
	if s.State() == StateDisposed {
		return types.ErrDisposed
	}
	now := time.Now().Format(types.DateLayout)
	if d.CreatedDate == "" {
		d.CreatedDate = now
	}
	d.UpdatedDate = now

	if err := s.ld.WriteDecision(ctx, d); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return types.ErrDisposed
	}
	if cur := s.snap.Load(); cur != nil {
		next := *cur
		next.decisions = replaceDecision(cur.decisions, d.Clone())
		s.snap.Store(&next)
	}
	s.mu.Unlock()

	s.notify(ChangeDecision)
	return nil
}

func replaceDecision(decisions []*types.Decision, d *types.Decision) []*types.Decision {
	out := make([]*types.Decision, 0, len(decisions)+1)
	replaced := false
	for _, existing := range decisions {
		if existing.ID == d.ID {
			out = append(out, d)
			replaced = true
		} else {
			out = append(out, existing)
		}
	}
	if !replaced {
		out = append(out, d)
	}
	return out
}

// UpsertMilestone inserts or replaces a milestone in the collection
// matching its archived flag.
func (s *ContentStore) UpsertMilestone(ctx context.Context, m *types.Milestone) error {
	if s.State() == StateDisposed {
		return types.ErrDisposed
	}
	if err := s.ld.WriteMilestone(ctx, m); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return types.ErrDisposed
	}
	if cur := s.snap.Load(); cur != nil {
		next := *cur
		if m.Archived {
			next.archived = replaceMilestone(cur.archived, m.Clone())
		} else {
			next.milestones = replaceMilestone(cur.milestones, m.Clone())
		}
		s.snap.Store(&next)
	}
	s.mu.Unlock()

	s.notify(ChangeMilestone)
	return nil
}

func replaceMilestone(ms []*types.Milestone, m *types.Milestone) []*types.Milestone {
	out := make([]*types.Milestone, 0, len(ms)+1)
	replaced := false
	for _, existing := range ms {
		if existing.ID == m.ID {
			out = append(out, m)
			replaced = true
		} else {
			out = append(out, existing)
		}
	}
	if !replaced {
		out = append(out, m)
	}
	return out
}

// Subscribe registers a handler for coalesced change events and returns
// its unsubscribe function. Handlers are invoked in registration order.
func (s *ContentStore) Subscribe(h Handler) (unsubscribe func()) {
	s.subMu.Lock()
	s.subID++
	id := s.subID
	s.subs = append(s.subs, subscriber{id: id, h: h})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// notify schedules a coalesced notification for kind. Bursts within the
// debounce window collapse into a single event per kind. The watch feed
// routes through here as well, refreshing the kind from disk first.
func (s *ContentStore) notify(kind ChangeType) {
	s.notifier.Trigger(kind)
}

// flush runs when a kind's debounce window closes: refresh the kind from
// the loader and fan the event out.
func (s *ContentStore) flush(kind ChangeType) {
	switch kind {
	case ChangeTask, ChangeDocument, ChangeDecision, ChangeMilestone:
		if err := s.reload(kind); err != nil {
			// Keep serving the last good snapshot.
			s.logger.Warn("reload failed", "kind", kind, "err", err)
			return
		}
	case ChangeConfig:
		cfg, err := config.Load(s.root)
		if err != nil {
			s.logger.Warn("config reload failed", "err", err)
			return
		}
		s.cfg.Store(cfg)
	}
	s.broadcast(Event{Type: kind})
}

// reload re-reads one collection from the loader and swaps it into a new
// snapshot.
func (s *ContentStore) reload(kind ChangeType) error {
	ctx := s.lifetime

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return nil
	}
	cur := s.snap.Load()
	if cur == nil {
		return nil
	}
	next := *cur

	switch kind {
	case ChangeTask:
		tasks, err := s.ld.ListTasks(ctx)
		if err != nil {
			return err
		}
		sortTasks(tasks)
		next.tasks = tasks
		next.taskByID = indexTasks(tasks)
	case ChangeDocument:
		docs, err := s.ld.ListDocuments(ctx)
		if err != nil {
			return err
		}
		next.documents = docs
	case ChangeDecision:
		decisions, err := s.ld.ListDecisions(ctx)
		if err != nil {
			return err
		}
		next.decisions = decisions
	case ChangeMilestone:
		ms, err := s.ld.ListMilestones(ctx)
		if err != nil {
			return err
		}
		archived, err := s.ld.ListArchivedMilestones(ctx)
		if err != nil {
			return err
		}
		next.milestones = ms
		next.archived = archived
	}

	s.snap.Store(&next)
	return nil
}

// broadcast fans an event out to subscribers in registration order. Each
// handler call is isolated so one panicking handler cannot break
// delivery to the rest. No callbacks fire on a disposed store.
func (s *ContentStore) broadcast(ev Event) {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.subMu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.subMu.Unlock()

	for _, sub := range subs {
		s.invoke(sub, ev)
	}
}

func (s *ContentStore) invoke(sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber panicked", "event", ev.Type, "panic", r)
		}
	}()
	sub.h(ev)
}

// handleFileChange routes a raw watch event. Unknown paths are no-ops.
func (s *ContentStore) handleFileChange(ch FileChange) {
	base := filepath.Base(ch.Path)
	if base == config.FileName {
		s.notify(ChangeConfig)
		return
	}
	dir := filepath.Base(filepath.Dir(ch.Path))
	if dir == loader.MilestonesDir || strings.HasSuffix(filepath.ToSlash(filepath.Dir(ch.Path)), loader.ArchivedMilestonesDir) {
		s.notify(ChangeMilestone)
		return
	}
	if kind, ok := loader.KindFromPath(ch.Path); ok {
		switch kind {
		case types.KindTask:
			s.notify(ChangeTask)
		case types.KindDocument:
			s.notify(ChangeDocument)
		case types.KindDecision:
			s.notify(ChangeDecision)
		}
	}
}

// EnsureConfigWatcher lazily starts filesystem watching once the project
// config file exists. On an uninitialized project it polls for the file
// and attaches the watcher when it appears. Safe to call repeatedly.
// A watcher that fails to start degrades to polling inside dirWatcher;
// the store keeps serving the last hydrated snapshot either way.
func (s *ContentStore) EnsureConfigWatcher() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisposed {
		return types.ErrDisposed
	}
	if s.watchStarted {
		return nil
	}

	if config.Exists(s.root) {
		s.startWatchLocked()
		return nil
	}

	if s.cfgPolling {
		return nil
	}
	s.cfgPolling = true
	go s.waitForConfig()
	return nil
}

func (s *ContentStore) waitForConfig() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.lifetime.Done():
			return
		case <-ticker.C:
			if !config.Exists(s.root) {
				continue
			}
			s.mu.Lock()
			if s.state != StateDisposed && !s.watchStarted {
				s.startWatchLocked()
			}
			s.cfgPolling = false
			s.mu.Unlock()
			s.notify(ChangeConfig)
			return
		}
	}
}

func (s *ContentStore) startWatchLocked() {
	w := newDirWatcher(config.Path(s.root), s.pollInterval, s.handleFileChange)
	w.Start(s.lifetime)
	s.watcher = w
	s.watchStarted = true
	if w.IsPolling() {
		s.logger.Info("filesystem events unavailable, watching by polling", "interval", s.pollInterval)
	}
}

// Dispose stops all watches, cancels pending notifications, and clears
// the subscriber list. Idempotent; safe to call while a hydration is in
// flight (the hydration is abandoned silently).
func (s *ContentStore) Dispose() {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.state = StateDisposed
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	s.cancel()
	s.notifier.Stop()

	if w != nil {
		_ = w.Close()
	}

	s.subMu.Lock()
	s.subs = nil
	s.subMu.Unlock()
}
