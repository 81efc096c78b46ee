package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Wilson-G/Backlog.md/internal/gitbranch"
	"github.com/Wilson-G/Backlog.md/internal/resolve"
	"github.com/Wilson-G/Backlog.md/internal/search"
	"github.com/Wilson-G/Backlog.md/internal/sequence"
	"github.com/Wilson-G/Backlog.md/internal/store"
	"github.com/Wilson-G/Backlog.md/internal/types"
)

// Server serves the JSON protocol over a unix socket.
type Server struct {
	store    *store.ContentStore
	search   *search.Service
	seq      *sequence.Sequencer
	branches *gitbranch.Client
	logger   *log.Logger

	// Swallow the store's first ready event so clients are not told to
	// refresh state they are about to fetch anyway. Opt-in: a store
	// that is re-ensured after disposal emits a legitimate ready that
	// default behavior must not hide.
	skipInitialReady bool
	readySwallowed   bool

	mu       sync.Mutex
	ln       net.Listener
	conns    map[string]*clientConn
	unsub    func()
	shutdown bool

	wg sync.WaitGroup
}

// clientConn is one accepted connection. Writes are serialized so
// responses and push signals never interleave mid-line.
type clientConn struct {
	id         string
	conn       net.Conn
	enc        *json.Encoder
	writeMu    sync.Mutex
	subscribed bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSkipInitialReady suppresses the push signal for the store's first
// ready event.
func WithSkipInitialReady() ServerOption {
	return func(s *Server) { s.skipInitialReady = true }
}

// NewServer wires the protocol onto the given components.
func NewServer(st *store.ContentStore, svc *search.Service, seq *sequence.Sequencer, branches *gitbranch.Client, opts ...ServerOption) *Server {
	s := &Server{
		store:    st,
		search:   svc,
		seq:      seq,
		branches: branches,
		logger:   log.WithPrefix("rpc"),
		conns:    make(map[string]*clientConn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsub = st.Subscribe(s.onStoreChange)
	return s
}

// onStoreChange translates store events into push signals.
func (s *Server) onStoreChange(ev store.Event) {
	switch ev.Type {
	case store.ChangeReady:
		s.mu.Lock()
		swallow := s.skipInitialReady && !s.readySwallowed
		s.readySwallowed = true
		s.mu.Unlock()
		if swallow {
			return
		}
		s.push(SignalTasksUpdated)
	case store.ChangeTask, store.ChangeDocument, store.ChangeDecision, store.ChangeMilestone:
		s.push(SignalTasksUpdated)
	case store.ChangeConfig:
		s.push(SignalConfigUpdated)
	}
}

// push delivers a signal to every subscribed connection. A connection
// that fails to take the write is dropped.
func (s *Server) push(name string) {
	s.mu.Lock()
	conns := make([]*clientConn, 0, len(s.conns))
	for _, c := range s.conns {
		if c.subscribed {
			conns = append(conns, c)
		}
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.writeMu.Lock()
		err := c.enc.Encode(Signal{Signal: name})
		c.writeMu.Unlock()
		if err != nil {
			s.logger.Debug("dropping unresponsive subscriber", "conn", c.id)
			s.removeConn(c)
		}
	}
}

// Serve listens on socketPath until ctx is canceled. A stale socket file
// from a previous run is replaced.
func (s *Server) Serve(ctx context.Context, socketPath string) error {
	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.logger.Info("listening", "socket", socketPath)
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.shutdown
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		c := &clientConn{
			id:   uuid.NewString(),
			conn: conn,
			enc:  json.NewEncoder(conn),
		}
		s.mu.Lock()
		s.conns[c.id] = c
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, c)
		}()
	}
}

// Close stops the listener and disconnects every client. Idempotent.
func (s *Server) Close() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	ln := s.ln
	conns := make([]*clientConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.conn.Close()
	}
	s.wg.Wait()
}

func (s *Server) removeConn(c *clientConn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	_ = c.conn.Close()
}

func (s *Server) handleConn(ctx context.Context, c *clientConn) {
	defer s.removeConn(c)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		var resp Response
		if err := json.Unmarshal(line, &req); err != nil {
			resp = fail("invalid request: " + err.Error())
		} else {
			resp = s.dispatch(ctx, c, &req)
		}
		c.writeMu.Lock()
		err := c.enc.Encode(resp)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *clientConn, req *Request) Response {
	switch req.Operation {
	case OpPing:
		return ok(map[string]string{"status": "ok"})
	case OpListTasks:
		return s.handleListTasks(ctx, req)
	case OpGetTask:
		return s.handleGetTask(ctx, req)
	case OpUpsertTask:
		return s.handleUpsertTask(ctx, req)
	case OpSearch:
		return s.handleSearch(req)
	case OpResolveMilestone:
		return s.handleResolveMilestone(req)
	case OpReorderTask:
		return s.handleReorder(ctx, req)
	case OpMoveTask:
		return s.handleMove(ctx, req)
	case OpListSequences:
		return s.handleListSequences(ctx)
	case OpSubscribe:
		s.mu.Lock()
		c.subscribed = true
		s.mu.Unlock()
		return ok(map[string]string{"subscription": c.id})
	default:
		return fail("unknown operation: " + req.Operation)
	}
}

func (s *Server) handleListTasks(ctx context.Context, req *Request) Response {
	var args ListTasksArgs
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return fail("invalid list args: " + err.Error())
		}
	}
	tasks := s.store.Tasks()
	if args.IncludeCrossBranch && s.branches != nil {
		remote, err := s.branches.CrossBranchTasks(ctx)
		if err != nil {
			// Branch reads are best-effort; the current branch's view
			// is still authoritative.
			s.logger.Warn("cross-branch read failed", "err", err)
		} else {
			tasks = sequence.Overlay(tasks, remote)
		}
	}
	return ok(tasks)
}

func (s *Server) handleGetTask(ctx context.Context, req *Request) Response {
	var args GetTaskArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail("invalid get args: " + err.Error())
	}
	if t := resolve.FindTaskByLooseID(s.store.Tasks(), args.ID); t != nil {
		return ok(t)
	}
	canonical := resolve.EnsureTaskPrefix(args.ID, s.store.Config().TaskPrefix)
	t, err := s.store.LoadTask(ctx, canonical)
	if err != nil {
		return fail(err.Error())
	}
	if t == nil {
		return fail(fmt.Sprintf("task %s: %v", args.ID, types.ErrNotFound))
	}
	return ok(t)
}

func (s *Server) handleUpsertTask(ctx context.Context, req *Request) Response {
	var t types.Task
	if err := json.Unmarshal(req.Args, &t); err != nil {
		return fail("invalid task: " + err.Error())
	}
	if t.Milestone != "" {
		t.Milestone = resolve.ResolveMilestoneInput(t.Milestone, s.store.Milestones(), s.store.ArchivedMilestones())
	}
	if err := s.store.UpsertTask(ctx, &t); err != nil {
		return fail(err.Error())
	}
	return ok(&t)
}

func (s *Server) handleSearch(req *Request) Response {
	var sreq search.Request
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &sreq); err != nil {
			return fail("invalid search request: " + err.Error())
		}
	}
	return ok(s.search.Search(sreq))
}

func (s *Server) handleResolveMilestone(req *Request) Response {
	var args ResolveMilestoneArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail("invalid resolve args: " + err.Error())
	}
	resolved := resolve.ResolveMilestoneInput(args.Input, s.store.Milestones(), s.store.ArchivedMilestones())
	return ok(ResolveMilestoneResult{Resolved: resolved})
}

func (s *Server) handleReorder(ctx context.Context, req *Request) Response {
	var args sequence.ReorderRequest
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail("invalid reorder request: " + err.Error())
	}
	if err := s.seq.ReorderTask(ctx, args); err != nil {
		return fail(err.Error())
	}
	return ok(map[string]string{"reordered": args.TaskID})
}

func (s *Server) handleMove(ctx context.Context, req *Request) Response {
	var args sequence.MoveRequest
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail("invalid move request: " + err.Error())
	}
	if err := s.seq.MoveTaskInSequences(ctx, args); err != nil {
		return fail(err.Error())
	}
	return ok(map[string]string{"moved": args.TaskID})
}

func (s *Server) handleListSequences(ctx context.Context) Response {
	seqs, err := s.seq.ListActiveSequences(ctx)
	if err != nil {
		return fail(err.Error())
	}
	return ok(seqs)
}
