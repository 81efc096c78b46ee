// Package rpc exposes the content store, search, resolver, and sequencer
// over a unix-socket JSON protocol, one request/response pair per line.
// Subscribed connections additionally receive push signals when cached
// state changes.
package rpc

import "encoding/json"

// Request is one client operation. Args carries the operation-specific
// payload, decoded by the handler.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Response is the reply to one Request.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Operations understood by the server.
const (
	OpPing             = "ping"
	OpListTasks        = "tasks/list"
	OpGetTask          = "task/get"
	OpUpsertTask       = "task/upsert"
	OpSearch           = "search"
	OpResolveMilestone = "milestone/resolve"
	OpReorderTask      = "sequence/reorder"
	OpMoveTask         = "sequence/move"
	OpListSequences    = "sequence/list"
	OpSubscribe        = "subscribe"
)

// Signal is a push notification delivered to subscribed connections.
// Signals are opaque change markers; clients re-query for detail.
type Signal struct {
	Signal string `json:"signal"`
}

// Push signal names.
const (
	SignalTasksUpdated  = "tasks-updated"
	SignalConfigUpdated = "config-updated"
)

// ListTasksArgs selects the task read path.
type ListTasksArgs struct {
	IncludeCrossBranch bool `json:"includeCrossBranch,omitempty"`
}

// GetTaskArgs identifies a task by a possibly loose reference.
type GetTaskArgs struct {
	ID string `json:"id"`
}

// ResolveMilestoneArgs carries free text to canonicalize.
type ResolveMilestoneArgs struct {
	Input string `json:"input"`
}

// ResolveMilestoneResult is the canonical form (or the input unchanged).
type ResolveMilestoneResult struct {
	Resolved string `json:"resolved"`
}

func ok(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return fail("encoding response: " + err.Error())
	}
	return Response{Success: true, Data: data}
}

func fail(msg string) Response {
	return Response{Success: false, Error: msg}
}
