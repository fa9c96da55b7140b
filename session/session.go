// Package session holds the per-connection state of the rong daemon.
//
// A Table is not safe for concurrent use; the server's event loop owns it.
package session

import (
	"bytes"
	"errors"
	"sort"

	"github.com/Paranoid-AF/rong/wire"
)

// ErrRequestTooLong is returned by CheckLimit when the unterminated request line
// grows past the session's limit.
var ErrRequestTooLong = errors.New("request too long")

// ID identifies a session for the lifetime of its connection. IDs are never
// reused within one Table.
type ID uint64

// Session is the server-side state of one connection.
type Session struct {
	ID ID
	// Dir is the working directory relative paths resolve against.
	// It starts at "/" and only the cd command changes it.
	Dir string
	// Closing is set by a handler that wants the connection closed once
	// its response has been written.
	Closing bool

	pending []byte
	limit   int
}

// Feed appends bytes read from the connection to the accumulation buffer.
func (s *Session) Feed(data []byte) {
	s.pending = append(s.pending, data...)
}

// CheckLimit fails with ErrRequestTooLong if the unterminated tail of the
// buffer exceeds the limit. Complete lines still waiting for NextRequest
// do not count.
func (s *Session) CheckLimit() error {
	if s.limit <= 0 {
		return nil
	}
	tail := s.pending
	if i := bytes.LastIndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}
	if len(tail) > s.limit {
		return ErrRequestTooLong
	}
	return nil
}

// NextRequest extracts the next complete request line, without its newline.
// A trailing carriage return is dropped as well.
func (s *Session) NextRequest() (string, bool) {
	line, rest, ok := wire.NextLine(s.pending)
	if !ok {
		return "", false
	}
	req := string(line)
	if n := len(req); n > 0 && req[n-1] == '\r' {
		req = req[:n-1]
	}
	s.pending = rest
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return req, true
}

// Pending returns the number of buffered bytes not yet returned as requests.
func (s *Session) Pending() int {
	return len(s.pending)
}

// Table maps live connections to their sessions.
type Table struct {
	sessions map[ID]*Session
	nextID   ID
	limit    int
}

// NewTable returns an empty table whose sessions reject unterminated
// request lines longer than maxRequest bytes. Zero means no limit.
func NewTable(maxRequest int) *Table {
	return &Table{
		sessions: make(map[ID]*Session),
		limit:    maxRequest,
	}
}

// Create registers a new session with its working directory at the
// filesystem root.
func (t *Table) Create() *Session {
	t.nextID++
	s := &Session{ID: t.nextID, Dir: "/", limit: t.limit}
	t.sessions[s.ID] = s
	return s
}

// Get returns the session for id, if it is still live.
func (t *Table) Get(id ID) (*Session, bool) {
	s, ok := t.sessions[id]
	return s, ok
}

// Remove tears down the session for id. It reports whether a session was
// removed; removing an unknown or already removed id is a no-op.
func (t *Table) Remove(id ID) bool {
	s, ok := t.sessions[id]
	if !ok {
		return false
	}
	s.pending = nil
	delete(t.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	return len(t.sessions)
}

// IDs returns the live session ids in ascending order.
func (t *Table) IDs() []ID {
	ids := make([]ID, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
