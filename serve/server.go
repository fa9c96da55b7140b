package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Paranoid-AF/rong"
	"github.com/Paranoid-AF/rong/buffer"
	"github.com/Paranoid-AF/rong/command"
	"github.com/Paranoid-AF/rong/session"
	"github.com/Paranoid-AF/rong/wire"
)

// Options configures a Server. Zero values select the defaults.
type Options struct {
	Banner string
	// ReadChunk is the most bytes read from a connection at once.
	ReadChunk int
	// MaxRequest is the longest unterminated request line accepted before
	// the connection is dropped. Zero means no limit.
	MaxRequest   int
	WriteTimeout time.Duration
	Registry     *command.Registry
	Store        *buffer.Store
	Logger       *slog.Logger
}

type eventKind int

const (
	evAccepted eventKind = iota
	evData
	evClosed
)

// event is what the acceptor and the per-connection readers hand to the
// loop. They never touch server state themselves.
type event struct {
	kind eventKind
	id   session.ID
	conn net.Conn
	data []byte
	err  error
}

// Server multiplexes any number of client connections over one listening
// Unix socket. The session table, command registry and buffer store are
// owned by a single loop goroutine; commands run one at a time and each
// response is written before the next event is handled.
type Server struct {
	listener net.Listener
	opts     Options
	logger   *slog.Logger

	registry *command.Registry
	store    *buffer.Store
	sessions *session.Table
	conns    map[session.ID]net.Conn

	events  chan event
	readers sync.WaitGroup
}

// NewServer returns a server for an already bound listener. The server
// never creates or removes the socket file.
func NewServer(listener net.Listener, opts Options) *Server {
	if opts.ReadChunk <= 0 {
		opts.ReadChunk = 4096
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = command.NewDefaultRegistry(opts.Logger)
	}
	if opts.Store == nil {
		opts.Store = buffer.NewStore()
	}
	return &Server{
		listener: listener,
		opts:     opts,
		logger:   opts.Logger,
		registry: opts.Registry,
		store:    opts.Store,
		sessions: session.NewTable(opts.MaxRequest),
		conns:    make(map[session.ID]net.Conn),
		events:   make(chan event),
	}
}

// Serve runs until ctx is cancelled, which returns nil, or until accepting
// fails, which returns the error. All client connections are closed on
// return; the listener is closed too.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		s.listener.Close()
	})
	defer stop()

	g.Go(func() error { return s.acceptLoop(gctx) })
	g.Go(func() error { return s.loop(gctx) })
	err := g.Wait()
	s.readers.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		select {
		case s.events <- event{kind: evAccepted, conn: conn}:
		case <-ctx.Done():
			conn.Close()
			return nil
		}
	}
}

func (s *Server) loop(ctx context.Context) error {
	defer s.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			switch ev.kind {
			case evAccepted:
				s.accept(ctx, ev.conn)
			case evData:
				s.handleData(ev.id, ev.data)
			case evClosed:
				s.teardown(ev.id, ev.err)
			}
		}
	}
}

// accept registers a new connection, greets it and starts its reader.
func (s *Server) accept(ctx context.Context, conn net.Conn) {
	sess := s.sessions.Create()
	s.conns[sess.ID] = conn
	s.logger.Debug("connection accepted", "session", sess.ID, "active", s.sessions.Len())

	if err := s.write(sess.ID, rong.OK(rong.Greeting(s.opts.Banner))); err != nil {
		s.teardown(sess.ID, err)
		return
	}

	s.readers.Add(1)
	go func() {
		defer s.readers.Done()
		s.readLoop(ctx, sess.ID, conn)
	}()
}

// readLoop forwards everything read from conn to the loop until the
// connection fails or ctx is cancelled.
func (s *Server) readLoop(ctx context.Context, id session.ID, conn net.Conn) {
	buf := make([]byte, s.opts.ReadChunk)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case s.events <- event{kind: evData, id: id, data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case s.events <- event{kind: evClosed, id: id, err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// handleData feeds bytes into the session and serves every complete
// request line they contain.
func (s *Server) handleData(id session.ID, data []byte) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return
	}
	sess.Feed(data)

	for {
		line, ok := sess.NextRequest()
		if !ok {
			break
		}
		s.logger.Debug("request", "session", id, "line", line)
		resp := s.registry.HandleLine(&command.Context{
			Session:  sess,
			Store:    s.store,
			Registry: s.registry,
		}, line)
		if err := s.write(id, resp); err != nil {
			s.teardown(id, err)
			return
		}
		if sess.Closing {
			s.teardown(id, nil)
			return
		}
	}

	if err := sess.CheckLimit(); err != nil {
		s.logger.Info("dropping connection", "session", id, "error", err)
		s.write(id, rong.Err("Request too long"))
		s.teardown(id, nil)
	}
}

func (s *Server) write(id session.ID, resp rong.Response) error {
	conn, ok := s.conns[id]
	if !ok {
		return net.ErrClosed
	}
	data := wire.EncodeResponse(resp)
	s.logger.Debug("response", "session", id, "data", string(data))
	conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	_, err := conn.Write(data)
	return err
}

// teardown removes the session and closes its connection. Tearing down a
// connection that is already gone is a no-op.
func (s *Server) teardown(id session.ID, err error) {
	conn, ok := s.conns[id]
	if !ok {
		return
	}
	delete(s.conns, id)
	s.sessions.Remove(id)
	conn.Close()

	switch {
	case err == nil || isExpectedClose(err):
		s.logger.Debug("connection closed", "session", id, "active", s.sessions.Len())
	default:
		s.logger.Warn("connection failed", "session", id, "error", err)
	}
}

func (s *Server) closeAll() {
	for _, id := range s.sessions.IDs() {
		s.teardown(id, nil)
	}
}

// isExpectedClose reports whether err is the normal way a peer goes away.
func isExpectedClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
