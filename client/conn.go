// Package client talks to a running rong daemon: one request line out, one
// response frame back.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Paranoid-AF/rong"
	"github.com/Paranoid-AF/rong/wire"
)

var (
	// ErrBadGreeting means the peer did not announce itself as a rong server.
	ErrBadGreeting = errors.New("unexpected server greeting")
	// ErrServerClosed means the server closed the connection where a
	// response was required.
	ErrServerClosed = errors.New("server closed the connection")
	// ErrBroken is returned by every Send after a timeout or a framing
	// error left the stream at an unknown position.
	ErrBroken = errors.New("connection is broken")
	// ErrTimeout is returned when no complete response arrived in time.
	ErrTimeout = errors.New("timed out waiting for response")
)

// ServerError is an ERR response to a command sent with Do.
type ServerError struct {
	Command string
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// HasHint reports whether the server marked the error as one that the
// command's help text can explain.
func (e *ServerError) HasHint() bool {
	return strings.HasSuffix(e.Message, ".")
}

// Text returns the error message without the trailing help marker.
func (e *ServerError) Text() string {
	return strings.TrimSuffix(e.Message, ".")
}

// SendOptions controls how Send treats the response.
type SendOptions struct {
	// Raw skips status interpretation; the caller gets the frame, with
	// Response.Raw holding the bytes as received.
	Raw bool
	// FailOnEOF turns a disconnect before the first byte of the response
	// into ErrServerClosed instead of io.EOF.
	FailOnEOF bool
}

// Conn is a client connection to the daemon. It is safe for concurrent use;
// requests are serialized.
type Conn struct {
	path    string
	conn    net.Conn
	dec     *wire.Decoder
	timeout time.Duration

	// Server is the version the daemon announced in its greeting.
	Server rong.ServerVersion

	mu     sync.Mutex
	broken bool
}

// Dial connects to the daemon listening on path and validates its greeting.
// timeout bounds every response wait; zero disables it.
func Dial(ctx context.Context, path string, timeout time.Duration) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		path:    path,
		conn:    nc,
		dec:     wire.NewDecoder(nc),
		timeout: timeout,
	}

	c.mu.Lock()
	resp, err := c.receive(ctx, SendOptions{FailOnEOF: true})
	c.mu.Unlock()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("reading greeting: %w", err)
	}
	if !resp.Success() || resp.Mode != rong.Single {
		nc.Close()
		return nil, fmt.Errorf("%w: %q", ErrBadGreeting, resp.Raw)
	}
	v, err := rong.ParseGreeting(resp.Message)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: %v", ErrBadGreeting, err)
	}
	c.Server = v
	return c, nil
}

// Path returns the socket path the connection was dialed on.
func (c *Conn) Path() string {
	return c.path
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Send writes one request line and reads exactly one response frame. Either
// the whole frame is read or Send fails.
//
// Without FailOnEOF, a server that closes the connection instead of
// answering yields a nil response and io.EOF.
func (c *Conn) Send(ctx context.Context, line string, opts SendOptions) (*rong.Response, error) {
	if strings.Contains(line, "\n") {
		return nil, errors.New("request line contains a newline")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, ErrBroken
	}
	// A cancellation that raced the end of the previous request may have
	// left a past deadline behind.
	c.conn.SetDeadline(time.Time{})

	stop := c.watch(ctx)
	_, err := io.WriteString(c.conn, line+"\n")
	stop()
	if err != nil {
		c.broken = true
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if opts.FailOnEOF {
			return nil, fmt.Errorf("%w: %v", ErrServerClosed, err)
		}
		return nil, err
	}
	return c.receive(ctx, opts)
}

// Do serializes name and args into a request, sends it and interprets the
// status. An ERR response is returned along with a *ServerError.
func (c *Conn) Do(ctx context.Context, name string, args ...string) (*rong.Response, error) {
	line := wire.Serialize(append([]string{name}, args...)...)
	resp, err := c.Send(ctx, line, SendOptions{FailOnEOF: true})
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return resp, &ServerError{Command: name, Message: resp.Content()}
	}
	return resp, nil
}

// receive decodes one frame. c.mu must be held.
func (c *Conn) receive(ctx context.Context, opts SendOptions) (*rong.Response, error) {
	deadline := time.Time{}
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	stop := c.watch(ctx)
	resp, err := c.dec.Decode()
	stop()

	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, io.EOF):
		c.broken = true
		if opts.FailOnEOF {
			return nil, ErrServerClosed
		}
		return nil, io.EOF
	}

	c.broken = true
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil, ErrTimeout
	}
	if errors.Is(err, wire.ErrIncompleteFrame) {
		return nil, fmt.Errorf("%w: %v", ErrServerClosed, err)
	}
	return nil, err
}

// watch interrupts blocked I/O on c when ctx is cancelled. The returned
// function must be called once the I/O is done.
func (c *Conn) watch(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		if !stop() {
			<-fired
		}
	}
}

// Fd returns the socket's file descriptor, for readiness polling. The
// descriptor stays owned by c.
func (c *Conn) Fd() (int, error) {
	uc, ok := c.conn.(*net.UnixConn)
	if !ok {
		return -1, errors.New("connection has no file descriptor")
	}
	rc, err := uc.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := rc.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return -1, err
	}
	return fd, nil
}

// Buffered reports whether bytes beyond the last decoded frame have already
// been read from the socket.
func (c *Conn) Buffered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dec.Buffered()
}
