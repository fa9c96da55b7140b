package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DaemonOptions describes how to reach, and if needed start, the daemon.
type DaemonOptions struct {
	// Socket is the daemon's socket path.
	Socket string
	// Daemon is the rongd executable started when nothing listens on Socket.
	Daemon string
	// Args are passed to the daemon after "--socket <Socket>".
	Args []string
	// StartTimeout bounds how long a started daemon may take to listen.
	StartTimeout time.Duration
	// Timeout bounds each response wait on the returned connection.
	Timeout time.Duration
	// NoStart disables starting a daemon.
	NoStart bool
}

// Connect dials the daemon, starting it first if nothing listens on the
// socket and opts allow it.
func Connect(ctx context.Context, opts DaemonOptions) (*Conn, error) {
	c, err := Dial(ctx, opts.Socket, opts.Timeout)
	if err == nil {
		return c, nil
	}
	if opts.NoStart || !noDaemon(err) {
		return nil, err
	}
	slog.Debug("no daemon listening, starting one", "socket", opts.Socket, "daemon", opts.Daemon)
	if err := StartDaemon(ctx, opts); err != nil {
		return nil, err
	}
	return Dial(ctx, opts.Socket, opts.Timeout)
}

// noDaemon reports whether a dial error means nobody serves the socket.
func noDaemon(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}

// Probe reports whether a daemon accepts connections on path.
func Probe(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Mode()&os.ModeSocket == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, path, time.Second)
	if err != nil {
		return false
	}
	c.Close()
	return true
}

// StartDaemon launches opts.Daemon in its own session and waits until it
// accepts connections on opts.Socket.
func StartDaemon(ctx context.Context, opts DaemonOptions) error {
	dir := filepath.Dir(opts.Socket)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watching socket directory: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching socket directory: %w", err)
	}

	args := append([]string{"--socket", opts.Socket}, opts.Args...)
	cmd := exec.Command(opts.Daemon, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", opts.Daemon, err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	// The socket file appears at bind time, slightly before the daemon
	// listens; retry on a short tick as well.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		if Probe(opts.Socket) {
			return nil
		}
		select {
		case ev := <-watcher.Events:
			if ev.Name != opts.Socket || !ev.Has(fsnotify.Create) {
				continue
			}
		case err := <-watcher.Errors:
			slog.Debug("socket watcher error", "error", err)
		case err := <-exited:
			if err == nil {
				err = errors.New("exited")
			}
			return fmt.Errorf("daemon %s: %w", opts.Daemon, err)
		case <-tick.C:
		case <-timer.C:
			return fmt.Errorf("daemon did not listen on %s within %v", opts.Socket, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
