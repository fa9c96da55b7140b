package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned when another daemon holds the socket lock.
var ErrAlreadyRunning = errors.New("another rongd is already running")

// daemonSocket is the listening socket together with the files that make
// its owner the only daemon on that path.
type daemonSocket struct {
	path     string
	lock     *os.File
	pidPath  string
	listener *net.UnixListener
}

// openSocket makes this process the owner of path: it creates the parent
// directory, takes an exclusive lock on "<path>.lock", replaces any stale
// socket, listens with mode 0600 and records the pid in "<path>.pid".
func openSocket(path string) (*daemonSocket, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}

	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("locking %s: %w", lock.Name(), err)
	}

	// Holding the lock, any socket file left behind belongs to a dead daemon.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		lock.Close()
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		lock.Close()
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	listener.SetUnlinkOnClose(false)

	ds := &daemonSocket{path: path, lock: lock, listener: listener}
	if err := os.Chmod(path, 0o600); err != nil {
		ds.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	pidPath := path + ".pid"
	if err := renameio.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
		ds.Close()
		return nil, fmt.Errorf("writing pid file: %w", err)
	}
	ds.pidPath = pidPath
	return ds, nil
}

// Close stops listening, removes the socket and pid files and releases the
// lock. The lock file itself stays.
func (ds *daemonSocket) Close() {
	ds.listener.Close()
	os.Remove(ds.path)
	if ds.pidPath != "" {
		os.Remove(ds.pidPath)
	}
	unix.Flock(int(ds.lock.Fd()), unix.LOCK_UN)
	ds.lock.Close()
}
