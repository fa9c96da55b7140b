package main

import (
	"errors"

	"golang.org/x/sys/unix"
)

var (
	// errDisconnected reports that the daemon hung up while the REPL was idle.
	errDisconnected = errors.New("daemon closed the connection")
	// errStrayData reports bytes from the daemon that answer no request.
	errStrayData = errors.New("daemon sent data without a request")
)

// waitReadable blocks until ttyFd has input or sockFd becomes readable.
// The daemon never speaks unprompted, so a readable socket between requests
// means it closed the connection.
func waitReadable(ttyFd, sockFd int) error {
	fds := []unix.PollFd{
		{Fd: int32(ttyFd), Events: unix.POLLIN},
		{Fd: int32(sockFd), Events: unix.POLLIN},
	}
	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		if fds[1].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			return errDisconnected
		}
		if fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 && fds[0].Revents&unix.POLLIN == 0 {
			return errors.New("terminal closed")
		}
		if fds[0].Revents&unix.POLLIN != 0 {
			return nil
		}
	}
}
