package main

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Paranoid-AF/rong"
	"github.com/Paranoid-AF/rong/client"
)

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &crlfWriter{w: &buf}
	n, err := w.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "a\r\nb\r\n", buf.String())
}

func TestWriteResponse(t *testing.T) {
	tests := []struct {
		name string
		resp rong.Response
		raw  bool
		want string
	}{
		{"pwd", rong.OK("/tmp"), false, "/tmp\n"},
		{"load", rong.OK(), false, ""},
		{"list", rong.Lines([]string{"/a", "/b"}), false, "/a\n/b\n"},
		{"cat", rong.Exact("x\n"), false, "x\n"},
		{"cat", rong.Exact("x"), false, "x\n"},
		{"cat", rong.Err("Command 'cat': Wrong number of arguments."), false,
			"error: Command 'cat': Wrong number of arguments; try 'help cat'\n"},
		{"cat", rong.Err("Command 'cat': No such file loaded"), false,
			"error: Command 'cat': No such file loaded\n"},
		{"pwd", rong.Response{Raw: []byte("OK /tmp\n")}, true, "OK /tmp\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		writeResponse(&buf, tt.name, &tt.resp, tt.raw)
		assert.Equal(t, tt.want, buf.String(), "%s %+v", tt.name, tt.resp)
	}
}

func TestFormatErrorWithoutCommand(t *testing.T) {
	assert.Equal(t, "error: Empty request", formatError(&client.ServerError{Message: "Empty request"}))
}

func TestCommonPrefix(t *testing.T) {
	assert.Equal(t, "c", commonPrefix([]string{"cat", "cd"}))
	assert.Equal(t, "load", commonPrefix([]string{"load"}))
	assert.Equal(t, "", commonPrefix([]string{"list", "cat"}))
}

func TestWaitReadable(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])

	done := make(chan error, 1)
	go func() { done <- waitReadable(int(r.Fd()), fds[0]) }()
	time.Sleep(20 * time.Millisecond)
	w.Write([]byte("x"))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waitReadable did not return on tty input")
	}

	// Drain the pipe, then hang up the socket peer.
	var b [1]byte
	r.Read(b[:])
	go func() { done <- waitReadable(int(r.Fd()), fds[0]) }()
	time.Sleep(20 * time.Millisecond)
	unix.Close(fds[1])
	select {
	case err := <-done:
		assert.ErrorIs(t, err, errDisconnected)
	case <-time.After(5 * time.Second):
		t.Fatal("waitReadable did not notice the hangup")
	}
}
