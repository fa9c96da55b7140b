package main

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paranoid-AF/rong"
	"github.com/Paranoid-AF/rong/client"
	"github.com/Paranoid-AF/rong/wire"
)

// recorder is a stand-in daemon that answers from a fixed table and
// remembers every request line it received.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func startRecorder(t *testing.T, answers map[string]rong.Response) (string, *recorder) {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "rong-cli")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sockPath := filepath.Join(dir, "s.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	rec := &recorder{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				conn.Write(wire.EncodeResponse(rong.OK(rong.Greeting("recorder"))))
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					line = strings.TrimSuffix(line, "\n")
					rec.mu.Lock()
					rec.lines = append(rec.lines, line)
					rec.mu.Unlock()

					resp, ok := answers[line]
					if !ok {
						name, _, _ := wire.Tokenize(line)
						resp = rong.OK()
						if name == "help" {
							resp = rong.OK("cat cd help list load")
						}
					}
					conn.Write(wire.EncodeResponse(resp))
				}
			}()
		}
	}()
	return sockPath, rec
}

func runCLI(t *testing.T, sockPath string, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("RONG_CONFIG_DIR", t.TempDir())
	var stdout, stderr bytes.Buffer
	all := append([]string{"--socket", sockPath, "--no-start", "--color", "never"}, args...)
	code := run(all, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestImplicitLoad(t *testing.T) {
	sockPath, rec := startRecorder(t, nil)
	code, _, stderr := runCLI(t, sockPath, "notes.txt", "my file")
	require.Equal(t, 0, code, stderr)

	cwd, _ := os.Getwd()
	assert.Equal(t, []string{
		wire.Serialize("cd", cwd),
		"help -",
		`load notes.txt "my file"`,
	}, rec.requests())
}

func TestExplicitCommand(t *testing.T) {
	sockPath, rec := startRecorder(t, map[string]rong.Response{
		"cat a": rong.Exact("no newline"),
	})
	code, stdout, _ := runCLI(t, sockPath, "cat", "a")
	require.Equal(t, 0, code)
	assert.Equal(t, "no newline", stdout)
	assert.Equal(t, "cat a", rec.requests()[2])
}

func TestNoArgumentsLists(t *testing.T) {
	sockPath, _ := startRecorder(t, map[string]rong.Response{
		"list": rong.Lines([]string{"/a", "/b"}),
	})
	code, stdout, _ := runCLI(t, sockPath)
	require.Equal(t, 0, code)
	assert.Equal(t, "/a\n/b\n", stdout)
}

func TestErrorExitAndHint(t *testing.T) {
	sockPath, _ := startRecorder(t, map[string]rong.Response{
		"cat":   rong.Err("Command 'cat': Wrong number of arguments."),
		"cat x": rong.Err("Command 'cat': No such file loaded"),
	})

	code, stdout, stderr := runCLI(t, sockPath, "cat")
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Equal(t, "rong: Command 'cat': Wrong number of arguments; try 'rong help cat'\n", stderr)

	code, _, stderr = runCLI(t, sockPath, "cat", "x")
	assert.Equal(t, 1, code)
	assert.Equal(t, "rong: Command 'cat': No such file loaded\n", stderr)
}

func TestNoDaemon(t *testing.T) {
	code, _, stderr := runCLI(t, filepath.Join(t.TempDir(), "missing.sock"), "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "cannot reach daemon")
}

func TestVersionAndBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"--version"}, &stdout, &stderr))
	assert.Equal(t, "rong "+rong.Version+"\n", stdout.String())
	assert.Equal(t, 2, run([]string{"--bogus"}, io.Discard, io.Discard))
}

func TestWriteResponse(t *testing.T) {
	tests := []struct {
		resp rong.Response
		want string
	}{
		{rong.OK(), ""},
		{rong.OK("/home/u"), "/home/u\n"},
		{rong.Lines(nil), ""},
		{rong.Lines([]string{".x", "y"}), ".x\ny\n"},
		{rong.Exact("abc\n"), "abc\n"},
		{rong.Exact("abc"), "abc"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		writeResponse(&buf, &tt.resp)
		assert.Equal(t, tt.want, buf.String())
	}
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "rong: Command 'cd': Directory does not exist",
		formatError(&client.ServerError{Command: "cd", Message: "Command 'cd': Directory does not exist"}))
	assert.Equal(t, "rong: Command 'x': Unrecognized command; try 'rong help x'",
		formatError(&client.ServerError{Command: "x", Message: "Command 'x': Unrecognized command."}))
}
