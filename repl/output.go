package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/Paranoid-AF/rong"
	"github.com/Paranoid-AF/rong/client"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

// writeResponse prints the response to the request naming command. In raw
// mode the frame is echoed byte for byte, status line and terminator
// included.
func writeResponse(w io.Writer, command string, resp *rong.Response, raw bool) {
	if raw {
		w.Write(resp.Raw)
		return
	}
	if !resp.Success() {
		fmt.Fprintln(w, formatError(&client.ServerError{Command: command, Message: resp.Content()}))
		return
	}
	switch resp.Mode {
	case rong.Single:
		if resp.Message != "" {
			fmt.Fprintln(w, resp.Message)
		}
	case rong.Multi:
		for _, line := range resp.Lines {
			fmt.Fprintln(w, line)
		}
	case rong.MultiExact:
		content := resp.Content()
		io.WriteString(w, content)
		if !resp.TrailingNewline && content != "" {
			// Keep the prompt on its own line.
			io.WriteString(w, "\n")
		}
	}
}

// formatError renders a server error, pointing at help when the message
// ends in a period.
func formatError(err *client.ServerError) string {
	msg := "error: " + err.Text()
	if err.HasHint() && err.Command != "" {
		msg += fmt.Sprintf("; try 'help %s'", err.Command)
	}
	return msg
}
