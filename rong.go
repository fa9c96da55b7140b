// Package rong defines the types shared by the rong daemon and its clients.
// Requests are single text lines; responses are framed as a single status
// line or as a dot-terminated block of content lines, over a Unix domain
// socket.
package rong

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is the protocol/daemon version announced in the greeting.
// It must stay in <major>.<minor>.<patch> form; clients validate it.
var Version = "1.0.0"

// Status is the outcome keyword that starts every response.
type Status string

const (
	StatusOK  Status = "OK"
	StatusErr Status = "ERR"
)

// Valid reports whether s is a status keyword the protocol defines.
func (s Status) Valid() bool {
	return s == StatusOK || s == StatusErr
}

// Mode selects how a response is framed on the wire.
type Mode int

const (
	// Single is a lone status line with an optional inline message.
	Single Mode = iota
	// Multi is a dot-terminated block of content lines. Whether the
	// payload ended with a newline is not preserved.
	Multi
	// MultiExact is a dot-terminated block that also preserves whether the
	// payload ended with a newline.
	MultiExact
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case Multi:
		return "multi"
	case MultiExact:
		return "multi-exact"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Response is one complete response frame.
type Response struct {
	Status Status
	Mode   Mode
	// Message is the inline text of a Single response.
	Message string
	// Lines are the content lines of a Multi or MultiExact response, with
	// dot-stuffing removed. For MultiExact the newline-presence marker
	// line is not included; see TrailingNewline.
	Lines []string
	// TrailingNewline is set on MultiExact responses whose payload ended
	// with a newline.
	TrailingNewline bool
	// Raw holds the frame exactly as it was read from the wire. Only set
	// by decoders.
	Raw []byte
}

// OK returns a successful single-line response.
func OK(message ...string) Response {
	return Response{Status: StatusOK, Mode: Single, Message: strings.Join(message, " ")}
}

// Err returns a failed single-line response.
func Err(message string) Response {
	return Response{Status: StatusErr, Mode: Single, Message: message}
}

// Lines returns a successful multi-line response.
func Lines(lines []string) Response {
	return Response{Status: StatusOK, Mode: Multi, Lines: lines}
}

// Exact returns a successful response carrying data verbatim, including
// whether it ended with a newline.
func Exact(data string) Response {
	r := Response{Status: StatusOK, Mode: MultiExact}
	if data == "" {
		return r
	}
	if strings.HasSuffix(data, "\n") {
		r.TrailingNewline = true
		data = data[:len(data)-1]
	}
	r.Lines = strings.Split(data, "\n")
	return r
}

// Content returns the payload of the response as a caller sees it: the
// message of a Single response, the lines of a Multi response joined by
// newlines, or the exact data of a MultiExact response.
func (r Response) Content() string {
	switch r.Mode {
	case Single:
		return r.Message
	case MultiExact:
		s := strings.Join(r.Lines, "\n")
		if r.TrailingNewline {
			s += "\n"
		}
		return s
	default:
		return strings.Join(r.Lines, "\n")
	}
}

// Success reports whether the response carries StatusOK.
func (r Response) Success() bool {
	return r.Status == StatusOK
}

// Greeting returns the message of the single-line frame a server sends
// right after accepting a connection.
func Greeting(banner string) string {
	if banner == "" {
		banner = "ready"
	}
	return fmt.Sprintf("Rong v%s -- %s", Version, banner)
}

var greetingPattern = regexp.MustCompile(`^Rong v(\d+)\.(\d+)\.(\d+) -- (.*)$`)

// ServerVersion is the version triple a server announced in its greeting.
type ServerVersion struct {
	Major, Minor, Patch int
	Banner              string
}

func (v ServerVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseGreeting validates a greeting message and extracts the version.
func ParseGreeting(message string) (ServerVersion, error) {
	m := greetingPattern.FindStringSubmatch(message)
	if m == nil {
		return ServerVersion{}, fmt.Errorf("unexpected greeting %q", message)
	}
	var v ServerVersion
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	v.Patch, _ = strconv.Atoi(m[3])
	v.Banner = m[4]
	return v, nil
}
