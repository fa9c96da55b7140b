package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Paranoid-AF/rong"
)

// Terminator is the line that ends a multi-line frame.
const Terminator = "."

// ErrIncompleteFrame is returned when the stream ends inside a frame.
var ErrIncompleteFrame = errors.New("incomplete response frame")

// EncodeResponse returns the wire encoding of r.
//
// Single frames are "STATUS[ message]\n"; newlines in the message are
// replaced by spaces. Multi frames are ".STATUS\n", the content lines and
// ".\n"; MultiExact frames start with "..STATUS\n" and add an empty marker
// line before the terminator when the payload ended with a newline. Content
// lines starting with "." get one more "." prepended, and a line containing
// newlines is sent as several lines.
func EncodeResponse(r rong.Response) []byte {
	var buf bytes.Buffer
	switch r.Mode {
	case rong.Multi, rong.MultiExact:
		if r.Mode == rong.MultiExact {
			buf.WriteByte('.')
		}
		buf.WriteByte('.')
		buf.WriteString(string(r.Status))
		buf.WriteByte('\n')
		for _, line := range r.Lines {
			for _, l := range strings.Split(line, "\n") {
				if strings.HasPrefix(l, ".") {
					buf.WriteByte('.')
				}
				buf.WriteString(l)
				buf.WriteByte('\n')
			}
		}
		if r.Mode == rong.MultiExact && r.TrailingNewline {
			buf.WriteByte('\n')
		}
		buf.WriteString(Terminator + "\n")
	default:
		msg := r.Message
		if msg == "" && len(r.Lines) > 0 {
			msg = strings.Join(r.Lines, " ")
		}
		buf.WriteString(string(r.Status))
		if msg != "" {
			buf.WriteByte(' ')
			buf.WriteString(strings.ReplaceAll(msg, "\n", " "))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Decoder reads response frames from a stream. Framing state lives in the
// underlying buffered reader, so a frame may arrive over any number of
// partial reads.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	if br, ok := r.(*bufio.Reader); ok {
		return &Decoder{r: br}
	}
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads exactly one frame. It returns io.EOF if the stream ended
// before the first byte of a frame and ErrIncompleteFrame if it ended
// inside one.
func (d *Decoder) Decode() (*rong.Response, error) {
	return DecodeResponse(d.r)
}

// Buffered reports whether bytes of a following frame are already buffered.
func (d *Decoder) Buffered() bool {
	return d.r.Buffered() > 0
}

// DecodeResponse reads one frame from r. Dot-stuffing is removed from the
// content lines and, for MultiExact frames, the newline marker line is
// dropped and recorded in TrailingNewline. The undecoded frame is kept in
// Response.Raw.
func DecodeResponse(r *bufio.Reader) (*rong.Response, error) {
	var raw bytes.Buffer

	first, err := readLine(r, &raw)
	if err != nil {
		if errors.Is(err, io.EOF) && raw.Len() == 0 {
			return nil, io.EOF
		}
		return nil, err
	}

	if !strings.HasPrefix(first, ".") {
		status, msg, _ := strings.Cut(first, " ")
		resp := &rong.Response{Status: rong.Status(status), Mode: rong.Single, Message: msg}
		if !resp.Status.Valid() {
			return nil, fmt.Errorf("unrecognized status line %q", first)
		}
		resp.Raw = raw.Bytes()
		return resp, nil
	}

	dots := len(first) - len(strings.TrimLeft(first, "."))
	status, _, _ := strings.Cut(first[dots:], " ")
	resp := &rong.Response{Status: rong.Status(status)}
	switch dots {
	case 1:
		resp.Mode = rong.Multi
	case 2:
		resp.Mode = rong.MultiExact
	default:
		return nil, fmt.Errorf("unrecognized status line %q", first)
	}
	if !resp.Status.Valid() {
		return nil, fmt.Errorf("unrecognized status line %q", first)
	}

	var lines []string
	for {
		line, err := readLine(r, &raw)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrIncompleteFrame
			}
			return nil, err
		}
		if line == Terminator {
			break
		}
		lines = append(lines, strings.TrimPrefix(line, "."))
	}

	if resp.Mode == rong.MultiExact && len(lines) > 0 && lines[len(lines)-1] == "" {
		resp.TrailingNewline = true
		lines = lines[:len(lines)-1]
	}
	resp.Lines = lines
	resp.Raw = raw.Bytes()
	return resp, nil
}

// readLine reads one "\n"-terminated line, records it in raw and returns it
// without the newline. A line cut short by the end of the stream is reported
// as ErrIncompleteFrame.
func readLine(r *bufio.Reader, raw *bytes.Buffer) (string, error) {
	line, err := r.ReadString('\n')
	raw.WriteString(line)
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", ErrIncompleteFrame
		}
		return "", err
	}
	return line[:len(line)-1], nil
}

// NextLine splits the first "\n"-terminated line off buf. It returns the
// line without its newline and the remaining bytes, or ok=false if buf does
// not hold a complete line yet.
func NextLine(buf []byte) (line, rest []byte, ok bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return nil, buf, false
	}
	return buf[:i], buf[i+1:], true
}
