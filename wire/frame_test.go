package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Paranoid-AF/rong"
)

var ignoreRaw = cmpopts.IgnoreFields(rong.Response{}, "Raw")

func TestEncodeResponse(t *testing.T) {
	tests := []struct {
		name string
		resp rong.Response
		want string
	}{
		{"ok", rong.OK(), "OK\n"},
		{"ok message", rong.OK("/home/u"), "OK /home/u\n"},
		{"err", rong.Err("Command 'foo': Unrecognized command."), "ERR Command 'foo': Unrecognized command.\n"},
		{"single newline", rong.OK("a\nb"), "OK a b\n"},
		{"multi", rong.Lines([]string{"/a", "/b"}), ".OK\n/a\n/b\n.\n"},
		{"multi empty", rong.Lines(nil), ".OK\n.\n"},
		{"multi dot", rong.Lines([]string{".", "..x", "a.b"}), ".OK\n..\n...x\na.b\n.\n"},
		{"multi embedded newline", rong.Lines([]string{"a\nb"}), ".OK\na\nb\n.\n"},
		{"exact empty", rong.Exact(""), "..OK\n.\n"},
		{"exact no newline", rong.Exact("abc"), "..OK\nabc\n.\n"},
		{"exact newline", rong.Exact("abc\n"), "..OK\nabc\n\n.\n"},
		{"exact only newline", rong.Exact("\n"), "..OK\n\n\n.\n"},
		{"exact dot line", rong.Exact(".\n"), "..OK\n..\n\n.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(EncodeResponse(tt.resp))
			if got != tt.want {
				t.Errorf("EncodeResponse = %q, want %q", got, tt.want)
			}
		})
	}
}

func decodeString(t *testing.T, s string) *rong.Response {
	t.Helper()
	resp, err := DecodeResponse(bufio.NewReader(strings.NewReader(s)))
	if err != nil {
		t.Fatalf("DecodeResponse(%q): %v", s, err)
	}
	return resp
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		in   string
		want rong.Response
	}{
		{"OK\n", rong.Response{Status: rong.StatusOK}},
		{"OK Rong v1.0.0 -- hi\n", rong.Response{Status: rong.StatusOK, Message: "Rong v1.0.0 -- hi"}},
		{"ERR Empty request\n", rong.Response{Status: rong.StatusErr, Message: "Empty request"}},
		{".OK\n..\nx\n.\n", rong.Response{Status: rong.StatusOK, Mode: rong.Multi, Lines: []string{".", "x"}}},
		{".ERR\noops\n.\n", rong.Response{Status: rong.StatusErr, Mode: rong.Multi, Lines: []string{"oops"}}},
		{"..OK\n.\n", rong.Response{Status: rong.StatusOK, Mode: rong.MultiExact}},
		{"..OK\nabc\n\n.\n", rong.Response{Status: rong.StatusOK, Mode: rong.MultiExact, Lines: []string{"abc"}, TrailingNewline: true}},
	}
	for _, tt := range tests {
		got := decodeString(t, tt.in)
		if diff := cmp.Diff(tt.want, *got, ignoreRaw); diff != "" {
			t.Errorf("DecodeResponse(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
		if string(got.Raw) != tt.in {
			t.Errorf("Raw = %q, want %q", got.Raw, tt.in)
		}
	}
}

func TestDecodeResponseErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", io.EOF},
		{"OK", ErrIncompleteFrame},
		{".OK\nabc\n", ErrIncompleteFrame},
		{"..OK\nabc", ErrIncompleteFrame},
	}
	for _, tt := range tests {
		_, err := DecodeResponse(bufio.NewReader(strings.NewReader(tt.in)))
		if !errors.Is(err, tt.want) {
			t.Errorf("DecodeResponse(%q) err = %v, want %v", tt.in, err, tt.want)
		}
	}

	for _, in := range []string{"MAYBE\n", "...OK\n.\n", ".NOPE\n.\n"} {
		_, err := DecodeResponse(bufio.NewReader(strings.NewReader(in)))
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, ErrIncompleteFrame) {
			t.Errorf("DecodeResponse(%q) err = %v, want unrecognized status", in, err)
		}
	}
}

// Content written through Exact comes back byte for byte, including the
// presence or absence of a final newline.
func TestExactRoundTrip(t *testing.T) {
	payloads := []string{
		"",
		"\n",
		"\n\n",
		"abc",
		"abc\n",
		"abc\n\n",
		"line1\nline2",
		".\n..\n.",
		"\n.\nx\n",
		"tab\tand\x00nul\n",
	}
	for _, p := range payloads {
		resp := decodeString(t, string(EncodeResponse(rong.Exact(p))))
		if resp.Mode != rong.MultiExact {
			t.Errorf("Exact(%q) decoded mode %v", p, resp.Mode)
		}
		if got := resp.Content(); got != p {
			t.Errorf("Exact round trip: got %q, want %q", got, p)
		}
	}
}

// Re-encoding a decoded multi frame yields the same bytes.
func TestMultiIdempotent(t *testing.T) {
	frames := []string{
		".OK\n.\n",
		".OK\n..\n...\nx\n.\n",
		".ERR\na\n\nb\n.\n",
		"..OK\n.\n",
		"..OK\n\n\n.\n",
		"..OK\n..dot\nend\n.\n",
	}
	for _, f := range frames {
		resp := decodeString(t, f)
		if got := string(EncodeResponse(*resp)); got != f {
			t.Errorf("re-encode of %q = %q", f, got)
		}
	}
}

// Lines sent in a multi frame come back unchanged, whatever dots they
// start with.
func TestMultiRoundTrip(t *testing.T) {
	lists := [][]string{
		nil,
		{""},
		{"", ""},
		{"."},
		{".", ".."},
		{"..OK", ".ERR", "OK"},
		{"a", "", ".b", "c."},
	}
	rng := rand.New(rand.NewPCG(1, 2))
	alphabet := []string{".", "..", "", "a", "OK", " ", "\t", "x.y"}
	for i := 0; i < 500; i++ {
		lines := make([]string, rng.IntN(6))
		for j := range lines {
			var b strings.Builder
			for k := rng.IntN(4); k > 0; k-- {
				b.WriteString(alphabet[rng.IntN(len(alphabet))])
			}
			lines[j] = b.String()
		}
		lists = append(lists, lines)
	}

	for _, lines := range lists {
		for _, status := range []rong.Status{rong.StatusOK, rong.StatusErr} {
			sent := rong.Response{Status: status, Mode: rong.Multi, Lines: lines}
			got := decodeString(t, string(EncodeResponse(sent)))
			if diff := cmp.Diff(sent, *got, ignoreRaw, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip of %q (-sent +got):\n%s", lines, diff)
			}
		}
	}
}

func TestDecoderBuffered(t *testing.T) {
	dec := NewDecoder(strings.NewReader("OK one\n.OK\nx\n.\n"))
	if _, err := dec.Decode(); err != nil {
		t.Fatal(err)
	}
	if !dec.Buffered() {
		t.Error("Buffered = false with a second frame pending")
	}
	if _, err := dec.Decode(); err != nil {
		t.Fatal(err)
	}
	if dec.Buffered() {
		t.Error("Buffered = true after the last frame")
	}
}

func TestDecoderStream(t *testing.T) {
	var stream bytes.Buffer
	want := []rong.Response{
		rong.OK(rong.Greeting("test")),
		rong.Lines([]string{"/a", ".b"}),
		rong.Exact("x\ny\n"),
		rong.Err("Command 'cat': No such file loaded"),
		rong.Exact(""),
	}
	for _, r := range want {
		stream.Write(EncodeResponse(r))
	}
	all := stream.String()

	// Every fragmentation of the stream yields the same frames.
	for _, r := range []io.Reader{
		strings.NewReader(all),
		iotest.OneByteReader(strings.NewReader(all)),
		iotest.HalfReader(strings.NewReader(all)),
		iotest.DataErrReader(strings.NewReader(all)),
	} {
		dec := NewDecoder(r)
		var got []rong.Response
		for {
			resp, err := dec.Decode()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			got = append(got, *resp)
		}
		if diff := cmp.Diff(want, got, ignoreRaw, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("stream mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDecoderSplitAtEveryByte(t *testing.T) {
	frame := string(EncodeResponse(rong.Exact(".a\n\nb\n")))
	for i := 0; i <= len(frame); i++ {
		pr, pw := io.Pipe()
		go func() {
			pw.Write([]byte(frame[:i]))
			pw.Write([]byte(frame[i:]))
			pw.Close()
		}()
		resp, err := NewDecoder(pr).Decode()
		if err != nil {
			t.Fatalf("split at %d: %v", i, err)
		}
		if got := resp.Content(); got != ".a\n\nb\n" {
			t.Errorf("split at %d: content %q", i, got)
		}
	}
}

func TestNextLine(t *testing.T) {
	buf := []byte("cat a\npwd\npar")
	var lines []string
	for {
		line, rest, ok := NextLine(buf)
		if !ok {
			break
		}
		lines = append(lines, string(line))
		buf = rest
	}
	if diff := cmp.Diff([]string{"cat a", "pwd"}, lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if string(buf) != "par" {
		t.Errorf("rest = %q, want par", buf)
	}
}
