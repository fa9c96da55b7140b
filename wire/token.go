// Package wire implements the rong line protocol: request tokenizing and
// serialization, and response framing in single, multi and multi-exact
// modes.
//
// A request is one line of whitespace-separated tokens. A token is a
// double-quoted run, a single-quoted run, or a bare run of bytes that are
// neither whitespace, control bytes nor quotes; a backslash in a bare run
// always consumes the byte after it. Every token is unescaped after its
// quotes are stripped, see Unescape.
package wire

import (
	"errors"
	"fmt"
)

// ErrEmptyRequest is returned by Tokenize for a line without tokens.
var ErrEmptyRequest = errors.New("empty request")

// ParseError describes a request line that does not match the token grammar.
// No partial result accompanies it.
type ParseError struct {
	// Offset is the byte offset in the input where parsing failed.
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Reason, e.Offset)
}

// Tokenize parses one request line into a command name and its arguments.
func Tokenize(line string) (name string, args []string, err error) {
	tokens, err := Split(line)
	if err != nil {
		return "", nil, err
	}
	if len(tokens) == 0 {
		return "", nil, ErrEmptyRequest
	}
	if tokens[0] == "" {
		return "", nil, &ParseError{Offset: 0, Reason: "empty command name"}
	}
	return tokens[0], tokens[1:], nil
}

// Split parses a request line into unescaped tokens.
func Split(line string) ([]string, error) {
	var tokens []string
	n := len(line)
	i := 0
	for {
		for i < n && isSpace(line[i]) {
			i++
		}
		if i >= n {
			return tokens, nil
		}

		start := i
		var raw string
		switch q := line[i]; q {
		case '"', '\'':
			j := i + 1
			for j < n && line[j] != q {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j >= n {
				return nil, &ParseError{Offset: start, Reason: "unterminated quote"}
			}
			raw = line[i+1 : j]
			i = j + 1
			start++
		default:
			j := i
			for j < n {
				b := line[j]
				if b == '\\' {
					if j+1 >= n {
						return nil, &ParseError{Offset: j, Reason: "trailing backslash"}
					}
					j += 2
					continue
				}
				if isSpace(b) || isControl(b) || b == '"' || b == '\'' {
					break
				}
				j++
			}
			if j == i {
				return nil, &ParseError{Offset: i, Reason: fmt.Sprintf("unexpected character %q", line[i])}
			}
			raw = line[i:j]
			i = j
		}

		// Tokens must be separated by whitespace; anything else left over
		// is garbage (e.g. "a"b or a stray quote).
		if i < n && !isSpace(line[i]) {
			return nil, &ParseError{Offset: i, Reason: fmt.Sprintf("unexpected character %q", line[i])}
		}

		tok, err := unescape(raw)
		if err != nil {
			err.Offset += start
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\v', '\f':
		return true
	}
	return false
}

func isControl(b byte) bool {
	return b < 0x20 || b == 0x7f
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
