package wire

import (
	"fmt"
	"strings"
)

// Unescape resolves backslash escapes in s.
//
// Recognized: \a \b \e \f \n \r \t, \xHH with exactly two hex digits, and a
// backslash before any byte that is not a letter or digit, which stands for
// that byte (\\, \", \', "\ "). Any other letter or digit after a backslash,
// and a lone trailing backslash, is a *ParseError.
func Unescape(s string) (string, error) {
	out, err := unescape(s)
	if err != nil {
		return "", err
	}
	return out, nil
}

func unescape(s string) (string, *ParseError) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", &ParseError{Offset: i, Reason: "trailing backslash"}
		}
		i++
		switch e := s[i]; e {
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'e':
			b.WriteByte(0x1b)
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'x':
			if i+2 >= len(s) {
				return "", &ParseError{Offset: i - 1, Reason: `\x needs two hex digits`}
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", &ParseError{Offset: i - 1, Reason: `\x needs two hex digits`}
			}
			b.WriteByte(hi<<4 | lo)
			i += 2
		default:
			if isAlnum(e) {
				return "", &ParseError{Offset: i - 1, Reason: fmt.Sprintf(`unknown escape \%c`, e)}
			}
			b.WriteByte(e)
		}
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

const hexDigits = "0123456789abcdef"

// Escape returns s with backslashes, double quotes and control bytes
// escaped so that it can be placed between double quotes.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\a':
			b.WriteString(`\a`)
		case '\b':
			b.WriteString(`\b`)
		case 0x1b:
			b.WriteString(`\e`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if isControl(c) {
				b.WriteString(`\x`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
				continue
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Quote returns v as a single request token: bare when that is safe,
// otherwise escaped and wrapped in double quotes.
func Quote(v string) string {
	if !needsQuoting(v) {
		return v
	}
	return `"` + Escape(v) + `"`
}

// Serialize encodes values as one request line, without the terminating
// newline. Split(Serialize(v...)) returns v.
func Serialize(values ...string) string {
	tokens := make([]string, len(values))
	for i, v := range values {
		tokens[i] = Quote(v)
	}
	return strings.Join(tokens, " ")
}

func needsQuoting(v string) bool {
	if v == "" {
		return true
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if isSpace(c) || isControl(c) || c == '\\' || c == '"' || c == '\'' {
			return true
		}
	}
	return false
}
