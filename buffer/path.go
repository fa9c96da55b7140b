package buffer

import (
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/shell"
	"mvdan.cc/sh/v3/syntax"
)

// ResolvePath returns the absolute, cleaned form of arg as seen from the
// directory dir. A leading "~" or "~user" is expanded to a home directory
// the way a shell would; nothing else in arg is interpreted.
func ResolvePath(dir, arg string) string {
	p := expandTilde(arg)
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	return filepath.Clean(p)
}

func expandTilde(arg string) string {
	if !strings.HasPrefix(arg, "~") {
		return arg
	}
	prefix, rest, hasRest := strings.Cut(arg, "/")
	if !isUserName(prefix[1:]) {
		return arg
	}
	word := prefix
	if hasRest && rest != "" {
		quoted, err := syntax.Quote(rest, syntax.LangBash)
		if err != nil {
			return arg
		}
		word += "/" + quoted
	}
	fields, err := shell.Fields(word, os.Getenv)
	if err != nil || len(fields) != 1 {
		return arg
	}
	p := fields[0]
	if strings.HasPrefix(p, "~") {
		// Unknown user; the shell leaves the word alone.
		return arg
	}
	if hasRest && rest == "" {
		p += "/"
	}
	return p
}

func isUserName(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '.' && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
