package buffer

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff returns a line diff from the file on disk to the buffer for path.
// Removed lines start with "-", added lines with "+" and context lines with
// a space, after a "--- path" / "+++ path (buffer)" header. A missing file
// diffs as empty. When disk and buffer agree Diff returns no lines.
func (s *Store) Diff(path string) ([]string, error) {
	b, ok := s.buffers[path]
	if !ok {
		return nil, ErrNotLoaded
	}
	disk, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil && xxhash.Sum64(disk) == b.Sum {
		return nil, nil
	}

	out := []string{"--- " + path, "+++ " + path + " (buffer)"}
	out = append(out, diffLines(string(disk), string(b.Content))...)
	return out, nil
}

func diffLines(from, to string) []string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []string
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		default:
			prefix = " "
		}
		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			out = append(out, prefix+line)
		}
	}
	return out
}
