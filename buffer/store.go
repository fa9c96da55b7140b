// Package buffer keeps in-memory copies of files, keyed by absolute path.
//
// A Store is not safe for concurrent use. The daemon's event loop owns the
// only instance, so commands from different connections never interleave.
package buffer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/renameio"
)

var (
	ErrNotLoaded     = errors.New("No such file loaded")
	ErrAlreadyLoaded = errors.New("File already loaded")
	ErrNoSuchFile    = errors.New("No such file")
	ErrNotRegular    = errors.New("Not a regular file")
)

// Buffer is the in-memory copy of one file.
type Buffer struct {
	Path    string
	Content []byte
	// Sum is the xxhash of Content.
	Sum  uint64
	Mode fs.FileMode
}

// State describes a buffer relative to the file on disk.
type State string

const (
	Unchanged State = "unchanged"
	Modified  State = "modified"
	Missing   State = "missing"
)

// Store maps absolute paths to buffers.
type Store struct {
	buffers map[string]*Buffer
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		buffers: make(map[string]*Buffer),
	}
}

// Len returns the number of loaded buffers.
func (s *Store) Len() int {
	return len(s.buffers)
}

// Get returns the buffer for path.
func (s *Store) Get(path string) (*Buffer, bool) {
	b, ok := s.buffers[path]
	return b, ok
}

// Paths returns the paths of all loaded buffers in lexicographic order.
func (s *Store) Paths() []string {
	paths := make([]string, 0, len(s.buffers))
	for p := range s.buffers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Load reads each file into a new buffer. Either every path is loaded or,
// on error, none is.
func (s *Store) Load(paths ...string) error {
	loaded := make([]*Buffer, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if _, ok := s.buffers[p]; ok || seen[p] {
			return ErrAlreadyLoaded
		}
		seen[p] = true
		b, err := readBuffer(p)
		if err != nil {
			return err
		}
		loaded = append(loaded, b)
	}
	for _, b := range loaded {
		s.buffers[b.Path] = b
	}
	return nil
}

func readBuffer(path string) (*Buffer, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSuchFile
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotRegular
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		Path:    path,
		Content: data,
		Sum:     xxhash.Sum64(data),
		Mode:    info.Mode().Perm(),
	}, nil
}

// Cat returns the contents of the named buffers, concatenated in order.
func (s *Store) Cat(paths ...string) (string, error) {
	bufs, err := s.lookup(paths)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range bufs {
		sb.Write(b.Content)
	}
	return sb.String(), nil
}

// Kill drops the named buffers without writing them.
func (s *Store) Kill(paths ...string) error {
	if _, err := s.lookup(paths); err != nil {
		return err
	}
	for _, p := range paths {
		delete(s.buffers, p)
	}
	return nil
}

// Save writes the named buffers back to disk, atomically replacing each
// file. Files whose content already matches the buffer are not rewritten.
// It returns the number of files written.
func (s *Store) Save(paths ...string) (int, error) {
	bufs, err := s.lookup(paths)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, b := range bufs {
		if st, _ := s.status(b); st == Unchanged {
			continue
		}
		mode := b.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := renameio.WriteFile(b.Path, b.Content, mode); err != nil {
			return written, fmt.Errorf("writing %s: %w", b.Path, err)
		}
		written++
	}
	return written, nil
}

// Status compares the buffer for path with the file on disk.
func (s *Store) Status(path string) (State, error) {
	b, ok := s.buffers[path]
	if !ok {
		return "", ErrNotLoaded
	}
	return s.status(b)
}

func (s *Store) status(b *Buffer) (State, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Missing, nil
		}
		return "", err
	}
	if xxhash.Sum64(data) == b.Sum {
		return Unchanged, nil
	}
	return Modified, nil
}

func (s *Store) lookup(paths []string) ([]*Buffer, error) {
	bufs := make([]*Buffer, 0, len(paths))
	for _, p := range paths {
		b, ok := s.buffers[p]
		if !ok {
			return nil, ErrNotLoaded
		}
		bufs = append(bufs, b)
	}
	return bufs, nil
}
