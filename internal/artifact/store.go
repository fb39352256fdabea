package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"

	"github.com/futureCreator/minilun/internal/types"
)

// Artifact references a file produced by a stage.
type Artifact struct {
	Kind  types.Kind
	Path  string
	Stage string
	RunID string
}

// Store owns the intermediate artifacts of one run.
type Store struct {
	dir   string
	runID string

	mu   sync.Mutex
	seq  int
	live map[string]*Artifact // path → artifact
}

// NewStore returns a store that places artifacts for runID under dir.
func NewStore(dir, runID string) *Store {
	return &Store{dir: dir, runID: runID, live: map[string]*Artifact{}}
}

// Create writes a new artifact of the given kind using producer. If producer
// fails, the partial file is removed and producer's error is returned as is.
// Filesystem failures are returned as *Error.
func (s *Store) Create(ctx context.Context, kind types.Kind, stage string, producer func(io.Writer) error) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("minilun-%s-%02d-%s%s", s.runID, s.seq, stageSlug(stage), kind.Ext())
	s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, &Error{Op: "create", Path: s.dir, Err: err}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &Error{Op: "create", Path: path, Err: err}
	}

	if perr := producer(f); perr != nil {
		f.Close()
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, errors.Join(perr, &Error{Op: "remove", Path: path, Err: rmErr})
		}
		return nil, perr
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, &Error{Op: "write", Path: path, Err: err}
	}

	a := &Artifact{Kind: kind, Path: path, Stage: stage, RunID: s.runID}
	s.mu.Lock()
	s.live[path] = a
	s.mu.Unlock()
	return a, nil
}

// ReadAll returns the content of a live artifact.
func (s *Store) ReadAll(a *Artifact) ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, &Error{Op: "read", Path: a.Path, Err: err}
	}
	return data, nil
}

// Release deletes the artifact's backing file unless retain is set. Only the
// first call for an artifact has any effect.
func (s *Store) Release(a *Artifact, retain bool) error {
	if a == nil {
		return nil
	}
	s.mu.Lock()
	_, ok := s.live[a.Path]
	delete(s.live, a.Path)
	s.mu.Unlock()
	if !ok || retain {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return &Error{Op: "remove", Path: a.Path, Err: err}
	}
	return nil
}

// ReleaseAll releases every live artifact, retaining those for which retain
// returns true. All errors are collected.
func (s *Store) ReleaseAll(retain func(*Artifact) bool) error {
	var errs []error
	for _, a := range s.Live() {
		keep := retain != nil && retain(a)
		if err := s.Release(a, keep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Live returns the artifacts that are neither released nor promoted.
func (s *Store) Live() []*Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Artifact, 0, len(s.live))
	for _, a := range s.live {
		out = append(out, a)
	}
	return out
}

// Filesystem moves used by Promote; replaced in tests.
var (
	renameFile = os.Rename
	removeFile = os.Remove
)

// Promote moves a live artifact to dest and hands ownership to the caller.
// dest only ever appears complete: content is staged next to it and renamed
// into place.
func (s *Store) Promote(a *Artifact, dest string) error {
	s.mu.Lock()
	_, ok := s.live[a.Path]
	s.mu.Unlock()
	if !ok {
		return &Error{Op: "promote", Path: a.Path, Err: os.ErrNotExist}
	}

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &Error{Op: "promote", Path: dest, Err: err}
		}
	}

	if err := renameFile(a.Path, dest); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return &Error{Op: "promote", Path: dest, Err: err}
		}
		// Cross-device moves fall back to copy + rename within dest's directory.
		if cerr := copyInto(a.Path, dest, s.runID); cerr != nil {
			return &Error{Op: "promote", Path: dest, Err: cerr}
		}
		if rmErr := removeFile(a.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			// The run fails, so dest must not hold a complete deliverable.
			os.Remove(dest)
			return &Error{Op: "remove", Path: a.Path, Err: rmErr}
		}
	}

	s.mu.Lock()
	delete(s.live, a.Path)
	s.mu.Unlock()
	a.Path = dest
	return nil
}

func copyInto(src, dest, runID string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".partial-" + runID
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

var nonAlphanumRe = regexp.MustCompile(`[^a-z0-9]+`)

func stageSlug(stage string) string {
	s := strings.Trim(nonAlphanumRe.ReplaceAllString(strings.ToLower(stage), "-"), "-")
	if s == "" {
		return "stage"
	}
	return s
}
