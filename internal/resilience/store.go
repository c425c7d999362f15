// Package resilience guards remote page fetches with a circuit breaker
// and a token bucket whose state is shared between CLI processes through
// a locked file on disk.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	jsoniter "github.com/json-iterator/go"
)

const (
	// StateFileName is the state file inside the store directory.
	StateFileName = "state.json"

	// LockTimeout bounds how long a store operation waits for the lock
	// before continuing unlocked.
	LockTimeout = 100 * time.Millisecond
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store reads and writes State under an exclusive file lock. When the
// lock cannot be taken within LockTimeout the operation proceeds
// without it.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir, or at the user cache directory
// when dir is empty.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{dir: dir}
}

// DefaultDir is $XDG_CACHE_HOME/pagewise/resilience, falling back to the
// platform cache directory and then the temp directory.
func DefaultDir() string {
	if d := os.Getenv("XDG_CACHE_HOME"); d != "" {
		return filepath.Join(d, "pagewise", "resilience")
	}
	if d, err := os.UserCacheDir(); err == nil && d != "" {
		return filepath.Join(d, "pagewise", "resilience")
	}
	return filepath.Join(os.TempDir(), "pagewise", "resilience")
}

func (s *Store) Dir() string  { return s.dir }
func (s *Store) Path() string { return filepath.Join(s.dir, StateFileName) }

func (s *Store) lock() (*flock.Flock, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(s.dir, ".lock"))

	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	return fl, nil
}

func unlock(fl *flock.Flock) {
	if fl != nil {
		_ = fl.Unlock()
	}
}

// Load reads the state. A missing or corrupt file yields an empty state.
func (s *Store) Load() (*State, error) {
	fl, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock(fl)
	return s.read()
}

func (s *Store) read() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil || st.Version != StateVersion {
		return NewState(), nil
	}
	return &st, nil
}

// Save writes the state atomically.
func (s *Store) Save(st *State) error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock(fl)
	return s.write(st)
}

func (s *Store) write(st *State) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	st.Version = StateVersion
	st.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	// Unique temp name so unlocked writers never share a file.
	tmp := fmt.Sprintf("%s.%d.%d.tmp", s.Path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Update runs fn on the current state and saves the result, holding the
// lock across the whole read-modify-write. Nothing is written when fn
// returns an error.
func (s *Store) Update(fn func(*State) error) error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock(fl)

	st, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.write(st)
}

// Clear removes the state file.
func (s *Store) Clear() error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock(fl)

	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
