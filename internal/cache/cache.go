// Package cache is the local fallback persistence: string-keyed JSON blobs
// on disk, written through a debounced autosave so a burst of replica
// mutations costs one write.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Blob keys used by the client.
const (
	KeyEvents = "events"
	KeyUnits  = "units"
)

// DefaultDebounce is the autosave delay after the last mutation.
const DefaultDebounce = 500 * time.Millisecond

var ErrNotFound = errors.New("cache blob not found")

type Store struct {
	dir      string
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{
		dir:      dir,
		debounce: DefaultDebounce,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// NewWithDebounce is used by tests to shrink the autosave delay.
func NewWithDebounce(dir string, debounce time.Duration) (*Store, error) {
	s, err := New(dir)
	if err != nil {
		return nil, err
	}
	s.debounce = debounce
	return s, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Save writes a blob immediately. The write goes through a temp file and
// rename so a crash never leaves a half-written blob behind.
func (s *Store) Save(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache blob %s: %w", key, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache blob %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("commit cache blob %s: %w", key, err)
	}
	return nil
}

// Load reads a blob into the given value. A malformed blob counts as
// missing; stale garbage must never block startup.
func (s *Store) Load(key string, into any) error {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read cache blob %s: %w", key, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("%w: discarding malformed blob %s: %v", ErrNotFound, key, err)
	}
	return nil
}

// SaveDebounced schedules a write after the debounce window, resetting the
// timer on every call. The value is captured at call time.
func (s *Store) SaveDebounced(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
	}
	s.timers[key] = time.AfterFunc(s.debounce, func() {
		_ = s.Save(key, value)
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
	})
}

// Flush cancels pending timers without writing. Used on teardown where the
// final state was already saved explicitly.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}
