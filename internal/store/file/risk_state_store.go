// Package file persists risk state as a JSON document on the local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// lockRetryDelay is how often a blocked Update retries the advisory lock.
const lockRetryDelay = 25 * time.Millisecond

// RiskStateStore implements domain.RiskStateStore on top of a single JSON
// file. Concurrent processes are serialized with an advisory lock on a
// sibling ".lock" file and every write goes through a temp file plus rename,
// so readers never observe a torn document.
type RiskStateStore struct {
	path   string
	lock   *flock.Flock
	mu     sync.Mutex
	logger *slog.Logger
}

// Compile-time interface check.
var _ domain.RiskStateStore = (*RiskStateStore)(nil)

// NewRiskStateStore returns a store for the document at path. The parent
// directory is created on first write.
func NewRiskStateStore(path string, logger *slog.Logger) *RiskStateStore {
	return &RiskStateStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger.With(slog.String("component", "risk_state_file")),
	}
}

// Path returns the location of the state document.
func (s *RiskStateStore) Path() string { return s.path }

// Update loads the state, applies fn and writes the result back while holding
// both the in-process mutex and the cross-process file lock. A missing or
// corrupt document is handed to fn as the zero state. If fn returns an error
// nothing is written.
func (s *RiskStateStore) Update(ctx context.Context, fn func(state *domain.RiskState) error) (domain.RiskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return domain.RiskState{}, fmt.Errorf("file: create state dir: %w", err)
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("file: lock risk state: %w", err)
	}
	if !locked {
		return domain.RiskState{}, fmt.Errorf("file: lock risk state: %w", domain.ErrLockHeld)
	}
	defer func() {
		if uerr := s.lock.Unlock(); uerr != nil {
			s.logger.Warn("unlock risk state failed", slog.String("error", uerr.Error()))
		}
	}()

	state, err := s.read()
	if err != nil {
		return domain.RiskState{}, err
	}
	if err := fn(&state); err != nil {
		return domain.RiskState{}, err
	}
	if err := s.write(state); err != nil {
		return domain.RiskState{}, err
	}
	return state, nil
}

func (s *RiskStateStore) read() (domain.RiskState, error) {
	var state domain.RiskState
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("file: read risk state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("risk state unreadable, starting fresh",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return domain.RiskState{}, nil
	}
	return state, nil
}

func (s *RiskStateStore) write(state domain.RiskState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal risk state: %w", err)
	}
	return WriteAtomic(s.path, data)
}

// WriteAtomic writes data to a temp file in the target directory and renames
// it over path.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("file: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("file: rename: %w", err)
	}
	return nil
}
