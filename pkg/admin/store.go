// Copyright (c) 2025 David F. Watson
//
// This file is part of rsvp-site.
//
// rsvp-site is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Open an issue at https://github.com/davidfwatson/rsvp-site for commercial licensing options.

package admin

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

	"github.com/davidfwatson/rsvp-site/pkg/metrics"
)

const (
	defaultDirPerms  = 0700
	defaultFilePerms = 0600
)

// Store is the single source of truth for admins and invites.
type Store interface {
	// Load reads the current document. A missing file yields an empty
	// document.
	Load(ctx context.Context) (*Document, error)

	// Save atomically replaces the persisted document.
	Save(ctx context.Context, doc *Document) error

	// View loads the document and passes it to fn without writing.
	View(ctx context.Context, fn func(doc *Document) error) error

	// Update runs load, fn and save as one critical section. If fn
	// returns an error nothing is written; ErrNoChange is swallowed.
	Update(ctx context.Context, fn func(doc *Document) error) error

	// Close releases resources.
	Close() error
}

// FileStore persists the document as a single JSON file.
//
// Writes go through a renameio pending file in the same directory which is
// synced and then renamed over the target, so readers observe either the
// previous or the new document and never a truncated one. Load-mutate-save cycles are
// serialized by a mutex within the process and an advisory lock file
// across processes.
type FileStore struct {
	mu     sync.Mutex
	path   string
	perm   fs.FileMode
	logger *slog.Logger
	closed bool

	// beforeRename runs between writing the pending file and replacing
	// the target.
	beforeRename func(tmpPath string) error
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFileMode sets the permissions of the admin file.
func WithFileMode(perm fs.FileMode) Option {
	return func(s *FileStore) {
		s.perm = perm
	}
}

// NewFileStore returns a store backed by path. The parent directory is
// created if needed; the file itself is created on first save.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("admin store: path is required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("admin store: resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), defaultDirPerms); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrStoreIO, err)
	}

	s := &FileStore{
		path:   abs,
		perm:   defaultFilePerms,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the absolute path of the admin file.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (*Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	doc, err := s.read()
	metrics.RecordStoreOperation(metrics.OpLoad, err, time.Since(start))
	return doc, err
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return err
	}

	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return fmt.Errorf("%w: lock: %w", ErrStoreIO, err)
	}
	defer s.release(unlock)

	start := time.Now()
	err = s.write(doc)
	metrics.RecordStoreOperation(metrics.OpSave, err, time.Since(start))
	return err
}

// View implements Store.
func (s *FileStore) View(ctx context.Context, fn func(doc *Document) error) error {
	doc, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return fn(doc)
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(ctx); err != nil {
		return err
	}

	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return fmt.Errorf("%w: lock: %w", ErrStoreIO, err)
	}
	defer s.release(unlock)

	start := time.Now()
	err = s.update(fn)
	metrics.RecordStoreOperation(metrics.OpUpdate, err, time.Since(start))
	return err
}

func (s *FileStore) update(fn func(doc *Document) error) error {
	doc, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return s.write(doc)
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) ready(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked(ctx)
}

func (s *FileStore) readyLocked(ctx context.Context) error {
	if s.closed {
		return ErrStoreClosed
	}
	return ctx.Err()
}

func (s *FileStore) release(unlock func() error) {
	if err := unlock(); err != nil {
		s.logger.Warn("Failed to release admin store lock",
			slog.String("path", s.path),
			slog.Any("error", err))
	}
}

// read loads the document from disk without locking.
func (s *FileStore) read() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrStoreIO, s.path, err)
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStoreIO, s.path, err)
	}
	doc.normalize()
	return doc, nil
}

// write performs the atomic replace. The caller holds the locks.
func (s *FileStore) write(doc *Document) error {
	doc.normalize()
	if err := doc.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStoreIO, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := replaceFile(s.path, data, s.perm, s.beforeRename); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreIO, err)
	}

	// The rename is durable once the directory entry is flushed. Not every
	// platform supports syncing a directory, so failures are only logged.
	if err := syncDir(dir); err != nil {
		s.logger.Debug("Directory sync failed",
			slog.String("dir", dir),
			slog.Any("error", err))
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}
