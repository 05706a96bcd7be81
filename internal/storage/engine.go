package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

// WritebackMode controls whether a commit fsyncs the affected segment
// before resolving its completion promise (§4.3 open-flags, generalized:
// LMDB's write-map/async-map/no-meta-sync flags become this single choice
// since the engine's own append-only format has no separate meta page).
type WritebackMode int

const (
	// WritebackNone does not fsync after a commit; fastest, and matches
	// the default "fast-streaming" storage-compression-era configuration.
	WritebackNone WritebackMode = iota
	// WritebackSync fsyncs the affected segment before the completion
	// promise resolves, so a crash after a resolved write never loses it.
	WritebackSync
)

// Options configures Open.
type Options struct {
	// Dir is the directory the engine roots itself in (<data-path>/db/).
	Dir string

	// MapSize is a soft cap, in bytes, on any single sub-database segment;
	// exceeding it surfaces as a storage-error on the offending write
	// rather than growing unbounded (generalizes LMDB's map-size, which
	// bounds the whole mmap'd environment; here each sub-database is its
	// own file so the bound is per-segment).
	MapSize int64

	// MaxSubDatabases bounds how many distinct sub-database names this
	// engine will open.
	MaxSubDatabases int

	// MaxReaderSlots bounds how many concurrent read operations may be
	// in flight; additional readers block until a slot frees.
	MaxReaderSlots int

	// QueueDepth bounds the background writer's pending-operation queue.
	// Submit blocks (subject to ctx) once the queue is full.
	QueueDepth int

	Writeback WritebackMode

	Logger logr.Logger
}

func (o *Options) setDefaults() {
	if o.MapSize <= 0 {
		o.MapSize = 1 << 30 // 1 GiB soft cap per sub-database
	}
	if o.MaxSubDatabases <= 0 {
		o.MaxSubDatabases = 256
	}
	if o.MaxReaderSlots <= 0 {
		o.MaxReaderSlots = 128
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 4096
	}
}

// Engine is the single-writer, multi-reader memory-mapped store (§4.3).
// One Engine owns exactly one directory and every sub-database within it.
type Engine struct {
	opts Options

	lockFile *os.File // cross-process exclusive writer lock (flock)

	mu       sync.RWMutex // guards subdbs map membership (not segment contents)
	subdbs   map[string]*segment
	readSema chan struct{}

	ops      chan *writeOp
	workerWG sync.WaitGroup
	stopCh   chan struct{}
	closed   atomic.Bool
}

// Open opens or creates the engine rooted at opts.Dir, starts the
// background writer, and returns once ready to accept operations.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	opts.setDefaults()
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", opts.Dir, err)
	}

	lockPath := filepath.Join(opts.Dir, ".lock")
	lockFile, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open lock file: %w", err)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("storage: engine at %s is already open by another process: %w", opts.Dir, err)
	}

	e := &Engine{
		opts:     opts,
		lockFile: lockFile,
		subdbs:   map[string]*segment{},
		readSema: make(chan struct{}, opts.MaxReaderSlots),
		ops:      make(chan *writeOp, opts.QueueDepth),
		stopCh:   make(chan struct{}),
	}

	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		e.releaseLock()
		return nil, fmt.Errorf("storage: read dir %s: %w", opts.Dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".seg") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".seg")
		if _, err := e.openOrCreateSegment(name); err != nil {
			e.releaseLock()
			return nil, err
		}
	}

	e.workerWG.Add(1)
	go e.runWriter()

	return e, nil
}

func (e *Engine) releaseLock() {
	unix.Flock(int(e.lockFile.Fd()), unix.LOCK_UN)
	e.lockFile.Close()
}

// Close stops accepting new writes, drains the queue, cancels anything
// still pending, closes every sub-database, then releases the engine's
// directory lock (§4.3 Shutdown).
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(e.stopCh)
	e.workerWG.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for _, seg := range e.subdbs {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.releaseLock()
	return firstErr
}

// validateSubDBName enforces §6's naming rule: "[" and "]" are disallowed.
func validateSubDBName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSubDatabaseName)
	}
	if strings.ContainsAny(name, "[]") {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidSubDatabaseName, name)
	}
	return nil
}

func (e *Engine) segmentPath(name string) string {
	return filepath.Join(e.opts.Dir, name+".seg")
}

// openOrCreateSegment opens (creating if absent) the segment for name and
// registers it. Callers other than Open must hold no locks; this method
// manages its own locking of e.mu.
func (e *Engine) openOrCreateSegment(name string) (*segment, error) {
	if err := validateSubDBName(name); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if seg, ok := e.subdbs[name]; ok {
		return seg, nil
	}
	if len(e.subdbs) >= e.opts.MaxSubDatabases {
		return nil, fmt.Errorf("storage: max-sub-databases (%d) exceeded", e.opts.MaxSubDatabases)
	}

	seg, err := openSegment(name, e.segmentPath(name))
	if err != nil {
		return nil, err
	}
	e.subdbs[name] = seg
	return seg, nil
}

func (e *Engine) getSegment(name string) (*segment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	seg, ok := e.subdbs[name]
	return seg, ok
}

// SubDatabaseNames returns the names of every sub-database currently open.
func (e *Engine) SubDatabaseNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.subdbs))
	for name := range e.subdbs {
		names = append(names, name)
	}
	return names
}
