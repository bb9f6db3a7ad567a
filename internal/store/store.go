package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/edgerelay/internal/clock"
	"github.com/roach88/edgerelay/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultMaxFileSize         = 100 * 1024 * 1024
	defaultHousekeeperInterval = 10 * time.Second
	defaultCheckpointInterval  = 10 * time.Second
	defaultCleanupFactor       = 0.05
)

// State is the lifecycle state of a Store.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Store is the durable buffer shared by the telemetry queue and the
// configuration store. It owns exactly one SQLite connection.
type Store struct {
	path                string
	maxFileSize         int64
	housekeeperInterval time.Duration
	checkpointInterval  time.Duration
	cleanupFactor       float64
	priority            model.PriorityMode
	delayWindow         time.Duration
	clock               clock.Clock
	logger              *slog.Logger

	// mu serializes every operation on conn and guards the fields below.
	mu      sync.Mutex
	state   State
	ready   chan struct{}
	initErr error
	db      *sql.DB
	conn    *sql.Conn

	// mutations counts successful store/delete calls. The checkpoint and
	// housekeeper ticks compare it against the value seen on their last run.
	mutations    uint64
	checkpointed uint64
	housekept    uint64

	stopBackground context.CancelFunc
	backgroundDone chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithMaxFileSize sets the retention bound in bytes.
func WithMaxFileSize(bytes int64) Option {
	return func(s *Store) { s.maxFileSize = bytes }
}

// WithHousekeeperInterval sets how often the retention bound is checked.
func WithHousekeeperInterval(d time.Duration) Option {
	return func(s *Store) { s.housekeeperInterval = d }
}

// WithCheckpointInterval sets how often the ambient transaction is
// committed when writes are pending.
func WithCheckpointInterval(d time.Duration) Option {
	return func(s *Store) { s.checkpointInterval = d }
}

// WithCleanupFactor sets the fraction of queued items evicted per
// retention pass.
func WithCleanupFactor(f float64) Option {
	return func(s *Store) { s.cleanupFactor = f }
}

// WithPriorityMode sets the tie-break applied to items with equal
// timestamps.
func WithPriorityMode(p model.PriorityMode) Option {
	return func(s *Store) { s.priority = p }
}

// WithDelayWindow hides items younger than d from reads.
func WithDelayWindow(d time.Duration) Option {
	return func(s *Store) { s.delayWindow = d }
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger for operational messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns an uninitialized Store for the database file at path.
// Call Initialize before use; operations issued earlier block until the
// store is ready.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:                path,
		maxFileSize:         defaultMaxFileSize,
		housekeeperInterval: defaultHousekeeperInterval,
		checkpointInterval:  defaultCheckpointInterval,
		cleanupFactor:       defaultCleanupFactor,
		priority:            model.PriorityFIFO,
		clock:               clock.Real(),
		logger:              slog.Default(),
		state:               StateUninitialized,
		ready:               make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error of the last failed initialization, or nil.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFailed {
		return nil
	}
	return s.initErr
}

// Initialize opens or creates the backing file, migrates older layouts,
// compacts free space, opens the ambient transaction and starts the
// checkpoint and housekeeper tickers.
//
// Concurrent callers share one attempt. Failures are returned as *OpenError
// and leave the store in StateFailed; a later Initialize or Recover retries.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateInitializing:
		ready := s.ready
		s.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.initErr
	case StateFailed:
		s.ready = make(chan struct{})
	}
	s.state = StateInitializing
	ready := s.ready
	s.mu.Unlock()

	s.logger.Debug("opening store", "path", s.path)
	db, conn, err := s.open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		s.initErr = &OpenError{Path: s.path, Err: err}
		close(ready)
		return s.initErr
	}

	s.db = db
	s.conn = conn
	s.state = StateReady
	s.initErr = nil
	s.mutations, s.checkpointed, s.housekept = 0, 0, 0

	bgCtx, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel
	s.backgroundDone = make(chan struct{})
	go s.runBackground(bgCtx, s.backgroundDone)

	close(ready)
	s.logger.Info("store ready", "path", s.path, "priority", s.priority.String())
	return nil
}

// open creates the connection and brings the schema up to date.
func (s *Store) open(ctx context.Context) (*sql.DB, *sql.Conn, error) {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the ambient transaction lives on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	fail := func(err error) (*sql.DB, *sql.Conn, error) {
		conn.Close()
		db.Close()
		return nil, nil, err
	}

	if err := applyPragmas(ctx, conn); err != nil {
		return fail(fmt.Errorf("failed to apply pragmas: %w", err))
	}
	if err := applySchema(ctx, conn, s.clock.Now()); err != nil {
		return fail(fmt.Errorf("failed to apply schema: %w", err))
	}
	// Row ids are not reused after VACUUM because both tables use
	// AUTOINCREMENT.
	if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fail(fmt.Errorf("failed to vacuum: %w", err))
	}
	if err := beginTx(ctx, conn); err != nil {
		return fail(err)
	}
	return db, conn, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, conn *sql.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// acquire waits until the store is ready and returns the connection with
// s.mu held. The caller must unlock s.mu when done.
func (s *Store) acquire(ctx context.Context) (*sql.Conn, error) {
	for {
		s.mu.Lock()
		switch s.state {
		case StateReady:
			return s.conn, nil
		case StateClosed:
			s.mu.Unlock()
			return nil, ErrClosed
		case StateFailed:
			err := s.initErr
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		ready := s.ready
		s.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops the background tickers, commits the ambient transaction and
// closes the connection. An in-progress initialization is waited out first.
// Close is safe to call more than once.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	for s.state == StateInitializing {
		ready := s.ready
		s.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	stop, done := s.stopBackground, s.backgroundDone
	s.stopBackground, s.backgroundDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.conn != nil {
		if err := commitTx(ctx, s.conn); err != nil {
			errs = append(errs, err)
		}
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	s.conn, s.db = nil, nil
	if s.state == StateUninitialized {
		close(s.ready)
	}
	s.state = StateClosed
	s.logger.Debug("store closed", "path", s.path)
	return errors.Join(errs...)
}

// Destroy closes the store and removes its files. Used when the relay
// instance is decommissioned.
func (s *Store) Destroy(ctx context.Context) error {
	if err := s.Close(ctx); err != nil {
		s.logger.Warn("close before destroy failed", "path", s.path, "error", err)
	}
	return removeFiles(s.path)
}

// Recover discards a damaged backing file: it marks the store
// uninitialized, closes the connection ignoring errors, deletes the files
// and initializes a fresh database. All queued data is lost.
//
// Calls arriving during recovery wait for the new database. Recover is a
// no-op while an initialization is already running or after Close.
func (s *Store) Recover(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateInitializing || s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateUninitialized {
		s.ready = make(chan struct{})
	}
	s.state = StateUninitialized
	db, conn := s.db, s.conn
	s.db, s.conn = nil, nil
	stop, done := s.stopBackground, s.backgroundDone
	s.stopBackground, s.backgroundDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if conn != nil {
		_ = conn.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	s.logger.Warn("recovering store, discarding backing file", "path", s.path)
	if err := removeFiles(s.path); err != nil {
		s.logger.Error("failed to remove store file", "path", s.path, "error", err)
	}
	return s.Initialize(ctx)
}

// FileSize returns the on-disk size of the database including its WAL.
func (s *Store) FileSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", s.path, err)
	}
	size := info.Size()
	if wal, err := os.Stat(s.path + "-wal"); err == nil {
		size += wal.Size()
	}
	return size, nil
}

// removeFiles deletes the database and its WAL and shared-memory files.
// Missing files are not an error.
func removeFiles(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	var value string
	if err := conn.QueryRowContext(ctx, fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
