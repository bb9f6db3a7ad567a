package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/edgerelay/internal/clock"
	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/store"
	"github.com/roach88/edgerelay/internal/transport"
)

const (
	DefaultCycleTime          = time.Hour
	DefaultMaxItemsPerPackage = 10000
	DefaultMaxItemsCeiling    = 10000

	// initialDelay is the wait between Run and the first authentication.
	initialDelay = time.Second

	// minCycleGap is the shortest wait between two periodic cycles.
	minCycleGap = time.Second
)

// Config holds the scheduler settings.
type Config struct {
	Endpoints transport.Endpoints

	// CycleTime is the period of the transmission cycle.
	CycleTime time.Duration

	// MaxItemsPerPackage is the initial package size. The server may
	// change it through max_allowed_items.
	MaxItemsPerPackage int

	// MaxItemsCeiling bounds the package size the server can ask for.
	MaxItemsCeiling int

	// DeleteOnOversize deletes items up to current_item_index when a
	// package is rejected with 413. Off by default: the items are resent
	// in smaller packages.
	DeleteOnOversize bool
}

func (c Config) withDefaults() Config {
	if c.CycleTime <= 0 {
		c.CycleTime = DefaultCycleTime
	}
	if c.MaxItemsCeiling <= 0 {
		c.MaxItemsCeiling = DefaultMaxItemsCeiling
	}
	if c.MaxItemsPerPackage <= 0 {
		c.MaxItemsPerPackage = DefaultMaxItemsPerPackage
	}
	c.MaxItemsPerPackage = min(c.MaxItemsPerPackage, c.MaxItemsCeiling)
	return c
}

// Message is one inbound producer message.
type Message struct {
	Items   []model.Item
	Configs []store.ConfigGroup
	Flush   bool
}

// Scheduler transmits the contents of a store.
type Scheduler struct {
	store   *store.Store
	queue   *store.Queue
	configs *store.ConfigStore
	client  transport.Client
	cfg     Config
	output  Output
	clock   clock.Clock
	logger  *slog.Logger

	// packageSize is only written by the Run goroutine.
	packageSize atomic.Int64

	statusMu sync.Mutex
	status   model.Status

	flush chan struct{}

	recovering atomic.Bool
	recoveries sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithOutput sets where responses, errors and statuses are reported.
func WithOutput(o Output) Option {
	return func(s *Scheduler) { s.output = o }
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New returns a scheduler for st that sends through client. The store is
// expected to be initialized separately; cycles skip while it is not ready.
func New(st *store.Store, client transport.Client, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   st,
		queue:   st.Queue(),
		configs: st.Configs(),
		client:  client,
		cfg:     cfg.withDefaults(),
		output:  discardOutput{},
		clock:   clock.Real(),
		logger:  slog.Default(),
		flush:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.packageSize.Store(int64(s.cfg.MaxItemsPerPackage))
	return s
}

// Status returns the last reported status.
func (s *Scheduler) Status() model.Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// PackageSize returns the current number of items per package.
func (s *Scheduler) PackageSize() int {
	return int(s.packageSize.Load())
}

// setStatus reports st unless it is already the current status.
func (s *Scheduler) setStatus(st model.Status) {
	s.statusMu.Lock()
	if s.status == st {
		s.statusMu.Unlock()
		return
	}
	s.status = st
	s.statusMu.Unlock()

	s.logger.Debug("status", "status", string(st))
	s.output.Status(st)
}

// Flush requests an extra cycle. It does not move the periodic schedule.
// Requests arriving while one is pending are merged.
func (s *Scheduler) Flush() {
	select {
	case s.flush <- struct{}{}:
	default:
	}
}

// Handle stores an inbound message and triggers a flush if requested.
// Storage calls wait for the store to become ready. Failures are reported
// like cycle failures.
func (s *Scheduler) Handle(ctx context.Context, msg Message) {
	for _, group := range msg.Configs {
		if len(group.Items) == 0 {
			continue
		}
		if _, err := s.configs.StoreConfig(ctx, group.Category, group.Items); err != nil {
			s.handleError(err)
		}
	}
	if len(msg.Items) > 0 {
		if _, err := s.queue.Store(ctx, msg.Items); err != nil {
			s.handleError(err)
		}
	}
	if msg.Flush {
		s.Flush()
	}
}

// Run executes the schedule until ctx is cancelled. The first cycle starts
// one second after Run with an explicit authentication; while that keeps
// failing it is retried every cycle time. Run waits for a running store
// recovery before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.recoveries.Wait()

	s.setStatus(model.StatusNotConnected)
	s.logger.Info("scheduler starting",
		"url", s.cfg.Endpoints.ThingURL,
		"cycle_time", s.cfg.CycleTime,
		"package_size", s.PackageSize(),
	)

	authenticated := false
	timer := s.clock.After(initialDelay)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping: context cancelled")
			return nil

		case <-s.flush:
			s.logger.Debug("flush requested")
			if !s.ensureAuthenticated(ctx, &authenticated) {
				continue
			}
			s.transmit(ctx)

		case <-timer:
			start := s.clock.Now()
			if !s.ensureAuthenticated(ctx, &authenticated) {
				timer = s.clock.After(s.cfg.CycleTime)
				continue
			}

			s.transmit(ctx)

			elapsed := s.clock.Now().Sub(start)
			s.logger.Debug("job finished", "duration", elapsed)
			timer = s.clock.After(max(s.cfg.CycleTime-elapsed, minCycleGap))
		}
	}
}

// ensureAuthenticated performs the explicit first authentication. Nothing
// is sent until it has succeeded once; later token renewals happen inside
// the client.
func (s *Scheduler) ensureAuthenticated(ctx context.Context, authenticated *bool) bool {
	if *authenticated {
		return true
	}
	if err := s.client.Authenticate(ctx); err != nil {
		if ctx.Err() == nil {
			s.handleError(err)
		}
		return false
	}
	*authenticated = true
	s.setStatus(model.StatusConnected)
	return true
}

// transmit runs one cycle: configuration first, then telemetry.
func (s *Scheduler) transmit(ctx context.Context) {
	if state := s.store.State(); state != store.StateReady {
		s.logger.Debug("store not ready, skipping cycle", "state", state.String())
		if ce, ok := store.DetectCorruption(s.store.Err()); ok {
			s.recoverStore(ce)
		}
		return
	}

	err := s.drainConfigs(ctx)
	if err == nil {
		err = s.drainQueue(ctx)
	}
	if err != nil && ctx.Err() == nil {
		s.handleError(err)
	}
}

// ReportError reports a failure that happened outside the scheduler, such
// as a failed store initialization, the same way as a cycle failure.
func (s *Scheduler) ReportError(err error) {
	if err != nil {
		s.handleError(err)
	}
}

// handleError reports a failure and starts store recovery for corruption.
func (s *Scheduler) handleError(err error) {
	c := Classify(err)
	s.setStatus(c.Status)

	var transportErr *transport.TransportError
	if errors.As(err, &transportErr) && transportErr.Response != nil {
		s.output.Forward(transportErr.Response)
	}

	s.logger.Error("relay error", "status", string(c.Status), "error", c.Err)
	s.output.Error(c.Err)

	if ce, ok := store.DetectCorruption(err); ok {
		s.recoverStore(ce)
	}
}

// recoverStore recreates the store in the background. Concurrent requests
// while a recovery runs are dropped.
func (s *Scheduler) recoverStore(ce *store.CorruptionError) {
	if !s.recovering.CompareAndSwap(false, true) {
		return
	}
	s.recoveries.Add(1)
	go func() {
		defer s.recoveries.Done()
		defer s.recovering.Store(false)

		s.logger.Warn("store damaged, deleting and recreating it",
			"path", s.store.Path(), "signature", ce.Signature)
		if err := s.store.Recover(context.Background()); err != nil {
			s.logger.Error("store recovery failed", "path", s.store.Path(), "error", err)
			s.output.Error(&LocalError{Cause: err})
		}
	}()
}

// payloads returns the item payloads of a batch.
func payloads(items []model.Item) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = item.Payload
	}
	return out
}
