package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/roach88/edgerelay/internal/clock"
	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/relay"
	"github.com/roach88/edgerelay/internal/store"
	"github.com/roach88/edgerelay/internal/testutil"
	"github.com/roach88/edgerelay/internal/transport"
)

// Epoch is the fixed start time of every run.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	// Host is the cloud host of every run. Trace URLs are relative to it.
	Host = "http://cloud.test"

	defaultMaxItemsPerPackage = 10
	defaultMaxItemsCeiling    = 100
	cycleTime                 = time.Hour
	firstCycleDelay           = time.Second
	idleTimeout               = 5 * time.Second
)

// Harness is the test execution engine.
// It runs one scenario against a fresh store on fake clocks.
type Harness struct {
	store   *store.Store
	sched   *relay.Scheduler
	client  *testutil.FakeClient
	rec     *recorder
	clock   *clock.FakeClock
	nextSeq int
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs on a fresh store in a temporary directory, which is
// removed afterwards.
//
// Execution flow:
// 1. Create the store and the scheduler, start the scheduler
// 2. Store the setup data
// 3. Run one cycle per flow step
// 4. Capture the final state and evaluate the assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "edgerelay-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	defer os.RemoveAll(dir)

	priority, err := model.ParsePriorityMode(scenario.Relay.Priority)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(filepath.Join(dir, "scenario.db"),
		store.WithClock(clock.Fake(Epoch)),
		store.WithPriorityMode(priority),
		store.WithLogger(logger),
	)

	ctx := context.Background()
	if err := st.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close(ctx)

	h := &Harness{
		store:  st,
		client: testutil.NewFakeClient(),
		clock:  clock.Fake(Epoch),
	}
	h.rec = &recorder{client: h.client}
	h.sched = relay.New(st, h.rec, scenario.relayConfig(),
		relay.WithOutput(h.rec),
		relay.WithClock(h.clock),
		relay.WithLogger(logger),
	)

	runCtx, cancel := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- h.sched.Run(runCtx) }()
	defer func() {
		cancel()
		<-runDone
	}()

	if err := h.seed(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	for i, step := range scenario.Flow {
		if err := h.runCycle(ctx, i+1, step); err != nil {
			return nil, fmt.Errorf("failed to execute flow[%d]: %w", i, err)
		}
	}

	result := NewResult()
	result.Trace = h.rec.events()
	if result.State, err = h.finalState(ctx); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// relayConfig returns the scheduler settings of s.
func (s *Scenario) relayConfig() relay.Config {
	cfg := relay.Config{
		Endpoints:          transport.ResolveEndpoints(Host, "EQ1"),
		CycleTime:          cycleTime,
		MaxItemsPerPackage: s.Relay.MaxItemsPerPackage,
		MaxItemsCeiling:    s.Relay.MaxItemsCeiling,
		DeleteOnOversize:   s.Relay.DeleteOnOversize,
	}
	if cfg.MaxItemsCeiling == 0 {
		cfg.MaxItemsCeiling = defaultMaxItemsCeiling
	}
	if cfg.MaxItemsPerPackage == 0 {
		cfg.MaxItemsPerPackage = min(defaultMaxItemsPerPackage, cfg.MaxItemsCeiling)
	}
	return cfg
}

// runCycle prepares step and fires the scheduler timer once.
func (h *Harness) runCycle(ctx context.Context, cycle int, step FlowStep) error {
	if err := h.seed(ctx, step.Setup); err != nil {
		return err
	}
	if step.AuthStatus != 0 {
		h.client.QueueAuthError(&transport.AuthError{StatusCode: step.AuthStatus})
	}
	for _, reply := range step.Replies {
		h.client.QueueReply(reply.response())
	}

	if err := h.waitIdle(); err != nil {
		return err
	}
	h.rec.setCycle(cycle)
	if cycle == 1 {
		h.clock.Advance(firstCycleDelay)
	} else {
		h.clock.Advance(cycleTime)
	}
	return h.waitIdle()
}

// waitIdle waits until the scheduler has armed its next timer.
func (h *Harness) waitIdle() error {
	deadline := time.Now().Add(idleTimeout)
	for h.clock.Pending() != 1 {
		if time.Now().After(deadline) {
			return errors.New("scheduler did not finish its cycle")
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// seed stores the items and configuration rows of s. Item seq numbers
// continue across calls.
func (h *Harness) seed(ctx context.Context, s Setup) error {
	for _, category := range model.Categories() {
		n := s.Configs[string(category)]
		if n == 0 {
			continue
		}
		rows := make([]json.RawMessage, n)
		for i := range rows {
			rows[i] = json.RawMessage(fmt.Sprintf(`{"category":%q,"row":%d}`, category, i))
		}
		if _, err := h.store.Configs().StoreConfig(ctx, category, rows); err != nil {
			return err
		}
	}

	if s.Items == 0 {
		return nil
	}
	events := make(map[int]bool, len(s.Events))
	for _, pos := range s.Events {
		events[pos] = true
	}
	items := make([]model.Item, s.Items)
	for i := range items {
		seq := h.nextSeq
		h.nextSeq++
		items[i] = model.Item{
			Timestamp: Epoch.Add(time.Duration(seq-1_000_000) * time.Second),
			IsEvent:   events[i],
			Payload:   json.RawMessage(fmt.Sprintf(`{"seq":%d}`, seq)),
		}
	}
	_, err := h.store.Queue().Store(ctx, items)
	return err
}

func (h *Harness) finalState(ctx context.Context) (FinalState, error) {
	items, err := h.store.Queue().Count(ctx)
	if err != nil {
		return FinalState{}, err
	}
	configs, err := h.store.Configs().Count(ctx)
	if err != nil {
		return FinalState{}, err
	}
	return FinalState{
		PendingItems:   items,
		PendingConfigs: configs,
		PackageSize:    h.sched.PackageSize(),
		Status:         h.sched.Status(),
	}, nil
}

// response builds the scripted answer.
func (r ReplySpec) response() (*transport.Response, error) {
	if r.NetworkError != "" {
		return nil, &transport.NetworkError{
			URL: transport.ResolveEndpoints(Host, "EQ1").ThingURL,
			Err: errors.New(r.NetworkError),
		}
	}
	if r.MaxAllowedItems == nil && r.CurrentItemIndex == nil && r.Message == "" {
		return testutil.NewResponse(r.Status), nil
	}
	return testutil.NewResponse(r.Status, transport.Result{
		MaxAllowedItems:  r.MaxAllowedItems,
		CurrentItemIndex: r.CurrentItemIndex,
		Message:          r.Message,
	}), nil
}

// recorder sits between the scheduler and the scripted client and collects
// everything the scheduler does into one ordered trace.
type recorder struct {
	mu     sync.Mutex
	client *testutil.FakeClient
	cycle  int
	trace  []TraceEvent
}

var (
	_ transport.Client = (*recorder)(nil)
	_ relay.Output     = (*recorder)(nil)
)

func (r *recorder) setCycle(cycle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycle = cycle
}

func (r *recorder) add(e TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Cycle = r.cycle
	r.trace = append(r.trace, e)
}

func (r *recorder) events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent{}, r.trace...)
}

// Authenticate implements transport.Client.
func (r *recorder) Authenticate(ctx context.Context) error {
	err := r.client.Authenticate(ctx)
	e := TraceEvent{Type: EventAuth}
	if err != nil {
		e.Error = err.Error()
	}
	r.add(e)
	return err
}

// Send implements transport.Client.
func (r *recorder) Send(ctx context.Context, url string, items []json.RawMessage) (*transport.Response, error) {
	r.add(TraceEvent{
		Type:  EventSend,
		URL:   strings.TrimPrefix(url, Host),
		Seqs:  seqs(items),
		Count: len(items),
	})
	resp, err := r.client.Send(ctx, url, items)
	if err != nil {
		r.add(TraceEvent{Type: EventResponse, Error: err.Error()})
		return nil, err
	}
	r.add(TraceEvent{Type: EventResponse, Code: resp.StatusCode})
	return resp, nil
}

// Forward implements relay.Output.
func (r *recorder) Forward(resp *transport.Response) {
	r.add(TraceEvent{Type: EventForward, Code: resp.StatusCode})
}

// Error implements relay.Output.
func (r *recorder) Error(err error) {
	r.add(TraceEvent{Type: EventError, Error: err.Error()})
}

// Status implements relay.Output.
func (r *recorder) Status(s model.Status) {
	r.add(TraceEvent{Type: EventStatus, Status: s})
}

// seqs returns the seq fields of items, or nil if they carry none.
func seqs(items []json.RawMessage) []int {
	var out []int
	for _, item := range items {
		var v struct {
			Seq *int `json:"seq"`
		}
		if err := json.Unmarshal(item, &v); err != nil || v.Seq == nil {
			return nil
		}
		out = append(out, *v.Seq)
	}
	return out
}
