package goOTP

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrEthical07/goOTP/clock"
	"github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/session"
)

// Engine owns the shared dependencies and the registry of live flows. It
// is safe for concurrent use.
type Engine struct {
	config    Config
	store     *session.Store
	backend   Backend
	clock     clock.Clock
	logger    *slog.Logger
	audit     *audit.Dispatcher
	metrics   *Metrics
	federated []FederatedProvider

	mu     sync.Mutex
	flows  map[string]*Flow
	closed bool

	// bg tracks scheduled refreshes running off the timer goroutine.
	bg sync.WaitGroup
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Metrics returns the engine counters for exporters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded without delivery.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// FlushAudit waits until every audit event emitted so far reached the
// sinks. It returns nil when auditing is disabled.
func (e *Engine) FlushAudit(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.audit.Flush(ctx)
}

// Close closes every flow, waits for scheduled refreshes that already
// started, then drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	flows := e.flows
	e.flows = map[string]*Flow{}
	e.mu.Unlock()

	for _, f := range flows {
		f.shutdown()
	}
	e.bg.Wait()
	e.audit.Close()
}

// Open mounts a fresh controller for scope, restoring its state from
// storage, and registers it in place of any previous flow for the scope.
//
// A stored session whose token has expired is cleared and the flow starts
// Unauthenticated. A pending credential alone yields OtpRequested with a
// fresh challenge.
func (e *Engine) Open(ctx context.Context, scope string) (*Flow, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" || strings.Contains(scope, ":") {
		return nil, ErrInvalidInput
	}

	f := newFlow(e, scope)
	if err := f.restore(ctx); err != nil {
		f.shutdown()
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		f.shutdown()
		return nil, ErrFlowClosed
	}
	previous := e.flows[scope]
	e.flows[scope] = f
	e.mu.Unlock()

	if previous != nil {
		previous.shutdown()
	}
	e.logger.DebugContext(ctx, "flow opened", "scope", scope, "state", f.State().String())
	return f, nil
}

// Flow returns the live flow registered for scope, opening one when none
// exists. Flows idle for longer than Flows.IdleTTL are evicted first.
func (e *Engine) Flow(ctx context.Context, scope string) (*Flow, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrFlowClosed
	}
	evicted := e.evictIdleLocked()
	f := e.flows[scope]
	e.mu.Unlock()

	for _, old := range evicted {
		old.shutdown()
	}
	if f != nil {
		return f, nil
	}
	return e.Open(ctx, scope)
}

// ActiveFlows reports how many flows are registered.
func (e *Engine) ActiveFlows() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.flows)
}

// IsAuthenticated reports whether a session is stored for scope.
func (e *Engine) IsAuthenticated(ctx context.Context, scope string) bool {
	return e.store.HasSession(ctx, scope)
}

func (e *Engine) evictIdleLocked() []*Flow {
	cutoff := e.clock.Now().Add(-e.config.Flows.IdleTTL)
	var evicted []*Flow
	for scope, f := range e.flows {
		if f.idleSince().Before(cutoff) {
			delete(e.flows, scope)
			evicted = append(evicted, f)
		}
	}
	return evicted
}

func (e *Engine) detach(f *Flow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flows[f.scope] == f {
		delete(e.flows, f.scope)
	}
}

// runBackground runs fn on its own goroutine unless the engine is closed.
func (e *Engine) runBackground(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		fn()
	}()
	return true
}

// waitBackground blocks until started background refreshes finish.
func (e *Engine) waitBackground() {
	e.bg.Wait()
}

func (e *Engine) storageFailure(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e.metrics.Inc(MetricBackendUnavailable)
	e.logger.WarnContext(ctx, "client storage failure", "op", op, "error", err)
	return mapStorageError(err)
}
