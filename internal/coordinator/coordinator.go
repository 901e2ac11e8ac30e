// Package coordinator serializes the write path: structural validation,
// risk check, seal, durable append, projection apply, risk apply, and
// event-bus publish, in that order, under a single in-process writer
// (spec.md 4.3, 4.6).
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/eventbus"
	"github.com/apex-ledger/kernel/internal/eventstore"
	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/logging"
	"github.com/apex-ledger/kernel/internal/metrics"
	"github.com/apex-ledger/kernel/internal/projection"
	"github.com/apex-ledger/kernel/internal/risk"
)

// State is the coordinator's commit state machine (spec.md 4.6). There is
// deliberately no Retrying state: a failure at any step aborts the commit
// and returns to Idle, leaving recovery to the next bootstrap.
type State string

const (
	StateIdle       State = "Idle"
	StateValidating State = "Validating"
	StateChecking   State = "Checking"
	StateSealing    State = "Sealing"
	StateAppending  State = "Appending"
	StateProjecting State = "Projecting"
	StatePublishing State = "Publishing"
)

// Coordinator is the kernel's single writer. All mutation of ledger state
// passes through Commit, serialized by mu.
type Coordinator struct {
	mu sync.Mutex

	store      *eventstore.Store
	riskEngine *risk.Engine
	proj       *projection.Engine
	bus        *eventbus.Bus
	log        *logging.Logger
	metrics    *metrics.Collectors

	state State
	fatal error
}

// New constructs a Coordinator over already-bootstrapped components.
func New(store *eventstore.Store, riskEngine *risk.Engine, proj *projection.Engine, bus *eventbus.Bus, log *logging.Logger, m *metrics.Collectors) *Coordinator {
	return &Coordinator{
		store:      store,
		riskEngine: riskEngine,
		proj:       proj,
		bus:        bus,
		log:        log,
		metrics:    m,
		state:      StateIdle,
	}
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CommitRequest is the input to a single commit.
type CommitRequest struct {
	Intent        ledger.Intent
	CorrelationID string
	CausalityID   *string
	Postings      []ledger.Posting
	Metadata      map[string]string
}

// Commit runs the full write path for one candidate entry and returns the
// sealed result. It serializes with every other Commit call: the kernel
// has exactly one writer (spec.md 4.3).
func (c *Coordinator) Commit(ctx context.Context, req CommitRequest) (ledger.SealedJournalEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fatal != nil {
		return ledger.SealedJournalEntry{}, c.fatal
	}

	start := time.Now()
	result := "error"
	defer func() {
		if c.metrics != nil {
			c.metrics.CommitsTotal.WithLabelValues(result).Inc()
			metrics.ObserveDuration(c.metrics.CommitDuration, start)
		}
	}()

	c.state = StateValidating
	_, haveEntries := c.store.LastSequence()
	isGenesisPosition := !haveEntries
	candidate, err := ledger.Build(req.Intent, req.CorrelationID, req.CausalityID, req.Postings, req.Metadata, isGenesisPosition)
	if err != nil {
		c.state = StateIdle
		return ledger.SealedJournalEntry{}, err
	}

	c.state = StateChecking
	if err := c.riskEngine.Check(candidate); err != nil {
		c.state = StateIdle
		if c.metrics != nil {
			if ke, ok := kerr.AsKernelError(err); ok {
				c.metrics.RiskRejectionsTotal.WithLabelValues(string(ke.Code)).Inc()
			}
		}
		return ledger.SealedJournalEntry{}, err
	}

	c.state = StateSealing
	c.state = StateAppending
	appendStart := time.Now()
	sealed, err := c.store.Append(candidate, time.Now())
	if c.metrics != nil {
		metrics.ObserveDuration(c.metrics.EventAppendDuration, appendStart)
	}
	if err != nil {
		c.state = StateIdle
		if _, ok := kerr.AsFatalError(err); ok {
			c.fatal = err
		}
		return ledger.SealedJournalEntry{}, err
	}

	c.state = StateProjecting
	if err := c.proj.Apply(sealed); err != nil {
		// The event store already committed; the projection cache is
		// rebuildable, so this is logged and the commit proceeds.
		c.log.Error(ctx, "projection apply failed after durable commit", err, map[string]interface{}{"sequence": sealed.Sequence})
	}

	if err := c.riskEngine.Apply(sealed); err != nil {
		c.state = StateIdle
		c.fatal = kerr.Fatal("BUG_RISK_APPLY_DESYNC", fmt.Sprintf("risk engine failed to apply sequence %d after durable commit", sealed.Sequence), err)
		return sealed, c.fatal
	}

	c.state = StatePublishing
	c.bus.Publish(sealed)

	c.state = StateIdle
	result = "ok"
	return sealed, nil
}
