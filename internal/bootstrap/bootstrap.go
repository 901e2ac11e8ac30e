// Package bootstrap wires the kernel's components together at startup:
// open the event store, verify its hash chain, replay risk and projection
// state, then hand a ready Coordinator to the caller (spec.md 4.8).
package bootstrap

import (
	"context"
	"os"
	"path/filepath"

	"github.com/apex-ledger/kernel/internal/config"
	"github.com/apex-ledger/kernel/internal/coordinator"
	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/eventbus"
	"github.com/apex-ledger/kernel/internal/eventstore"
	"github.com/apex-ledger/kernel/internal/logging"
	"github.com/apex-ledger/kernel/internal/metrics"
	"github.com/apex-ledger/kernel/internal/projection"
	"github.com/apex-ledger/kernel/internal/risk"
)

// Kernel bundles every live component produced by a bootstrap (spec.md 4.8).
type Kernel struct {
	Store       *eventstore.Store
	Risk        *risk.Engine
	Projection  *projection.Engine
	Bus         *eventbus.Bus
	Coordinator *coordinator.Coordinator
}

// Close releases every resource opened by Run, in reverse dependency order.
func (k *Kernel) Close() {
	if k.Bus != nil {
		k.Bus.Stop()
	}
	if k.Projection != nil {
		k.Projection.Close()
	}
	if k.Store != nil {
		k.Store.Close()
	}
}

// Run performs the full startup sequence: verify the event store's hash
// chain, replay risk state from sequence 0, replay any gap between the
// projection's checkpoint and the store's last sequence, then switch to
// live mode by starting the event bus and returning a ready coordinator.
func Run(ctx context.Context, cfg *config.Config, log *logging.Logger, m *metrics.Collectors) (*Kernel, error) {
	if err := os.MkdirAll(cfg.ProjectionDir(), 0o750); err != nil {
		return nil, kerr.StorageIO("mkdir projection dir", err)
	}

	store, err := eventstore.Open(cfg.EventsDir(), log, m)
	if err != nil {
		return nil, err
	}

	report, err := store.VerifyChain()
	if err != nil {
		store.Close()
		return nil, err
	}
	log.Info(ctx, "event store chain verified", map[string]interface{}{
		"entries_checked": report.EntriesChecked,
		"last_sequence":   report.LastSequence,
	})

	proj, err := projection.Open(filepath.Join(cfg.ProjectionDir(), "state.db"))
	if err != nil {
		store.Close()
		return nil, err
	}

	riskEngine := risk.New(risk.Config{WithdrawalVelocityPerMin: cfg.WithdrawalVelocityPerMin})
	if err := replayRisk(store, riskEngine); err != nil {
		proj.Close()
		store.Close()
		return nil, err
	}

	if err := replayProjectionGap(store, proj); err != nil {
		proj.Close()
		store.Close()
		return nil, err
	}

	bus := eventbus.New(eventbus.Config{Logger: log})
	if err := bus.Start(ctx, 4); err != nil {
		proj.Close()
		store.Close()
		return nil, err
	}

	coord := coordinator.New(store, riskEngine, proj, bus, log, m)

	log.Info(ctx, "kernel bootstrap complete", map[string]interface{}{})

	return &Kernel{
		Store:       store,
		Risk:        riskEngine,
		Projection:  proj,
		Bus:         bus,
		Coordinator: coord,
	}, nil
}

// replayRisk rebuilds the risk engine's in-memory balances from every
// entry ever committed. The risk engine has no checkpoint of its own: it
// is rebuilt in full on every bootstrap (spec.md 4.4, 4.8).
func replayRisk(store *eventstore.Store, riskEngine *risk.Engine) error {
	items, cancel := store.IterFrom(0)
	defer cancel()
	for item := range items {
		if item.Err != nil {
			return item.Err
		}
		if err := riskEngine.Apply(item.Entry); err != nil {
			return err
		}
	}
	return nil
}

// replayProjectionGap replays only the entries the projection cache has
// not yet seen, starting just after its last checkpoint (spec.md 4.5,
// 4.8). A fresh or reset cache replays from sequence 0.
func replayProjectionGap(store *eventstore.Store, proj *projection.Engine) error {
	checkpoint, have, err := proj.CheckpointSequence()
	if err != nil {
		return err
	}

	start := uint64(0)
	if have {
		start = checkpoint + 1
	}

	storeSeq, storeHave := store.LastSequence()
	if have && storeHave && checkpoint > storeSeq {
		return kerr.InvariantBreak("projection checkpoint is ahead of the event store")
	}

	items, cancel := store.IterFrom(start)
	defer cancel()
	for item := range items {
		if item.Err != nil {
			return item.Err
		}
		if err := proj.Apply(item.Entry); err != nil {
			return err
		}
	}
	return nil
}

// Reset discards the projection cache and replays it from sequence 0
// against the event store (spec.md 6.3 "replay --reset").
func Reset(proj *projection.Engine, store *eventstore.Store) error {
	if err := proj.Reset(); err != nil {
		return err
	}
	return replayProjectionGap(store, proj)
}
