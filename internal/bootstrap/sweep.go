package bootstrap

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/apex-ledger/kernel/internal/eventstore"
	"github.com/apex-ledger/kernel/internal/logging"
	"github.com/apex-ledger/kernel/internal/metrics"
)

// StartVerifySweep schedules a periodic full chain verification pass
// (SPEC_FULL 12.5). An empty schedule disables the sweep and returns nil.
func StartVerifySweep(schedule string, store *eventstore.Store, log *logging.Logger, m *metrics.Collectors) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		start := time.Now()
		report, err := store.VerifyChain()
		if m != nil {
			metrics.ObserveDuration(m.ChainVerifyDuration, start)
		}
		if err != nil {
			log.Error(context.Background(), "background chain verification failed", err, nil)
			return
		}
		log.Info(context.Background(), "background chain verification passed", map[string]interface{}{
			"entries_checked": report.EntriesChecked,
			"last_sequence":   report.LastSequence,
		})
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
