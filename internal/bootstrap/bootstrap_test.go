package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apex-ledger/kernel/internal/config"
	"github.com/apex-ledger/kernel/internal/coordinator"
	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/logging"
	"github.com/apex-ledger/kernel/internal/metrics"
	"github.com/apex-ledger/kernel/internal/money"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LedgerRoot:               t.TempDir(),
		Fsync:                    config.FsyncAlways,
		MaxMetadataKeys:          64,
		MaxMetadataBytes:         1024,
		MaxCorrelationID:         128,
		WithdrawalVelocityPerMin: 0,
	}
}

func depositRequest(t *testing.T, amount string) coordinator.CommitRequest {
	t.Helper()
	vault, err := ledger.ParseAccountKey("ASSET:SYSTEM:VAULT:USDT:MAIN")
	require.NoError(t, err)
	user, err := ledger.ParseAccountKey("LIABILITY:USER:ALICE:USDT:AVAILABLE")
	require.NoError(t, err)
	amt, err := money.New("USDT", amount)
	require.NoError(t, err)

	debit, err := ledger.NewPosting(vault, ledger.Debit, amt, "USDT")
	require.NoError(t, err)
	credit, err := ledger.NewPosting(user, ledger.Credit, amt, "USDT")
	require.NoError(t, err)

	return coordinator.CommitRequest{
		Intent:        ledger.IntentDeposit,
		CorrelationID: "corr-bootstrap",
		Postings:      []ledger.Posting{debit, credit},
	}
}

func genesisRequest(t *testing.T) coordinator.CommitRequest {
	t.Helper()
	equity, err := ledger.ParseAccountKey("EQUITY:SYSTEM:GENESIS:USDT:MAIN")
	require.NoError(t, err)
	vault, err := ledger.ParseAccountKey("ASSET:SYSTEM:VAULT:USDT:MAIN")
	require.NoError(t, err)
	zero, err := money.New("USDT", "0.000000")
	require.NoError(t, err)

	credit, err := ledger.NewPosting(equity, ledger.Credit, zero, "USDT")
	require.NoError(t, err)
	debit, err := ledger.NewPosting(vault, ledger.Debit, zero, "USDT")
	require.NoError(t, err)

	return coordinator.CommitRequest{
		Intent:        ledger.IntentGenesis,
		CorrelationID: "corr-genesis",
		Postings:      []ledger.Posting{credit, debit},
	}
}

func TestRunThenRestartReplays(t *testing.T) {
	cfg := testConfig(t)
	log := logging.New("test", "error", "json")
	m := metrics.NewUnregistered()

	kernel, err := Run(context.Background(), cfg, log, m)
	require.NoError(t, err)

	_, err = kernel.Coordinator.Commit(context.Background(), genesisRequest(t))
	require.NoError(t, err)
	_, err = kernel.Coordinator.Commit(context.Background(), depositRequest(t, "15.000000"))
	require.NoError(t, err)
	kernel.Close()

	restarted, err := Run(context.Background(), cfg, log, metrics.NewUnregistered())
	require.NoError(t, err)
	defer restarted.Close()

	seq, have := restarted.Risk.LastAppliedSequence()
	require.True(t, have)
	assert.Equal(t, uint64(1), seq)

	bal, err := restarted.Projection.Balance("LIABILITY:USER:ALICE:USDT:AVAILABLE", "USDT")
	require.NoError(t, err)
	assert.Equal(t, "15.000000", bal.Canonical())
}

func TestResetReplaysProjectionFromScratch(t *testing.T) {
	cfg := testConfig(t)
	log := logging.New("test", "error", "json")
	m := metrics.NewUnregistered()

	kernel, err := Run(context.Background(), cfg, log, m)
	require.NoError(t, err)
	defer kernel.Close()

	_, err = kernel.Coordinator.Commit(context.Background(), genesisRequest(t))
	require.NoError(t, err)
	_, err = kernel.Coordinator.Commit(context.Background(), depositRequest(t, "7.000000"))
	require.NoError(t, err)

	require.NoError(t, Reset(kernel.Projection, kernel.Store))

	bal, err := kernel.Projection.Balance("LIABILITY:USER:ALICE:USDT:AVAILABLE", "USDT")
	require.NoError(t, err)
	assert.Equal(t, "7.000000", bal.Canonical())
}
