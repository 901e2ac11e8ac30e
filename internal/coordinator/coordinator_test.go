package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apex-ledger/kernel/internal/eventbus"
	"github.com/apex-ledger/kernel/internal/eventstore"
	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/logging"
	"github.com/apex-ledger/kernel/internal/metrics"
	"github.com/apex-ledger/kernel/internal/money"
	"github.com/apex-ledger/kernel/internal/projection"
	"github.com/apex-ledger/kernel/internal/risk"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	log := logging.New("test", "error", "json")
	m := metrics.NewUnregistered()

	store, err := eventstore.Open(t.TempDir(), log, m)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	proj, err := projection.Open(t.TempDir() + "/state.db")
	require.NoError(t, err)
	t.Cleanup(func() { proj.Close() })

	riskEngine := risk.New(risk.Config{})
	bus := eventbus.New(eventbus.Config{Logger: log})
	require.NoError(t, bus.Start(context.Background(), 1))
	t.Cleanup(bus.Stop)

	return New(store, riskEngine, proj, bus, log, m)
}

func depositPostings(t *testing.T, amount string) []ledger.Posting {
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
	return []ledger.Posting{debit, credit}
}

func genesisPostings(t *testing.T) []ledger.Posting {
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
	return []ledger.Posting{credit, debit}
}

func commitGenesis(t *testing.T, c *Coordinator) {
	t.Helper()
	_, err := c.Commit(context.Background(), CommitRequest{
		Intent:        ledger.IntentGenesis,
		CorrelationID: "corr-genesis",
		Postings:      genesisPostings(t),
	})
	require.NoError(t, err)
}

func TestCommitRejectsNonGenesisOnEmptyStore(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Commit(context.Background(), CommitRequest{
		Intent:        ledger.IntentDeposit,
		CorrelationID: "corr-1",
		Postings:      depositPostings(t, "40.000000"),
	})
	require.Error(t, err)

	seq, have := c.store.LastSequence()
	assert.False(t, have)
	assert.Equal(t, uint64(0), seq)
}

func TestCommitGenesisThenRejectsSecondGenesis(t *testing.T) {
	c := newTestCoordinator(t)
	commitGenesis(t, c)

	_, err := c.Commit(context.Background(), CommitRequest{
		Intent:        ledger.IntentGenesis,
		CorrelationID: "corr-genesis-2",
		Postings:      genesisPostings(t),
	})
	require.Error(t, err)
}

func TestCommitDepositEndToEnd(t *testing.T) {
	c := newTestCoordinator(t)
	commitGenesis(t, c)

	sealed, err := c.Commit(context.Background(), CommitRequest{
		Intent:        ledger.IntentDeposit,
		CorrelationID: "corr-1",
		Postings:      depositPostings(t, "40.000000"),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sealed.Sequence)
	assert.Equal(t, StateIdle, c.State())

	bal, err := c.proj.Balance("LIABILITY:USER:ALICE:USDT:AVAILABLE", "USDT")
	require.NoError(t, err)
	assert.Equal(t, "40.000000", bal.Canonical())

	riskBal := c.riskEngine.Balance("LIABILITY:USER:ALICE:USDT:AVAILABLE", "USDT")
	assert.Equal(t, "40.000000", riskBal.Canonical())
}

func TestCommitRejectsOverdraft(t *testing.T) {
	c := newTestCoordinator(t)
	commitGenesis(t, c)

	_, err := c.Commit(context.Background(), CommitRequest{
		Intent:        ledger.IntentDeposit,
		CorrelationID: "corr-1",
		Postings:      depositPostings(t, "10.000000"),
	})
	require.NoError(t, err)

	withdrawPostings := func(amount string) []ledger.Posting {
		vault, _ := ledger.ParseAccountKey("ASSET:SYSTEM:VAULT:USDT:MAIN")
		user, _ := ledger.ParseAccountKey("LIABILITY:USER:ALICE:USDT:AVAILABLE")
		amt, _ := money.New("USDT", amount)
		debit, _ := ledger.NewPosting(user, ledger.Debit, amt, "USDT")
		credit, _ := ledger.NewPosting(vault, ledger.Credit, amt, "USDT")
		return []ledger.Posting{debit, credit}
	}

	_, err = c.Commit(context.Background(), CommitRequest{
		Intent:        ledger.IntentWithdrawal,
		CorrelationID: "corr-2",
		Postings:      withdrawPostings("500.000000"),
	})
	require.Error(t, err)

	seq, have := c.store.LastSequence()
	require.True(t, have)
	assert.Equal(t, uint64(1), seq, "rejected candidate must not advance the chain past the last accepted entry")
}
