package eventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/logging"
	"github.com/apex-ledger/kernel/internal/metrics"
	"github.com/apex-ledger/kernel/internal/money"
)

func testLogger() *logging.Logger {
	return logging.New("eventstore-test", "error", "json")
}

func depositCandidate(t *testing.T, correlationID string) ledger.CandidateEntry {
	t.Helper()
	vault, err := ledger.ParseAccountKey("ASSET:SYSTEM:VAULT:USDT:MAIN")
	require.NoError(t, err)
	user, err := ledger.ParseAccountKey("LIABILITY:USER:ALICE:USDT:AVAILABLE")
	require.NoError(t, err)
	amt, err := money.New("USDT", "10.000000")
	require.NoError(t, err)

	debit, err := ledger.NewPosting(vault, ledger.Debit, amt, "USDT")
	require.NoError(t, err)
	credit, err := ledger.NewPosting(user, ledger.Credit, amt, "USDT")
	require.NoError(t, err)

	entry, err := ledger.Build(ledger.IntentDeposit, correlationID, nil, []ledger.Posting{debit, credit}, nil, false)
	require.NoError(t, err)
	return entry
}

func TestStoreAppendAndChain(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, testLogger(), metrics.NewUnregistered())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	first, err := store.Append(depositCandidate(t, "corr-a"), now)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.Sequence)
	assert.Equal(t, ledger.GenesisPrevHash, first.PrevHash)

	second, err := store.Append(depositCandidate(t, "corr-b"), now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.Sequence)
	assert.Equal(t, first.Hash, second.PrevHash)

	seq, ok := store.LastSequence()
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)
}

func TestStoreVerifyChain(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, testLogger(), metrics.NewUnregistered())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	for i := 0; i < 5; i++ {
		_, err := store.Append(depositCandidate(t, "corr-x"), now)
		require.NoError(t, err)
	}

	report, err := store.VerifyChain()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), report.EntriesChecked)
	assert.Equal(t, uint64(4), report.LastSequence)
}

func TestStoreRecoversAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, testLogger(), metrics.NewUnregistered())
	require.NoError(t, err)

	now := time.Now()
	_, err = store.Append(depositCandidate(t, "corr-1"), now)
	require.NoError(t, err)
	_, err = store.Append(depositCandidate(t, "corr-2"), now)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dir, testLogger(), metrics.NewUnregistered())
	require.NoError(t, err)
	defer reopened.Close()

	seq, ok := reopened.LastSequence()
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)

	third, err := reopened.Append(depositCandidate(t, "corr-3"), now)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), third.Sequence)
}

func TestSecondOpenerIsLockedOut(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, testLogger(), metrics.NewUnregistered())
	require.NoError(t, err)
	defer store.Close()

	_, err = Open(dir, testLogger(), metrics.NewUnregistered())
	require.Error(t, err)
}
