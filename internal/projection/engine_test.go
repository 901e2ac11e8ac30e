package projection

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/money"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	e, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func depositEntry(t *testing.T, seq uint64, prevHash string) ledger.SealedJournalEntry {
	t.Helper()
	vault, err := ledger.ParseAccountKey("ASSET:SYSTEM:VAULT:USDT:MAIN")
	require.NoError(t, err)
	user, err := ledger.ParseAccountKey("LIABILITY:USER:ALICE:USDT:AVAILABLE")
	require.NoError(t, err)
	amt, err := money.New("USDT", "25.000000")
	require.NoError(t, err)

	debit, err := ledger.NewPosting(vault, ledger.Debit, amt, "USDT")
	require.NoError(t, err)
	credit, err := ledger.NewPosting(user, ledger.Credit, amt, "USDT")
	require.NoError(t, err)

	return ledger.SealedJournalEntry{
		Sequence:      seq,
		Intent:        ledger.IntentDeposit,
		Timestamp:     1700000000000000 + int64(seq),
		CorrelationID: "corr",
		Postings:      []ledger.Posting{debit, credit},
		PrevHash:      prevHash,
		Hash:          "hash-" + string(rune('a'+seq)),
	}
}

func TestEngineApplyAndBalance(t *testing.T) {
	e := testEngine(t)

	entry := depositEntry(t, 0, ledger.GenesisPrevHash)
	require.NoError(t, e.Apply(entry))

	bal, err := e.Balance("LIABILITY:USER:ALICE:USDT:AVAILABLE", "USDT")
	require.NoError(t, err)
	assert.Equal(t, "25.000000", bal.Canonical())

	seq, have, err := e.CheckpointSequence()
	require.NoError(t, err)
	assert.True(t, have)
	assert.Equal(t, uint64(0), seq)
}

func TestEngineApplyIsIdempotent(t *testing.T) {
	e := testEngine(t)
	entry := depositEntry(t, 0, ledger.GenesisPrevHash)

	require.NoError(t, e.Apply(entry))
	require.NoError(t, e.Apply(entry))

	bal, err := e.Balance("LIABILITY:USER:ALICE:USDT:AVAILABLE", "USDT")
	require.NoError(t, err)
	assert.Equal(t, "25.000000", bal.Canonical())
}

func TestEngineHistory(t *testing.T) {
	e := testEngine(t)
	first := depositEntry(t, 0, ledger.GenesisPrevHash)
	second := depositEntry(t, 1, first.Hash)

	require.NoError(t, e.Apply(first))
	require.NoError(t, e.Apply(second))

	hist, err := e.History("LIABILITY:USER:ALICE:USDT:AVAILABLE", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, uint64(0), hist[0].Sequence)
	assert.Equal(t, uint64(1), hist[1].Sequence)
}

func TestEngineReset(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.Apply(depositEntry(t, 0, ledger.GenesisPrevHash)))
	require.NoError(t, e.Reset())

	_, have, err := e.CheckpointSequence()
	require.NoError(t, err)
	assert.False(t, have)
}
