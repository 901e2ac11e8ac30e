package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/money"
)

func mustAccount(t *testing.T, raw string) ledger.AccountKey {
	t.Helper()
	a, err := ledger.ParseAccountKey(raw)
	require.NoError(t, err)
	return a
}

func mustPosting(t *testing.T, raw string, side ledger.Side, literal string) ledger.Posting {
	t.Helper()
	acc := mustAccount(t, raw)
	amt, err := money.New("USDT", literal)
	require.NoError(t, err)
	p, err := ledger.NewPosting(acc, side, amt, "USDT")
	require.NoError(t, err)
	return p
}

func deposit(t *testing.T, amount string) ledger.CandidateEntry {
	t.Helper()
	postings := []ledger.Posting{
		mustPosting(t, "ASSET:SYSTEM:VAULT:USDT:MAIN", ledger.Debit, amount),
		mustPosting(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", ledger.Credit, amount),
	}
	e, err := ledger.Build(ledger.IntentDeposit, "corr", nil, postings, nil, false)
	require.NoError(t, err)
	return e
}

func withdrawal(t *testing.T, amount string) ledger.CandidateEntry {
	t.Helper()
	postings := []ledger.Posting{
		mustPosting(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", ledger.Debit, amount),
		mustPosting(t, "ASSET:SYSTEM:VAULT:USDT:MAIN", ledger.Credit, amount),
	}
	e, err := ledger.Build(ledger.IntentWithdrawal, "corr", nil, postings, nil, false)
	require.NoError(t, err)
	return e
}

func transfer(t *testing.T, from, to, amount string) ledger.CandidateEntry {
	t.Helper()
	postings := []ledger.Posting{
		mustPosting(t, from, ledger.Debit, amount),
		mustPosting(t, to, ledger.Credit, amount),
	}
	e, err := ledger.Build(ledger.IntentTransfer, "corr", nil, postings, nil, false)
	require.NoError(t, err)
	return e
}

func seal(t *testing.T, eng *Engine, candidate ledger.CandidateEntry) ledger.SealedJournalEntry {
	t.Helper()
	seq, have := eng.LastAppliedSequence()
	next := uint64(0)
	if have {
		next = seq + 1
	}
	return ledger.SealedJournalEntry{
		Sequence: next,
		Intent:   candidate.Intent,
		Postings: candidate.Postings,
		Metadata: candidate.Metadata,
		PrevHash: "x",
		Hash:     "y",
	}
}

func TestEngineRejectsOverdraft(t *testing.T) {
	eng := New(Config{})

	d := deposit(t, "50.000000")
	require.NoError(t, eng.Check(d))
	sealed := seal(t, eng, d)
	require.NoError(t, eng.Apply(sealed))

	w := withdrawal(t, "100.000000")
	err := eng.Check(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient")
}

func TestEngineAllowsExactBalanceWithdrawal(t *testing.T) {
	eng := New(Config{})

	d := deposit(t, "50.000000")
	require.NoError(t, eng.Check(d))
	require.NoError(t, eng.Apply(seal(t, eng, d)))

	w := withdrawal(t, "50.000000")
	require.NoError(t, eng.Check(w))
	require.NoError(t, eng.Apply(seal(t, eng, w)))

	bal := eng.Balance("LIABILITY:USER:ALICE:USDT:AVAILABLE", "USDT")
	assert.True(t, bal.IsZero())
}

func TestEngineApplyIsIdempotent(t *testing.T) {
	eng := New(Config{})
	d := deposit(t, "10.000000")
	sealed := seal(t, eng, d)

	require.NoError(t, eng.Apply(sealed))
	require.NoError(t, eng.Apply(sealed))

	bal := eng.Balance("LIABILITY:USER:ALICE:USDT:AVAILABLE", "USDT")
	assert.Equal(t, "10.000000", bal.Canonical())
}

func TestEngineDisabledIntent(t *testing.T) {
	eng := New(Config{DisabledIntents: map[ledger.Intent]bool{ledger.IntentWithdrawal: true}})
	d := deposit(t, "1.000000")
	require.NoError(t, eng.Apply(seal(t, eng, d)))

	w := withdrawal(t, "1.000000")
	err := eng.Check(w)
	require.Error(t, err)
}

func TestEngineVelocityGatesOutboundTransfer(t *testing.T) {
	eng := New(Config{WithdrawalVelocityPerMin: 1})
	d := deposit(t, "10.000000")
	require.NoError(t, eng.Check(d))
	require.NoError(t, eng.Apply(seal(t, eng, d)))

	tr1 := transfer(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", "LIABILITY:USER:BOB:USDT:AVAILABLE", "1.000000")
	require.NoError(t, eng.Check(tr1))
	require.NoError(t, eng.Apply(seal(t, eng, tr1)))

	tr2 := transfer(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", "LIABILITY:USER:BOB:USDT:AVAILABLE", "1.000000")
	err := eng.Check(tr2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "velocity")
}
