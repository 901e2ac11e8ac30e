package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apex-ledger/kernel/internal/money"
)

func mustAccount(t *testing.T, raw string) AccountKey {
	t.Helper()
	a, err := ParseAccountKey(raw)
	require.NoError(t, err)
	return a
}

func mustAmount(t *testing.T, asset money.AssetCode, literal string) money.Amount {
	t.Helper()
	a, err := money.New(asset, literal)
	require.NoError(t, err)
	return a
}

func mustPosting(t *testing.T, raw string, side Side, literal string, asset money.AssetCode) Posting {
	t.Helper()
	acc := mustAccount(t, raw)
	amt := mustAmount(t, asset, literal)
	p, err := NewPosting(acc, side, amt, asset)
	require.NoError(t, err)
	return p
}

func TestBuildDeposit(t *testing.T) {
	t.Run("valid deposit balances and parses", func(t *testing.T) {
		postings := []Posting{
			mustPosting(t, "ASSET:SYSTEM:VAULT:USDT:MAIN", Debit, "100.000000", "USDT"),
			mustPosting(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", Credit, "100.000000", "USDT"),
		}
		entry, err := Build(IntentDeposit, "corr-1", nil, postings, nil, false)
		require.NoError(t, err)
		assert.Equal(t, IntentDeposit, entry.Intent)
	})

	t.Run("rejects unbalanced deposit", func(t *testing.T) {
		postings := []Posting{
			mustPosting(t, "ASSET:SYSTEM:VAULT:USDT:MAIN", Debit, "100.000000", "USDT"),
			mustPosting(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", Credit, "99.000000", "USDT"),
		}
		_, err := Build(IntentDeposit, "corr-2", nil, postings, nil, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "balance")
	})

	t.Run("rejects deposit with wrong account shape", func(t *testing.T) {
		postings := []Posting{
			mustPosting(t, "LIABILITY:USER:BOB:USDT:AVAILABLE", Debit, "100.000000", "USDT"),
			mustPosting(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", Credit, "100.000000", "USDT"),
		}
		_, err := Build(IntentDeposit, "corr-3", nil, postings, nil, false)
		require.Error(t, err)
	})
}

func TestBuildGenesis(t *testing.T) {
	t.Run("genesis permitted only at position", func(t *testing.T) {
		postings := []Posting{
			mustPosting(t, "EQUITY:SYSTEM:GENESIS:USDT:MAIN", Credit, "0.000000", "USDT"),
			mustPosting(t, "ASSET:SYSTEM:VAULT:USDT:MAIN", Debit, "0.000000", "USDT"),
		}
		_, err := Build(IntentGenesis, "corr-genesis", nil, postings, nil, false)
		require.Error(t, err)

		_, err = Build(IntentGenesis, "corr-genesis", nil, postings, nil, true)
		require.NoError(t, err)
	})
}

func TestBuildAdjustment(t *testing.T) {
	t.Run("requires approval_ref", func(t *testing.T) {
		postings := []Posting{
			mustPosting(t, "ASSET:SYSTEM:VAULT:USDT:MAIN", Debit, "5.000000", "USDT"),
			mustPosting(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", Credit, "5.000000", "USDT"),
		}
		_, err := Build(IntentAdjustment, "corr-4", nil, postings, nil, false)
		require.Error(t, err)

		_, err = Build(IntentAdjustment, "corr-4", nil, postings, map[string]string{"approval_ref": "ops-42"}, false)
		require.NoError(t, err)
	})
}

func TestBuildRejectsInvalidCorrelationID(t *testing.T) {
	postings := []Posting{
		mustPosting(t, "ASSET:SYSTEM:VAULT:USDT:MAIN", Debit, "1.000000", "USDT"),
		mustPosting(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", Credit, "1.000000", "USDT"),
	}
	_, err := Build(IntentDeposit, "", nil, postings, nil, false)
	require.Error(t, err)
}

func TestCanonicalizeDeterministic(t *testing.T) {
	postings := []Posting{
		mustPosting(t, "LIABILITY:USER:ALICE:USDT:AVAILABLE", Credit, "100.000000", "USDT"),
		mustPosting(t, "ASSET:SYSTEM:VAULT:USDT:MAIN", Debit, "100.000000", "USDT"),
	}
	metadata := map[string]string{"b": "2", "a": "1"}

	h1 := ComputeHash(1, GenesisPrevHash, IntentDeposit, 1700000000000000, "corr-5", nil, postings, metadata)

	reversed := []Posting{postings[1], postings[0]}
	h2 := ComputeHash(1, GenesisPrevHash, IntentDeposit, 1700000000000000, "corr-5", nil, reversed, metadata)

	assert.Equal(t, h1, h2, "hash must not depend on posting input order")
}
