package ledger

import (
	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/money"
)

// Posting is a single line of a journal entry (spec.md 3.5).
type Posting struct {
	Account AccountKey
	Side    Side
	Amount  money.Amount
	Asset   money.AssetCode
}

// NewPosting validates and constructs a Posting: the amount must not be
// negative, and the posting's asset must equal the account key's asset
// segment. Most intents require a strictly positive amount, but the
// Genesis entry is exactly one zero-amount entry (spec.md 8.4, SPEC_FULL
// §12.2). Whether zero is permitted is an intent-specific rule enforced
// by Build, not by this constructor.
func NewPosting(account AccountKey, side Side, amount money.Amount, asset money.AssetCode) (Posting, error) {
	if !side.Valid() {
		return Posting{}, kerr.New(kerr.CodeIntentViolation, "posting side must be Debit or Credit")
	}
	if amount.Negative() {
		return Posting{}, kerr.AmountNotPositive(account.String())
	}
	if amount.Asset() != asset {
		return Posting{}, kerr.AccountAssetMismatch(account.String(), string(asset))
	}
	if account.Asset != asset {
		return Posting{}, kerr.AccountAssetMismatch(account.String(), string(asset))
	}
	return Posting{Account: account, Side: side, Amount: amount, Asset: asset}, nil
}

// sortKey produces the tuple postings are canonically sorted by:
// (account, side, asset) per spec.md 3.7.
func (p Posting) sortKey() string {
	return p.Account.String() + "\x00" + string(p.Side) + "\x00" + string(p.Asset)
}
