package ledger

import (
	"fmt"

	kerr "github.com/apex-ledger/kernel/internal/errors"
)

// Intent is the closed Phase-1 transaction-intent enumeration (spec.md 3.6).
// Intent governs which structural rules apply to an entry's postings; it
// never drives dispatch or side effects inside the kernel (spec.md 9,
// "Intent is validation, not dispatch").
type Intent string

const (
	IntentGenesis    Intent = "Genesis"
	IntentDeposit    Intent = "Deposit"
	IntentWithdrawal Intent = "Withdrawal"
	IntentTransfer   Intent = "Transfer"
	IntentTrade      Intent = "Trade"
	IntentFee        Intent = "Fee"
	IntentAdjustment Intent = "Adjustment"
)

var validIntents = map[Intent]bool{
	IntentGenesis:    true,
	IntentDeposit:    true,
	IntentWithdrawal: true,
	IntentTransfer:   true,
	IntentTrade:      true,
	IntentFee:        true,
	IntentAdjustment: true,
}

// Valid reports whether i is a recognized Phase-1 intent.
func (i Intent) Valid() bool { return validIntents[i] }

// validateIntentRules checks the structural pattern required by each
// intent (spec.md 4.2's validation matrix). It never inspects in-memory
// ledger state — that is the risk engine's job (spec.md 4.4).
func validateIntentRules(intent Intent, postings []Posting, metadata map[string]string, isGenesisPosition bool) error {
	// The chain's first entry must be Genesis, and Genesis may only ever
	// be the chain's first entry (spec.md 8.3's boundary rule).
	if isGenesisPosition && intent != IntentGenesis {
		return kerr.IntentViolation("the first entry committed to an empty chain must be Genesis")
	}

	switch intent {
	case IntentGenesis:
		if !isGenesisPosition {
			return kerr.IntentViolation("Genesis is only permitted as the single entry at sequence 0")
		}
		return nil

	case IntentDeposit:
		if len(postings) != 2 {
			return kerr.IntentViolation("Deposit requires exactly two postings")
		}
		if err := requireSameAsset(postings); err != nil {
			return err
		}
		debit, credit := postings[0], postings[1]
		if postings[0].Side != Debit {
			debit, credit = postings[1], postings[0]
		}
		if debit.Side != Debit || credit.Side != Credit {
			return kerr.IntentViolation("Deposit requires one Debit and one Credit posting")
		}
		if !debit.Account.IsSystemVaultMain() {
			return kerr.IntentViolation("Deposit must debit ASSET:SYSTEM:VAULT:*:MAIN")
		}
		if !credit.Account.IsUserAvailableLiability() {
			return kerr.IntentViolation("Deposit must credit LIABILITY:USER:*:*:AVAILABLE")
		}
		return nil

	case IntentWithdrawal:
		if len(postings) != 2 {
			return kerr.IntentViolation("Withdrawal requires exactly two postings")
		}
		if err := requireSameAsset(postings); err != nil {
			return err
		}
		debit, credit := postings[0], postings[1]
		if postings[0].Side != Debit {
			debit, credit = postings[1], postings[0]
		}
		if debit.Side != Debit || credit.Side != Credit {
			return kerr.IntentViolation("Withdrawal requires one Debit and one Credit posting")
		}
		if !debit.Account.IsUserAvailableLiability() {
			return kerr.IntentViolation("Withdrawal must debit LIABILITY:USER:*:*:AVAILABLE")
		}
		if !credit.Account.IsSystemVaultMain() {
			return kerr.IntentViolation("Withdrawal must credit ASSET:SYSTEM:VAULT:*:MAIN")
		}
		return nil

	case IntentTransfer:
		if len(postings) != 2 {
			return kerr.IntentViolation("Transfer requires exactly two postings")
		}
		if err := requireSameAsset(postings); err != nil {
			return err
		}
		for _, p := range postings {
			if p.Account.Category != CategoryLiability || p.Account.Domain != DomainUser {
				return kerr.IntentViolation("Transfer postings must be LIABILITY:USER:*:X:* accounts")
			}
		}
		if postings[0].Side == postings[1].Side {
			return kerr.IntentViolation("Transfer requires one Debit and one Credit posting")
		}
		return nil

	case IntentTrade:
		if len(postings) < 4 {
			return kerr.IntentViolation("Trade requires at least four postings")
		}
		for _, p := range postings {
			if p.Account.Category != CategoryLiability || p.Account.Domain != DomainUser {
				return kerr.IntentViolation("Trade postings must be participants' LIABILITY:USER:* accounts only")
			}
		}
		return nil

	case IntentFee:
		if len(postings) != 2 {
			return kerr.IntentViolation("Fee requires exactly two postings")
		}
		if err := requireSameAsset(postings); err != nil {
			return err
		}
		debit, credit := postings[0], postings[1]
		if postings[0].Side != Debit {
			debit, credit = postings[1], postings[0]
		}
		if debit.Side != Debit || credit.Side != Credit {
			return kerr.IntentViolation("Fee requires one Debit and one Credit posting")
		}
		if !debit.Account.IsUserAvailableLiability() {
			return kerr.IntentViolation("Fee must debit LIABILITY:USER:*:X:AVAILABLE")
		}
		if credit.Account.Category != CategoryRevenue || credit.Account.Domain != DomainSystem ||
			credit.Account.Entity != "FEE_POOL" || credit.Account.Subaccount != "MAIN" {
			return kerr.IntentViolation("Fee must credit REVENUE:SYSTEM:FEE_POOL:X:MAIN")
		}
		return nil

	case IntentAdjustment:
		if len(postings) < 2 {
			return kerr.IntentViolation("Adjustment requires at least two postings")
		}
		if metadata["approval_ref"] == "" {
			return kerr.IntentViolation("Adjustment requires a non-empty metadata.approval_ref")
		}
		return nil

	default:
		return kerr.IntentViolation(fmt.Sprintf("unknown intent %q", intent))
	}
}

func requireSameAsset(postings []Posting) error {
	asset := postings[0].Asset
	for _, p := range postings[1:] {
		if p.Asset != asset {
			return kerr.IntentViolation("cross-asset postings are not permitted for this intent")
		}
	}
	return nil
}
