package risk

import (
	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/money"
)

// checkBalances computes the hypothetical post-apply balance of every
// account touched by postings and rejects the entry if a protected account
// would go negative (spec.md 3.8 invariants 6 and 7). Caller holds e.mu
// for reading.
func (e *Engine) checkBalances(postings []ledger.Posting) error {
	type netDelta struct {
		delta   money.Amount
		account ledger.AccountKey
	}
	deltas := make(map[string]netDelta, len(postings))
	order := make([]string, 0, len(postings))

	for _, p := range postings {
		key := p.Account.String()
		nd, ok := deltas[key]
		if !ok {
			nd = netDelta{delta: money.Zero(p.Asset), account: p.Account}
			order = append(order, key)
		}

		var updated money.Amount
		var err error
		if ledger.SignedContribution(p.Account.Category, p.Side) > 0 {
			updated, err = nd.delta.Add(p.Amount)
		} else {
			updated, err = nd.delta.Sub(p.Amount)
		}
		if err != nil {
			return err
		}
		nd.delta = updated
		deltas[key] = nd
	}

	for _, key := range order {
		nd := deltas[key]
		current, ok := e.balances[key]
		if !ok {
			current = money.Zero(nd.delta.Asset())
		}

		hypothetical, err := current.Add(nd.delta)
		if err != nil {
			return err
		}
		if !hypothetical.Negative() {
			continue
		}

		switch {
		case nd.account.IsUserAvailableLiability():
			return kerr.InsufficientFunds(key, nd.delta.Canonical(), current.Canonical())
		case nd.account.IsSystemVaultMain():
			return kerr.VaultUnderflow(key, nd.delta.Canonical(), current.Canonical())
		}
	}

	return nil
}
