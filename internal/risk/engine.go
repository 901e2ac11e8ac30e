// Package risk is the pre-commit gatekeeper: it rejects candidate entries
// that would violate balance invariants, velocity limits, or policy before
// the event store ever sees them (spec.md 4.4).
package risk

import (
	"sync"

	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/money"
)

// Config governs the risk engine's deterministic checks (SPEC_FULL 12.3).
type Config struct {
	// DisabledIntents blocks specific intents regardless of structural validity.
	DisabledIntents map[ledger.Intent]bool

	// WithdrawalVelocityPerMin is the max outbound Withdrawal and Transfer
	// entries per user account per minute. Zero disables the limit.
	WithdrawalVelocityPerMin float64
}

// Engine holds the kernel's in-memory ledger state: one running balance per
// account, rebuilt from the event store on startup (spec.md 4.4, 4.8).
type Engine struct {
	mu sync.RWMutex

	balances map[string]money.Amount

	lastAppliedSeq uint64
	haveApplied    bool

	cfg      Config
	velocity *velocityLimiter
}

// New constructs an empty risk engine. Callers must Apply every entry from
// sequence 0 before the engine reflects real balances (spec.md 4.8).
func New(cfg Config) *Engine {
	if cfg.DisabledIntents == nil {
		cfg.DisabledIntents = map[ledger.Intent]bool{}
	}
	return &Engine{
		balances: make(map[string]money.Amount),
		cfg:      cfg,
		velocity: newVelocityLimiter(cfg.WithdrawalVelocityPerMin),
	}
}

// Balance returns the current balance of account, or the zero amount for
// asset if the account has never been posted to.
func (e *Engine) Balance(account string, asset money.AssetCode) money.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if b, ok := e.balances[account]; ok {
		return b
	}
	return money.Zero(asset)
}

// Snapshot returns a copy of every tracked account balance.
func (e *Engine) Snapshot() map[string]money.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]money.Amount, len(e.balances))
	for k, v := range e.balances {
		out[k] = v
	}
	return out
}

// LastAppliedSequence returns the sequence of the most recently applied
// entry, and whether any entry has been applied yet.
func (e *Engine) LastAppliedSequence() (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastAppliedSeq, e.haveApplied
}

// Check runs every risk rule against a candidate entry without mutating any
// state, in the fixed order balance checks -> limits -> policy (spec.md
// 4.4). It must be safe to call repeatedly and concurrently with Apply of
// unrelated entries is not supported: the write coordinator serializes
// Check and Apply under a single writer.
func (e *Engine) Check(candidate ledger.CandidateEntry) error {
	if e.cfg.DisabledIntents[candidate.Intent] {
		return kerr.IntentDisabled(string(candidate.Intent))
	}

	e.mu.RLock()
	err := e.checkBalances(candidate.Postings)
	e.mu.RUnlock()
	if err != nil {
		return err
	}

	if isVelocityGated(candidate.Intent) {
		if err := e.checkVelocity(candidate.Postings); err != nil {
			return err
		}
	}

	if e.cfg.DisabledIntents[candidate.Intent] {
		return kerr.IntentDisabled(string(candidate.Intent))
	}

	return nil
}

// Apply mutates balances to reflect a sealed entry. It is idempotent: an
// entry whose sequence has already been applied is a silent no-op, which
// is what makes replay of the same entry after a crash safe (spec.md 4.8).
func (e *Engine) Apply(entry ledger.SealedJournalEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.haveApplied && entry.Sequence <= e.lastAppliedSeq {
		return nil
	}
	if e.haveApplied && entry.Sequence != e.lastAppliedSeq+1 {
		return kerr.SequenceGap(e.lastAppliedSeq+1, entry.Sequence)
	}

	for _, p := range entry.Postings {
		if err := e.applyPosting(p); err != nil {
			return err
		}
	}

	if isVelocityGated(entry.Intent) {
		e.velocity.record(outboundAccount(entry.Postings))
	}

	e.lastAppliedSeq = entry.Sequence
	e.haveApplied = true
	return nil
}

func (e *Engine) applyPosting(p ledger.Posting) error {
	key := p.Account.String()
	current, ok := e.balances[key]
	if !ok {
		current = money.Zero(p.Asset)
	}

	delta := ledger.SignedContribution(p.Account.Category, p.Side)
	var updated money.Amount
	var err error
	if delta > 0 {
		updated, err = current.Add(p.Amount)
	} else {
		updated, err = current.Sub(p.Amount)
	}
	if err != nil {
		return err
	}

	e.balances[key] = updated
	return nil
}
