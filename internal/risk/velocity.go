package risk

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/ledger"
)

// velocityLimiter caps outbound Withdrawal and Transfer entries per user
// account per minute, one
// token-bucket limiter per account, created lazily (SPEC_FULL 12.3).
type velocityLimiter struct {
	mu          sync.Mutex
	perMinute   float64
	enabled     bool
	perAccount  map[string]*rate.Limiter
}

func newVelocityLimiter(perMinute float64) *velocityLimiter {
	return &velocityLimiter{
		perMinute:  perMinute,
		enabled:    perMinute > 0,
		perAccount: make(map[string]*rate.Limiter),
	}
}

func (v *velocityLimiter) limiterFor(account string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.perAccount[account]
	if !ok {
		burst := int(v.perMinute)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(v.perMinute/60.0), burst)
		v.perAccount[account] = l
	}
	return l
}

// allow reports whether account may withdraw now, without consuming a
// token (used by Check, which must not mutate state).
func (v *velocityLimiter) allow(account string) bool {
	if !v.enabled {
		return true
	}
	return v.limiterFor(account).TokensAt(time.Now()) >= 1
}

// record consumes a token for account (used by Apply, on the entry that
// actually committed).
func (v *velocityLimiter) record(account string) {
	if !v.enabled {
		return
	}
	v.limiterFor(account).AllowN(time.Now(), 1)
}

func (e *Engine) checkVelocity(postings []ledger.Posting) error {
	account := outboundAccount(postings)
	if account == "" {
		return nil
	}
	if !e.velocity.allow(account) {
		return kerr.VelocityExceeded(account)
	}
	return nil
}

// isVelocityGated reports whether intent's outbound posting is subject to
// the withdrawal-velocity limiter: Withdrawal and outbound Transfer, per
// SPEC_FULL §12.3.
func isVelocityGated(intent ledger.Intent) bool {
	return intent == ledger.IntentWithdrawal || intent == ledger.IntentTransfer
}

// outboundAccount returns the user liability account debited by a
// Withdrawal or Transfer entry, the account funds are leaving, which is
// what the velocity limit is keyed on.
func outboundAccount(postings []ledger.Posting) string {
	for _, p := range postings {
		if p.Side == ledger.Debit && p.Account.IsUserAvailableLiability() {
			return p.Account.String()
		}
	}
	return ""
}
