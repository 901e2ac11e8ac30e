// Package ledger defines the pure value types of the journal data model:
// account keys, postings, journal entries, and their structural invariants
// (spec.md section 3, 4.1, 4.2). Nothing in this package performs I/O.
package ledger

import (
	"strings"

	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/money"
)

// Category is the accounting category segment of an AccountKey (spec.md 3.3).
type Category string

const (
	CategoryAsset     Category = "ASSET"
	CategoryLiability Category = "LIABILITY"
	CategoryEquity    Category = "EQUITY"
	CategoryRevenue   Category = "REVENUE"
	CategoryExpense   Category = "EXPENSE"
)

var validCategories = map[Category]bool{
	CategoryAsset:     true,
	CategoryLiability: true,
	CategoryEquity:    true,
	CategoryRevenue:   true,
	CategoryExpense:   true,
}

// Domain is the second AccountKey segment (spec.md 3.3). Extensible only by
// a kernel release — callers cannot register new domains at runtime.
type Domain string

const (
	DomainUser   Domain = "USER"
	DomainSystem Domain = "SYSTEM"
)

var validDomains = map[Domain]bool{
	DomainUser:   true,
	DomainSystem: true,
}

// AccountKey is a parsed, validated five-segment account identifier:
// CATEGORY:DOMAIN:ENTITY:ASSET:SUBACCOUNT (spec.md 3.3).
type AccountKey struct {
	raw        string
	Category   Category
	Domain     Domain
	Entity     string
	Asset      money.AssetCode
	Subaccount string
}

// ParseAccountKey parses and validates an account key string. It rejects
// any key that is not exactly five colon-delimited segments, contains
// lowercase characters, or names an unknown category.
func ParseAccountKey(raw string) (AccountKey, error) {
	segments := strings.Split(raw, ":")
	if len(segments) != 5 {
		return AccountKey{}, kerr.InvalidAccountKey(raw, "account key must have exactly five colon-delimited segments")
	}
	for _, seg := range segments {
		if seg == "" {
			return AccountKey{}, kerr.InvalidAccountKey(raw, "account key segments must not be empty")
		}
		if seg != strings.ToUpper(seg) {
			return AccountKey{}, kerr.InvalidAccountKey(raw, "account key must be SCREAMING_SNAKE_CASE")
		}
	}

	category := Category(segments[0])
	if !validCategories[category] {
		return AccountKey{}, kerr.InvalidAccountKey(raw, "unknown account category")
	}

	domain := Domain(segments[1])
	if !validDomains[domain] {
		return AccountKey{}, kerr.InvalidAccountKey(raw, "unknown account domain")
	}

	asset := money.AssetCode(segments[3])
	if !asset.Valid() {
		return AccountKey{}, kerr.InvalidAccountKey(raw, "asset segment must be uppercase ASCII")
	}

	return AccountKey{
		raw:        raw,
		Category:   category,
		Domain:     domain,
		Entity:     segments[2],
		Asset:      asset,
		Subaccount: segments[4],
	}, nil
}

// String returns the canonical colon-delimited representation.
func (k AccountKey) String() string { return k.raw }

// IsUserAvailableLiability reports whether k matches
// LIABILITY:USER:*:*:AVAILABLE (spec.md 3.8 invariant 6).
func (k AccountKey) IsUserAvailableLiability() bool {
	return k.Category == CategoryLiability && k.Domain == DomainUser && k.Subaccount == "AVAILABLE"
}

// IsSystemVaultMain reports whether k matches ASSET:SYSTEM:VAULT:*:MAIN
// (spec.md 3.8 invariant 7).
func (k AccountKey) IsSystemVaultMain() bool {
	return k.Category == CategoryAsset && k.Domain == DomainSystem && k.Entity == "VAULT" && k.Subaccount == "MAIN"
}
