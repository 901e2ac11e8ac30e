package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/money"
)

// GenesisPrevHash is the sentinel prev_hash of the genesis entry: 64 zero
// hex characters (spec.md 3.7, 8.3).
var GenesisPrevHash = strings.Repeat("0", 64)

const (
	maxCorrelationIDBytes = 128
	maxMetadataKeys       = 64
	maxMetadataBytes      = 1024
)

// CandidateEntry is a pre-seal journal entry: structurally validated, but
// without a sequence, prev_hash, or hash (spec.md glossary, 4.1).
type CandidateEntry struct {
	Intent        Intent
	CorrelationID string
	CausalityID   *string
	Postings      []Posting
	Metadata      map[string]string
}

// SealedJournalEntry is a committed entry: immutable, carrying sequence,
// timestamp, prev_hash, and hash (spec.md 3.7).
type SealedJournalEntry struct {
	Sequence      uint64
	Intent        Intent
	Timestamp     int64 // microseconds since Unix epoch
	CorrelationID string
	CausalityID   *string
	Postings      []Posting
	Metadata      map[string]string
	PrevHash      string
	Hash          string
}

// Build validates a candidate entry's structure (spec.md 4.1) and returns
// it ready for risk checking and sealing. isGenesisPosition must be true
// only when the caller is constructing the entry destined for sequence 0.
func Build(intent Intent, correlationID string, causalityID *string, postings []Posting, metadata map[string]string, isGenesisPosition bool) (CandidateEntry, error) {
	if !intent.Valid() {
		return CandidateEntry{}, kerr.IntentViolation(fmt.Sprintf("unknown intent %q", intent))
	}

	if len(postings) < 2 {
		return CandidateEntry{}, kerr.TooFewPostings(len(postings))
	}

	if err := validateCorrelationID(correlationID); err != nil {
		return CandidateEntry{}, err
	}

	if err := validateMetadata(metadata); err != nil {
		return CandidateEntry{}, err
	}

	for _, p := range postings {
		if p.Account.Asset != p.Asset {
			return CandidateEntry{}, kerr.AccountAssetMismatch(p.Account.String(), string(p.Asset))
		}
		// Every intent but Genesis requires a strictly positive amount;
		// Genesis is exactly one zero-amount entry (spec.md 8.4).
		if intent != IntentGenesis && !p.Amount.IsPositive() {
			return CandidateEntry{}, kerr.AmountNotPositive(p.Account.String())
		}
		if intent == IntentGenesis && !p.Amount.IsZero() {
			return CandidateEntry{}, kerr.IntentViolation("Genesis postings must be zero-amount")
		}
	}

	if err := validateZeroSum(postings); err != nil {
		return CandidateEntry{}, err
	}

	if err := validateIntentRules(intent, postings, metadata, isGenesisPosition); err != nil {
		return CandidateEntry{}, err
	}

	return CandidateEntry{
		Intent:        intent,
		CorrelationID: correlationID,
		CausalityID:   causalityID,
		Postings:      postings,
		Metadata:      metadata,
	}, nil
}

func validateCorrelationID(id string) error {
	if id == "" {
		return kerr.InvalidCorrelationID("correlation_id must not be empty")
	}
	if len(id) > maxCorrelationIDBytes {
		return kerr.InvalidCorrelationID("correlation_id exceeds 128 bytes")
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return kerr.InvalidCorrelationID("correlation_id must be printable ASCII")
		}
	}
	return nil
}

func validateMetadata(metadata map[string]string) error {
	if len(metadata) > maxMetadataKeys {
		return kerr.MetadataTooLarge(fmt.Sprintf("metadata has more than %d keys", maxMetadataKeys))
	}
	total := 0
	for k, v := range metadata {
		total += len(k) + len(v)
	}
	if total > maxMetadataBytes {
		return kerr.MetadataTooLarge(fmt.Sprintf("metadata exceeds %d bytes total", maxMetadataBytes))
	}
	return nil
}

// validateZeroSum enforces that, for every asset appearing in postings, the
// sum of debit amounts equals the sum of credit amounts (spec.md 4.1, P1).
func validateZeroSum(postings []Posting) error {
	order := []money.AssetCode{}
	byAsset := map[money.AssetCode][]Posting{}
	seen := map[money.AssetCode]bool{}

	for _, p := range postings {
		if !seen[p.Asset] {
			seen[p.Asset] = true
			order = append(order, p.Asset)
		}
		byAsset[p.Asset] = append(byAsset[p.Asset], p)
	}

	for _, asset := range order {
		group := byAsset[asset]
		debitSum := money.Zero(asset)
		creditSum := money.Zero(asset)

		for _, p := range group {
			var err error
			if p.Side == Debit {
				debitSum, err = debitSum.Add(p.Amount)
			} else {
				creditSum, err = creditSum.Add(p.Amount)
			}
			if err != nil {
				return err
			}
		}

		if debitSum.Cmp(creditSum) != 0 {
			return kerr.NotBalanced(string(asset), debitSum.Canonical(), creditSum.Canonical())
		}
	}
	return nil
}

// canonicalPostings returns postings sorted by (account, side, asset) per
// spec.md 3.7.
func canonicalPostings(postings []Posting) []Posting {
	sorted := make([]Posting, len(postings))
	copy(sorted, postings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].sortKey() < sorted[j].sortKey()
	})
	return sorted
}

// canonicalMetadataKeys returns metadata keys sorted lexicographically.
func canonicalMetadataKeys(metadata map[string]string) []string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonicalize produces the deterministic byte serialization used for
// hashing: sequence || prev_hash || intent || ts || correlation_id ||
// causality_id || canonical_postings || canonical_metadata (spec.md 3.7).
func Canonicalize(sequence uint64, prevHash string, intent Intent, timestamp int64, correlationID string, causalityID *string, postings []Posting, metadata map[string]string) []byte {
	var b strings.Builder

	b.WriteString(strconv.FormatUint(sequence, 10))
	b.WriteByte('|')
	b.WriteString(prevHash)
	b.WriteByte('|')
	b.WriteString(string(intent))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(timestamp, 10))
	b.WriteByte('|')
	b.WriteString(correlationID)
	b.WriteByte('|')
	if causalityID != nil {
		b.WriteString(*causalityID)
	} else {
		b.WriteString("null")
	}
	b.WriteByte('|')

	for _, p := range canonicalPostings(postings) {
		b.WriteString(p.Account.String())
		b.WriteByte(',')
		b.WriteString(string(p.Side))
		b.WriteByte(',')
		b.WriteString(p.Amount.Canonical())
		b.WriteByte(',')
		b.WriteString(string(p.Asset))
		b.WriteByte(';')
	}
	b.WriteByte('|')

	for _, k := range canonicalMetadataKeys(metadata) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(metadata[k])
		b.WriteByte(';')
	}

	return []byte(b.String())
}

// ComputeHash returns the hex-encoded SHA-256 hash of the canonical bytes.
func ComputeHash(sequence uint64, prevHash string, intent Intent, timestamp int64, correlationID string, causalityID *string, postings []Posting, metadata map[string]string) string {
	sum := sha256.Sum256(Canonicalize(sequence, prevHash, intent, timestamp, correlationID, causalityID, postings, metadata))
	return hex.EncodeToString(sum[:])
}
