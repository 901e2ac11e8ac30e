// Package eventstore is the kernel's append-only, hash-chained journal
// file store: the file of record (spec.md section 5, 4.3, 4.6).
package eventstore

import (
	"encoding/json"

	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/money"
)

// wireRecord is the on-disk JSON representation of a sealed journal entry.
// Field order matches spec.md 6.1's canonical JSON layout.
type wireRecord struct {
	Sequence      uint64            `json:"sequence"`
	Intent        string            `json:"intent"`
	Timestamp     int64             `json:"timestamp"`
	CorrelationID string            `json:"correlation_id"`
	CausalityID   *string           `json:"causality_id"`
	Postings      []wirePosting     `json:"postings"`
	Metadata      map[string]string `json:"metadata"`
	PrevHash      string            `json:"prev_hash"`
	Hash          string            `json:"hash"`
}

type wirePosting struct {
	Account string `json:"account"`
	Side    string `json:"side"`
	Amount  string `json:"amount"`
	Asset   string `json:"asset"`
}

func toWire(e ledger.SealedJournalEntry) wireRecord {
	postings := make([]wirePosting, len(e.Postings))
	for i, p := range e.Postings {
		postings[i] = wirePosting{
			Account: p.Account.String(),
			Side:    string(p.Side),
			Amount:  p.Amount.Canonical(),
			Asset:   string(p.Asset),
		}
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return wireRecord{
		Sequence:      e.Sequence,
		Intent:        string(e.Intent),
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
		CausalityID:   e.CausalityID,
		Postings:      postings,
		Metadata:      metadata,
		PrevHash:      e.PrevHash,
		Hash:          e.Hash,
	}
}

func (w wireRecord) marshal() ([]byte, error) {
	return json.Marshal(w)
}

func unmarshalRecord(line []byte) (wireRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return wireRecord{}, err
	}
	return w, nil
}

func (w wireRecord) toSealed() (ledger.SealedJournalEntry, error) {
	postings := make([]ledger.Posting, len(w.Postings))
	for i, wp := range w.Postings {
		account, err := ledger.ParseAccountKey(wp.Account)
		if err != nil {
			return ledger.SealedJournalEntry{}, kerr.StorageIO("decode posting account", err)
		}
		side := ledger.Side(wp.Side)
		asset := money.AssetCode(wp.Asset)
		amount, err := money.New(asset, wp.Amount)
		if err != nil {
			return ledger.SealedJournalEntry{}, kerr.StorageIO("decode posting amount", err)
		}
		posting, err := ledger.NewPosting(account, side, amount, asset)
		if err != nil {
			return ledger.SealedJournalEntry{}, kerr.StorageIO("decode posting", err)
		}
		postings[i] = posting
	}
	return ledger.SealedJournalEntry{
		Sequence:      w.Sequence,
		Intent:        ledger.Intent(w.Intent),
		Timestamp:     w.Timestamp,
		CorrelationID: w.CorrelationID,
		CausalityID:   w.CausalityID,
		Postings:      postings,
		Metadata:      w.Metadata,
		PrevHash:      w.PrevHash,
		Hash:          w.Hash,
	}, nil
}
