package eventstore

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	kerr "github.com/apex-ledger/kernel/internal/errors"
)

const indexFileName = "index.jsonl"

// indexRecord maps a sequence number to its (file, byte offset) location,
// letting IterFrom seek directly instead of scanning every prior file.
type indexRecord struct {
	Sequence uint64 `json:"sequence"`
	File     string `json:"file"`
	Offset   int64  `json:"offset"`
}

// indexFile is the append-only sidecar sequence index (spec.md 6.5).
type indexFile struct {
	mu   sync.Mutex
	file *os.File
}

func openIndex(root string) (*indexFile, error) {
	f, err := os.OpenFile(filepath.Join(root, indexFileName), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o640)
	if err != nil {
		return nil, kerr.StorageIO("open sequence index", err)
	}
	return &indexFile{file: f}, nil
}

func (idx *indexFile) append(sequence uint64, file string, offset int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec := indexRecord{Sequence: sequence, File: file, Offset: offset}
	body, err := json.Marshal(rec)
	if err != nil {
		return kerr.StorageIO("marshal index record", err)
	}
	body = append(body, '\n')
	if _, err := idx.file.Write(body); err != nil {
		return kerr.StorageIO("append index record", err)
	}
	return idx.file.Sync()
}

// locate returns the (file, offset) of the first record at or after
// sequence, if the index has one. It reads the whole sidecar, which is
// proportional to entry count but independent of day-file size.
func (idx *indexFile) locate(root string, sequence uint64) (string, int64, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.file.Seek(0, 0); err != nil {
		return "", 0, false, kerr.StorageIO("seek sequence index", err)
	}
	scanner := bufio.NewScanner(idx.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var best *indexRecord
	for scanner.Scan() {
		var rec indexRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Sequence >= sequence {
			if best == nil || rec.Sequence < best.Sequence {
				r := rec
				best = &r
			}
		}
	}
	if best == nil {
		return "", 0, false, nil
	}
	return best.File, best.Offset, true, nil
}

func (idx *indexFile) close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.file.Close()
}
