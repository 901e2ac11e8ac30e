package eventstore

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tidwall/gjson"

	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/logging"
	"github.com/apex-ledger/kernel/internal/metrics"
)

const lockFileName = ".writer.lock"

// Store is the single-writer, append-only JSONL event store. One file per
// UTC day under root, plus a sidecar sequence index (spec.md 6.5).
type Store struct {
	mu sync.Mutex

	root     string
	lockFile *os.File

	current     *os.File
	currentDay  string
	index       *indexFile
	log         *logging.Logger
	metrics     *metrics.Collectors

	lastSequence uint64
	haveEntries  bool
	lastHash     string
}

// Open acquires the exclusive writer lock, recovers from any unclean
// shutdown, and returns a Store ready to append (spec.md 4.8).
func Open(root string, log *logging.Logger, m *metrics.Collectors) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, kerr.StorageIO("mkdir events dir", err)
	}

	lock, err := acquireLock(root)
	if err != nil {
		return nil, err
	}

	idx, err := openIndex(root)
	if err != nil {
		lock.Close()
		return nil, err
	}

	s := &Store{
		root:     root,
		lockFile: lock,
		index:    idx,
		log:      log,
		metrics:  m,
	}

	if err := s.recover(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func acquireLock(root string) (*os.File, error) {
	path := filepath.Join(root, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, kerr.StorageIO("open lock file", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, kerr.StorageLocked(path)
	}
	return f, nil
}

// recover scans existing day files in order, replaying sequence/hash state
// and truncating a corrupt trailing line left by an unclean shutdown
// (spec.md 4.8, "recovery").
func (s *Store) recover() error {
	files, err := listDayFiles(s.root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	for i, name := range files {
		path := filepath.Join(s.root, name)
		last := i == len(files)-1
		lastSeq, lastHash, truncated, err := scanAndRepair(path, last)
		if err != nil {
			return err
		}
		if truncated {
			s.log.Warn(context.Background(), "truncated corrupt trailing entry on recovery", map[string]interface{}{"file": path})
		}
		if lastSeq != nil {
			s.lastSequence = *lastSeq
			s.lastHash = lastHash
			s.haveEntries = true
		}
	}

	last := files[len(files)-1]
	day := strings.TrimSuffix(last, ".jsonl")
	f, err := os.OpenFile(filepath.Join(s.root, last), os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return kerr.StorageIO("reopen current event file", err)
	}
	s.current = f
	s.currentDay = day
	return nil
}

// scanAndRepair reads a JSONL file line by line. On the most recent file
// only, a trailing line that fails to parse as JSON is treated as a
// partial write from an unclean shutdown and truncated away.
func scanAndRepair(path string, isLastFile bool) (*uint64, string, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o640)
	if err != nil {
		return nil, "", false, kerr.StorageIO("open event file for recovery scan", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var offset int64
	var lastGoodOffset int64
	var lastSeq *uint64
	var lastHash string
	truncated := false

	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := int64(len(line)) + 1 // + newline

		if !gjson.ValidBytes(line) {
			if isLastFile {
				truncated = true
				break
			}
			return nil, "", false, kerr.HashMismatch(0)
		}

		seq := gjson.GetBytes(line, "sequence").Uint()
		hash := gjson.GetBytes(line, "hash").String()
		s := seq
		lastSeq = &s
		lastHash = hash

		offset += lineLen
		lastGoodOffset = offset
	}

	if truncated {
		if err := f.Truncate(lastGoodOffset); err != nil {
			return nil, "", false, kerr.TruncationFailed(err)
		}
		if _, err := f.Seek(0, 0); err != nil {
			return nil, "", false, kerr.TruncationFailed(err)
		}
	}

	return lastSeq, lastHash, truncated, nil
}

func listDayFiles(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, kerr.StorageIO("list event files", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == indexFileName {
			continue
		}
		if strings.HasSuffix(e.Name(), ".jsonl") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Append seals a candidate entry at the next sequence, writes it durably,
// and returns the sealed entry (spec.md 4.6 steps 3-4).
func (s *Store) Append(candidate ledger.CandidateEntry, now time.Time) (ledger.SealedJournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sequence uint64
	prevHash := ledger.GenesisPrevHash
	if s.haveEntries {
		sequence = s.lastSequence + 1
		prevHash = s.lastHash
	}

	ts := now.UTC().UnixMicro()
	hash := ledger.ComputeHash(sequence, prevHash, candidate.Intent, ts, candidate.CorrelationID, candidate.CausalityID, candidate.Postings, candidate.Metadata)

	sealed := ledger.SealedJournalEntry{
		Sequence:      sequence,
		Intent:        candidate.Intent,
		Timestamp:     ts,
		CorrelationID: candidate.CorrelationID,
		CausalityID:   candidate.CausalityID,
		Postings:      candidate.Postings,
		Metadata:      candidate.Metadata,
		PrevHash:      prevHash,
		Hash:          hash,
	}

	if err := s.writeSealed(sealed, now); err != nil {
		return ledger.SealedJournalEntry{}, err
	}

	s.lastSequence = sequence
	s.lastHash = hash
	s.haveEntries = true

	return sealed, nil
}

func (s *Store) writeSealed(sealed ledger.SealedJournalEntry, now time.Time) error {
	if err := s.rotateIfNeeded(now); err != nil {
		return err
	}

	record := toWire(sealed)
	body, err := record.marshal()
	if err != nil {
		return kerr.StorageIO("marshal event record", err)
	}
	body = append(body, '\n')

	offset, err := s.current.Seek(0, io.SeekEnd)
	if err != nil {
		return kerr.StorageIO("seek event file", err)
	}

	if _, err := s.current.Write(body); err != nil {
		return kerr.StorageIO("append event record", err)
	}
	if err := s.current.Sync(); err != nil {
		return kerr.StorageIO("fsync event file", err)
	}

	if err := s.index.append(sealed.Sequence, s.currentDay+".jsonl", offset); err != nil {
		return err
	}

	return nil
}

func (s *Store) rotateIfNeeded(now time.Time) error {
	day := now.UTC().Format("2006-01-02")
	if s.current != nil && s.currentDay == day {
		return nil
	}
	if s.current != nil {
		s.current.Close()
	}
	f, err := os.OpenFile(filepath.Join(s.root, day+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return kerr.StorageIO("open event file for append", err)
	}
	s.current = f
	s.currentDay = day
	return nil
}

// LastSequence returns the sequence of the most recently committed entry,
// and whether any entry has ever been committed.
func (s *Store) LastSequence() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSequence, s.haveEntries
}

// LastHash returns the hash of the most recently committed entry.
func (s *Store) LastHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}

// Close releases the writer lock and closes open file handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Close()
	}
	if s.index != nil {
		s.index.close()
	}
	if s.lockFile != nil {
		syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN)
		s.lockFile.Close()
	}
	return nil
}
