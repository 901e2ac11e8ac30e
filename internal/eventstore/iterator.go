package eventstore

import (
	"bufio"
	"os"
	"path/filepath"

	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/ledger"
)

// Item is one element of an IterFrom stream: either a sealed entry or a
// terminal error.
type Item struct {
	Entry ledger.SealedJournalEntry
	Err   error
}

// IterFrom streams every sealed entry at or after sequence, in order, over
// the returned channel. The channel is closed when iteration completes or
// fails; a failure is delivered as the final Item. Cancel releases
// resources if the caller stops consuming early.
func (s *Store) IterFrom(sequence uint64) (<-chan Item, func()) {
	out := make(chan Item, 64)
	done := make(chan struct{})
	cancel := func() { close(done) }

	go func() {
		defer close(out)

		startFile, _, found, err := s.index.locate(s.root, sequence)
		if err != nil {
			out <- Item{Err: err}
			return
		}

		files, err := listDayFiles(s.root)
		if err != nil {
			out <- Item{Err: err}
			return
		}

		startIdx := 0
		if found {
			for i, f := range files {
				if f == startFile {
					startIdx = i
					break
				}
			}
		}

		for _, name := range files[startIdx:] {
			if err := s.streamFile(name, sequence, out, done); err != nil {
				select {
				case out <- Item{Err: err}:
				case <-done:
				}
				return
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	return out, cancel
}

func (s *Store) streamFile(name string, minSequence uint64, out chan<- Item, done <-chan struct{}) error {
	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		return kerr.StorageIO("open event file for replay", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := unmarshalRecord(line)
		if err != nil {
			return kerr.Wrap(kerr.CodeStorageIO, "corrupt event record during replay", err)
		}
		if rec.Sequence < minSequence {
			continue
		}
		entry, err := rec.toSealed()
		if err != nil {
			return err
		}
		select {
		case out <- Item{Entry: entry}:
		case <-done:
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return kerr.StorageIO("scan event file", err)
	}
	return nil
}
