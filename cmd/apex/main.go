// Package main provides the apex ledger kernel CLI.
//
// Usage:
//
//	apex commit <intent> <correlation_id> <account:side:amount:asset>...  - Append a journal entry
//	apex balance <account>                                                - Show an account's balance
//	apex history <account> [-from N]                                     - Show an account's posting history
//	apex verify                                                          - Verify the full hash chain
//	apex replay [-reset]                                                 - Replay the projection cache
//	apex tail [-from N]                                                  - Stream committed entries
//	apex snapshot -out <dir>                                             - Copy event store and projection to dir
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/apex-ledger/kernel/internal/bootstrap"
	"github.com/apex-ledger/kernel/internal/config"
	"github.com/apex-ledger/kernel/internal/coordinator"
	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/logging"
	"github.com/apex-ledger/kernel/internal/metrics"
	"github.com/apex-ledger/kernel/internal/money"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(3)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(3)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(3)
	}

	log := logging.NewFromEnv("apex")
	m := metrics.NewUnregistered()
	if cfg.MetricsEnabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	ctx := context.Background()
	kernel, err := bootstrap.Run(ctx, cfg, log, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bootstrap failed: %v\n", err)
		os.Exit(kerr.ExitCode(err))
	}
	defer kernel.Close()

	cmd := os.Args[1]
	args := os.Args[2:]

	var cmdErr error
	switch cmd {
	case "commit":
		cmdErr = cmdCommit(ctx, kernel.Coordinator, args)
	case "balance":
		cmdErr = cmdBalance(kernel, args)
	case "history":
		cmdErr = cmdHistory(kernel, args)
	case "verify":
		cmdErr = cmdVerify(kernel)
	case "replay":
		cmdErr = cmdReplay(kernel, args)
	case "tail":
		cmdErr = cmdTail(kernel, args)
	case "snapshot":
		cmdErr = cmdSnapshot(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(3)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		os.Exit(kerr.ExitCode(cmdErr))
	}
}

func printUsage() {
	fmt.Println(`apex - append-only double-entry ledger kernel

Usage:
  apex <command> [arguments]

Commands:
  commit <intent> <correlation_id> <account:side:amount:asset>...
  balance <account>
  history <account> [-from N]
  verify
  replay [-reset]
  tail [-from N]
  snapshot -out <dir>

Environment Variables:
  LEDGER_ROOT, LEDGER_FSYNC, LOG_LEVEL, LOG_FORMAT, METRICS_ENABLED, METRICS_PORT

Examples:
  apex commit Deposit corr-1 ASSET:SYSTEM:VAULT:USDT:MAIN:Debit:100.000000:USDT LIABILITY:USER:ALICE:USDT:AVAILABLE:Credit:100.000000:USDT
  apex balance LIABILITY:USER:ALICE:USDT:AVAILABLE
  apex verify`)
}

// parsePostingArg parses "ACCOUNT:SIDE:AMOUNT:ASSET" into a ledger.Posting.
func parsePostingArg(raw string) (ledger.Posting, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 4 {
		return ledger.Posting{}, fmt.Errorf("posting %q must be ACCOUNT:SIDE:AMOUNT:ASSET", raw)
	}
	asset := money.AssetCode(parts[len(parts)-1])
	amountLiteral := parts[len(parts)-2]
	side := ledger.Side(parts[len(parts)-3])
	accountRaw := strings.Join(parts[:len(parts)-3], ":")

	account, err := ledger.ParseAccountKey(accountRaw)
	if err != nil {
		return ledger.Posting{}, err
	}
	amount, err := money.New(asset, amountLiteral)
	if err != nil {
		return ledger.Posting{}, err
	}
	return ledger.NewPosting(account, side, amount, asset)
}

func cmdCommit(ctx context.Context, c *coordinator.Coordinator, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: apex commit <intent> <correlation_id> <account:side:amount:asset>...")
	}

	intent := ledger.Intent(args[0])
	correlationID := args[1]
	postings := make([]ledger.Posting, 0, len(args)-2)
	for _, raw := range args[2:] {
		p, err := parsePostingArg(raw)
		if err != nil {
			return err
		}
		postings = append(postings, p)
	}

	sealed, err := c.Commit(ctx, coordinator.CommitRequest{
		Intent:        intent,
		CorrelationID: correlationID,
		Postings:      postings,
	})
	if err != nil {
		return err
	}

	fmt.Printf("sequence=%d hash=%s\n", sealed.Sequence, sealed.Hash)
	return nil
}

func cmdBalance(kernel *bootstrap.Kernel, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: apex balance <account>")
	}
	account, err := ledger.ParseAccountKey(args[0])
	if err != nil {
		return err
	}
	bal, err := kernel.Projection.Balance(account.String(), account.Asset)
	if err != nil {
		return err
	}
	fmt.Println(bal.Canonical())
	return nil
}

func cmdHistory(kernel *bootstrap.Kernel, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	from := fs.Int64("from", 0, "minimum sequence to include")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		return fmt.Errorf("usage: apex history <account> [-from N]")
	}

	if _, err := ledger.ParseAccountKey(remaining[0]); err != nil {
		return err
	}

	records, err := kernel.Projection.History(remaining[0], uint64(*from))
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%d\t%s\t%s\t%s %s\n", r.Sequence, r.Intent, r.Side, r.Amount, r.Asset)
	}
	return nil
}

func cmdVerify(kernel *bootstrap.Kernel) error {
	report, err := kernel.Store.VerifyChain()
	if err != nil {
		return err
	}
	fmt.Printf("ok: %d entries checked, last_sequence=%d\n", report.EntriesChecked, report.LastSequence)
	return nil
}

func cmdReplay(kernel *bootstrap.Kernel, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	reset := fs.Bool("reset", false, "truncate the projection cache before replaying")
	fs.Parse(args)

	if !*reset {
		return fmt.Errorf("replay without -reset is a no-op: the projection is already replayed on every bootstrap")
	}
	if err := bootstrap.Reset(kernel.Projection, kernel.Store); err != nil {
		return err
	}
	fmt.Println("projection cache rebuilt")
	return nil
}

func cmdTail(kernel *bootstrap.Kernel, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	from := fs.Int64("from", 0, "starting sequence")
	fs.Parse(args)

	items, cancel := kernel.Store.IterFrom(uint64(*from))
	defer cancel()
	for item := range items {
		if item.Err != nil {
			return item.Err
		}
		fmt.Printf("%d\t%s\t%s\n", item.Entry.Sequence, item.Entry.Intent, item.Entry.Hash)
	}
	return nil
}

func cmdSnapshot(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	out := fs.String("out", "", "destination directory")
	fs.Parse(args)

	if *out == "" {
		return fmt.Errorf("usage: apex snapshot -out <dir>")
	}
	return copyTree(cfg.LedgerRoot, *out)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
		if err != nil {
			return err
		}
		defer outFile.Close()
		_, err = io.Copy(outFile, in)
		return err
	})
}
