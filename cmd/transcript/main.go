// Command transcript inspects a recorded SQLite transcript: it prints the
// stored session in the stamped line format, optionally filtered by tag or
// message content.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/skobkin/testtarget/transcript"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run transcript tool", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dbPath := flag.String("db", "log/cui.db", "transcript database path")
	tag := flag.String("tag", "", "only entries whose tag starts with this prefix, e.g. RX or ER:tcp")
	contains := flag.String("contains", "", "only entries whose message contains this substring")
	tail := flag.Int("tail", 0, "print only the last N matching entries")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(*dbPath); err != nil {
		return fmt.Errorf("transcript database: %w", err)
	}

	store, err := transcript.NewSQLite(ctx, *dbPath)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Warn("close transcript", "error", closeErr)
		}
	}()

	entries, err := store.Entries(ctx)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	filtered := entries[:0:0]
	for _, e := range entries {
		if *tag != "" && !strings.HasPrefix(e.Tag, *tag) {
			continue
		}
		if *contains != "" && !strings.Contains(e.Message, *contains) {
			continue
		}
		filtered = append(filtered, e)
	}
	if *tail > 0 && len(filtered) > *tail {
		filtered = filtered[len(filtered)-*tail:]
	}

	for _, e := range filtered {
		fmt.Printf("%d:%s:%s", e.At, e.Tag, e.Message)
	}
	slog.Info("transcript dump complete", "total", len(entries), "printed", len(filtered))

	return nil
}
