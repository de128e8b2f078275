// Command verify-archive recomputes the integrity hash of every archived
// debate and reports any snapshot whose stored hash no longer matches its
// transcript.
//
// Usage:
//
//	DEBATE_ARCHIVE=sqlite SQLITE_PATH=debate.db go run ./scripts/verify-archive
//	DEBATE_ARCHIVE=postgres DATABASE_URL=postgres://... go run ./scripts/verify-archive
//
// Pass -all to list every snapshot instead of only the mismatches. The
// command exits with status 1 when at least one snapshot fails verification.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/storage"
)

var errMismatch = errors.New("integrity mismatch")

func main() {
	all := flag.Bool("all", false, "list every snapshot, not only mismatches")
	flag.Parse()

	if err := run(*all); err != nil {
		if errors.Is(err, errMismatch) {
			os.Exit(1)
		}
		log.Fatal(err)
	}
}

func run(all bool) error {
	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	archive, closeArchive, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeArchive()

	snaps, err := archive.Recent(ctx, 0)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	bad, err := report(os.Stdout, snaps, all)
	if err != nil {
		return err
	}
	fmt.Printf("%d snapshots checked, %d mismatched\n", len(snaps), bad)
	if bad > 0 {
		return errMismatch
	}
	return nil
}

func open(ctx context.Context) (debate.Archive, func(), error) {
	switch kind := os.Getenv("DEBATE_ARCHIVE"); kind {
	case "sqlite":
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "debate.db"
		}
		a, err := storage.OpenSQLiteArchive(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return a, func() { _ = a.Close() }, nil
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required")
		}
		db, err := storage.New(ctx, dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		return storage.NewPostgresArchive(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("DEBATE_ARCHIVE must be sqlite or postgres, got %q", kind)
	}
}

// report writes one table row per checked snapshot and returns the number
// of mismatches.
func report(w io.Writer, snaps []debate.Snapshot, all bool) (int, error) {
	table := tablewriter.NewWriter(w)
	table.Header("Team", "Session", "Status", "Ended", "Result")

	bad := 0
	for _, s := range snaps {
		ok := s.VerifyIntegrity()
		if !ok {
			bad++
		}
		if ok && !all {
			continue
		}
		ended := "-"
		if s.EndedAt != nil {
			ended = s.EndedAt.Format(time.DateTime)
		}
		result := "ok"
		if !ok {
			result = "MISMATCH"
		}
		if err := table.Append([]string{s.TeamID, s.SessionID, string(s.Status), ended, result}); err != nil {
			return 0, fmt.Errorf("append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return 0, fmt.Errorf("render: %w", err)
	}
	return bad, nil
}
