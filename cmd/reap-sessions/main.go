package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// CLI flags
var (
	dsn         = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default: env DATABASE_URL)")
	dryRun      = flag.Bool("dry-run", false, "Count rows that would be deleted; no DB writes")
	advisoryKey = flag.Int64("advisory-lock", 0, "Optional Postgres advisory lock key (e.g., 424242). 0 = disabled")
	keepTokens  = flag.Bool("keep-tokens", false, "Only reap sessions; leave verification tokens alone")
)

const (
	expiredSessions = `FROM app_auth.user_sessions WHERE expires_at <= $1`
	deadTokens      = `FROM app_auth.email_verification_tokens WHERE is_used OR expires_at <= $1`
)

type Counts struct {
	Sessions int64
	Tokens   int64
}

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	now := time.Now().UTC()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		fatalf("begin tx: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if *advisoryKey != 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, *advisoryKey); err != nil {
			fatalf("advisory lock: %v", err)
		}
	}

	before, err := count(ctx, tx, now)
	if err != nil {
		fatalf("count: %v", err)
	}
	fmt.Printf("Expired sessions=%d dead verification tokens=%d (cutoff %s)\n",
		before.Sessions, before.Tokens, now.Format(time.RFC3339))

	if *dryRun {
		fmt.Println("Dry run complete. No changes made.")
		return
	}

	deleted, err := reap(ctx, tx, now, !*keepTokens)
	if err != nil {
		fatalf("reap: %v", err)
	}

	if err := tx.Commit(); err != nil {
		fatalf("commit: %v", err)
	}
	fmt.Printf("Deleted sessions=%d tokens=%d\n", deleted.Sessions, deleted.Tokens)
}

func count(ctx context.Context, tx *sql.Tx, now time.Time) (Counts, error) {
	var c Counts
	if err := tx.QueryRowContext(ctx, `SELECT count(*) `+expiredSessions, now).Scan(&c.Sessions); err != nil {
		return c, fmt.Errorf("sessions: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT count(*) `+deadTokens, now).Scan(&c.Tokens); err != nil {
		return c, fmt.Errorf("tokens: %w", err)
	}
	return c, nil
}

func reap(ctx context.Context, tx *sql.Tx, now time.Time, tokens bool) (Counts, error) {
	var c Counts

	res, err := tx.ExecContext(ctx, `DELETE `+expiredSessions, now)
	if err != nil {
		return c, fmt.Errorf("sessions: %w", err)
	}
	c.Sessions, _ = res.RowsAffected()

	if !tokens {
		return c, nil
	}
	res, err = tx.ExecContext(ctx, `DELETE `+deadTokens, now)
	if err != nil {
		return c, fmt.Errorf("tokens: %w", err)
	}
	c.Tokens, _ = res.RowsAffected()
	return c, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
