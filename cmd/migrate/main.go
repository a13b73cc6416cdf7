package main

import (
	"context"
	"database/sql"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

func main() {
	var (
		dryRun  bool
		timeout time.Duration
	)
	flag.BoolVar(&dryRun, "dry-run", false, "print the schema instead of applying it")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "time allowed for the migration")
	flag.Parse()

	if dryRun {
		fmt.Print(schema)
		return
	}

	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(fmt.Errorf("DATABASE_URL is required"))
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("open database: %w", err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := apply(ctx, db, statements(schema))
	if err != nil {
		exitWithError(err)
	}
	fmt.Printf("schema up to date (%d statements)\n", n)
}

// apply runs every statement in one transaction so a failed migration leaves
// the schema untouched.
func apply(ctx context.Context, db *sql.DB, stmts []string) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("statement %d: %w\n%s", i+1, err, stmt)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit migration: %w", err)
	}
	return len(stmts), nil
}

// statements splits a schema on semicolons that end a line. Comment lines are
// dropped.
func statements(src string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
