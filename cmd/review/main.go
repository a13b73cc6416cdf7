package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"fundtrace/internal/adapter/repo"
	"fundtrace/internal/infra"
	"fundtrace/internal/ledger"
	"fundtrace/internal/transparency"
)

// review lets back-office staff act on the ledger without the HTTP API:
// approving or rejecting utilizations and verifying or publishing evidence.
func main() {
	var (
		utilizationFlag  int64
		transparencyFlag int64
		actionFlag       string
		actorFlag        string
		noteFlag         string
	)
	flag.Int64Var(&utilizationFlag, "utilization", 0, "utilization ID to approve or reject")
	flag.Int64Var(&transparencyFlag, "transparency", 0, "transparency record ID to verify or publish")
	flag.StringVar(&actionFlag, "action", "", "approve, reject, verify or publish")
	flag.StringVar(&actorFlag, "actor", "", "reviewer or verifier identity recorded on the change")
	flag.StringVar(&noteFlag, "note", "", "review note")
	flag.Parse()

	action := strings.ToLower(strings.TrimSpace(actionFlag))
	actor := strings.TrimSpace(actorFlag)
	switch action {
	case "approve", "reject":
		if utilizationFlag <= 0 {
			exitWithError(errors.New("-utilization is required for " + action))
		}
		if actor == "" {
			exitWithError(errors.New("-actor is required"))
		}
	case "verify":
		if transparencyFlag <= 0 {
			exitWithError(errors.New("-transparency is required for verify"))
		}
		if actor == "" {
			exitWithError(errors.New("-actor is required"))
		}
	case "publish":
		if transparencyFlag <= 0 {
			exitWithError(errors.New("-transparency is required for publish"))
		}
	default:
		exitWithError(fmt.Errorf("unsupported action %q", actionFlag))
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "review")
	store := repo.NewLedgerStore(infra.NewSQLRunner(pool, logger))

	var result any
	switch action {
	case "approve", "reject":
		engine := ledger.New(store, ledger.WithLogger(logger))
		result, err = engine.ReviewUtilization(ctx, utilizationFlag, ledger.Review{
			ReviewerID: actor,
			Approve:    action == "approve",
			Note:       noteFlag,
		})
	case "verify", "publish":
		verifier := transparency.New(store, transparency.Config{
			Tolerance:        cfg.ReconcileTolerance,
			TolerancePercent: cfg.ReconcileTolerancePercent,
		}, transparency.WithLogger(logger))
		if action == "verify" {
			result, err = verifier.Verify(ctx, transparencyFlag, actor)
		} else {
			result, err = verifier.Publish(ctx, transparencyFlag)
		}
	}
	if err != nil {
		exitWithError(fmt.Errorf("%s failed: %w", action, err))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		exitWithError(fmt.Errorf("failed to encode result: %w", err))
	}
	fmt.Println(string(out))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
