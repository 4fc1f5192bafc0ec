package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
	"bitbucket.org/mmdatafocus/catalog_backend/models"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
)

// Rebuilds monthly summaries straight from the inventory ledger. Safe to run
// at any time: summaries are a derived view and carry no information of their
// own.
func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	productID := flag.Int("product-id", 0, "Optional: limit rebuild to one product")
	staleOnly := flag.Bool("stale-only", false, "Recompute only rows currently marked stale (all businesses)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()

	if *staleOnly {
		recomputed, err := models.RecomputeStaleSummaries(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stale recompute failed after %d rows: %v\n", recomputed, err)
			os.Exit(1)
		}
		fmt.Printf("recomputed %d stale summaries\n", recomputed)
		return
	}

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required (or use --stale-only)")
		os.Exit(1)
	}

	ctx = utils.SetBusinessIdInContext(ctx, strings.TrimSpace(*businessID))
	rebuilt, err := models.RebuildMonthlySummaries(ctx, *productID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed after %d summaries: %v\n", rebuilt, err)
		os.Exit(1)
	}
	fmt.Printf("rebuilt %d summaries for business %s\n", rebuilt, *businessID)
}
