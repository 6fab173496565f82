// seed-yearweeks backfills the YearWeek axis for the configured year
// range (TRS_START_YEAR..TRS_END_YEAR, overridable by flags). Safe to
// rerun: existing weeks are left alone.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-yearweeks
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/models"
)

func main() {
	settings := config.GetSettings()

	startYear := flag.Int("start", settings.StartYear, "first year to backfill (inclusive)")
	endYear := flag.Int("end", settings.EndYear, "last year to backfill (inclusive)")
	migrate := flag.Bool("migrate", true, "run AutoMigrate before seeding")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	if *migrate {
		if err := models.MigrateTable(); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	created, err := models.GenerateYearWeeks(ctx, *startYear, *endYear)
	if err != nil {
		fmt.Fprintf(os.Stderr, "year week backfill failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("year weeks %d..%d: %d created\n", *startYear, *endYear, created)
}
