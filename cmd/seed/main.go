package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"skyport/internal/bookings/repository"
	"skyport/internal/bookings/validator"
	"skyport/internal/seed"
	"skyport/pkg/clock"
	"skyport/pkg/config"
)

const JobName = "catalog-seed"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		file    string
		timeout time.Duration
		dryRun  bool
	)

	flagSet := pflag.NewFlagSet(JobName, pflag.ContinueOnError)
	flagSet.StringVarP(&file, "file", "f", "", "YAML catalog of courses and travelers (see catalog.example.yaml)")
	flagSet.DurationVar(&timeout, "timeout", time.Minute, "deadline for the whole seed run")
	flagSet.BoolVar(&dryRun, "dry-run", false, "validate the catalog without writing it")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if file == "" {
		return fmt.Errorf("--file is required")
	}

	cfg := config.Load(JobName)

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	catalog, err := seed.Parse(f)
	if err != nil {
		return err
	}
	catalog.Normalize()
	if err := catalog.Validate(validator.NewBookingValidator(cfg.Log)); err != nil {
		return fmt.Errorf("invalid catalog %s: %w", file, err)
	}
	cfg.Log.Info("Catalog loaded", "file", file, "courses", len(catalog.Courses), "travelers", len(catalog.Travelers))
	if dryRun {
		return nil
	}
	if !cfg.UsesMongo() {
		return fmt.Errorf("seeding needs STORE_DRIVER=mongo, got %q", cfg.StoreDriver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	res, err := seed.Apply(ctx, repository.NewMongoStore(cfg), catalog, clock.NewSystem(), cfg.Log)
	if err != nil {
		return err
	}
	cfg.Log.Info("Catalog seeded",
		"courses", res.Courses,
		"travelers_created", res.TravelersCreated,
		"travelers_updated", res.TravelersUpdated,
		"travelers_skipped", res.TravelersSkipped,
	)
	return nil
}
