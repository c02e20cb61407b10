package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	mongoMigration "skyport/internal/migrations/mongo"
	"skyport/pkg/config"
)

const JobName = "mongo-migration"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		timeout  time.Duration
		database string
	)

	flagSet := pflag.NewFlagSet(JobName, pflag.ContinueOnError)
	flagSet.DurationVar(&timeout, "timeout", 2*time.Minute, "deadline for the whole migration")
	flagSet.StringVar(&database, "database", "", "database to migrate (default: MONGO_DATABASE_NAME)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg := config.Load(JobName)
	if database != "" {
		cfg.MongoDatabaseName = database
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Mongo migration job", "database", cfg.MongoDatabaseName, "timeout", timeout)
	if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	cfg.Log.Info("Migration completed successfully")
	return nil
}
