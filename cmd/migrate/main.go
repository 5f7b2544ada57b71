// Command migrate manages the Inkwell database schema.
//
//	migrate up              apply pending SQL migrations
//	migrate auto            run GORM AutoMigrate over the models
//	migrate status          show the schema plan and pending migrations
//	migrate down <version>  revert the latest migration
//	migrate -yes reset      empty every table (not in production)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"inkwell/internal/config"
	"inkwell/internal/database"

	"gorm.io/gorm"
)

var errUsage = errors.New("usage: migrate [-yes] <up|auto|status|down <version>|reset>")

type command func(ctx context.Context, cfg *config.Config, db *gorm.DB, args []string) error

var commands = map[string]command{
	"up":     migrateUp,
	"auto":   autoMigrate,
	"status": showStatus,
	"down":   migrateDown,
	"reset":  resetData,
}

var confirmed = flag.Bool("yes", false, "confirm destructive commands")

func main() {
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return errUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	return cmd(context.Background(), cfg, db, args[1:])
}

func migrateUp(ctx context.Context, _ *config.Config, db *gorm.DB, _ []string) error {
	n, err := database.NewMigrator(db).Up(ctx)
	if err != nil {
		return err
	}
	log.Printf("%d migration(s) applied", n)
	return nil
}

func autoMigrate(ctx context.Context, cfg *config.Config, db *gorm.DB, _ []string) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return err
	}
	log.Print("models migrated")
	return nil
}

func showStatus(ctx context.Context, cfg *config.Config, db *gorm.DB, _ []string) error {
	status, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return err
	}
	log.Printf("mode=%s env=%s sql=%t automigrate=%t applied=%d pending=%d",
		status.Mode, status.Environment, status.SQL, status.AutoMigrate,
		len(status.AppliedVersions), len(status.PendingMigrations))
	for _, m := range status.PendingMigrations {
		log.Printf("pending %s", m)
	}
	return nil
}

func migrateDown(ctx context.Context, _ *config.Config, db *gorm.DB, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}
	if err := database.NewMigrator(db).Down(ctx, version); err != nil {
		return err
	}
	log.Printf("reverted %06d", version)
	return nil
}

func resetData(_ context.Context, cfg *config.Config, db *gorm.DB, _ []string) error {
	if cfg.IsProduction() {
		return fmt.Errorf("refusing to reset data in %q", cfg.Env)
	}
	if !*confirmed {
		return errors.New("reset deletes every post, comment and account; rerun with -yes")
	}
	if err := database.TruncateAllTables(db); err != nil {
		return err
	}
	log.Print("all application tables emptied")
	return nil
}
