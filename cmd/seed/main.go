// Command seed fills the database with the built-in catalog and demo content.
package main

import (
	"flag"
	"log"

	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	draftRatio := flag.Float64("drafts", 0.2, "Share of posts left as drafts (0..1)")
	maxDays := flag.Int("days", 90, "Spread generated timestamps over this many days")
	fast := flag.Bool("fast", false, "Hash the shared password at minimum bcrypt cost")
	catalogOnly := flag.Bool("catalog-only", false, "Only insert the built-in categories and tags")
	dryRun := flag.Bool("dry-run", false, "Generate content without writing to the database")
	randSeed := flag.Int64("seed", 0, "Random seed for a reproducible run (0 = time based)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() && *shouldClean && !*catalogOnly {
		log.Fatalf("Refusing to clean and seed demo data in %q", cfg.Env)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *catalogOnly {
		if err := seed.Catalog(db); err != nil {
			log.Fatalf("Catalog seeding failed: %v", err)
		}
		log.Println("Catalog seeded")
		return
	}

	log.Printf("Target: %d users, %d posts, clean=%v", *numUsers, *numPosts, *shouldClean)
	if _, err := seed.Seed(db, seed.Options{
		NumUsers:    *numUsers,
		NumPosts:    *numPosts,
		ShouldClean: *shouldClean,
		DraftRatio:  *draftRatio,
		MaxDays:     *maxDays,
		SkipBcrypt:  *fast,
		DryRun:      *dryRun,
		RandSeed:    *randSeed,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("All seeded users share the password: %s", seed.DefaultPassword)
}
