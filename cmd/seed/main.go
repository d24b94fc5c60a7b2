// Command main runs the database seeder.
package main

import (
	"context"
	"flag"
	"log"

	"helpmatch/internal/config"
	"helpmatch/internal/database"
	"helpmatch/internal/seed"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 40, "Number of users to create")
	numRequests := flag.Int("requests", 120, "Number of requests to create")
	claimEvery := flag.Int("claim-every", 3, "Claim every Nth request (0 disables)")
	proofEvery := flag.Int("proof-every", 2, "Submit a proof photo for every Nth claim (0 disables)")
	fixturePath := flag.String("fixture", "", "YAML fixture loaded before generated data")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	dryRun := flag.Bool("dry-run", false, "Log what would be created without writing")
	flag.Parse()

	log.Println("Database Seeder")
	log.Printf("Target: %d users, %d requests, clean=%v dry_run=%v\n", *numUsers, *numRequests, *shouldClean, *dryRun)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	opts := seed.Options{
		NumUsers:    *numUsers,
		NumRequests: *numRequests,
		ClaimEvery:  *claimEvery,
		ProofEvery:  *proofEvery,
		ShouldClean: *shouldClean,
		DryRun:      *dryRun,
	}
	if *fixturePath != "" {
		fx, err := seed.LoadFixtureFile(*fixturePath)
		if err != nil {
			log.Fatalf("Fixture load failed: %v", err)
		}
		opts.Fixture = fx
	}

	res, err := seed.Seed(ctx, db, opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Done: %d users, %d requests, %d claimed, %d proof photos", res.Users, res.Requests, res.Claimed, res.Photos)
}
