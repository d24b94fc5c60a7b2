// Package main provides operator utilities for the HelpMatch API.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"helpmatch/internal/config"
	"helpmatch/internal/database"
	"helpmatch/internal/featureflags"
	"helpmatch/internal/middleware"
	"helpmatch/internal/models"
	"helpmatch/internal/notifications"
	"helpmatch/internal/reaper"
	"helpmatch/internal/repository"
	"helpmatch/internal/service"

	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/admin token <user_id> [ttl_hours]   - Issue an API token for a user")
		fmt.Println("  go run ./cmd/admin deactivate <user_id>          - Deactivate a user")
		fmt.Println("  go run ./cmd/admin list-stale                    - List claims older than CLAIM_TTL_MINUTES")
		fmt.Println("  go run ./cmd/admin expire-claims                 - Run one reaper sweep now")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	command := os.Args[1]

	switch command {
	case "token":
		if len(os.Args) < 3 {
			fmt.Println("Usage: go run ./cmd/admin token <user_id> [ttl_hours]")
			os.Exit(1)
		}
		issueToken(ctx, cfg, db, os.Args[2], os.Args[3:])

	case "deactivate":
		if len(os.Args) < 3 {
			fmt.Println("Usage: go run ./cmd/admin deactivate <user_id>")
			os.Exit(1)
		}
		deactivate(ctx, db, os.Args[2])

	case "list-stale":
		listStale(ctx, cfg, db)

	case "expire-claims":
		expireClaims(ctx, cfg, db)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func parseUserID(raw string) uint {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		log.Fatalf("Invalid user ID: %s", raw)
	}
	return uint(id)
}

func issueToken(ctx context.Context, cfg *config.Config, db *gorm.DB, rawID string, rest []string) {
	userID := parseUserID(rawID)
	user, err := repository.NewUserRepository(db, nil, 0).GetByID(ctx, userID)
	if err != nil {
		log.Fatalf("User %d: %v", userID, err)
	}
	if !user.IsActive {
		log.Fatalf("User %d is deactivated", userID)
	}

	ttl := cfg.TokenTTL()
	if len(rest) > 0 {
		hours, err := strconv.Atoi(rest[0])
		if err != nil || hours <= 0 {
			log.Fatalf("Invalid ttl_hours: %s", rest[0])
		}
		ttl = time.Duration(hours) * time.Hour
	}

	token, err := middleware.IssueToken(middleware.TokenConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}, user.ID, ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}

func deactivate(ctx context.Context, db *gorm.DB, rawID string) {
	userID := parseUserID(rawID)
	users := service.NewUserService(repository.NewUserRepository(db, nil, 0))
	if err := users.DeactivateUser(ctx, userID, userID); err != nil {
		log.Fatalf("Failed to deactivate user %d: %v", userID, err)
	}
	fmt.Printf("User %d deactivated\n", userID)
}

func listStale(ctx context.Context, cfg *config.Config, db *gorm.DB) {
	cutoff := time.Now().UTC().Add(-cfg.ClaimTTL())
	requests := repository.NewRequestRepository(db, nil, 0)
	n := 0
	for req, err := range requests.List(ctx, repository.RequestFilter{
		Statuses:      []models.RequestStatus{models.RequestStatusClaimed},
		ClaimedBefore: &cutoff,
	}) {
		if err != nil {
			log.Fatalf("Failed to list requests: %v", err)
		}
		n++
		fmt.Printf("  #%d %q claimant=%d claimed_at=%s version=%d\n",
			req.ID, req.Title, derefID(req.ClaimantID), req.ClaimedAt.Format(time.RFC3339), req.Version)
	}
	fmt.Printf("%d stale claim(s)\n", n)
}

func expireClaims(ctx context.Context, cfg *config.Config, db *gorm.DB) {
	requests := repository.NewRequestRepository(db, nil, 0)
	users := repository.NewUserRepository(db, nil, 0)
	photos := repository.NewPhotoRepository(db)
	notifs := repository.NewNotificationRepository(db)

	// Persist notifications only; no live sinks from the CLI.
	fanOut := notifications.NewFanOut(notifs, notifications.FanOutConfig{Workers: 1})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = fanOut.Close(closeCtx)
	}()

	flags := featureflags.NewManager(cfg.FeatureFlags)
	lifecycle := service.NewLifecycleService(requests, users, photos, flags, fanOut)
	// A manual sweep ignores the claim_reaper flag.
	r := reaper.New(requests, lifecycle, nil, cfg.ClaimTTL(), time.Minute)
	n, err := r.Sweep(ctx)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
	fmt.Printf("Expired %d claim(s)\n", n)
}

func derefID(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}
