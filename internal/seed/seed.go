package seed

import (
	"context"
	"fmt"
	"log"
	"time"

	"helpmatch/internal/models"
	"helpmatch/internal/repository"
	"helpmatch/internal/service"

	"gorm.io/gorm"
)

// Options control a seeding run.
type Options struct {
	NumUsers    int
	NumRequests int
	// ClaimEvery claims every Nth generated request. Zero disables claiming.
	ClaimEvery int
	// ProofEvery submits a pending proof photo for every Nth claimed request.
	ProofEvery  int
	ShouldClean bool
	DryRun      bool
	Fixture     *Fixture
}

// Result counts what a run created.
type Result struct {
	Users    int
	Requests int
	Claimed  int
	Photos   int
}

// Seed fills the database with a fixture and then with generated data.
// Claims go through the lifecycle service so versions and timestamps
// stay consistent with the state machine.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (Result, error) {
	var res Result
	if opts.ShouldClean && !opts.DryRun {
		if err := ClearAll(db); err != nil {
			return res, err
		}
	}

	users := repository.NewUserRepository(db, nil, 0)
	requests := repository.NewRequestRepository(db, nil, 0)
	photos := repository.NewPhotoRepository(db)
	lifecycle := service.NewLifecycleService(requests, users, photos, nil, nil)
	factory := NewFactory(users, requests, photos, SeedOptions{DryRun: opts.DryRun})

	var requesters, helpers []*models.User
	sortUser := func(u *models.User) {
		if u.Role == models.RoleHelper {
			helpers = append(helpers, u)
		} else {
			requesters = append(requesters, u)
		}
	}

	if opts.Fixture != nil {
		fixtureUsers, err := seedFixture(ctx, factory, lifecycle, opts, opts.Fixture, &res)
		if err != nil {
			return res, err
		}
		for _, u := range fixtureUsers {
			sortUser(u)
		}
	}

	for i := 0; i < opts.NumUsers; i++ {
		u, err := factory.CreateUser(ctx)
		if err != nil {
			return res, fmt.Errorf("create user: %w", err)
		}
		res.Users++
		sortUser(u)
	}
	if opts.NumRequests > 0 && (len(requesters) == 0 || len(helpers) == 0) {
		log.Printf("seed: need at least one requester and one helper, skipping %d requests", opts.NumRequests)
		return res, nil
	}

	for i := 0; i < opts.NumRequests; i++ {
		requester := requesters[i%len(requesters)]
		req, err := factory.CreateRequest(ctx, requester)
		if err != nil {
			return res, fmt.Errorf("create request: %w", err)
		}
		res.Requests++

		if opts.ClaimEvery <= 0 || i%opts.ClaimEvery != 0 || opts.DryRun {
			continue
		}
		helper := helpers[i%len(helpers)]
		claimed, err := lifecycle.ClaimRequest(ctx, req.ID, helper.ID, req.Version)
		if err != nil {
			return res, fmt.Errorf("claim request %d: %w", req.ID, err)
		}
		res.Claimed++
		if opts.ProofEvery > 0 && res.Claimed%opts.ProofEvery == 0 {
			if _, err := factory.CreatePhoto(ctx, claimed, helper.ID); err != nil {
				return res, fmt.Errorf("create photo: %w", err)
			}
			res.Photos++
		}
	}
	return res, nil
}

func seedFixture(ctx context.Context, factory *Factory, lifecycle *service.LifecycleService, opts Options, fx *Fixture, res *Result) ([]*models.User, error) {
	byName := make(map[string]*models.User, len(fx.Users))
	created := make([]*models.User, 0, len(fx.Users))
	for _, uf := range fx.Users {
		u, err := factory.CreateUser(ctx, func(u *models.User) {
			u.Username = uf.Username
			if uf.Email != "" {
				u.Email = uf.Email
			}
			if uf.Role != "" {
				u.Role = models.UserRole(uf.Role)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("fixture user %q: %w", uf.Username, err)
		}
		byName[uf.Username] = u
		created = append(created, u)
		res.Users++
	}

	for _, rf := range fx.Requests {
		req, err := factory.CreateRequest(ctx, byName[rf.Requester], func(r *models.Request) {
			if rf.Title != "" {
				r.Title = rf.Title
			}
			if rf.Category != "" {
				r.Category = rf.Category
			}
			if rf.Location != "" {
				r.Location = rf.Location
			}
			if rf.Requirements != "" {
				r.Requirements = rf.Requirements
			}
			if rf.InHours > 0 {
				r.ScheduledAt = time.Now().UTC().Add(time.Duration(rf.InHours) * time.Hour)
			}
			if rf.EstimatedHours > 0 {
				r.EstimatedHours = rf.EstimatedHours
			}
		})
		if err != nil {
			return nil, fmt.Errorf("fixture request %q: %w", rf.Title, err)
		}
		res.Requests++

		if rf.ClaimedBy == "" || opts.DryRun {
			continue
		}
		if _, err := lifecycle.ClaimRequest(ctx, req.ID, byName[rf.ClaimedBy].ID, req.Version); err != nil {
			return nil, fmt.Errorf("fixture claim %q: %w", rf.Title, err)
		}
		res.Claimed++
	}
	return created, nil
}

// ClearAll removes seeded rows, children first.
func ClearAll(db *gorm.DB) error {
	tables := []any{
		&models.NotificationEvent{},
		&models.Rating{},
		&models.PhotoSubmission{},
		&models.Request{},
		&models.User{},
	}
	for _, t := range tables {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(t).Error; err != nil {
			return fmt.Errorf("clear %T: %w", t, err)
		}
	}
	return nil
}
